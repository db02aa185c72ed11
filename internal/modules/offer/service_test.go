// README: Offer negotiation tests (submit guards, accept tri-effect, decline rollback).
package offer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"roadcall/internal/modules/mechanic"
	"roadcall/internal/modules/request"
	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var testPickup = types.Coordinates{Latitude: 18.2011, Longitude: -67.1396}

// memOffers is an in-memory Store that shares the request map with the
// request source, so Accept/Decline can apply their cross-aggregate effects
// the way the transactional Postgres store does.
type memOffers struct {
	mu     sync.Mutex
	reqs   map[types.ID]*request.ServiceRequest
	offers map[types.ID]*Offer
	order  []types.ID
}

func newMemOffers() *memOffers {
	return &memOffers{
		reqs:   make(map[types.ID]*request.ServiceRequest),
		offers: make(map[types.ID]*Offer),
	}
}

func (m *memOffers) Create(ctx context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	m.order = append(m.order, o.ID)
	return nil
}

func (m *memOffers) Get(ctx context.Context, id types.ID) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOffers) LatestPending(ctx context.Context, requestID types.ID, now time.Time) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		o := m.offers[m.order[i]]
		if o.ServiceRequestID == requestID && o.Status == StatusPending && o.ExpiresAt.After(now) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNoPendingOffer
}

func (m *memOffers) AcceptedFor(ctx context.Context, requestID types.ID) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		o := m.offers[m.order[i]]
		if o.ServiceRequestID == requestID && o.Status == StatusAccepted {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOffers) Accept(ctx context.Context, offerID, requestID, mechanicID types.ID, reqVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[requestID]
	if !ok || r.Status != request.StatusRequested || r.StatusVersion != reqVersion {
		return false, nil
	}
	o, ok := m.offers[offerID]
	if !ok || o.Status != StatusPending {
		return false, nil
	}
	r.Status = request.StatusAccepted
	r.StatusVersion++
	r.MechanicID = &mechanicID
	o.Status = StatusAccepted
	for _, other := range m.offers {
		if other.ServiceRequestID == requestID && other.ID != offerID && other.Status == StatusPending {
			other.Status = StatusRejected
		}
	}
	return true, nil
}

func (m *memOffers) Decline(ctx context.Context, offerID, requestID types.ID, reqVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok || o.Status != StatusPending {
		return false, nil
	}
	r, ok := m.reqs[requestID]
	if !ok || r.StatusVersion != reqVersion {
		return false, nil
	}
	if r.Status != request.StatusRequested && r.Status != request.StatusAccepted {
		return false, nil
	}
	o.Status = StatusDeclined
	r.Status = request.StatusRequested
	r.StatusVersion++
	r.MechanicID = nil
	return true, nil
}

func (m *memOffers) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.offers {
		if o.Status == StatusPending && !o.ExpiresAt.After(now) {
			o.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memOffers) ListByRequest(ctx context.Context, requestID types.ID) ([]*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Offer
	for i := len(m.order) - 1; i >= 0; i-- {
		o := m.offers[m.order[i]]
		if o.ServiceRequestID == requestID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOffers) putRequest(r *request.ServiceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reqs[r.ID] = &cp
}

func (m *memOffers) getRequest(id types.ID) *request.ServiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.reqs[id]
	return &cp
}

type reqSource struct{ m *memOffers }

func (s reqSource) Get(ctx context.Context, id types.ID) (*request.ServiceRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.reqs[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type dirStub struct{ avail map[types.ID]bool }

func (d dirStub) Get(ctx context.Context, id types.ID) (*mechanic.Mechanic, error) {
	available, ok := d.avail[id]
	if !ok {
		return nil, mechanic.ErrNotFound
	}
	return &mechanic.Mechanic{ID: id, UserID: "user-" + id, IsAvailable: available}, nil
}

func newTestService(store *memOffers, dir dirStub) *Service {
	log := zerolog.Nop()
	return NewService(store, reqSource{store}, dir, notify.Nop{}, &log)
}

func openRequest(store *memOffers, id types.ID) {
	store.putRequest(&request.ServiceRequest{
		ID:          id,
		ClientID:    "client-1",
		ServiceType: request.ServiceFlatTire,
		Status:      request.StatusRequested,
		Location:    testPickup,
	})
}

func mustSubmit(t *testing.T, svc *Service, mechanicID types.ID, requestID types.ID, amount int64) *Offer {
	t.Helper()
	o, err := svc.Submit(context.Background(), SubmitCommand{
		MechanicID: mechanicID,
		RequestID:  requestID,
		Price:      types.Money{Amount: amount, Currency: "USD"},
		Location:   testPickup,
		ExpiresAt:  time.Now().Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return o
}

func TestSubmitGuards(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-1": true, "mech-2": false}})
	ctx := context.Background()
	openRequest(store, "req-1")

	valid := SubmitCommand{
		MechanicID: "mech-1",
		RequestID:  "req-1",
		Price:      types.Money{Amount: 10000, Currency: "USD"},
		Location:   testPickup,
		ExpiresAt:  time.Now().Add(10 * time.Minute),
	}

	cmd := valid
	cmd.Price.Amount = 0
	if _, err := svc.Submit(ctx, cmd); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("zero price err = %v, want %v", err, ErrBadRequest)
	}

	cmd = valid
	cmd.ExpiresAt = time.Now().Add(-time.Minute)
	if _, err := svc.Submit(ctx, cmd); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("past expiry err = %v, want %v", err, ErrBadRequest)
	}

	cmd = valid
	cmd.MechanicID = "mech-2"
	if _, err := svc.Submit(ctx, cmd); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("unavailable mechanic err = %v, want %v", err, ErrUnavailable)
	}

	// offers against a request that already left REQUESTED leave no row
	r := store.getRequest("req-1")
	r.Status = request.StatusAccepted
	store.putRequest(r)
	if _, err := svc.Submit(ctx, valid); !errors.Is(err, ErrRequestNotOpen) {
		t.Fatalf("closed request err = %v, want %v", err, ErrRequestNotOpen)
	}
	if list, _ := store.ListByRequest(ctx, "req-1"); len(list) != 0 {
		t.Fatalf("rejected submit persisted %d offers", len(list))
	}
}

func TestResolveAcceptsNewestPending(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-a": true, "mech-b": true}})
	ctx := context.Background()
	openRequest(store, "req-1")

	offerA := mustSubmit(t, svc, "mech-a", "req-1", 10000)
	offerB := mustSubmit(t, svc, "mech-b", "req-1", 12000)

	won, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-1", Accept: true})
	if err != nil {
		t.Fatalf("resolve accept: %v", err)
	}
	if won.ID != offerB.ID {
		t.Fatalf("winner = %s, want newest offer %s", won.ID, offerB.ID)
	}

	r := store.getRequest("req-1")
	if r.Status != request.StatusAccepted {
		t.Fatalf("request status = %s, want %s", r.Status, request.StatusAccepted)
	}
	if r.MechanicID == nil || *r.MechanicID != "mech-b" {
		t.Fatalf("request mechanic = %v, want mech-b", r.MechanicID)
	}

	// the losing bid is purged in the same resolution
	a, _ := store.Get(ctx, offerA.ID)
	if a.Status != StatusRejected {
		t.Fatalf("competing offer status = %s, want %s", a.Status, StatusRejected)
	}

	// the request is no longer open, so a second accept cannot find a bid
	if _, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-1", Accept: true}); !errors.Is(err, ErrNoPendingOffer) {
		t.Fatalf("second resolve err = %v, want %v", err, ErrNoPendingOffer)
	}
}

func TestResolveDeclineReopensRequest(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-a": true, "mech-b": true}})
	ctx := context.Background()
	openRequest(store, "req-1")

	offerA := mustSubmit(t, svc, "mech-a", "req-1", 10000)
	offerB := mustSubmit(t, svc, "mech-b", "req-1", 12000)

	declined, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-1", Accept: false})
	if err != nil {
		t.Fatalf("resolve decline: %v", err)
	}
	if declined.ID != offerB.ID {
		t.Fatalf("declined = %s, want newest offer %s", declined.ID, offerB.ID)
	}

	r := store.getRequest("req-1")
	if r.Status != request.StatusRequested {
		t.Fatalf("request status = %s, want %s", r.Status, request.StatusRequested)
	}
	if r.MechanicID != nil {
		t.Fatalf("request mechanic = %v, want nil", *r.MechanicID)
	}

	// the older bid is untouched and next in line
	next, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-1", Accept: true})
	if err != nil {
		t.Fatalf("resolve after decline: %v", err)
	}
	if next.ID != offerA.ID {
		t.Fatalf("next winner = %s, want %s", next.ID, offerA.ID)
	}
}

func TestResolveOwnership(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-a": true}})
	ctx := context.Background()
	openRequest(store, "req-1")
	mustSubmit(t, svc, "mech-a", "req-1", 10000)

	if _, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-9", Accept: true}); !errors.Is(err, ErrRequestNotOpen) {
		t.Fatalf("foreign resolve err = %v, want %v", err, ErrRequestNotOpen)
	}
}

func TestExpiredOfferNeverResolvable(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-a": true}})
	ctx := context.Background()
	openRequest(store, "req-1")

	// insert a functionally-expired PENDING row directly; the sweep has not
	// run yet
	expired := &Offer{
		ID:               "offer-expired",
		MechanicID:       "mech-a",
		ServiceRequestID: "req-1",
		Price:            types.Money{Amount: 10000, Currency: "USD"},
		Location:         testPickup,
		Status:           StatusPending,
		ExpiresAt:        time.Now().Add(-time.Minute),
		CreatedAt:        time.Now().Add(-20 * time.Minute),
	}
	if err := store.Create(ctx, expired); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Resolve(ctx, ResolveCommand{RequestID: "req-1", ClientID: "client-1", Accept: true}); !errors.Is(err, ErrNoPendingOffer) {
		t.Fatalf("expired resolve err = %v, want %v", err, ErrNoPendingOffer)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	store := newMemOffers()
	svc := newTestService(store, dirStub{avail: map[types.ID]bool{"mech-a": true}})
	ctx := context.Background()
	openRequest(store, "req-1")

	live := mustSubmit(t, svc, "mech-a", "req-1", 10000)
	stale := &Offer{
		ID:               "offer-stale",
		MechanicID:       "mech-a",
		ServiceRequestID: "req-1",
		Price:            types.Money{Amount: 9000, Currency: "USD"},
		Location:         testPickup,
		Status:           StatusPending,
		ExpiresAt:        time.Now().Add(-time.Minute),
		CreatedAt:        time.Now().Add(-30 * time.Minute),
	}
	if err := store.Create(ctx, stale); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := svc.ExpireStale(ctx, time.Now())
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	got, _ := store.Get(ctx, stale.ID)
	if got.Status != StatusExpired {
		t.Fatalf("stale status = %s, want %s", got.Status, StatusExpired)
	}
	kept, _ := store.Get(ctx, live.ID)
	if kept.Status != StatusPending {
		t.Fatalf("live status = %s, want %s", kept.Status, StatusPending)
	}
}
