// README: Offer negotiation engine: submit, resolve, expiry.
package offer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roadcall/internal/metrics"
	"roadcall/internal/modules/mechanic"
	"roadcall/internal/modules/request"
	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var (
	ErrNotFound       = errors.New("offer not found")
	ErrNoPendingOffer = errors.New("no pending offer for this request")
	ErrRequestNotOpen = errors.New("operation not allowed in current state")
	ErrUnavailable    = errors.New("mechanic is not available")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("offer resolution conflict")
)

// RequestSource is the read side of the request module the engine needs.
type RequestSource interface {
	Get(ctx context.Context, id types.ID) (*request.ServiceRequest, error)
}

// Directory exposes mechanic availability.
type Directory interface {
	Get(ctx context.Context, id types.ID) (*mechanic.Mechanic, error)
}

// Store is the persistence contract. Accept applies the tri-effect
// atomically: winning offer marked ACCEPTED, request advanced to ACCEPTED
// with the mechanic set, every other PENDING offer purged as REJECTED.
// Partial application is an invariant violation, so implementations run it
// in a single transaction.
type Store interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, id types.ID) (*Offer, error)
	LatestPending(ctx context.Context, requestID types.ID, now time.Time) (*Offer, error)
	AcceptedFor(ctx context.Context, requestID types.ID) (*Offer, error)
	Accept(ctx context.Context, offerID, requestID, mechanicID types.ID, reqVersion int) (bool, error)
	Decline(ctx context.Context, offerID, requestID types.ID, reqVersion int) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	ListByRequest(ctx context.Context, requestID types.ID) ([]*Offer, error)
}

type Service struct {
	store    Store
	requests RequestSource
	dir      Directory
	notifier notify.Notifier
	log      *zerolog.Logger
}

func NewService(store Store, requests RequestSource, dir Directory, notifier notify.Notifier, log *zerolog.Logger) *Service {
	return &Service{store: store, requests: requests, dir: dir, notifier: notifier, log: log}
}

type SubmitCommand struct {
	MechanicID types.ID
	RequestID  types.ID
	Price      types.Money
	Note       string
	Location   types.Coordinates
	ExpiresAt  time.Time
}

// Submit creates a PENDING bid. It never alters the request's status; the
// expiry window is caller-supplied, not fixed here.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Offer, error) {
	if cmd.MechanicID == "" || cmd.RequestID == "" || !cmd.Price.Positive() {
		return nil, ErrBadRequest
	}
	if err := cmd.Location.Validate(); err != nil {
		return nil, ErrBadRequest
	}
	now := time.Now()
	if !cmd.ExpiresAt.After(now) {
		return nil, ErrBadRequest
	}

	r, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Status != request.StatusRequested {
		return nil, ErrRequestNotOpen
	}

	m, err := s.dir.Get(ctx, cmd.MechanicID)
	if err != nil {
		return nil, err
	}
	if !m.IsAvailable {
		return nil, ErrUnavailable
	}

	o := &Offer{
		ID:               types.ID(uuid.NewString()),
		MechanicID:       cmd.MechanicID,
		ServiceRequestID: cmd.RequestID,
		Price:            cmd.Price,
		Note:             cmd.Note,
		Location:         cmd.Location,
		Status:           StatusPending,
		ExpiresAt:        cmd.ExpiresAt,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	metrics.IncOffer("submitted")
	s.notifier.Publish(ctx, "service_offer", o.ID, map[string]any{
		"request_id": o.ServiceRequestID,
		"status":     o.Status,
		"price":      o.Price.Amount,
	})
	return o, nil
}

type ResolveCommand struct {
	RequestID types.ID
	ClientID  types.ID
	Accept    bool
}

// Resolve acts on the newest non-expired PENDING offer for the request.
// Accepting applies the atomic tri-effect; declining marks the offer and
// rolls the request back to REQUESTED with the mechanic cleared so other
// mechanics may continue bidding.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) (*Offer, error) {
	r, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if r.ClientID != cmd.ClientID {
		return nil, ErrRequestNotOpen
	}

	now := time.Now()
	o, err := s.store.LatestPending(ctx, cmd.RequestID, now)
	if err != nil {
		return nil, err
	}

	if cmd.Accept {
		if r.Status != request.StatusRequested {
			return nil, ErrRequestNotOpen
		}
		ok, err := s.store.Accept(ctx, o.ID, r.ID, o.MechanicID, r.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConflict
		}
		o.Status = StatusAccepted
		metrics.IncOffer("accepted")
		metrics.IncTransition(string(request.StatusAccepted))
		s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{
			"status":      request.StatusAccepted,
			"mechanic_id": o.MechanicID,
		})
	} else {
		ok, err := s.store.Decline(ctx, o.ID, r.ID, r.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConflict
		}
		o.Status = StatusDeclined
		metrics.IncOffer("declined")
		s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{
			"status": request.StatusRequested,
		})
	}
	s.notifier.Publish(ctx, "service_offer", o.ID, map[string]any{
		"request_id": o.ServiceRequestID,
		"status":     o.Status,
	})
	return o, nil
}

// ExpireStale persists the EXPIRED status for offers whose window elapsed,
// so downstream observers see a consistent view. Reads already treat them
// as non-actionable; this sweep only reconciles storage.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.ExpireStale(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		metrics.IncOffer("expired")
	}
	if n > 0 {
		s.log.Debug().Int64("count", n).Msg("expired stale offers")
	}
	return n, nil
}

func (s *Service) ListByRequest(ctx context.Context, requestID types.ID) ([]*Offer, error) {
	return s.store.ListByRequest(ctx, requestID)
}
