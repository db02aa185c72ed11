// README: Request service implements the lifecycle state machine on top of the store.
package request

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roadcall/internal/metrics"
	"roadcall/internal/modules/verify"
	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var (
	ErrNotFound      = errors.New("service request not found")
	ErrInvalidState  = errors.New("operation not allowed in current state")
	ErrConflict      = errors.New("service request state conflict")
	ErrBadRequest    = errors.New("bad request")
	ErrNotAssigned   = errors.New("mechanic is not assigned to this request")
	ErrNoLocation    = errors.New("mechanic has no known location")
	ErrOutsideRadius = errors.New("mechanic is outside the arrival radius")
	ErrCodeMismatch  = errors.New("verification code does not match")
)

// Store is the persistence contract. Update is a compare-and-swap on
// (id, status_version); it returns false without error when another writer
// got there first. The store is the single source of truth and the sole
// arbiter of consistency across concurrent actors.
type Store interface {
	Create(ctx context.Context, r *ServiceRequest) error
	Get(ctx context.Context, id types.ID) (*ServiceRequest, error)
	Update(ctx context.Context, r *ServiceRequest, fromVersion int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListActiveByClient(ctx context.Context, clientID types.ID) ([]*ServiceRequest, error)
	ListActiveByMechanic(ctx context.Context, mechanicID types.ID) ([]*ServiceRequest, error)
	ListOpen(ctx context.Context) ([]*ServiceRequest, error)
	ListDueBooked(ctx context.Context, now time.Time) ([]*ServiceRequest, error)
}

// LocationSource exposes last-known positions; implemented by the location
// tracker. Positions are always passed in or looked up explicitly, never
// fetched from ambient device state.
type LocationSource interface {
	LastKnown(ctx context.Context, subjectID types.ID) (types.Coordinates, bool, error)
}

// ETAProvider returns a coarse travel estimate for the "on the way" signal.
// Optional; a nil provider disables estimates.
type ETAProvider interface {
	Estimate(ctx context.Context, origin, destination types.Coordinates) (time.Duration, string, error)
}

type Config struct {
	ArrivalRadiusMeters float64
	SearchRadiusMeters  float64
}

type Service struct {
	store     Store
	locations LocationSource
	eta       ETAProvider
	notifier  notify.Notifier
	log       *zerolog.Logger
	cfg       Config
}

func NewService(store Store, locations LocationSource, eta ETAProvider, notifier notify.Notifier, log *zerolog.Logger, cfg Config) *Service {
	if cfg.ArrivalRadiusMeters <= 0 {
		cfg.ArrivalRadiusMeters = verify.ArrivalRadiusMeters
	}
	if cfg.SearchRadiusMeters <= 0 {
		cfg.SearchRadiusMeters = 80467 // 50 miles
	}
	return &Service{store: store, locations: locations, eta: eta, notifier: notifier, log: log, cfg: cfg}
}

type CreateCommand struct {
	ClientID    types.ID
	ServiceType ServiceType
	Location    types.Coordinates
	StartTime   *time.Time
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*ServiceRequest, error) {
	if cmd.ClientID == "" || !ValidServiceType(cmd.ServiceType) {
		return nil, ErrBadRequest
	}
	if err := cmd.Location.Validate(); err != nil {
		return nil, ErrBadRequest
	}

	now := time.Now()
	status := StatusRequested
	if cmd.StartTime != nil && cmd.StartTime.After(now) {
		status = StatusBooked
	}

	r := &ServiceRequest{
		ID:          types.ID(uuid.NewString()),
		ClientID:    cmd.ClientID,
		ServiceType: cmd.ServiceType,
		Status:      status,
		Location:    cmd.Location,
		StartTime:   cmd.StartTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusNone,
		ToStatus:   status,
		ActorType:  "client",
		ActorID:    &cmd.ClientID,
		CreatedAt:  now,
	})
	metrics.IncTransition(string(status))
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	return r, nil
}

type StartRouteCommand struct {
	RequestID  types.ID
	MechanicID types.ID
}

// StartRoute is the customer-facing "mechanic is on the way" signal. The
// mechanic must have a known current location before departing.
func (s *Service) StartRoute(ctx context.Context, cmd StartRouteCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := s.requireMechanic(r, cmd.MechanicID); err != nil {
		return err
	}
	if r.Status == StatusInRoute {
		return nil // already applied
	}
	if !CanTransition(r.Status, StatusInRoute) {
		return ErrInvalidState
	}

	pos, ok, err := s.locations.LastKnown(ctx, cmd.MechanicID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoLocation
	}

	payload := map[string]any{"status": StatusInRoute}
	if s.eta != nil {
		if dur, dist, err := s.eta.Estimate(ctx, pos, r.Location); err == nil {
			payload["eta_seconds"] = int(dur.Seconds())
			payload["eta_distance"] = dist
		} else {
			s.log.Warn().Err(err).Str("request", string(r.ID)).Msg("travel estimate unavailable")
		}
	}

	if err := s.transition(ctx, r, StatusInRoute, "mechanic", &cmd.MechanicID, nil); err != nil {
		return err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, payload)
	return nil
}

type ArriveCommand struct {
	RequestID  types.ID
	MechanicID types.ID
}

// MarkArrived is gated by the geofence: the mechanic's last-known position
// must be within the arrival radius of the customer. On success an arrival
// code is generated; the customer relays it verbally to the mechanic to
// force physical presence confirmation.
func (s *Service) MarkArrived(ctx context.Context, cmd ArriveCommand) (*ServiceRequest, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMechanic(r, cmd.MechanicID); err != nil {
		return nil, err
	}
	if r.Status == StatusInProgress {
		return r, nil // already applied
	}
	if !CanTransition(r.Status, StatusInProgress) {
		return nil, ErrInvalidState
	}

	pos, ok, err := s.locations.LastKnown(ctx, cmd.MechanicID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoLocation
	}
	if !verify.WithinRadius(pos, r.Location, s.cfg.ArrivalRadiusMeters) {
		return nil, ErrOutsideRadius
	}

	code, err := verify.GenerateCode()
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, r, StatusInProgress, "mechanic", &cmd.MechanicID, func(r *ServiceRequest) {
		r.ArrivalCode = &code
	}); err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	return r, nil
}

type VerifyArrivalCommand struct {
	RequestID  types.ID
	MechanicID types.ID
	Code       string
}

// VerifyArrival checks the code the customer relayed to the mechanic. On a
// match the code is cleared (single-use) and service begins.
func (s *Service) VerifyArrival(ctx context.Context, cmd VerifyArrivalCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := s.requireMechanic(r, cmd.MechanicID); err != nil {
		return err
	}
	if r.Status == StatusServicing && r.ArrivalCode == nil {
		return nil // already applied
	}
	if !CanTransition(r.Status, StatusServicing) {
		return ErrInvalidState
	}
	if r.ArrivalCode == nil || !verify.CodeMatches(*r.ArrivalCode, cmd.Code) {
		return ErrCodeMismatch
	}

	if err := s.transition(ctx, r, StatusServicing, "mechanic", &cmd.MechanicID, func(r *ServiceRequest) {
		r.ArrivalCode = nil
	}); err != nil {
		return err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	return nil
}

type EndServiceCommand struct {
	RequestID  types.ID
	MechanicID types.ID
}

// EndService generates the completion code, relayed to the customer the same
// way the arrival code was relayed to the mechanic.
func (s *Service) EndService(ctx context.Context, cmd EndServiceCommand) (*ServiceRequest, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMechanic(r, cmd.MechanicID); err != nil {
		return nil, err
	}
	if r.Status == StatusInCompletion {
		return r, nil // already applied
	}
	if !CanTransition(r.Status, StatusInCompletion) {
		return nil, ErrInvalidState
	}

	code, err := verify.GenerateCode()
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, r, StatusInCompletion, "mechanic", &cmd.MechanicID, func(r *ServiceRequest) {
		r.CompletionCode = &code
	}); err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	return r, nil
}

type VerifyCompletionCommand struct {
	RequestID types.ID
	ClientID  types.ID
	Code      string
}

// VerifyCompletion is the terminal commit point; afterwards status, amounts,
// and transaction ids are frozen.
func (s *Service) VerifyCompletion(ctx context.Context, cmd VerifyCompletionCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.ClientID != cmd.ClientID {
		return ErrInvalidState
	}
	if r.Status == StatusCompleted {
		return nil // already applied
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return ErrInvalidState
	}
	if r.CompletionCode == nil || !verify.CodeMatches(*r.CompletionCode, cmd.Code) {
		return ErrCodeMismatch
	}

	if err := s.transition(ctx, r, StatusCompleted, "client", &cmd.ClientID, func(r *ServiceRequest) {
		r.CompletionCode = nil
	}); err != nil {
		return err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	return nil
}

type CancelCommand struct {
	RequestID types.ID
	ClientID  types.ID
	Reason    string
}

// Cancel is allowed only before any payment is captured. Once a hold is
// captured, cancellation goes through the refund path, which is not part of
// this engine.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.ClientID != cmd.ClientID {
		return ErrInvalidState
	}
	if r.Status == StatusCancelled {
		return nil // already applied
	}
	if r.FirstTransactionID != nil {
		return ErrInvalidState
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return ErrInvalidState
	}

	if err := s.transition(ctx, r, StatusCancelled, "client", &cmd.ClientID, nil); err != nil {
		return err
	}
	s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status, "reason": cmd.Reason})
	return nil
}

// ActivateDue moves scheduled BOOKED requests whose start time has passed
// into REQUESTED so mechanics can begin bidding. Invoked from a periodic
// sweep; CAS losers are skipped, not retried.
func (s *Service) ActivateDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListDueBooked(ctx, now)
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, r := range due {
		if err := s.transition(ctx, r, StatusRequested, "system", nil, nil); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return activated, err
		}
		activated++
		s.notifier.Publish(ctx, "service_request", r.ID, map[string]any{"status": r.Status})
	}
	return activated, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*ServiceRequest, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListActiveByClient(ctx context.Context, clientID types.ID) ([]*ServiceRequest, error) {
	return s.store.ListActiveByClient(ctx, clientID)
}

func (s *Service) ListActiveByMechanic(ctx context.Context, mechanicID types.ID) ([]*ServiceRequest, error) {
	return s.store.ListActiveByMechanic(ctx, mechanicID)
}

// ListOpenNearby returns open (REQUESTED) jobs within the search radius of
// the given point, nearest first.
func (s *Service) ListOpenNearby(ctx context.Context, from types.Coordinates) ([]*ServiceRequest, error) {
	if err := from.Validate(); err != nil {
		return nil, ErrBadRequest
	}
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	nearby := open[:0]
	for _, r := range open {
		if verify.WithinRadius(from, r.Location, s.cfg.SearchRadiusMeters) {
			nearby = append(nearby, r)
		}
	}
	sort.Slice(nearby, func(i, j int) bool {
		return verify.DistanceMeters(from, nearby[i].Location) < verify.DistanceMeters(from, nearby[j].Location)
	})
	return nearby, nil
}

func (s *Service) requireMechanic(r *ServiceRequest, mechanicID types.ID) error {
	if r.MechanicID == nil || *r.MechanicID != mechanicID {
		return ErrNotAssigned
	}
	return nil
}

// transition applies one status change with optimistic concurrency: the
// conditional update fails cleanly when a concurrent writer advanced the
// request first. Events and notifications follow the commit, never precede
// it.
func (s *Service) transition(ctx context.Context, r *ServiceRequest, to Status, actorType string, actorID *types.ID, mutate func(*ServiceRequest)) error {
	from := r.Status
	fromVersion := r.StatusVersion

	r.Status = to
	r.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(r)
	}

	ok, err := s.store.Update(ctx, r, fromVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	r.StatusVersion = fromVersion + 1

	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  r.UpdatedAt,
	})
	metrics.IncTransition(string(to))
	return nil
}
