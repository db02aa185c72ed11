// README: Location tracker; filters high-frequency reports before persisting.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"roadcall/internal/metrics"
	"roadcall/internal/modules/verify"
	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var ErrBadReport = errors.New("malformed location report")

// Store persists last-known positions and snapshot history.
type Store interface {
	LastKnown(ctx context.Context, subjectID types.ID) (types.Coordinates, bool, error)
	SetLastKnown(ctx context.Context, subjectID types.ID, pos types.Coordinates) error
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Config struct {
	// MinMoveMeters suppresses updates closer than this to the last stored
	// position.
	MinMoveMeters float64
	// ReportInterval throttles persisted updates per subject. The very
	// first report for a subject always passes.
	ReportInterval time.Duration
}

// subjectLimiter pairs the throttle with the time it was last consulted,
// so idle entries can be reclaimed.
type subjectLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type Service struct {
	store    Store
	notifier notify.Notifier
	cfg      Config

	mu       sync.Mutex
	limiters map[types.ID]*subjectLimiter
}

func NewService(store Store, notifier notify.Notifier, cfg Config) *Service {
	if cfg.MinMoveMeters <= 0 {
		cfg.MinMoveMeters = 30
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 60 * time.Second
	}
	return &Service{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		limiters: make(map[types.ID]*subjectLimiter),
	}
}

// Accept ingests one position sample. The returned bool reports whether the
// sample was persisted; filtered and throttled samples are dropped without
// error.
func (s *Service) Accept(ctx context.Context, rep Report) (bool, error) {
	if rep.SubjectID == "" {
		metrics.IncLocationReport("rejected")
		return false, ErrBadReport
	}
	if err := rep.Position.Validate(); err != nil {
		metrics.IncLocationReport("rejected")
		return false, ErrBadReport
	}

	last, ok, err := s.store.LastKnown(ctx, rep.SubjectID)
	if err != nil {
		return false, err
	}
	if ok && verify.DistanceMeters(last, rep.Position) < s.cfg.MinMoveMeters {
		metrics.IncLocationReport("filtered")
		return false, nil
	}

	if !s.limiter(rep.SubjectID).Allow() {
		metrics.IncLocationReport("throttled")
		return false, nil
	}

	if err := s.store.SetLastKnown(ctx, rep.SubjectID, rep.Position); err != nil {
		return false, err
	}
	if err := s.store.AppendSnapshot(ctx, Snapshot{
		SubjectID:  rep.SubjectID,
		Kind:       rep.Kind,
		Position:   rep.Position,
		RecordedAt: time.Now(),
	}); err != nil {
		return false, err
	}

	metrics.IncLocationReport("stored")
	s.notifier.Publish(ctx, "location", rep.SubjectID, map[string]any{
		"kind":      rep.Kind,
		"latitude":  rep.Position.Latitude,
		"longitude": rep.Position.Longitude,
	})
	return true, nil
}

// LastKnown satisfies the request module's LocationSource.
func (s *Service) LastKnown(ctx context.Context, subjectID types.ID) (types.Coordinates, bool, error) {
	return s.store.LastKnown(ctx, subjectID)
}

// limiter returns the per-subject throttle; burst 1 lets the first report
// through immediately.
func (s *Service) limiter(id types.ID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = &subjectLimiter{lim: rate.NewLimiter(rate.Every(s.cfg.ReportInterval), 1)}
		s.limiters[id] = l
	}
	l.seen = time.Now()
	return l.lim
}

// EvictIdle drops throttle entries for subjects not heard from in a while
// and reports how many were removed. A burst-1 limiter refills fully within
// one report interval, so recreating an evicted entry cannot admit reports
// any faster than keeping it would have.
func (s *Service) EvictIdle(now time.Time) int {
	idle := 5 * s.cfg.ReportInterval
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, l := range s.limiters {
		if now.Sub(l.seen) >= idle {
			delete(s.limiters, id)
			n++
		}
	}
	return n
}
