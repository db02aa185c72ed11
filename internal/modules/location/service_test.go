// README: Location tracker tests (distance filter, throttle, validation).
package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var testPoint = types.Coordinates{Latitude: 18.2011, Longitude: -67.1396}

type memLocations struct {
	mu        sync.Mutex
	last      map[types.ID]types.Coordinates
	snapshots []Snapshot
}

func newMemLocations() *memLocations {
	return &memLocations{last: make(map[types.ID]types.Coordinates)}
}

func (m *memLocations) LastKnown(ctx context.Context, subjectID types.ID) (types.Coordinates, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.last[subjectID]
	return p, ok, nil
}

func (m *memLocations) SetLastKnown(ctx context.Context, subjectID types.ID, pos types.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[subjectID] = pos
	return nil
}

func (m *memLocations) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memLocations) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func TestAcceptFirstReportStored(t *testing.T) {
	store := newMemLocations()
	svc := NewService(store, notify.Nop{}, Config{})
	ctx := context.Background()

	stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: testPoint})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !stored {
		t.Fatal("first report was not stored")
	}
	if store.snapshotCount() != 1 {
		t.Fatalf("snapshots = %d, want 1", store.snapshotCount())
	}
	got, ok, _ := svc.LastKnown(ctx, "mech-1")
	if !ok || got != testPoint {
		t.Fatalf("last known = %v ok=%v, want %v", got, ok, testPoint)
	}
}

func TestAcceptFiltersSmallMovement(t *testing.T) {
	store := newMemLocations()
	svc := NewService(store, notify.Nop{}, Config{})
	ctx := context.Background()

	_ = store.SetLastKnown(ctx, "mech-1", testPoint)

	// ~11m north is under the 30m default movement filter
	near := types.Coordinates{Latitude: testPoint.Latitude + 0.0001, Longitude: testPoint.Longitude}
	stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: near})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if stored {
		t.Fatal("sub-threshold movement was stored")
	}
	if store.snapshotCount() != 0 {
		t.Fatalf("snapshots = %d, want 0", store.snapshotCount())
	}
	got, _, _ := svc.LastKnown(ctx, "mech-1")
	if got != testPoint {
		t.Fatal("filtered report overwrote last-known position")
	}
}

func TestAcceptThrottlesFrequentReports(t *testing.T) {
	store := newMemLocations()
	svc := NewService(store, notify.Nop{}, Config{ReportInterval: time.Hour})
	ctx := context.Background()

	if stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: testPoint}); err != nil || !stored {
		t.Fatalf("first report stored=%v err=%v", stored, err)
	}

	// well beyond the movement filter, but inside the per-subject interval
	far := types.Coordinates{Latitude: testPoint.Latitude + 0.01, Longitude: testPoint.Longitude}
	stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: far})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if stored {
		t.Fatal("report inside the interval was stored")
	}

	// a different subject has its own throttle
	if stored, err := svc.Accept(ctx, Report{SubjectID: "mech-2", Kind: KindMechanic, Position: far}); err != nil || !stored {
		t.Fatalf("other subject stored=%v err=%v", stored, err)
	}
}

func TestEvictIdleLimiters(t *testing.T) {
	store := newMemLocations()
	svc := NewService(store, notify.Nop{}, Config{ReportInterval: time.Minute})
	ctx := context.Background()

	if stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: testPoint}); err != nil || !stored {
		t.Fatalf("first report stored=%v err=%v", stored, err)
	}

	if n := svc.EvictIdle(time.Now()); n != 0 {
		t.Fatalf("evicted %d fresh entries, want 0", n)
	}
	if n := svc.EvictIdle(time.Now().Add(10 * time.Minute)); n != 1 {
		t.Fatalf("evicted %d idle entries, want 1", n)
	}

	// the subject gets a fresh limiter and reports again after eviction
	far := types.Coordinates{Latitude: testPoint.Latitude + 0.01, Longitude: testPoint.Longitude}
	if stored, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: far}); err != nil || !stored {
		t.Fatalf("post-eviction report stored=%v err=%v", stored, err)
	}
}

func TestAcceptRejectsBadReports(t *testing.T) {
	store := newMemLocations()
	svc := NewService(store, notify.Nop{}, Config{})
	ctx := context.Background()

	if _, err := svc.Accept(ctx, Report{SubjectID: "", Kind: KindClient, Position: testPoint}); !errors.Is(err, ErrBadReport) {
		t.Fatalf("missing subject err = %v, want %v", err, ErrBadReport)
	}
	bad := types.Coordinates{Latitude: 123, Longitude: 456}
	if _, err := svc.Accept(ctx, Report{SubjectID: "mech-1", Kind: KindMechanic, Position: bad}); !errors.Is(err, ErrBadReport) {
		t.Fatalf("bad coordinates err = %v, want %v", err, ErrBadReport)
	}
	if store.snapshotCount() != 0 {
		t.Fatalf("snapshots = %d, want 0", store.snapshotCount())
	}
}
