// README: Location report and snapshot shapes.
package location

import (
	"time"

	"roadcall/internal/types"
)

const (
	KindClient   = "client"
	KindMechanic = "mechanic"
)

// Report is one raw position sample pushed in by a client or mechanic
// device. Samples are discrete events; the filtering logic is pure and
// independent of any timer/callback mechanism on the device side.
type Report struct {
	SubjectID types.ID
	Kind      string
	Position  types.Coordinates
}

// Snapshot is a persisted position sample for history and replay.
type Snapshot struct {
	ID         int64
	SubjectID  types.ID
	Kind       string
	Position   types.Coordinates
	RecordedAt time.Time
}
