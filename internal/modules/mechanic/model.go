// README: Mechanic directory entity (read-mostly collaborator).
package mechanic

import (
	"time"

	"roadcall/internal/types"
)

// Mechanic is owned by the profile system; the lifecycle engine only reads
// availability and service coverage when validating offers.
type Mechanic struct {
	ID              types.ID
	UserID          types.ID
	IsAvailable     bool
	ServicesOffered []string
	Rating          float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
