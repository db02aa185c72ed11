// README: ServiceOffer aggregate and status definitions.
package offer

import (
	"time"

	"roadcall/internal/types"
)

type Status string

const (
	// StatusPending is an open bid awaiting the customer's decision.
	StatusPending Status = "PENDING"
	// StatusAccepted marks the single winning bid for a request.
	StatusAccepted Status = "ACCEPTED"
	// StatusDeclined is an explicit customer decline.
	StatusDeclined Status = "DECLINED"
	// StatusRejected marks competing bids purged when another was accepted.
	StatusRejected Status = "REJECTED"
	// StatusExpired is a bid whose expiry window elapsed.
	StatusExpired Status = "EXPIRED"
)

// Offer is a mechanic's bid (price + note) against a service request.
// Offers are retained after terminal status for audit/history.
type Offer struct {
	ID               types.ID
	MechanicID       types.ID
	ServiceRequestID types.ID
	Price            types.Money
	Note             string
	Location         types.Coordinates
	Status           Status
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Expired reports functional expiry regardless of the persisted status. Read
// paths must treat such offers as non-actionable even before the sweep
// reconciles the stored status.
func (o *Offer) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// Actionable reports whether the offer can still be accepted or declined.
func (o *Offer) Actionable(now time.Time) bool {
	return o.Status == StatusPending && !o.Expired(now)
}
