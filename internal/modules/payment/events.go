// README: Payment processor event shapes consumed by the coordinator.
package payment

import "roadcall/internal/types"

// HoldCreated signals that the processor placed a hold (authorization) for a
// request. Informational: it never changes status.
type HoldCreated struct {
	RequestID types.ID
	HoldRef   string
}

// HoldCaptured signals a captured (charged) hold. Delivered at-least-once
// and unordered with respect to other event types; the coordinator's
// handlers are idempotent under redelivery. OfferID is set when the
// processor metadata carried one; otherwise the newest pending offer is
// used for the additional-service path.
type HoldCaptured struct {
	RequestID      types.ID
	TransactionRef string
	OfferID        types.ID
	Amount         types.Money
}
