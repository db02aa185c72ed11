// README: Payment hold coordinator; reacts to processor lifecycle events.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"roadcall/internal/metrics"
	"roadcall/internal/modules/offer"
	"roadcall/internal/modules/request"
	"roadcall/internal/notify"
	"roadcall/internal/types"
)

var (
	// ErrDeferred means the event raced ahead of the state it depends on
	// (e.g. a capture before the offer acceptance committed). The caller
	// should surface a retryable failure; the processor owns redelivery.
	ErrDeferred = errors.New("payment event arrived before request was ready")

	ErrNoAcceptedOffer    = errors.New("no accepted offer for captured hold")
	ErrNoPendingOffer     = errors.New("no pending offer for additional capture")
	ErrUnknownTransaction = errors.New("transaction does not match any known charge")
)

// OfferStore is the slice of the offer module the coordinator needs.
// ApplyUpcharge must commit the offer acceptance and the request's payment
// fields atomically: on a lost CAS nothing may be applied, so the pending
// offer survives for the redelivered event.
type OfferStore interface {
	Get(ctx context.Context, id types.ID) (*offer.Offer, error)
	AcceptedFor(ctx context.Context, requestID types.ID) (*offer.Offer, error)
	LatestPending(ctx context.Context, requestID types.ID, now time.Time) (*offer.Offer, error)
	ApplyUpcharge(ctx context.Context, offerID types.ID, r *request.ServiceRequest, from request.Status, fromVersion int) (bool, error)
}

type Coordinator struct {
	requests request.Store
	offers   OfferStore
	notifier notify.Notifier
	log      *zerolog.Logger
}

func NewCoordinator(requests request.Store, offers OfferStore, notifier notify.Notifier, log *zerolog.Logger) *Coordinator {
	return &Coordinator{requests: requests, offers: offers, notifier: notifier, log: log}
}

// OnHoldCreated attaches the hold reference to the request. Status is not
// touched; redelivery of the same reference is a no-op.
func (c *Coordinator) OnHoldCreated(ctx context.Context, ev HoldCreated) error {
	r, err := c.requests.Get(ctx, ev.RequestID)
	if err != nil {
		metrics.IncPaymentEvent("hold_created", "error")
		return err
	}
	if r.PaymentHoldID != nil && *r.PaymentHoldID == ev.HoldRef {
		metrics.IncPaymentEvent("hold_created", "duplicate")
		return nil
	}

	r.PaymentHoldID = &ev.HoldRef
	r.UpdatedAt = time.Now()
	ok, err := c.requests.Update(ctx, r, r.StatusVersion)
	if err != nil {
		metrics.IncPaymentEvent("hold_created", "error")
		return err
	}
	if !ok {
		metrics.IncPaymentEvent("hold_created", "conflict")
		return ErrDeferred
	}
	r.StatusVersion++
	metrics.IncPaymentEvent("hold_created", "applied")
	c.log.Info().Str("request", string(r.ID)).Str("hold", ev.HoldRef).Msg("payment hold attached")
	return nil
}

// OnHoldCaptured drives both capture paths. The branch is decided by
// whether the first transaction id is already recorded: unset means this is
// the initial authorization capture (ACCEPTED → PAYMENT_AUTHORIZED), set
// means an additional-service charge on top of it.
func (c *Coordinator) OnHoldCaptured(ctx context.Context, ev HoldCaptured) error {
	r, err := c.requests.Get(ctx, ev.RequestID)
	if err != nil {
		metrics.IncPaymentEvent("hold_captured", "error")
		return err
	}

	if r.FirstTransactionID == nil {
		return c.applyFirstCapture(ctx, r, ev)
	}
	if *r.FirstTransactionID == ev.TransactionRef {
		metrics.IncPaymentEvent("hold_captured", "duplicate")
		return nil
	}
	return c.applySecondCapture(ctx, r, ev)
}

func (c *Coordinator) applyFirstCapture(ctx context.Context, r *request.ServiceRequest, ev HoldCaptured) error {
	switch r.Status {
	case request.StatusRequested, request.StatusBooked:
		// Capture raced ahead of the acceptance commit; defer, don't drop.
		metrics.IncPaymentEvent("hold_captured", "deferred")
		return ErrDeferred
	case request.StatusAccepted:
		// proceed
	default:
		metrics.IncPaymentEvent("hold_captured", "error")
		c.log.Error().Str("request", string(r.ID)).Str("status", string(r.Status)).
			Msg("first capture for request in unexpected state")
		return request.ErrInvalidState
	}

	accepted, err := c.offers.AcceptedFor(ctx, r.ID)
	if err != nil {
		metrics.IncPaymentEvent("hold_captured", "error")
		if errors.Is(err, offer.ErrNotFound) {
			return ErrNoAcceptedOffer
		}
		return err
	}

	from := r.Status
	r.Status = request.StatusPaymentAuthorized
	r.FirstTransactionID = &ev.TransactionRef
	r.TotalAmount = accepted.Price
	r.UpdatedAt = time.Now()

	ok, err := c.requests.Update(ctx, r, r.StatusVersion)
	if err != nil {
		metrics.IncPaymentEvent("hold_captured", "error")
		return err
	}
	if !ok {
		metrics.IncPaymentEvent("hold_captured", "conflict")
		return ErrDeferred
	}
	r.StatusVersion++

	_ = c.requests.AppendEvent(ctx, &request.Event{
		RequestID:  r.ID,
		FromStatus: from,
		ToStatus:   r.Status,
		ActorType:  "payment",
		CreatedAt:  r.UpdatedAt,
	})
	metrics.IncTransition(string(r.Status))
	metrics.IncPaymentEvent("hold_captured", "applied")
	c.notifier.Publish(ctx, "service_request", r.ID, map[string]any{
		"status":       r.Status,
		"total_amount": r.TotalAmount.Amount,
	})
	return nil
}

// applySecondCapture records an "additional service" charge: the referenced
// (else newest pending) offer is accepted, its price added to the total, and
// the request advanced to SERVICING unless it is already at or past it.
// This advance is the one sanctioned path outside the transition table.
func (c *Coordinator) applySecondCapture(ctx context.Context, r *request.ServiceRequest, ev HoldCaptured) error {
	if r.SecondTransactionID != nil {
		if *r.SecondTransactionID == ev.TransactionRef {
			metrics.IncPaymentEvent("hold_captured", "duplicate")
			return nil
		}
		metrics.IncPaymentEvent("hold_captured", "error")
		c.log.Error().Str("request", string(r.ID)).Str("tx", ev.TransactionRef).
			Msg("capture beyond the second transaction")
		return ErrUnknownTransaction
	}

	o, err := c.resolveUpchargeOffer(ctx, r.ID, ev.OfferID)
	if err != nil {
		metrics.IncPaymentEvent("hold_captured", "error")
		return err
	}

	from := r.Status
	if !request.AtOrPast(r.Status, request.StatusServicing) {
		r.Status = request.StatusServicing
	}
	r.SecondTransactionID = &ev.TransactionRef
	r.TotalAmount = r.TotalAmount.Add(o.Price)
	r.UpdatedAt = time.Now()

	// one transaction: offer acceptance, payment fields, and the audit event
	// all land together or not at all
	ok, err := c.offers.ApplyUpcharge(ctx, o.ID, r, from, r.StatusVersion)
	if err != nil {
		metrics.IncPaymentEvent("hold_captured", "error")
		return err
	}
	if !ok {
		metrics.IncPaymentEvent("hold_captured", "conflict")
		return ErrDeferred
	}
	r.StatusVersion++

	if r.Status != from {
		metrics.IncTransition(string(r.Status))
	}
	metrics.IncPaymentEvent("hold_captured", "applied")
	c.notifier.Publish(ctx, "service_request", r.ID, map[string]any{
		"status":       r.Status,
		"total_amount": r.TotalAmount.Amount,
	})
	return nil
}

func (c *Coordinator) resolveUpchargeOffer(ctx context.Context, requestID, offerID types.ID) (*offer.Offer, error) {
	now := time.Now()
	if offerID != "" {
		o, err := c.offers.Get(ctx, offerID)
		if err == nil && o.Actionable(now) {
			return o, nil
		}
		// Fall through to the newest pending offer when the reference is
		// stale or unknown.
	}
	o, err := c.offers.LatestPending(ctx, requestID, now)
	if err != nil {
		if errors.Is(err, offer.ErrNoPendingOffer) {
			return nil, ErrNoPendingOffer
		}
		return nil, err
	}
	return o, nil
}
