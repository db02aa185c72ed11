// README: Payment processor webhook endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"roadcall/internal/modules/offer"
	"roadcall/internal/modules/payment"
	"roadcall/internal/modules/request"
	"roadcall/internal/types"
)

type WebhookHandler struct {
	coordinator   *payment.Coordinator
	signingSecret string
	log           *zerolog.Logger
}

func NewWebhookHandler(coord *payment.Coordinator, signingSecret string, log *zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{coordinator: coord, signingSecret: signingSecret, log: log}
}

// HandleStripe receives processor events and feeds the hold coordinator.
// Transient domain outcomes (capture raced ahead of acceptance, CAS lost)
// answer 5xx so the processor redelivers; permanent ones answer 200 so the
// retry loop does not spin forever on an event we can never apply.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	var event stripe.Event
	if h.signingSecret != "" {
		event, err = webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.signingSecret)
		if err != nil {
			h.log.Warn().Err(err).Msg("webhook signature verification failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
	} else if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	switch string(event.Type) {
	case "payment_intent.amount_capturable_updated":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		err = h.coordinator.OnHoldCreated(ctx, payment.HoldCreated{
			RequestID: types.ID(pi.Metadata["request_id"]),
			HoldRef:   pi.ID,
		})
	case "payment_intent.succeeded", "checkout.session.completed":
		captured, perr := capturedFromEvent(event)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		err = h.coordinator.OnHoldCaptured(ctx, captured)
	case "customer.subscription.deleted":
		// Membership churn is handled by the billing system, nothing to do here.
		h.log.Info().Str("event", string(event.Type)).Msg("ignoring subscription event")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	default:
		h.log.Debug().Str("event", string(event.Type)).Msg("unhandled webhook event")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, payment.ErrDeferred),
		errors.Is(err, request.ErrConflict),
		errors.Is(err, offer.ErrConflict):
		h.log.Info().Err(err).Str("event", string(event.Type)).Msg("webhook deferred, awaiting redelivery")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retry later"})
	case errors.Is(err, request.ErrNotFound):
		// Unknown request: acknowledge so the processor stops retrying.
		h.log.Warn().Err(err).Str("event", string(event.Type)).Msg("webhook references unknown request")
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		h.log.Error().Err(err).Str("event", string(event.Type)).Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func capturedFromEvent(event stripe.Event) (payment.HoldCaptured, error) {
	if string(event.Type) == "checkout.session.completed" {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return payment.HoldCaptured{}, err
		}
		captured := payment.HoldCaptured{
			RequestID:      types.ID(sess.Metadata["request_id"]),
			TransactionRef: sess.ID,
			OfferID:        types.ID(sess.Metadata["offer_id"]),
			Amount:         types.Money{Amount: sess.AmountTotal, Currency: string(sess.Currency)},
		}
		return captured, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return payment.HoldCaptured{}, err
	}
	captured := payment.HoldCaptured{
		RequestID:      types.ID(pi.Metadata["request_id"]),
		TransactionRef: pi.ID,
		OfferID:        types.ID(pi.Metadata["offer_id"]),
		Amount:         types.Money{Amount: pi.AmountReceived, Currency: string(pi.Currency)},
	}
	return captured, nil
}
