// README: Offer negotiation handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roadcall/internal/modules/offer"
	"roadcall/internal/types"
)

type OfferHandler struct {
	offers     *offer.Service
	defaultTTL time.Duration
}

func NewOfferHandler(svc *offer.Service, defaultTTL time.Duration) *OfferHandler {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &OfferHandler{offers: svc, defaultTTL: defaultTTL}
}

type submitOfferReq struct {
	MechanicID string     `json:"mechanic_id" binding:"required"`
	RequestID  string     `json:"request_id" binding:"required"`
	Amount     int64      `json:"amount" binding:"required"`
	Currency   string     `json:"currency"`
	Note       string     `json:"note"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (h *OfferHandler) Submit(c *gin.Context) {
	var req submitOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	expiresAt := time.Now().Add(h.defaultTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	o, err := h.offers.Submit(c.Request.Context(), offer.SubmitCommand{
		MechanicID: types.ID(req.MechanicID),
		RequestID:  types.ID(req.RequestID),
		Price:      types.Money{Amount: req.Amount, Currency: currency},
		Note:       req.Note,
		Location:   types.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offerView(o))
}

type resolveOfferReq struct {
	ClientID string `json:"client_id" binding:"required"`
	Accept   *bool  `json:"accept" binding:"required"`
}

func (h *OfferHandler) Resolve(c *gin.Context) {
	var req resolveOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := h.offers.Resolve(c.Request.Context(), offer.ResolveCommand{
		RequestID: types.ID(c.Param("id")),
		ClientID:  types.ID(req.ClientID),
		Accept:    *req.Accept,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, offerView(o))
}

func (h *OfferHandler) ListByRequest(c *gin.Context) {
	list, err := h.offers.ListByRequest(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, o := range list {
		out = append(out, offerView(o))
	}
	c.JSON(http.StatusOK, out)
}

func offerView(o *offer.Offer) gin.H {
	return gin.H{
		"id":          o.ID,
		"mechanic_id": o.MechanicID,
		"request_id":  o.ServiceRequestID,
		"amount":      o.Price.Amount,
		"currency":    o.Price.Currency,
		"note":        o.Note,
		"status":      o.Status,
		"expires_at":  o.ExpiresAt,
		"created_at":  o.CreatedAt,
	}
}
