// README: Service request handlers for the client and mechanic flows.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roadcall/internal/modules/request"
	"roadcall/internal/types"
)

type RequestHandler struct {
	requests *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type createRequestReq struct {
	ClientID    string     `json:"client_id" binding:"required"`
	ServiceType string     `json:"service_type" binding:"required"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	StartTime   *time.Time `json:"start_time,omitempty"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		ClientID:    types.ID(req.ClientID),
		ServiceType: request.ServiceType(req.ServiceType),
		Location:    types.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
		StartTime:   req.StartTime,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requestView(r))
}

func (h *RequestHandler) Get(c *gin.Context) {
	r, err := h.requests.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestView(r))
}

type actorReq struct {
	MechanicID string `json:"mechanic_id" binding:"required"`
}

func (h *RequestHandler) StartRoute(c *gin.Context) {
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.requests.StartRoute(c.Request.Context(), request.StartRouteCommand{
		RequestID:  types.ID(c.Param("id")),
		MechanicID: types.ID(req.MechanicID),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": request.StatusInRoute})
}

func (h *RequestHandler) MarkArrived(c *gin.Context) {
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.requests.MarkArrived(c.Request.Context(), request.ArriveCommand{
		RequestID:  types.ID(c.Param("id")),
		MechanicID: types.ID(req.MechanicID),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": r.Status})
}

type verifyCodeReq struct {
	MechanicID string `json:"mechanic_id"`
	ClientID   string `json:"client_id"`
	Code       string `json:"code" binding:"required"`
}

func (h *RequestHandler) VerifyArrival(c *gin.Context) {
	var req verifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.requests.VerifyArrival(c.Request.Context(), request.VerifyArrivalCommand{
		RequestID:  types.ID(c.Param("id")),
		MechanicID: types.ID(req.MechanicID),
		Code:       req.Code,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": request.StatusServicing})
}

func (h *RequestHandler) EndService(c *gin.Context) {
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.requests.EndService(c.Request.Context(), request.EndServiceCommand{
		RequestID:  types.ID(c.Param("id")),
		MechanicID: types.ID(req.MechanicID),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": r.Status})
}

func (h *RequestHandler) VerifyCompletion(c *gin.Context) {
	var req verifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.requests.VerifyCompletion(c.Request.Context(), request.VerifyCompletionCommand{
		RequestID: types.ID(c.Param("id")),
		ClientID:  types.ID(req.ClientID),
		Code:      req.Code,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": request.StatusCompleted})
}

type cancelReq struct {
	ClientID string `json:"client_id" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.requests.Cancel(c.Request.Context(), request.CancelCommand{
		RequestID: types.ID(c.Param("id")),
		ClientID:  types.ID(req.ClientID),
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": request.StatusCancelled})
}

func (h *RequestHandler) ActiveByClient(c *gin.Context) {
	list, err := h.requests.ListActiveByClient(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestViews(list))
}

func (h *RequestHandler) ActiveByMechanic(c *gin.Context) {
	list, err := h.requests.ListActiveByMechanic(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestViews(list))
}

type nearbyReq struct {
	Latitude  float64 `form:"latitude"`
	Longitude float64 `form:"longitude"`
}

func (h *RequestHandler) OpenNearby(c *gin.Context) {
	var req nearbyReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	list, err := h.requests.ListOpenNearby(c.Request.Context(), types.Coordinates{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestViews(list))
}

func requestView(r *request.ServiceRequest) gin.H {
	v := gin.H{
		"id":           r.ID,
		"client_id":    r.ClientID,
		"service_type": r.ServiceType,
		"status":       r.Status,
		"latitude":     r.Location.Latitude,
		"longitude":    r.Location.Longitude,
		"total_amount": r.TotalAmount.Amount,
		"currency":     r.TotalAmount.Currency,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
	}
	if r.MechanicID != nil {
		v["mechanic_id"] = *r.MechanicID
	}
	if r.ArrivalCode != nil {
		v["arrival_code"] = *r.ArrivalCode
	}
	if r.CompletionCode != nil {
		v["completion_code"] = *r.CompletionCode
	}
	if r.StartTime != nil {
		v["start_time"] = *r.StartTime
	}
	return v
}

func requestViews(list []*request.ServiceRequest) []gin.H {
	out := make([]gin.H, 0, len(list))
	for _, r := range list {
		out = append(out, requestView(r))
	}
	return out
}
