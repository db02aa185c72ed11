// README: Location report handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roadcall/internal/modules/location"
	"roadcall/internal/types"
)

type LocationHandler struct {
	tracker *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{tracker: svc}
}

type reportLocationReq struct {
	SubjectID string  `json:"subject_id" binding:"required"`
	Kind      string  `json:"kind"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *LocationHandler) Report(c *gin.Context) {
	var req reportLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = location.KindMechanic
	}
	stored, err := h.tracker.Accept(c.Request.Context(), location.Report{
		SubjectID: types.ID(req.SubjectID),
		Kind:      kind,
		Position:  types.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": stored})
}
