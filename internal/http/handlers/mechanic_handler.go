// README: Mechanic availability handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roadcall/internal/modules/mechanic"
	"roadcall/internal/types"
)

type MechanicHandler struct {
	store *mechanic.PgStore
}

func NewMechanicHandler(store *mechanic.PgStore) *MechanicHandler {
	return &MechanicHandler{store: store}
}

type availabilityReq struct {
	Available *bool `json:"available" binding:"required"`
}

func (h *MechanicHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.store.SetAvailability(c.Request.Context(), types.ID(c.Param("id")), *req.Available)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": *req.Available})
}
