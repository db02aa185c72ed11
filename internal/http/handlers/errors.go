// README: Shared HTTP error mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roadcall/internal/modules/location"
	"roadcall/internal/modules/mechanic"
	"roadcall/internal/modules/offer"
	"roadcall/internal/modules/request"
	"roadcall/internal/types"
)

// writeDomainError maps module sentinels to HTTP responses. Validation and
// not-found errors carry specific messages; invariant violations surface
// only the generic "operation not allowed in current state" — the detail
// stays in server logs.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, request.ErrBadRequest),
		errors.Is(err, offer.ErrBadRequest),
		errors.Is(err, location.ErrBadReport),
		errors.Is(err, types.ErrBadCoordinates):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, offer.ErrNotFound),
		errors.Is(err, offer.ErrNoPendingOffer),
		errors.Is(err, mechanic.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrCodeMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrOutsideRadius),
		errors.Is(err, request.ErrNoLocation),
		errors.Is(err, offer.ErrUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrInvalidState),
		errors.Is(err, request.ErrNotAssigned),
		errors.Is(err, offer.ErrRequestNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "operation not allowed in current state"})
	case errors.Is(err, request.ErrConflict),
		errors.Is(err, offer.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
