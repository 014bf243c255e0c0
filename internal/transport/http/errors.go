package httpapi

import (
	"context"
	"errors"
	"net/http"

	"tradepulse/internal/apperr"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnknownStrategy), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDataUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrStaleTick):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
