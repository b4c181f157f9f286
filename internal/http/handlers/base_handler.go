// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"waykel/internal/lifecycle"
	"waykel/internal/modules/payment"
	"waykel/internal/modules/permission"
	"waykel/internal/modules/ride"
	"waykel/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// statusFor maps service and core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrUnknownStatus), errors.Is(err, ride.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, permission.ErrActorViolation), errors.Is(err, ride.ErrForbidden), errors.Is(err, payment.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, ride.ErrBidNotFound), errors.Is(err, payment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrIllegalTransition), errors.Is(err, ride.ErrConflict),
		errors.Is(err, payment.ErrConflict), errors.Is(err, ride.ErrActionMismatch):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

// pathID reads a UUID path parameter, writing a 400 when it is malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	id, ok := types.ParseID(c.Param(name))
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return id, true
}
