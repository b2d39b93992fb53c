package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dshills/gocommerce/internal/account"
	"github.com/dshills/gocommerce/pkg/types"
)

// Error codes returned in ErrorResponse.Error
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a service error to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials), errors.Is(err, account.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, types.ErrCorruptData):
		return http.StatusInternalServerError, CodeInternal
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, types.ErrInvalidOperation):
		return http.StatusBadRequest, CodeInvalidOperation
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// abortWithError writes err as an ErrorResponse. Internal errors are logged
// and their detail is not exposed.
func abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: CodeInvalidInput, Message: msg})
}
