package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

// errorBody is the envelope every failure response uses.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Success: false, Message: message, Code: code})
}

// respondError maps a service error onto the HTTP surface. Carrier errors
// carry their own taxonomy; storage errors map to 404/409; everything else is
// an unexpected 500.
func respondError(c *gin.Context, err error) {
	status, code := classifyHTTP(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		message = "carrier temporarily unavailable, try again later"
	}
	c.AbortWithStatusJSON(status, errorBody{Success: false, Message: message, Code: code})
}

func classifyHTTP(err error) (int, string) {
	var cerr *carrier.Error
	if errors.As(err, &cerr) {
		switch cerr.Code {
		case carrier.CodeDuplicate:
			return http.StatusConflict, cerr.Code
		case carrier.CodeValidation:
			return http.StatusUnprocessableEntity, cerr.Code
		case carrier.CodeAuthFailed, carrier.CodeMissingCredentials:
			return http.StatusUnauthorized, cerr.Code
		case carrier.CodeNotFound:
			return http.StatusNotFound, cerr.Code
		case carrier.CodeUnavailable, carrier.CodeTimeout:
			return http.StatusServiceUnavailable, cerr.Code
		default:
			if cerr.Retryable {
				return http.StatusServiceUnavailable, cerr.Code
			}
			return http.StatusBadGateway, cerr.Code
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict, carrier.CodeDuplicate
	case errors.Is(err, carrier.ErrValidationFailed):
		return http.StatusUnprocessableEntity, carrier.CodeValidation
	case errors.Is(err, carrier.ErrDuplicateWarehouse):
		return http.StatusConflict, carrier.CodeDuplicate
	case errors.Is(err, carrier.ErrCarrierUnavailable):
		return http.StatusServiceUnavailable, carrier.CodeUnavailable
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
