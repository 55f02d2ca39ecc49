package carrier

import (
	"errors"
	"fmt"
)

// Error codes shared across the carrier boundary and the HTTP layer.
const (
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeDuplicate          = "WAREHOUSE_DUPLICATE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnavailable        = "CARRIER_UNAVAILABLE"
	CodeTimeout            = "CARRIER_TIMEOUT"
	CodeNotFound           = "NOT_FOUND"
	CodeAPIError           = "DELHIVERY_API_ERROR"
)

// Error represents an error from a logistics carrier.
type Error struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new carrier Error.
func NewError(carrier, code, message string) *Error {
	return &Error{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Sentinel errors for common carrier scenarios.
var (
	// ErrMissingCredentials indicates the carrier token or URL is not
	// configured. This is a startup/config error, not a runtime failure.
	ErrMissingCredentials = errors.New("carrier credentials not configured")

	// ErrAuthenticationFailed indicates the carrier rejected the token.
	ErrAuthenticationFailed = errors.New("carrier authentication failed")

	// ErrDuplicateWarehouse indicates the warehouse name already exists,
	// locally or carrier-side.
	ErrDuplicateWarehouse = errors.New("warehouse already exists")

	// ErrValidationFailed indicates the payload was rejected before or by
	// the carrier for malformed fields.
	ErrValidationFailed = errors.New("validation failed")

	// ErrCarrierUnavailable indicates all endpoints/attempts were exhausted
	// on transient failures.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	// ErrWarehouseNotFound indicates the referenced warehouse does not exist.
	ErrWarehouseNotFound = errors.New("warehouse not found")

	// ErrShipmentRejected indicates the carrier refused the manifest.
	ErrShipmentRejected = errors.New("shipment rejected")
)

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var carrierErr *Error
	if errors.As(err, &carrierErr) {
		return carrierErr.Retryable
	}
	return errors.Is(err, ErrCarrierUnavailable)
}

// IsConflict returns true for duplicate-warehouse conditions.
func IsConflict(err error) bool {
	var carrierErr *Error
	if errors.As(err, &carrierErr) && carrierErr.Code == CodeDuplicate {
		return true
	}
	return errors.Is(err, ErrDuplicateWarehouse)
}

// IsAuthFailure returns true when the carrier rejected the credentials.
func IsAuthFailure(err error) bool {
	var carrierErr *Error
	if errors.As(err, &carrierErr) && carrierErr.Code == CodeAuthFailed {
		return true
	}
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsValidation returns true for payload validation failures.
func IsValidation(err error) bool {
	var carrierErr *Error
	if errors.As(err, &carrierErr) && carrierErr.Code == CodeValidation {
		return true
	}
	return errors.Is(err, ErrValidationFailed)
}
