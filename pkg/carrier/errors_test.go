package carrier_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

func TestError_Message(t *testing.T) {
	err := carrier.NewError("delhivery", carrier.CodeAuthFailed, "token rejected")
	assert.Equal(t, "delhivery error (AUTH_FAILED): token rejected", err.Error())

	withCause := carrier.NewError("delhivery", carrier.CodeTimeout, "slow").
		WithCause(errors.New("deadline exceeded"))
	assert.Contains(t, withCause.Error(), "deadline exceeded")
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := carrier.ErrAuthenticationFailed
	err := carrier.NewError("delhivery", carrier.CodeAuthFailed, "401").WithCause(cause)

	require.ErrorIs(t, err, carrier.ErrAuthenticationFailed)

	// Two errors with the same code match via errors.Is even without a
	// shared cause.
	other := carrier.NewError("delhivery", carrier.CodeAuthFailed, "different message")
	assert.ErrorIs(t, err, other)

	mismatch := carrier.NewError("delhivery", carrier.CodeDuplicate, "dup")
	assert.NotErrorIs(t, err, mismatch)
}

func TestError_WrappedThroughFmt(t *testing.T) {
	inner := carrier.NewError("delhivery", carrier.CodeDuplicate, "exists").
		WithCause(carrier.ErrDuplicateWarehouse)
	wrapped := fmt.Errorf("registering warehouse: %w", inner)

	assert.True(t, carrier.IsConflict(wrapped))

	var cerr *carrier.Error
	require.ErrorAs(t, wrapped, &cerr)
	assert.Equal(t, carrier.CodeDuplicate, cerr.Code)
}

func TestIsRetryable(t *testing.T) {
	retriable := carrier.NewError("delhivery", carrier.CodeUnavailable, "503").
		WithRetryable(true)
	assert.True(t, carrier.IsRetryable(retriable))

	fatal := carrier.NewError("delhivery", carrier.CodeAuthFailed, "401")
	assert.False(t, carrier.IsRetryable(fatal))

	// The bare sentinel counts as retryable too.
	assert.True(t, carrier.IsRetryable(carrier.ErrCarrierUnavailable))
	assert.False(t, carrier.IsRetryable(errors.New("random")))
}

func TestClassificationHelpers(t *testing.T) {
	assert.True(t, carrier.IsConflict(
		carrier.NewError("delhivery", carrier.CodeDuplicate, "dup")))
	assert.True(t, carrier.IsConflict(carrier.ErrDuplicateWarehouse))
	assert.False(t, carrier.IsConflict(carrier.ErrValidationFailed))

	assert.True(t, carrier.IsAuthFailure(
		carrier.NewError("delhivery", carrier.CodeAuthFailed, "nope")))
	assert.True(t, carrier.IsAuthFailure(carrier.ErrAuthenticationFailed))
	assert.False(t, carrier.IsAuthFailure(carrier.ErrDuplicateWarehouse))

	assert.True(t, carrier.IsValidation(
		carrier.NewError("delhivery", carrier.CodeValidation, "bad pin")))
	assert.True(t, carrier.IsValidation(carrier.ErrValidationFailed))
	assert.False(t, carrier.IsValidation(carrier.ErrCarrierUnavailable))
}
