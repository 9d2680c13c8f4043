package brain

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

var _ net.Error = fakeTimeoutError{}

func TestIsRetryableModelErrorNilIsFalse(t *testing.T) {
	require.False(t, isRetryableModelError(nil))
}

func TestIsRetryableModelErrorContextCancelledIsFalse(t *testing.T) {
	require.False(t, isRetryableModelError(context.Canceled))
	require.False(t, isRetryableModelError(context.DeadlineExceeded))
}

func TestIsRetryableModelErrorNetTimeoutIsTrue(t *testing.T) {
	require.True(t, isRetryableModelError(fakeTimeoutError{}))
}

func TestIsRetryableModelErrorGenericIsFalse(t *testing.T) {
	require.False(t, isRetryableModelError(errors.New("boom")))
}
