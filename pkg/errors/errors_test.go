package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", New(KindAuthExpired, "login required"), KindAuthExpired},
		{"wrapped", fmt.Errorf("fetch likes: %w", New(KindPlatformRateLimited, "slow down")), KindPlatformRateLimited},
		{"plain error", stderrors.New("boom"), KindUnexpected},
		{"context canceled", context.Canceled, KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("phase comments: %w", Wrap(KindTransientConnectivity, "GET /comments", stderrors.New("connection reset")))

	assert.True(t, stderrors.Is(err, ErrTransientConnectivity))
	assert.False(t, stderrors.Is(err, ErrAuthExpired))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(KindTransientConnectivity))
	assert.True(t, IsRetryable(KindPlatformRateLimited))
	assert.False(t, IsRetryable(KindAuthExpired))
	assert.False(t, IsRetryable(KindInvalidCredentials))
	assert.False(t, IsRetryable(KindUnexpected))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(KindInvalidCredentials))
	assert.True(t, IsTerminal(KindSecondFactorFailed))
	assert.False(t, IsTerminal(KindAuthExpired))
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindTransientConnectivity, KindForStatus(0))
	assert.Equal(t, KindPlatformRateLimited, KindForStatus(429))
	assert.Equal(t, KindAuthExpired, KindForStatus(401))
	assert.Equal(t, KindAuthExpired, KindForStatus(403))
	assert.Equal(t, KindTransientConnectivity, KindForStatus(503))
	assert.Equal(t, KindUnexpected, KindForStatus(404))
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindTransientConnectivity, "GET /api", stderrors.New("timeout")).WithCode(502)
	assert.Equal(t, "transient_connectivity error (code 502): GET /api: timeout", err.Error())
	assert.Equal(t, "invalid_target error: bad url", New(KindInvalidTarget, "bad url").Error())
}
