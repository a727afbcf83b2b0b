package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{ErrMalformedInput, KindMalformedInput},
		{ErrRateLimited, KindThrottled},
		{ErrTransient, KindTransient},
		{ErrSigningFailed, KindTransient},
		{ErrProtocolDrift, KindProtocolDrift},
		{ErrNotFound, KindNotFound},
		{ErrAuthRequired, KindAuthRequired},
		{ErrCommentMalformed, KindCommentMalformed},
		{ErrReplyThread, KindReplyThreadFailed},
		{ErrRunTimeout, KindRunTimeout},
		{ErrRunCancelled, KindRunCancelled},
		{context.DeadlineExceeded, KindRunTimeout},
		{context.Canceled, KindRunCancelled},
		{ErrBrowserNotReady, KindUnknown},
		{errors.New("other"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrTransient)))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(ErrProtocolDrift))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestRunError(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("retries exhausted after 4 attempts: %w", ErrTransient)
	re := newRunError(testVideoID, cause)

	assert.Equal(t, KindTransient, re.Kind)
	assert.ErrorIs(t, re, ErrTransient)
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("run: %w", re)))
	assert.Contains(t, re.Error(), testVideoID)

	body, err := json.Marshal(re)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"upstream_transient","video_id":"`+testVideoID+`","message":"`+cause.Error()+`"}`, string(body))
}
