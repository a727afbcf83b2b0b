package tiktok

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedInput   = errors.New("tiktok: malformed video identifier")
	ErrRateLimited      = errors.New("tiktok: rate limited")
	ErrTransient        = errors.New("tiktok: transient upstream failure")
	ErrProtocolDrift    = errors.New("tiktok: upstream protocol drift")
	ErrNotFound         = errors.New("tiktok: not found")
	ErrAuthRequired     = errors.New("tiktok: authentication required")
	ErrSigningFailed    = errors.New("tiktok: url signing failed")
	ErrBrowserNotReady  = errors.New("tiktok: browser not initialized")
	ErrCommentMalformed = errors.New("tiktok: malformed comment record")
	ErrReplyThread      = errors.New("tiktok: reply thread incomplete")
	ErrRunTimeout       = errors.New("tiktok: run deadline exceeded")
	ErrRunCancelled     = errors.New("tiktok: run cancelled")
)

// ErrorKind names a class of failure in the retrieval engine.
type ErrorKind string

const (
	KindMalformedInput    ErrorKind = "malformed_input"
	KindThrottled         ErrorKind = "upstream_throttled"
	KindTransient         ErrorKind = "upstream_transient"
	KindProtocolDrift     ErrorKind = "upstream_protocol_drift"
	KindNotFound          ErrorKind = "upstream_not_found"
	KindAuthRequired      ErrorKind = "upstream_auth_required"
	KindCommentMalformed  ErrorKind = "comment_malformed"
	KindReplyThreadFailed ErrorKind = "reply_thread_failed"
	KindRunTimeout        ErrorKind = "run_timeout"
	KindRunCancelled      ErrorKind = "run_cancelled"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf maps an error returned by the engine to its ErrorKind.
func KindOf(err error) ErrorKind {
	var runErr *RunError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &runErr):
		return runErr.Kind
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrRateLimited):
		return KindThrottled
	case errors.Is(err, ErrTransient), errors.Is(err, ErrSigningFailed):
		return KindTransient
	case errors.Is(err, ErrProtocolDrift):
		return KindProtocolDrift
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrCommentMalformed):
		return KindCommentMalformed
	case errors.Is(err, ErrReplyThread):
		return KindReplyThreadFailed
	case errors.Is(err, ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindRunTimeout
	case errors.Is(err, ErrRunCancelled), errors.Is(err, context.Canceled):
		return KindRunCancelled
	}
	return KindUnknown
}

// IsRetryable reports whether a transport error is worth retrying on the
// same cursor.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindThrottled, KindTransient:
		return true
	}
	return false
}

// RunError is the terminal error object surfaced to the caller of a run.
type RunError struct {
	Kind    ErrorKind `json:"kind"`
	VideoID string    `json:"video_id"`
	Message string    `json:"message"`

	err error
}

func newRunError(videoID string, err error) *RunError {
	return &RunError{
		Kind:    KindOf(err),
		VideoID: videoID,
		Message: err.Error(),
		err:     err,
	}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("tiktok: video %s: %s: %s", e.VideoID, e.Kind, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.err
}
