package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind is the closed set of failure categories the retrieval core reasons about.
// Anything the platform client raises is mapped onto one of these at the boundary.
type Kind string

const (
	KindInvalidTarget         Kind = "invalid_target"
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindSecondFactorFailed    Kind = "second_factor_failed"
	KindTransientConnectivity Kind = "transient_connectivity"
	KindPlatformRateLimited   Kind = "platform_rate_limited"
	KindAuthExpired           Kind = "auth_expired"
	KindUnexpected            Kind = "unexpected"
)

// Error represents a classified failure
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind: errors.Is(err, &Error{Kind: KindAuthExpired})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == "" && t.Err == nil
}

// New creates a classified error with a message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error under kind
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithCode attaches an HTTP status code
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// Sentinel values for errors.Is comparisons
var (
	ErrInvalidTarget         = &Error{Kind: KindInvalidTarget}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrSecondFactorFailed    = &Error{Kind: KindSecondFactorFailed}
	ErrTransientConnectivity = &Error{Kind: KindTransientConnectivity}
	ErrPlatformRateLimited   = &Error{Kind: KindPlatformRateLimited}
	ErrAuthExpired           = &Error{Kind: KindAuthExpired}
	ErrUnexpected            = &Error{Kind: KindUnexpected}
)

// KindOf extracts the kind of err. Unclassified errors are KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if a kind of error should be retried by the caller
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransientConnectivity, KindPlatformRateLimited:
		return true
	default:
		return false
	}
}

// IsTerminal reports kinds that must abort the current operation without retry
func IsTerminal(kind Kind) bool {
	switch kind {
	case KindInvalidCredentials, KindSecondFactorFailed:
		return true
	default:
		return false
	}
}

// IsCanceled reports context cancellation or deadline expiry
func IsCanceled(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// KindForStatus maps an HTTP status code onto the taxonomy
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == 0:
		return KindTransientConnectivity
	case statusCode == 429:
		return KindPlatformRateLimited
	case statusCode == 401 || statusCode == 403:
		return KindAuthExpired
	case statusCode >= 500:
		return KindTransientConnectivity
	default:
		return KindUnexpected
	}
}
