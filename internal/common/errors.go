package common

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an Error for retry/response-mapping purposes.
// Classification is a pure function over Kind (see Classify).
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "validation"   // bad input, never retryable
	ErrKindNotFound    ErrorKind = "not_found"    // no such job/resource
	ErrKindConflict    ErrorKind = "conflict"     // state transition not allowed
	ErrKindForbidden   ErrorKind = "forbidden"    // ownership/auth check failed
	ErrKindTransient   ErrorKind = "transient"    // store/network hiccup, retryable
	ErrKindRateLimited ErrorKind = "rate_limited" // upstream throttling, retryable after delay
	ErrKindTimeout     ErrorKind = "timeout"      // deadline exceeded, retryable
	ErrKindFatal       ErrorKind = "fatal"        // programmer/data error, never retryable
	ErrKindCancelled   ErrorKind = "cancelled"    // cooperative cancellation observed

	ErrKindMaxRetriesExceeded ErrorKind = "max_retries_exceeded" // retry budget already spent, never retryable
)

// Error is the single error type carried across every orchestration component.
// Rather than a hierarchy of error types per package, every failure collapses
// into this struct with a Kind tag, so callers can classify without type
// assertions and handlers can map straight to an HTTP status.
type Error struct {
	Kind          ErrorKind
	Message       string
	Context       string // component/operation that raised it, e.g. "jobservice.EnqueueJob"
	Metadata      map[string]any
	Retryable     bool
	RetryAfter    time.Duration
	AlreadyLogged bool // set once a component has logged this error, so callers up the stack don't double-log
	cause         error
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithMetadata attaches a key/value pair and returns the same Error for chaining.
func (e *Error) WithMetadata(key string, value any) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// MarkLogged returns a copy of e with AlreadyLogged set, so a component that
// has just logged this error can pass it up without the caller logging again.
func (e *Error) MarkLogged() *Error {
	cp := *e
	cp.AlreadyLogged = true
	return &cp
}

// New constructs an Error of the given kind, deriving Retryable from the kind
// via Classify; callers may set the Retryable or RetryAfter fields afterwards.
func New(kind ErrorKind, context, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Context:   context,
		Retryable: Classify(kind),
	}
}

// Wrap attaches an underlying cause to a new Error of the given kind.
func Wrap(kind ErrorKind, context string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:      kind,
		Message:   cause.Error(),
		Context:   context,
		Retryable: Classify(kind),
		cause:     cause,
	}
}

// Classify is the pure function mapping an ErrorKind to its default
// retryability. Transient failures (store hiccups, rate limiting, timeouts)
// are retryable; everything caused by bad input or programmer error is not.
func Classify(kind ErrorKind) bool {
	switch kind {
	case ErrKindTransient, ErrKindRateLimited, ErrKindTimeout:
		return true
	default:
		return false
	}
}

// AsError extracts an *Error from any error chain, if one is present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err, if it wraps an *Error, is retryable.
// Errors that don't carry an *Error in their chain are treated as non-retryable.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// RetryAfter extracts the RetryAfter hint from err, if any.
func RetryAfter(err error) time.Duration {
	if e, ok := AsError(err); ok {
		return e.RetryAfter
	}
	return 0
}
