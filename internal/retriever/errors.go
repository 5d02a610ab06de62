package retriever

import "fmt"

// Kind classifies a retrieval failure for the caller's retry policy.
type Kind int

const (
	// KindInvalidArgument marks caller-side configuration bugs (blank
	// credentials, missing token field). Never worth retrying.
	KindInvalidArgument Kind = iota

	// KindNonRetryable marks requests the issuer rejected as fundamentally
	// invalid (HTTP 400). Retrying with the same credentials cannot succeed.
	KindNonRetryable

	// KindRetryable marks transport-level and issuer-side failures that may
	// clear up: stream errors, non-400 error statuses, malformed responses.
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNonRetryable:
		return "non-retryable"
	case KindRetryable:
		return "retryable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the failure type returned by this package. Retryability is an
// explicit field rather than an error-type distinction so callers branch on
// Kind instead of on type identity.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the operation with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindRetryable
}

func invalidArgumentf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func retryablef(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindRetryable, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func nonRetryablef(format string, args ...any) *Error {
	return &Error{Kind: KindNonRetryable, Msg: fmt.Sprintf(format, args...)}
}
