package planning

import "fmt"

// ErrorKind classifies planning failures for the caller. Only configuration
// errors are fatal to an engine instance; everything else is converted into
// an unsuccessful plan result at the orchestrator boundary.
type ErrorKind string

const (
	// KindConfiguration marks an empty or invalid pattern set.
	KindConfiguration ErrorKind = "configuration_error"

	// KindInvalidRequest marks a request that fails interface validation.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindUnderstanding marks a malformed or invalid reply from the
	// understanding capability.
	KindUnderstanding ErrorKind = "understanding_error"

	// KindUnresolvedEntity marks a required mention that resolved to
	// nothing above threshold.
	KindUnresolvedEntity ErrorKind = "unresolved_entity"

	// KindNoMatchingRoute marks exhaustion of all pattern attempts.
	KindNoMatchingRoute ErrorKind = "no_matching_route"

	// KindTimeout marks an external call that exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
)

// Error is a classified planning failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
