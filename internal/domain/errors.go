package domain

import "github.com/cockroachdb/errors"

// Sentinel errors used throughout the application.
// Callers test for them with errors.Is; HTTP handlers translate them to
// status codes via a single mapError function.
var (
	// ErrNotFound is returned when a job, subscriber or template is missing.
	// It is fatal to the current step evaluation.
	ErrNotFound = errors.New("not found")

	// ErrLookupFailure marks errors raised by a backing store or the
	// preference aggregation collaborator. The dispatcher never recovers
	// from these locally.
	ErrLookupFailure = errors.New("lookup failure")

	ErrJobNotDispatchable = errors.New("job is not pending and cannot be dispatched")
	ErrInvalidPriority    = errors.New("invalid priority: must be high, normal, or low")
	ErrInvalidStatus      = errors.New("invalid job status transition")
	ErrQueueFull          = errors.New("queue is at capacity, try again later")
)

// lookupError carries a backing store failure. Its Is method makes the
// ErrLookupFailure marker visible to the standard library errors.Is as well
// as to cockroachdb/errors, while Unwrap keeps the cause reachable.
type lookupError struct {
	cause error
}

func (e *lookupError) Error() string { return e.cause.Error() }

func (e *lookupError) Unwrap() error { return e.cause }

func (e *lookupError) Is(target error) bool { return target == ErrLookupFailure }

// LookupFailure wraps a backing store error so that
// errors.Is(err, ErrLookupFailure) holds with either errors package.
func LookupFailure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &lookupError{cause: errors.Wrap(err, msg)}
}

// NotFound returns an ErrNotFound carrying an entity description.
func NotFound(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
