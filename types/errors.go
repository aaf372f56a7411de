package types

import "errors"

// Sentinel errors for the simdeg library.
//
// These errors provide type-safe error checking using errors.Is().
// Components wrap them with context using fmt.Errorf("%s: %w", msg, err)
// so the sentinel identity survives the call chain.
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Estimator, Partition, Feed, etc.)
//   - Use consistent messages across similar error types

// Core errors - returned by the estimator, partition and engine layers.
var (
	// ErrNotFound is returned when an element or group is unknown to a partition,
	// either because it was never added or because it has been removed.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when an argument is outside its domain.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSample is returned when a sample is neither 0 nor 1.
	ErrInvalidSample = errors.New("sample must be 0 or 1")

	// ErrInvalidRange is returned when an estimator range is inverted or when a
	// partition cell is given an estimator whose range is not exactly [0,1].
	ErrInvalidRange = errors.New("invalid estimator range")

	// ErrInvariantViolated is returned by invariant checks when the partition
	// bookkeeping is inconsistent. It always indicates a bug.
	ErrInvariantViolated = errors.New("partition invariant violated")
)

// Facade errors - returned by the Tracker, Registry and configuration layer.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidObservation is returned when an observation fails validation.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrUnknownPool is returned when a pool has no tracker registered.
	ErrUnknownPool = errors.New("unknown pool")
)

// Feed errors - returned by the NATS observation consumer and publisher.
var (
	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrConsumerAlreadyStarted is returned when Start is called on a running consumer.
	ErrConsumerAlreadyStarted = errors.New("observation consumer already started")

	// ErrConsumerNotStarted is returned when Stop is called before Start.
	ErrConsumerNotStarted = errors.New("observation consumer not started")

	// ErrPublisherAlreadyStarted is returned when Start is called on a running snapshot publisher.
	ErrPublisherAlreadyStarted = errors.New("snapshot publisher already started")

	// ErrPublisherNotStarted is returned when Stop is called before Start.
	ErrPublisherNotStarted = errors.New("snapshot publisher not started")

	// ErrConnectivity indicates a NATS connectivity issue.
	// Used to distinguish network failures from malformed observations.
	ErrConnectivity = errors.New("connectivity issue")
)

// IsValidationError reports whether err is caused by caller input rather than
// by infrastructure. Validation errors are never retried by the feed.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if err wraps one of the input validation sentinels
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidSample) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidObservation) ||
		errors.Is(err, ErrNotFound)
}
