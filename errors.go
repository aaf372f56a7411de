package simdeg

import "github.com/lccanon/simdeg/types"

// Sentinel errors re-exported from the types package so callers can test
// with errors.Is without importing it.
var (
	// ErrNotFound is returned when a worker is unknown to an engine.
	ErrNotFound = types.ErrNotFound

	// ErrInvalidInput is returned when an argument is outside its domain.
	ErrInvalidInput = types.ErrInvalidInput

	// ErrInvalidSample is returned when a sample is neither 0 nor 1.
	ErrInvalidSample = types.ErrInvalidSample

	// ErrInvalidRange is returned when an estimator range is invalid.
	ErrInvalidRange = types.ErrInvalidRange

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrInvalidObservation is returned when an observation fails validation.
	ErrInvalidObservation = types.ErrInvalidObservation

	// ErrUnknownPool is returned when a pool has no tracker registered.
	ErrUnknownPool = types.ErrUnknownPool

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired

	// ErrConsumerAlreadyStarted is returned when Start is called on a running consumer.
	ErrConsumerAlreadyStarted = types.ErrConsumerAlreadyStarted

	// ErrConsumerNotStarted is returned when Stop is called before Start.
	ErrConsumerNotStarted = types.ErrConsumerNotStarted

	// ErrPublisherAlreadyStarted is returned when Start is called on a running snapshot publisher.
	ErrPublisherAlreadyStarted = types.ErrPublisherAlreadyStarted

	// ErrPublisherNotStarted is returned when Stop is called before Start.
	ErrPublisherNotStarted = types.ErrPublisherNotStarted
)
