// Package testing provides test utilities for simdeg.
//
// It mainly offers an embedded NATS server with JetStream so the observation
// feed can be exercised without external dependencies, in the spirit of
// net/http/httptest.
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateObservationStream: In-memory stream for feed tests
//
// Example usage:
//
//	import (
//	    "testing"
//	    simdegtest "github.com/lccanon/simdeg/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := simdegtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
