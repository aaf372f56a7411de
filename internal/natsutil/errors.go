// Package natsutil classifies NATS errors for the observation feed.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lccanon/simdeg/types"
)

// Class tells the feed how to react to a failed NATS call.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota

	// ClassShutdown covers iterators and contexts closed on purpose. Nothing
	// is wrong; the loop is about to exit.
	ClassShutdown

	// ClassConnectivity covers lost or slow servers. The feed backs off and
	// retries, and the message is redelivered.
	ClassConnectivity

	// ClassFailure is every other error.
	ClassFailure
)

// String returns the class name used in log fields.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassShutdown:
		return "shutdown"
	case ClassConnectivity:
		return "connectivity"
	default:
		return "failure"
	}
}

// connectivityErrors are the sentinels of nats.go and jetstream that mean
// the server could not be reached or did not answer in time.
var connectivityErrors = []error{
	types.ErrConnectivity,
	nats.ErrTimeout,
	nats.ErrNoServers,
	nats.ErrDisconnected,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
	jetstream.ErrNoStreamResponse,
	jetstream.ErrNoHeartbeat,
	context.DeadlineExceeded,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
}

// Classify returns the class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, jetstream.ErrMsgIteratorClosed) || errors.Is(err, context.Canceled) {
		return ClassShutdown
	}
	for _, target := range connectivityErrors {
		if errors.Is(err, target) {
			return ClassConnectivity
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassConnectivity
	}

	return ClassFailure
}

// IsConnectivityError reports whether err is worth retrying after a backoff.
func IsConnectivityError(err error) bool {
	return Classify(err) == ClassConnectivity
}

// Wrap annotates err with op and, for connectivity failures, with
// types.ErrConnectivity so callers can tell them apart with errors.Is.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivityError(err) && !errors.Is(err, types.ErrConnectivity) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrConnectivity, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
