// Package logger provides logger implementations for tests and silent components.
package logger

import "github.com/lccanon/simdeg/types"

// NopLogger is a no-op logger that discards all log messages.
//
// Partitions and engines default to it when no logger is configured.
//
// Example:
//
//	tracker, err := simdeg.NewTracker(cfg, simdeg.WithLogger(logger.NewNop()))
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a new no-op logger that discards all messages.
func NewNop() *NopLogger {
	return &NopLogger{}
}

// Debug discards the message.
func (n *NopLogger) Debug(_ /* msg */ string, _ /* keysAndValues */ ...any) {}

// Info discards the message.
func (n *NopLogger) Info(_ /* msg */ string, _ /* keysAndValues */ ...any) {}

// Warn discards the message.
func (n *NopLogger) Warn(_ /* msg */ string, _ /* keysAndValues */ ...any) {}

// Error discards the message.
func (n *NopLogger) Error(_ /* msg */ string, _ /* keysAndValues */ ...any) {}

// Fatal discards the message and does not exit.
func (n *NopLogger) Fatal(_ /* msg */ string, _ /* keysAndValues */ ...any) {}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l types.Logger) types.Logger {
	if l == nil {
		return NewNop()
	}

	return l
}
