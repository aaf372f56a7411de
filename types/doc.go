// Package types provides core type definitions and interfaces for the simdeg library.
//
// This package contains shared types that are used across multiple packages.
// By keeping these types in a separate package, we avoid import cycles between
// the root simdeg package and its internal implementations.
//
// Key types:
//   - Observation: A pairwise behavioral observation reported by a scheduler
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
//   - Sentinel errors shared by every layer
package types
