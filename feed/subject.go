package feed

import (
	"fmt"
	"strings"

	"github.com/lccanon/simdeg/types"
)

// Subject returns the subject an observation is published to:
// <prefix>.<pool>.<kind>.
//
// Returns:
//   - string: Literal subject
//   - error: ErrInvalidObservation if pool is not a single subject token
func Subject(prefix, pool string, kind types.ObservationKind) (string, error) {
	if !isToken(pool) {
		return "", fmt.Errorf("pool %q is not a subject token: %w", pool, types.ErrInvalidObservation)
	}

	return prefix + "." + pool + "." + string(kind), nil
}

// FilterSubject returns the wildcard subject matching every observation
// published under prefix.
func FilterSubject(prefix string) string {
	return prefix + ".>"
}

// parseSubject extracts the pool and kind tokens of an observation subject.
func parseSubject(prefix, subject string) (pool string, kind types.ObservationKind, ok bool) {
	rest, found := strings.CutPrefix(subject, prefix+".")
	if !found {
		return "", "", false
	}
	pool, k, found := strings.Cut(rest, ".")
	if !found || pool == "" || k == "" || strings.Contains(k, ".") {
		return "", "", false
	}

	return pool, types.ObservationKind(k), true
}

// isToken reports whether s can be used as one subject token.
func isToken(s string) bool {
	if s == "" {
		return false
	}

	return !strings.ContainsAny(s, ".*> \t\r\n")
}
