package simdeg

import (
	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/types"
)

// Re-export types from the types package.
//
// Internal packages depend on `types` rather than on the root package, which
// avoids import cycles while still offering simdeg.Observation, simdeg.Logger
// and friends to callers.
type (
	Observation     = types.Observation
	ObservationKind = types.ObservationKind
	Estimator       = estimator.Beta
)

// Re-export interfaces from the types package for convenience.
type (
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// Re-export observation kinds from the types package.
const (
	KindAgreement = types.KindAgreement
	KindCollusion = types.KindCollusion
	KindJoin      = types.KindJoin
	KindLeave     = types.KindLeave
)
