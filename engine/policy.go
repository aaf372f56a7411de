package engine

import (
	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/partition"
)

// AgreementPolicy builds agreement cells.
//
// A singleton certainly agrees with itself. When two cells being merged
// disagree beyond their error bounds, the more precise one is kept as is
// rather than diluted by the noisier one.
type AgreementPolicy struct {
	proto *estimator.Beta
}

var _ partition.Policy = AgreementPolicy{}

// NewAgreementPolicy returns the agreement policy for cfg.
func NewAgreementPolicy(cfg Config) (AgreementPolicy, error) {
	proto, err := estimator.New(cfg.estimatorOptions()...)
	if err != nil {
		return AgreementPolicy{}, err
	}

	return AgreementPolicy{proto: proto}, nil
}

// Fresh returns an uninformative cell.
func (p AgreementPolicy) Fresh() *estimator.Beta {
	return p.prototype().Clone()
}

// Self returns a cell certain of full agreement.
func (p AgreementPolicy) Self() *estimator.Beta {
	c, _ := p.prototype().CloneWithError(1, 0)

	return c
}

// Merge keeps the lower-error input when the two do not overlap and combines
// their evidence otherwise.
func (p AgreementPolicy) Merge(a, b *estimator.Beta) *estimator.Beta {
	if a.Overlaps(b) {
		return a.Merge(b)
	}
	if b.Error() < a.Error() {
		return b.Clone()
	}

	return a.Clone()
}

func (p AgreementPolicy) prototype() *estimator.Beta {
	if p.proto == nil {
		return estimator.NewUniform()
	}

	return p.proto
}

// CollusionPolicy builds collusion cells.
//
// Singletons start from the uninformative prior on their self-cell as well,
// and merges always combine evidence parameter-wise.
type CollusionPolicy struct {
	proto *estimator.Beta
}

var _ partition.Policy = CollusionPolicy{}

// NewCollusionPolicy returns the collusion policy for cfg.
func NewCollusionPolicy(cfg Config) (CollusionPolicy, error) {
	proto, err := estimator.New(cfg.estimatorOptions()...)
	if err != nil {
		return CollusionPolicy{}, err
	}

	return CollusionPolicy{proto: proto}, nil
}

// Fresh returns an uninformative cell.
func (p CollusionPolicy) Fresh() *estimator.Beta {
	return p.prototype().Clone()
}

// Self returns an uninformative cell.
func (p CollusionPolicy) Self() *estimator.Beta {
	return p.prototype().Clone()
}

// Merge combines the evidence of both inputs.
func (p CollusionPolicy) Merge(a, b *estimator.Beta) *estimator.Beta {
	return a.Merge(b)
}

func (p CollusionPolicy) prototype() *estimator.Beta {
	if p.proto == nil {
		return estimator.NewUniform()
	}

	return p.proto
}
