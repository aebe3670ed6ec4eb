// Package filter implements the stateless classification chain applied to
// every record before deduplication.
package filter

import "github.com/goodnatureofminers/txrefine7000/internal/refinery/model"

// Predicate inspects a record and either passes it or names the drop verdict.
// Predicates must be pure: no state, no side effects, safe to share across
// workers without synchronization.
type Predicate interface {
	// Check returns (verdict, false) to drop the record, or (_, true) to pass.
	Check(r *model.Record) (model.Verdict, bool)
}

// Chain evaluates predicates in order and short-circuits on the first drop,
// so a record failing several checks gets one deterministic drop reason.
// Duplication is decided elsewhere; a chain never returns VerdictDroppedDuplicate.
type Chain struct {
	predicates []Predicate
}

// NewChain builds a chain over the given predicates, evaluated in order.
func NewChain(predicates ...Predicate) *Chain {
	return &Chain{predicates: predicates}
}

// Config carries the thresholds for the default chain. Fixed for the run.
type Config struct {
	// MinValue is the smallest transferred value (lamports) that is not dust.
	MinValue uint64
	// MaxFeeRatio drops records whose fee exceeds value*MaxFeeRatio.
	// Zero disables the ratio check.
	MaxFeeRatio float64
}

// NewDefaultChain builds the standard chain: status, then dust, then encoding.
func NewDefaultChain(cfg Config) *Chain {
	return NewChain(
		StatusPredicate{},
		DustPredicate{MinValue: cfg.MinValue, MaxFeeRatio: cfg.MaxFeeRatio},
		EncodingPredicate{},
	)
}

// Classify runs the record through the chain and returns its verdict.
func (c *Chain) Classify(r *model.Record) model.Verdict {
	for _, p := range c.predicates {
		if verdict, ok := p.Check(r); !ok {
			return verdict
		}
	}
	return model.VerdictKept
}
