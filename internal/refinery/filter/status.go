package filter

import "github.com/goodnatureofminers/txrefine7000/internal/refinery/model"

// StatusPredicate drops any record whose execution status is not success.
// Unknown status is treated as failed: a record that cannot prove success
// does not belong in the clean corpus.
type StatusPredicate struct{}

func (StatusPredicate) Check(r *model.Record) (model.Verdict, bool) {
	if r.Status != model.StatusSuccess {
		return model.VerdictDroppedFailed, false
	}
	return 0, true
}
