package filter

import "github.com/goodnatureofminers/txrefine7000/internal/refinery/model"

// DustPredicate drops low-value and fee-disproportionate transfers.
type DustPredicate struct {
	// MinValue is the smallest transferred value kept. Zero keeps everything.
	MinValue uint64
	// MaxFeeRatio drops records where fee > value*MaxFeeRatio. Only evaluated
	// when value is positive; zero disables the check.
	MaxFeeRatio float64
}

func (p DustPredicate) Check(r *model.Record) (model.Verdict, bool) {
	if r.Value < p.MinValue {
		return model.VerdictDroppedDust, false
	}
	if p.MaxFeeRatio > 0 && r.Value > 0 {
		if float64(r.Fee) > float64(r.Value)*p.MaxFeeRatio {
			return model.VerdictDroppedDust, false
		}
	}
	return 0, true
}
