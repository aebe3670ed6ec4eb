package model

// Verdict is the classification outcome assigned to exactly one record.
type Verdict uint8

const (
	VerdictKept Verdict = iota
	VerdictDroppedFailed
	VerdictDroppedDust
	VerdictDroppedMalformed
	VerdictDroppedDuplicate
)

// Verdicts lists every verdict in report order.
var Verdicts = []Verdict{
	VerdictKept,
	VerdictDroppedFailed,
	VerdictDroppedDust,
	VerdictDroppedMalformed,
	VerdictDroppedDuplicate,
}

// String returns the label used for metrics and the final report.
func (v Verdict) String() string {
	switch v {
	case VerdictKept:
		return "kept"
	case VerdictDroppedFailed:
		return "dropped_failed"
	case VerdictDroppedDust:
		return "dropped_dust"
	case VerdictDroppedMalformed:
		return "dropped_malformed"
	case VerdictDroppedDuplicate:
		return "dropped_duplicate"
	default:
		return "unknown"
	}
}

// Dropped reports whether the verdict removes the record from the corpus.
func (v Verdict) Dropped() bool {
	return v != VerdictKept
}
