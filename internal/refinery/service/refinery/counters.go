package refinery

import (
	"sync/atomic"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// Counters is the run-scoped aggregate state, owned by the Service and
// shared with every worker. All increments are atomic; readers see monotonic,
// eventually consistent values (no cross-field snapshot lock).
type Counters struct {
	verdicts       [model.VerdictDroppedDuplicate + 1]atomic.Uint64
	records        atomic.Uint64
	bytes          atomic.Uint64
	decodeFailures atomic.Uint64
}

// NewCounters returns zeroed counters for one run.
func NewCounters() *Counters {
	return &Counters{}
}

// ObserveVerdict records one classified record and its source bytes.
func (c *Counters) ObserveVerdict(v model.Verdict, size int) {
	c.verdicts[v].Add(1)
	c.records.Add(1)
	c.bytes.Add(uint64(size))
}

// ObserveDecodeFailure records one undecodable item. Bytes still count toward
// throughput; the item never reaches classification.
func (c *Counters) ObserveDecodeFailure(size int) {
	c.decodeFailures.Add(1)
	c.bytes.Add(uint64(size))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Records          uint64
	Bytes            uint64
	DecodeFailures   uint64
	Kept             uint64
	DroppedFailed    uint64
	DroppedDust      uint64
	DroppedMalformed uint64
	DroppedDuplicate uint64
}

// Dropped sums every drop reason.
func (s Snapshot) Dropped() uint64 {
	return s.DroppedFailed + s.DroppedDust + s.DroppedMalformed + s.DroppedDuplicate
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Records:          c.records.Load(),
		Bytes:            c.bytes.Load(),
		DecodeFailures:   c.decodeFailures.Load(),
		Kept:             c.verdicts[model.VerdictKept].Load(),
		DroppedFailed:    c.verdicts[model.VerdictDroppedFailed].Load(),
		DroppedDust:      c.verdicts[model.VerdictDroppedDust].Load(),
		DroppedMalformed: c.verdicts[model.VerdictDroppedMalformed].Load(),
		DroppedDuplicate: c.verdicts[model.VerdictDroppedDuplicate].Load(),
	}
}
