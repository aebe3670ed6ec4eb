// Package dedup provides the run-scoped concurrent fingerprint index.
package dedup

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// ErrExhausted reports that the index grew past its configured entry bound.
// The run must abort rather than degrade dedup correctness.
var ErrExhausted = errors.New("dedup index entry limit reached")

// Outcome is the result of observing a fingerprint.
type Outcome uint8

const (
	FirstSeen Outcome = iota
	Duplicate
)

// String returns the label used in logs.
func (o Outcome) String() string {
	if o == FirstSeen {
		return "first_seen"
	}
	return "duplicate"
}

// Index is an atomic insert-if-absent set of fingerprints. For concurrently
// racing observations of one fingerprint, exactly one caller gets FirstSeen.
type Index interface {
	Observe(fp model.Fingerprint) (Outcome, error)
	Len() int
}

// ShardedIndex partitions fingerprints across independently locked shards to
// keep cross-worker contention low. Entries live for the whole run; there is
// no eviction. Shard choice reads the fingerprint prefix, so it is stable
// regardless of which worker observes the record.
type ShardedIndex struct {
	shards     []indexShard
	shardMask  uint64
	entries    atomic.Int64
	maxEntries int64
}

type indexShard struct {
	mu   sync.Mutex
	seen map[model.Fingerprint]struct{}
	// padding to keep neighboring shard locks off one cache line
	_ [40]byte
}

// NewShardedIndex builds an index with shard count scaled to the worker count,
// rounded up to a power of two. maxEntries <= 0 means unbounded. The bound is
// approximate: concurrent first-seen inserts in distinct shards can overshoot
// it by up to the worker count, which is fine for a memory-pressure guard.
func NewShardedIndex(workerCount int, maxEntries int64) *ShardedIndex {
	n := nextPowerOfTwo(workerCount * 4)
	if n < 16 {
		n = 16
	}
	idx := &ShardedIndex{
		shards:     make([]indexShard, n),
		shardMask:  uint64(n - 1),
		maxEntries: maxEntries,
	}
	for i := range idx.shards {
		idx.shards[i].seen = make(map[model.Fingerprint]struct{})
	}
	return idx
}

// Observe records the fingerprint and reports whether this call was the first
// to see it. The check and insert happen under one shard lock, so the
// FirstSeen/Duplicate split is atomic across all workers.
func (idx *ShardedIndex) Observe(fp model.Fingerprint) (Outcome, error) {
	shard := &idx.shards[binary.LittleEndian.Uint64(fp[:8])&idx.shardMask]

	shard.mu.Lock()
	if _, ok := shard.seen[fp]; ok {
		shard.mu.Unlock()
		return Duplicate, nil
	}
	if idx.maxEntries > 0 && idx.entries.Load() >= idx.maxEntries {
		shard.mu.Unlock()
		return Duplicate, ErrExhausted
	}
	shard.seen[fp] = struct{}{}
	shard.mu.Unlock()

	idx.entries.Add(1)
	return FirstSeen, nil
}

// Len returns the number of distinct fingerprints observed so far.
func (idx *ShardedIndex) Len() int {
	return int(idx.entries.Load())
}

// Range calls fn for every fingerprint in the index, locking one shard at a
// time. Used by the persisted index flush after workers have stopped.
func (idx *ShardedIndex) Range(fn func(model.Fingerprint) error) error {
	for i := range idx.shards {
		shard := &idx.shards[i]
		shard.mu.Lock()
		for fp := range shard.seen {
			if err := fn(fp); err != nil {
				shard.mu.Unlock()
				return err
			}
		}
		shard.mu.Unlock()
	}
	return nil
}

func nextPowerOfTwo(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}
