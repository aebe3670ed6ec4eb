package refinery

import (
	"context"
	"errors"
	"time"
)

// Status is the user-visible outcome of one run.
type Status string

const (
	// StatusSuccess: the source was exhausted and every survivor flushed.
	StatusSuccess Status = "success"
	// StatusPartial: the run was canceled (signal or max-runtime cutoff)
	// after a clean drain; counters and flushed output are consistent.
	StatusPartial Status = "partial"
	// StatusFailed: a run-level error aborted processing after a
	// best-effort flush.
	StatusFailed Status = "failed"
)

// Report is the finalized, immutable summary of one run.
type Report struct {
	Snapshot

	// Written counts records that reached the sink. Matches Kept except in
	// the fatal-abort case.
	Written uint64
	Elapsed time.Duration
	Status  Status
	// Err is the fatal error for a failed run, nil otherwise.
	Err error
}

func (s *Service) buildReport(started time.Time, runErr, aggErr error) *Report {
	r := &Report{
		Snapshot: s.counters.Snapshot(),
		Written:  s.aggregator.Written(),
		Elapsed:  time.Since(started),
	}

	switch {
	case runErr == nil && aggErr == nil:
		r.Status = StatusSuccess
	case aggErr == nil && isCancellation(runErr):
		// Controlled shutdown, not an error.
		r.Status = StatusPartial
	case aggErr != nil:
		r.Status = StatusFailed
		r.Err = aggErr
	default:
		r.Status = StatusFailed
		r.Err = runErr
	}
	return r
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// defaultQueueSize bounds the hand-off channels when unconfigured. Sized to
// absorb sink latency spikes without letting peak memory scale with input.
const defaultQueueSize = 1024
