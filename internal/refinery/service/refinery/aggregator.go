package refinery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// ErrAggregatorStopped is returned by Add after Stop or a fatal write error.
var ErrAggregatorStopped = errors.New("output aggregator stopped")

// Aggregator serializes kept-final records from all workers into the single
// sink writer. The intake channel is bounded: when the sink is slower than
// worker production, Add blocks and back-pressure caps in-flight memory.
//
// A kept-final record is never silently dropped. On a sink write error the
// aggregator records the fatal error, cancels the run and drains the intake
// so blocked workers can observe the failure and unwind.
type Aggregator struct {
	sink    Sink
	logger  *zap.Logger
	metrics Metrics
	intake  chan *model.Record
	rl      ratelimit.Limiter
	cancel  func()

	wg      sync.WaitGroup
	stopped atomic.Bool
	written atomic.Uint64

	errMu    sync.Mutex
	fatalErr error
}

// NewAggregator builds an aggregator with the given intake bound. The bound
// is the back-pressure tunable: larger absorbs sink latency spikes, smaller
// caps peak memory. writesPerSecond > 0 paces sink writes.
func NewAggregator(logger *zap.Logger, sink Sink, metrics Metrics, queueSize, writesPerSecond int) *Aggregator {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &Aggregator{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		intake:  make(chan *model.Record, queueSize),
	}
	if writesPerSecond > 0 {
		a.rl = ratelimit.New(writesPerSecond)
	}
	return a
}

// SetCancel installs the run-cancel hook invoked on a fatal sink error.
func (a *Aggregator) SetCancel(cancel func()) {
	a.cancel = cancel
}

// Start launches the single consumer goroutine. ctx should survive run
// cancellation so records already accepted still reach the sink.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Add hands a kept-final record to the aggregator, blocking when the intake
// is full. It fails only when the run is canceled or the sink has failed.
func (a *Aggregator) Add(ctx context.Context, r *model.Record) error {
	if err := a.Err(); err != nil {
		return err
	}
	if a.stopped.Load() {
		return ErrAggregatorStopped
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case a.intake <- r:
		return nil
	}
}

// Stop closes the intake, waits for the consumer to drain it, flushes the
// sink and returns the first fatal error if any.
func (a *Aggregator) Stop() error {
	if a.stopped.Swap(true) {
		a.wg.Wait()
		return a.Err()
	}
	close(a.intake)
	a.wg.Wait()

	// Best-effort flush even after a write failure, so records that did
	// reach the sink are durable.
	if err := a.sink.Flush(); err != nil {
		a.setErr(fmt.Errorf("flush sink: %w", err))
	}
	return a.Err()
}

// Written reports how many records reached the sink.
func (a *Aggregator) Written() uint64 {
	return a.written.Load()
}

// Err returns the fatal sink error, if one occurred.
func (a *Aggregator) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.fatalErr
}

func (a *Aggregator) setErr(err error) {
	a.errMu.Lock()
	if a.fatalErr == nil {
		a.fatalErr = err
	}
	a.errMu.Unlock()
}

func (a *Aggregator) run(ctx context.Context) {
	defer a.wg.Done()

	for r := range a.intake {
		if a.Err() != nil {
			// Fatal state: keep draining so blocked producers unwind.
			continue
		}
		if a.rl != nil {
			a.rl.Take()
		}

		started := time.Now()
		err := a.sink.Write(ctx, r)
		if a.metrics != nil {
			a.metrics.ObserveWrite(err, started)
		}
		if err != nil {
			a.logger.Error("sink write failed", zap.Error(err))
			a.setErr(fmt.Errorf("sink write: %w", err))
			if a.cancel != nil {
				a.cancel()
			}
			continue
		}
		a.written.Add(1)
	}
}
