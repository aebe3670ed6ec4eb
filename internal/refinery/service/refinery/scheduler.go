package refinery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/dedup"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/source"
	"github.com/goodnatureofminers/txrefine7000/pkg/workerpool"
)

// Config tunes one refinery run.
type Config struct {
	// Workers is the record-processing pool size. <= 0 auto-detects.
	Workers int
	// QueueSize bounds the reader-to-worker and worker-to-aggregator
	// channels. The back-pressure tunable: caps in-flight records.
	QueueSize int
	// Policy selects fingerprint canonicalization.
	Policy model.FingerprintPolicy
	// MaxRuntime cancels the run after the cutoff. Zero disables it.
	MaxRuntime time.Duration
	// WritesPerSecond paces sink writes. Zero disables pacing.
	WritesPerSecond int
}

// Service is the work scheduler: it partitions the record stream across the
// worker pool, applies the filter chain and dedup index per record, and
// forwards survivors to the output aggregator. Counters and the index are
// the only shared-write state; the chain and config are read-only.
type Service struct {
	logger     *zap.Logger
	src        Source
	chain      Classifier
	index      Index
	metrics    Metrics
	counters   *Counters
	aggregator *Aggregator
	cfg        Config
}

// NewService wires a run. The sink is owned by the internal aggregator;
// everything else is injected.
func NewService(
	src Source,
	snk Sink,
	chain Classifier,
	index Index,
	metrics Metrics,
	cfg Config,
	logger *zap.Logger,
) (*Service, error) {
	if src == nil {
		return nil, errors.New("source is required")
	}
	if snk == nil {
		return nil, errors.New("sink is required")
	}
	if chain == nil {
		return nil, errors.New("filter chain is required")
	}
	if index == nil {
		return nil, errors.New("dedup index is required")
	}
	if metrics == nil {
		return nil, errors.New("metrics is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Policy == "" {
		cfg.Policy = model.PolicySignature
	}

	return &Service{
		logger:     logger,
		src:        src,
		chain:      chain,
		index:      index,
		metrics:    metrics,
		counters:   NewCounters(),
		aggregator: NewAggregator(logger.Named("aggregator"), snk, metrics, cfg.QueueSize, cfg.WritesPerSecond),
		cfg:        cfg,
	}, nil
}

// Counters exposes the run counters for the progress reporter.
func (s *Service) Counters() *Counters {
	return s.counters
}

// Run drives the source to exhaustion and returns the final report. The
// returned error is non-nil only for a failed run; cancellation yields a
// partial report with a nil error.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	started := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.cfg.MaxRuntime > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, s.cfg.MaxRuntime)
		defer tcancel()
	}

	// Records accepted by the aggregator must still reach the sink after
	// cancellation, so its context survives the run context.
	writeCtx := context.WithoutCancel(ctx)
	s.aggregator.SetCancel(cancel)
	s.aggregator.Start(writeCtx)

	s.logger.Info("run started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("queue_size", s.cfg.QueueSize),
		zap.String("fingerprint_policy", string(s.cfg.Policy)),
	)

	records := make(chan *model.Record, s.cfg.QueueSize)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(records)
		return s.feed(gctx, records)
	})
	g.Go(func() error {
		// Workers stop pulling on cancellation but finish the record in
		// hand against writeCtx, so in-flight work drains to a verdict.
		return workerpool.ProcessChan(gctx, s.cfg.Workers, records, func(_ context.Context, r *model.Record) error {
			return s.process(writeCtx, r)
		}, nil)
	})
	runErr := g.Wait()

	aggErr := s.aggregator.Stop()
	s.metrics.SetIndexEntries(s.index.Len())

	report := s.buildReport(started, runErr, aggErr)
	s.logger.Info("run finished",
		zap.String("status", string(report.Status)),
		zap.Uint64("records", report.Records),
		zap.Uint64("kept", report.Kept),
		zap.Uint64("written", report.Written),
		zap.Duration("elapsed", report.Elapsed),
	)
	if report.Status == StatusFailed {
		return report, report.Err
	}
	return report, nil
}

// feed pulls records from the source into the worker channel. Per-record
// decode failures are counted and skipped; any other source error is fatal.
func (s *Service) feed(ctx context.Context, out chan<- *model.Record) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := s.src.Next()
		if err != nil {
			var derr *source.DecodeError
			switch {
			case errors.As(err, &derr):
				s.counters.ObserveDecodeFailure(derr.Bytes)
				s.metrics.ObserveDecodeFailure(derr.Bytes)
				s.logger.Debug("decode failure",
					zap.String("file", derr.File),
					zap.Int("line", derr.Line),
					zap.Error(derr.Err),
				)
				continue
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("read source: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}
}

// process classifies one record to exactly one verdict: filter chain first,
// then the dedup check for chain survivors, then hand-off to the aggregator.
func (s *Service) process(ctx context.Context, r *model.Record) error {
	verdict := s.chain.Classify(r)

	if verdict == model.VerdictKept {
		outcome, err := s.index.Observe(s.cfg.Policy.Fingerprint(r))
		if err != nil {
			return fmt.Errorf("dedup index: %w", err)
		}
		if outcome == dedup.Duplicate {
			verdict = model.VerdictDroppedDuplicate
		}
	}

	if verdict == model.VerdictKept {
		if err := s.aggregator.Add(ctx, r); err != nil {
			return err
		}
	}

	s.counters.ObserveVerdict(verdict, r.Size())
	s.metrics.ObserveRecord(verdict, r.Size())
	return nil
}
