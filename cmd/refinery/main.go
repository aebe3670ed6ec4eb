package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txrefine7000/internal/metrics"
	"github.com/goodnatureofminers/txrefine7000/internal/progress"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/dedup"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/filter"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/service/refinery"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/sink"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/source"
)

const exitCodePartial = 3

type config struct {
	Input             string        `short:"i" long:"input" env:"REFINERY_INPUT" description:"input file or directory (.jsonl/.json/.parquet)" required:"true"`
	Output            string        `short:"o" long:"output" env:"REFINERY_OUTPUT" description:"output directory for the clean corpus" required:"true"`
	Threads           int           `short:"t" long:"threads" env:"REFINERY_THREADS" description:"worker count; <= 0 auto-detects" default:"0"`
	MinValue          uint64        `long:"min-value" env:"REFINERY_MIN_VALUE" description:"dust threshold: drop transfers below this value" default:"1"`
	MaxFeeRatio       float64       `long:"max-fee-ratio" env:"REFINERY_MAX_FEE_RATIO" description:"drop records with fee > value*ratio; 0 disables" default:"0"`
	QueueSize         int           `long:"queue-size" env:"REFINERY_QUEUE_SIZE" description:"bounded hand-off channel size (back-pressure tunable)" default:"1024"`
	FingerprintPolicy string        `long:"fingerprint-policy" env:"REFINERY_FINGERPRINT_POLICY" description:"dedup canonicalization: signature or content" default:"signature"`
	IndexDB           string        `long:"index-db" env:"REFINERY_INDEX_DB" description:"sqlite path for cross-run dedup; empty keeps the index in memory only"`
	MaxIndexEntries   int64         `long:"max-index-entries" env:"REFINERY_MAX_INDEX_ENTRIES" description:"abort when the dedup index exceeds this many fingerprints; 0 disables" default:"0"`
	WritesPerSecond   int           `long:"writes-per-second" env:"REFINERY_WRITES_PER_SECOND" description:"pace sink writes; 0 disables" default:"0"`
	MaxRuntime        time.Duration `long:"max-runtime" env:"REFINERY_MAX_RUNTIME" description:"cancel the run after this cutoff; 0 disables" default:"0"`
	ProgressInterval  time.Duration `long:"progress-interval" env:"REFINERY_PROGRESS_INTERVAL" description:"interval between progress reports" default:"2s"`
	MetricsAddr       string        `long:"metrics-addr" env:"REFINERY_METRICS_ADDR" description:"prometheus scrape listen address; empty disables"`
	Quiet             bool          `short:"q" long:"quiet" env:"REFINERY_QUIET" description:"suppress banner and progress output"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	report, err := run(ctx, cfg, logger)
	_ = logger.Sync()
	switch {
	case err != nil:
		os.Exit(1)
	case report != nil && report.Status == refinery.StatusPartial:
		os.Exit(exitCodePartial)
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) (*refinery.Report, error) {
	files, err := source.Discover(cfg.Input)
	if err != nil {
		logger.Error("input path invalid", zap.String("input", cfg.Input), zap.Error(err))
		return nil, err
	}
	if len(files) == 0 {
		logger.Error("no input files found", zap.String("input", cfg.Input))
		return nil, fmt.Errorf("no .jsonl/.json/.parquet files under %s", cfg.Input)
	}
	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		logger.Error("output dir not writable", zap.String("output", cfg.Output), zap.Error(err))
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	policy, err := model.ParseFingerprintPolicy(cfg.FingerprintPolicy)
	if err != nil {
		logger.Error("invalid fingerprint policy", zap.Error(err))
		return nil, err
	}

	workers := cfg.Threads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if !cfg.Quiet {
		progress.PrintBanner(cfg.Input, cfg.Output, cfg.Threads)
	}
	logger.Info("inputs discovered", zap.Int("files", len(files)), zap.Int("workers", workers))

	index, persistent, err := openIndex(ctx, cfg, workers, logger)
	if err != nil {
		return nil, err
	}
	if persistent != nil {
		defer func() {
			_ = persistent.Close()
		}()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	reader := source.NewMultiReader(files)
	defer func() {
		_ = reader.Close()
	}()

	sinkWriter := sink.NewJSONLWriter(cfg.Output, logger.Named("sink"))
	defer func() {
		if err := sinkWriter.Close(); err != nil {
			logger.Error("close sink", zap.Error(err))
		}
	}()

	chain := filter.NewDefaultChain(filter.Config{
		MinValue:    cfg.MinValue,
		MaxFeeRatio: cfg.MaxFeeRatio,
	})

	svc, err := refinery.NewService(reader, sinkWriter, chain, index, metrics.NewRefinery(), refinery.Config{
		Workers:         workers,
		QueueSize:       cfg.QueueSize,
		Policy:          policy,
		MaxRuntime:      cfg.MaxRuntime,
		WritesPerSecond: cfg.WritesPerSecond,
	}, logger.Named("refinery"))
	if err != nil {
		return nil, err
	}

	// The reporter must be stopped and joined before the final report prints,
	// so a last tick cannot interleave with it.
	progressStop := func() {}
	if !cfg.Quiet {
		progressCtx, cancelProgress := context.WithCancel(ctx)
		progressDone := make(chan struct{})
		go func() {
			defer close(progressDone)
			progress.NewReporter(svc.Counters(), cfg.ProgressInterval).Run(progressCtx)
		}()
		progressStop = func() {
			cancelProgress()
			<-progressDone
		}
	}

	report, runErr := svc.Run(ctx)
	progressStop()

	if persistent != nil {
		// Best-effort even after a partial run: first-seen fingerprints
		// are valid regardless of how the run ended.
		if err := persistent.Flush(context.WithoutCancel(ctx)); err != nil {
			logger.Error("flush persisted index", zap.Error(err))
		}
	}

	if !cfg.Quiet && report != nil {
		progress.PrintReport(report)
	}
	if runErr != nil {
		logger.Error("refinery run failed", zap.Error(runErr))
		return report, runErr
	}
	return report, nil
}

func openIndex(ctx context.Context, cfg config, workers int, logger *zap.Logger) (refinery.Index, *dedup.PersistentIndex, error) {
	if cfg.IndexDB == "" {
		return dedup.NewShardedIndex(workers, cfg.MaxIndexEntries), nil, nil
	}
	persistent, err := dedup.OpenPersistentIndex(ctx, cfg.IndexDB, workers, cfg.MaxIndexEntries, logger.Named("index"))
	if err != nil {
		logger.Error("open persisted index", zap.String("path", cfg.IndexDB), zap.Error(err))
		return nil, nil, err
	}
	return persistent, persistent, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", zap.Error(err))
	}
}
