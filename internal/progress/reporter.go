// Package progress renders run progress and the final report to the terminal.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/goodnatureofminers/txrefine7000/internal/clock"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/service/refinery"
)

// Reporter periodically prints counter snapshots while a run is active.
// Counters are eventually consistent; the reporter never locks the pipeline.
type Reporter struct {
	counters *refinery.Counters
	interval time.Duration
}

// NewReporter builds a reporter polling the given counters.
func NewReporter(counters *refinery.Counters, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reporter{counters: counters, interval: interval}
}

// Run polls until the context is canceled. Intended to be started alongside
// the pipeline and stopped by the same cancellation.
func (r *Reporter) Run(ctx context.Context) {
	last := r.counters.Snapshot()
	lastAt := time.Now()

	_ = clock.Tick(ctx, r.interval, func() {
		snap := r.counters.Snapshot()
		now := time.Now()
		elapsed := now.Sub(lastAt).Seconds()
		recRate := float64(snap.Records-last.Records) / elapsed
		byteRate := float64(snap.Bytes-last.Bytes) / elapsed
		last, lastAt = snap, now

		pterm.Printf("processed %s records (%s)  kept %s  dropped %s  dup %s  decode-errs %s  [%.0f rec/s, %s/s]\n",
			formatCount(snap.Records),
			formatBytes(snap.Bytes),
			formatCount(snap.Kept),
			formatCount(snap.Dropped()-snap.DroppedDuplicate),
			formatCount(snap.DroppedDuplicate),
			formatCount(snap.DecodeFailures),
			recRate,
			formatBytes(uint64(byteRate)),
		)
	})
}

// PrintBanner announces the run configuration before processing starts.
func PrintBanner(input, output string, threads int) {
	pterm.DefaultBox.Println("TXREFINE7000 :: transaction corpus refinery")
	pterm.Printf("input:   %s\n", input)
	pterm.Printf("output:  %s\n", output)
	if threads <= 0 {
		pterm.Printf("threads: auto\n")
	} else {
		pterm.Printf("threads: %d\n", threads)
	}
}

// PrintReport renders the final run summary.
func PrintReport(report *refinery.Report) {
	data := pterm.TableData{
		{"", "count"},
		{"records processed", formatCount(report.Records)},
		{"bytes processed", formatBytes(report.Bytes)},
		{"kept", formatCount(report.Kept)},
		{"dropped: failed status", formatCount(report.DroppedFailed)},
		{"dropped: dust/spam", formatCount(report.DroppedDust)},
		{"dropped: malformed", formatCount(report.DroppedMalformed)},
		{"dropped: duplicate", formatCount(report.DroppedDuplicate)},
		{"decode failures", formatCount(report.DecodeFailures)},
		{"written to sink", formatCount(report.Written)},
		{"elapsed", report.Elapsed.Round(time.Millisecond).String()},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	switch report.Status {
	case refinery.StatusSuccess:
		pterm.Success.Println("processing complete")
	case refinery.StatusPartial:
		pterm.Warning.Println("run canceled; output is a consistent partial corpus")
	case refinery.StatusFailed:
		pterm.Error.Printf("run failed: %v\n", report.Err)
	}
}

func formatCount(v uint64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(v)/1e9)
	case v >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(v)/1e6)
	case v >= 10_000:
		return fmt.Sprintf("%.1fk", float64(v)/1e3)
	default:
		return fmt.Sprintf("%d", v)
	}
}

func formatBytes(v uint64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%dB", v)
	}
	div, exp := uint64(unit), 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(v)/float64(div), "KMGTPE"[exp])
}
