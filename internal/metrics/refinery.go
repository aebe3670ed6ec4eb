// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

var (
	refineryRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "records_total",
		Help:      "Count of classified records by verdict.",
	}, []string{"verdict"})

	refineryBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "bytes_processed_total",
		Help:      "Source bytes processed, including undecodable items.",
	})

	refineryDecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "decode_failures_total",
		Help:      "Count of items that failed container decoding.",
	})

	refinerySinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "sink_writes_total",
		Help:      "Count of sink write attempts.",
	}, []string{"status"})

	refinerySinkWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "sink_write_duration_seconds",
		Help:      "Duration of a single sink write.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	refineryIndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "txrefine7000",
		Subsystem: "refinery",
		Name:      "dedup_index_entries",
		Help:      "Distinct fingerprints held by the dedup index.",
	})
)

// Refinery tracks metrics for the record-processing pipeline.
type Refinery struct{}

// NewRefinery constructs the pipeline metrics recorder.
func NewRefinery() *Refinery {
	return &Refinery{}
}

// ObserveRecord records one classified record and its source bytes.
func (Refinery) ObserveRecord(verdict model.Verdict, size int) {
	refineryRecordsTotal.WithLabelValues(verdict.String()).Inc()
	refineryBytesTotal.Add(float64(size))
}

// ObserveDecodeFailure records one undecodable item.
func (Refinery) ObserveDecodeFailure(size int) {
	refineryDecodeFailuresTotal.Inc()
	refineryBytesTotal.Add(float64(size))
}

// ObserveWrite records a sink write attempt outcome and duration.
func (Refinery) ObserveWrite(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	refinerySinkWritesTotal.WithLabelValues(status).Inc()
	refinerySinkWriteDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// SetIndexEntries publishes the dedup index size.
func (Refinery) SetIndexEntries(n int) {
	refineryIndexEntries.Set(float64(n))
}
