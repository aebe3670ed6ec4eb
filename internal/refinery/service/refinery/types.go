// Package refinery drives records from the source readers through
// classification and deduplication to the output corpus.
package refinery

import (
	"context"
	"time"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/dedup"
	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Source yields decoded records; io.EOF ends the stream and
	// *source.DecodeError marks a recoverable per-record failure.
	Source interface {
		Next() (*model.Record, error)
		Close() error
	}

	// Sink persists kept-final records. Driven by the aggregator only.
	Sink interface {
		Write(ctx context.Context, r *model.Record) error
		Flush() error
		Close() error
	}

	// Index is the run-wide atomic insert-if-absent fingerprint set.
	Index interface {
		Observe(fp model.Fingerprint) (dedup.Outcome, error)
		Len() int
	}

	// Classifier assigns the pre-dedup verdict to a record.
	Classifier interface {
		Classify(r *model.Record) model.Verdict
	}

	// Metrics receives per-record and per-write observations.
	Metrics interface {
		ObserveRecord(verdict model.Verdict, size int)
		ObserveDecodeFailure(size int)
		ObserveWrite(err error, started time.Time)
		SetIndexEntries(n int)
	}
)
