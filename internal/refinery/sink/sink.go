// Package sink persists kept records to the output corpus.
package sink

import (
	"context"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// Writer persists kept-final records. Implementations are driven by a single
// goroutine (the output aggregator) and need no internal locking. A failed
// Write or Flush is fatal for the run.
type Writer interface {
	Write(ctx context.Context, r *model.Record) error
	Flush() error
	Close() error
}
