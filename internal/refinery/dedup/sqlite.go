package dedup

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// PersistentIndex layers a durable fingerprint set under a ShardedIndex for
// cross-run deduplication. Previously persisted fingerprints are loaded into
// the in-memory index at open; fingerprints first seen during this run are
// written back in one transaction by Flush before teardown.
type PersistentIndex struct {
	*ShardedIndex
	db      *sql.DB
	logger  *zap.Logger
	preload int
}

// OpenPersistentIndex opens (creating if needed) the sqlite-backed index at
// path and preloads its fingerprints.
func OpenPersistentIndex(ctx context.Context, path string, workerCount int, maxEntries int64, logger *zap.Logger) (*PersistentIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS fingerprints (fp BLOB PRIMARY KEY) WITHOUT ROWID`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}

	p := &PersistentIndex{
		ShardedIndex: NewShardedIndex(workerCount, maxEntries),
		db:           db,
		logger:       logger,
	}
	if err := p.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("loaded persisted dedup index",
		zap.String("path", path),
		zap.Int("fingerprints", p.preload),
	)
	return p, nil
}

func (p *PersistentIndex) load(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `SELECT fp FROM fingerprints`)
	if err != nil {
		return fmt.Errorf("load persisted fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan persisted fingerprint: %w", err)
		}
		fp, err := model.FingerprintFromBytes(raw)
		if err != nil {
			return fmt.Errorf("corrupt persisted fingerprint: %w", err)
		}
		if _, err := p.ShardedIndex.Observe(fp); err != nil {
			return err
		}
		p.preload++
	}
	return rows.Err()
}

// Flush writes every fingerprint first seen during this run back to the
// database. Call after all workers have stopped.
func (p *PersistentIndex) Flush(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index flush: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO fingerprints (fp) VALUES (?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare index flush: %w", err)
	}

	written := 0
	err = p.ShardedIndex.Range(func(fp model.Fingerprint) error {
		if _, err := stmt.ExecContext(ctx, fp[:]); err != nil {
			return err
		}
		written++
		return nil
	})
	_ = stmt.Close()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("flush dedup index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index flush: %w", err)
	}

	p.logger.Info("flushed dedup index", zap.Int("fingerprints", written))
	return nil
}

// Close releases the database handle. Flush first if durability is wanted.
func (p *PersistentIndex) Close() error {
	return p.db.Close()
}
