package copier

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/types"
)

// CopyStats contains statistics about one copy.
type CopyStats struct {
	TablesCopied int              // tables with at least one row written
	RowsCopied   int64            // rows written
	RowsSkipped  int64            // rows skipped as duplicates
	RowsPerTable map[string]int64 // rows written per table
	Duration     time.Duration
}

// TxBeginner starts destination transactions. *sql.DB and the *sql.Conn
// holding the copy lock both satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Copier inserts a row sequence into the destination inside one transaction.
type Copier struct {
	db       TxBeginner
	inserter *Inserter
	logger   *logger.Logger
}

// NewCopier creates a Copier writing to db.
func NewCopier(db TxBeginner, inserter *Inserter, log *logger.Logger) (*Copier, error) {
	if db == nil {
		return nil, fmt.Errorf("destination database is nil")
	}
	if inserter == nil {
		return nil, fmt.Errorf("inserter is nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Copier{
		db:       db,
		inserter: inserter,
		logger:   log,
	}, nil
}

// Copy drains rows into the destination in sequence order. Rows arrive with
// the rows they reference ahead of them, so foreign keys stay satisfied
// statement by statement. The transaction commits only when the sequence
// ends cleanly; any error rolls everything back.
func (c *Copier) Copy(ctx context.Context, rows iter.Seq2[types.Row, error]) (*CopyStats, error) {
	startTime := time.Now()

	stats := &CopyStats{
		RowsPerTable: make(map[string]int64),
	}

	c.logger.Debug("Starting destination transaction")
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, types.Wrap(types.QueryServiceError, "copy", fmt.Errorf("failed to begin destination transaction: %w", err))
	}

	defer func() {
		if tx != nil {
			c.logger.Warn("Rolling back destination transaction")
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Errorf("Failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	for row, err := range rows {
		if err != nil {
			return stats, err
		}

		inserted, err := c.inserter.Insert(ctx, tx, row)
		if err != nil {
			return stats, err
		}
		if !inserted {
			stats.RowsSkipped++
			c.logger.Debugw("duplicate row skipped", "table", row.Table, "pk", row.PK)
			continue
		}

		if stats.RowsPerTable[row.Table] == 0 {
			stats.TablesCopied++
		}
		stats.RowsPerTable[row.Table]++
		stats.RowsCopied++
	}

	c.logger.Debug("Committing destination transaction")
	if err := tx.Commit(); err != nil {
		return stats, types.Wrap(types.QueryServiceError, "copy", fmt.Errorf("failed to commit destination transaction: %w", err))
	}
	tx = nil

	stats.Duration = time.Since(startTime)

	c.logger.Infof("Copy complete: %d tables, %d rows, %d skipped, duration: %s",
		stats.TablesCopied,
		stats.RowsCopied,
		stats.RowsSkipped,
		stats.Duration,
	)

	return stats, nil
}
