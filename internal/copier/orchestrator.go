package copier

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/dbsmedya/dcp/internal/config"
	"github.com/dbsmedya/dcp/internal/database"
	"github.com/dbsmedya/dcp/internal/graph"
	"github.com/dbsmedya/dcp/internal/lock"
	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/query"
	"github.com/dbsmedya/dcp/internal/schema"
	"github.com/dbsmedya/dcp/internal/types"
	"github.com/dbsmedya/dcp/internal/verifier"
	"github.com/dbsmedya/dcp/internal/walker"
)

// CopyResult contains statistics and status of one copy.
type CopyResult struct {
	Source        string
	Destination   string
	Table         string
	Filter        string
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	QueriesIssued int
	Copy          *CopyStats
	Verify        *verifier.VerifyStats
}

// Orchestrator runs copy, export and import between configured databases.
// Either side may be left unnamed when a command only needs the other; it
// must be initialized with Initialize() before use.
type Orchestrator struct {
	config      *config.Config
	sourceName  string
	destName    string
	dbManager   *database.Manager
	logger      *logger.Logger
	graph       *graph.Graph
	sourceMeta  types.Metadata
	destMeta    types.Metadata
	initialized bool
}

// NewOrchestrator creates an orchestrator over dbManager's connections.
func NewOrchestrator(cfg *config.Config, sourceName, destName string, dbManager *database.Manager, log *logger.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if dbManager == nil {
		return nil, fmt.Errorf("database manager is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Orchestrator{
		config:     cfg,
		sourceName: sourceName,
		destName:   destName,
		dbManager:  dbManager,
		logger:     log,
	}, nil
}

// Initialize connects, reflects every connected side and builds the source
// graph from its foreign keys and the configured link/unlink directives.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.initialized {
		return nil
	}

	if err := o.dbManager.Connect(ctx); err != nil {
		return err
	}

	if src := o.dbManager.Source; src != nil {
		log := o.logger.WithDatabase(o.sourceName)

		meta, err := schema.Reflect(ctx, src.DB, src.Dialect)
		if err != nil {
			return fmt.Errorf("failed to reflect source schema: %w", err)
		}
		o.sourceMeta = meta

		dbCfg, err := o.config.Database(o.sourceName)
		if err != nil {
			return err
		}
		warn := func(line string) {
			log.Warnw("skipping malformed directive", "line", line)
		}

		g, err := graph.NewBuilder(meta).
			WithLinks(dbCfg.Links(warn)).
			WithUnlinks(dbCfg.Unlinks(warn)).
			WithLogger(log).
			Build()
		if err != nil {
			return fmt.Errorf("failed to build schema graph: %w", err)
		}
		o.graph = g

		log.Infow("Source schema loaded",
			"tables", g.TableCount(),
			"edges", g.EdgeCount(),
		)
	}

	if dest := o.dbManager.Destination; dest != nil {
		meta, err := schema.Reflect(ctx, dest.DB, dest.Dialect)
		if err != nil {
			return fmt.Errorf("failed to reflect destination schema: %w", err)
		}
		o.destMeta = meta

		o.logger.WithDatabase(o.destName).Infow("Destination schema loaded", "tables", len(meta))
	}

	o.initialized = true
	return nil
}

// Copy copies the rows of table matching filter, with their relational
// closure, from source to destination.
func (o *Orchestrator) Copy(ctx context.Context, table string, filter types.Filter) (*CopyResult, error) {
	if err := o.require(true, true); err != nil {
		return nil, err
	}
	if !o.graph.HasTable(table) {
		return nil, types.Errorf(types.SchemaError, "copy", "unknown table %q", table)
	}

	if err := Preflight(o.graph, o.graph.Reachable(table), o.destMeta, o.logger); err != nil {
		return nil, err
	}

	result := &CopyResult{
		Source:      o.sourceName,
		Destination: o.destName,
		Table:       table,
		Filter:      filter.String(),
		StartedAt:   time.Now(),
	}

	o.logger.Infow("Starting copy",
		"source", o.sourceName,
		"destination", o.destName,
		"table", table,
		"filter", result.Filter,
		"verify", o.config.Copy.Verify,
	)

	src := o.dbManager.Source
	service := query.NewService(src.DB, src.Dialect, o.sourceMeta, o.logger)
	rows := walker.New(o.graph, service, o.logger).Data(ctx, table, filter)

	err := o.withLock(ctx, func(db destination) error {
		var copied []types.Row
		if m := verifier.VerificationMethod(o.config.Copy.Verify); m != "" && m != verifier.MethodNone {
			rows = recordRows(rows, &copied)
		}

		stats, err := o.copyRows(ctx, db, rows)
		if err != nil {
			return err
		}
		result.Copy = stats

		result.Verify, err = o.verify(ctx, db, copied)
		return err
	})
	result.QueriesIssued = service.Issued()
	if err != nil {
		return result, err
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	o.logger.Infow("Copy finished",
		"duration", result.Duration,
		"rows_copied", result.Copy.RowsCopied,
		"rows_skipped", result.Copy.RowsSkipped,
		"queries", result.QueriesIssued,
	)

	return result, nil
}

// Export writes the rows of table matching filter, with their closure, to
// w as JSON lines.
func (o *Orchestrator) Export(ctx context.Context, w io.Writer, table string, filter types.Filter) (int64, error) {
	if err := o.require(true, false); err != nil {
		return 0, err
	}

	src := o.dbManager.Source
	service := query.NewService(src.DB, src.Dialect, o.sourceMeta, o.logger)
	n, err := Export(ctx, w, walker.New(o.graph, service, o.logger).Data(ctx, table, filter))
	if err != nil {
		return n, err
	}

	o.logger.Infow("Export finished", "rows", n, "queries", service.Issued())
	return n, nil
}

// Import inserts JSON lines read from r into the destination.
func (o *Orchestrator) Import(ctx context.Context, r io.Reader) (*CopyStats, error) {
	if err := o.require(false, true); err != nil {
		return nil, err
	}

	var stats *CopyStats
	err := o.withLock(ctx, func(db destination) error {
		var err error
		stats, err = o.copyRows(ctx, db, ReadRows(r))
		return err
	})
	return stats, err
}

// Validate checks that the destination can receive every source table and
// reports whether another copy into it is running.
func (o *Orchestrator) Validate(ctx context.Context) error {
	if err := o.require(true, true); err != nil {
		return err
	}

	if err := Preflight(o.graph, o.graph.Tables(), o.destMeta, o.logger); err != nil {
		return err
	}

	dest := o.dbManager.Destination
	running, err := lock.IsCopyRunning(ctx, dest.DB, dest.Dialect, o.destName)
	if err != nil {
		return types.Wrap(types.QueryServiceError, "validate", err)
	}
	if running {
		o.logger.Warnw("another copy into the destination is running", "destination", o.destName)
	}
	return nil
}

func (o *Orchestrator) copyRows(ctx context.Context, db destination, rows iter.Seq2[types.Row, error]) (*CopyStats, error) {
	inserter := NewInserter(o.dbManager.Destination.Dialect, o.destMeta, o.config.Copy.IgnoreDuplicates, o.logger)

	c, err := NewCopier(db, inserter, o.logger)
	if err != nil {
		return nil, err
	}
	return c.Copy(ctx, rows)
}

func (o *Orchestrator) verify(ctx context.Context, db destination, rows []types.Row) (*verifier.VerifyStats, error) {
	v, err := verifier.NewVerifier(db, o.dbManager.Destination.Dialect, o.destMeta,
		verifier.VerificationMethod(o.config.Copy.Verify), o.logger)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, rows)
}

// destination is where copied rows are written and verified: the pool, or
// the session holding the copy lock.
type destination interface {
	TxBeginner
	verifier.Querier
}

// withLock runs fn under the destination copy lock unless locking is off.
// While the lock is held fn runs on the locking session.
func (o *Orchestrator) withLock(ctx context.Context, fn func(db destination) error) error {
	dest := o.dbManager.Destination
	if !o.config.Copy.Lock {
		return fn(dest.DB)
	}

	l := lock.NewCopyLock(dest.DB, dest.Dialect, o.destName)
	o.logger.Debugw("Acquiring copy lock", "lock", l.LockName())
	return l.WithLock(ctx, func(conn *sql.Conn) error {
		if conn == nil {
			return fn(dest.DB)
		}
		return fn(conn)
	})
}

func (o *Orchestrator) require(source, destination bool) error {
	if !o.initialized {
		return fmt.Errorf("orchestrator not initialized")
	}
	if source && o.dbManager.Source == nil {
		return types.Errorf(types.ConfigurationError, "orchestrator", "no source database connected")
	}
	if destination && o.dbManager.Destination == nil {
		return types.Errorf(types.ConfigurationError, "orchestrator", "no destination database connected")
	}
	return nil
}

// Graph returns the source schema graph. Returns nil if not initialized.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.graph
}

// Close releases every connection.
func (o *Orchestrator) Close() error {
	return o.dbManager.Close()
}

// recordRows passes rows through unchanged, appending each to dst.
func recordRows(rows iter.Seq2[types.Row, error], dst *[]types.Row) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		for row, err := range rows {
			if err == nil {
				*dst = append(*dst, row)
			}
			if !yield(row, err) {
				return
			}
		}
	}
}
