// Package copier writes walked rows to a destination database and to and
// from JSON lines.
package copier

import (
	"context"
	"database/sql"

	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Inserter turns rows into INSERT statements for the destination schema.
type Inserter struct {
	dialect sqlutil.Dialect
	meta    types.Metadata
	ignore  bool
	log     *logger.Logger

	// tables whose surplus columns were already reported
	reported map[string]bool
}

// NewInserter creates an Inserter for a destination described by meta. With
// ignore set, rows whose key already exists are skipped instead of failing.
func NewInserter(dialect sqlutil.Dialect, meta types.Metadata, ignore bool, log *logger.Logger) *Inserter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Inserter{
		dialect:  dialect,
		meta:     meta,
		ignore:   ignore,
		log:      log,
		reported: make(map[string]bool),
	}
}

// Statement builds the INSERT for row. Columns follow the destination's
// declared order; row columns the destination lacks are dropped.
func (in *Inserter) Statement(row types.Row) (string, []interface{}, error) {
	meta := in.meta.Table(row.Table)
	if meta == nil {
		return "", nil, types.Errorf(types.SchemaError, "insert", "table %q does not exist in destination", row.Table)
	}

	cols := make([]string, 0, len(meta.Columns))
	args := make([]interface{}, 0, len(meta.Columns))
	for _, col := range meta.Columns {
		v, ok := row.Data[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		args = append(args, v)
	}

	if len(cols) < len(row.Data) && !in.reported[row.Table] {
		in.reported[row.Table] = true
		var dropped []string
		for _, col := range row.Columns() {
			if !meta.HasColumn(col) {
				dropped = append(dropped, col)
			}
		}
		in.log.Warnw("destination lacks columns, values dropped",
			"table", row.Table,
			"columns", dropped,
		)
	}
	if len(cols) == 0 {
		return "", nil, types.Errorf(types.SchemaError, "insert",
			"row of %q shares no column with the destination table", row.Table)
	}

	return in.dialect.Insert(row.Table, cols, in.ignore), args, nil
}

// Insert writes row through exec. It reports false when the row was skipped
// as a duplicate.
func (in *Inserter) Insert(ctx context.Context, exec Execer, row types.Row) (bool, error) {
	query, args, err := in.Statement(row)
	if err != nil {
		return false, err
	}

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return false, types.Wrap(types.QueryServiceError, "insert",
			&RowError{Table: row.Table, PK: row.PK, Err: err})
	}

	if !in.ignore {
		return true, nil
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return true, nil
	}
	return affected > 0, nil
}

// RowError names the row an insert failed on.
type RowError struct {
	Table string
	PK    map[string]interface{}
	Err   error
}

func (e *RowError) Error() string {
	return "insert into " + e.Table + " " + types.Equal(e.PK).String() + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error {
	return e.Err
}
