// Package query reads rows from a SQL database for the closure walker.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

// Service issues SELECTs against one database. Each result set is read
// completely and its cursor closed before the first row is handed out, so
// a consumer may issue further queries while ranging over the rows.
type Service struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	meta    types.Metadata
	log     *logger.Logger
	issued  int
}

// NewService creates a query service over db using the reflected metadata.
func NewService(db *sql.DB, dialect sqlutil.Dialect, meta types.Metadata, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{db: db, dialect: dialect, meta: meta, log: log}
}

// Issued returns the number of SELECT statements executed so far.
func (s *Service) Issued() int {
	return s.issued
}

// Query returns the rows of table matching filter. The statement runs when
// iteration starts. Failures are yielded once as a classified error.
func (s *Service) Query(ctx context.Context, table string, filter types.Filter) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		rows, err := s.fetch(ctx, table, filter)
		if err != nil {
			yield(types.Row{}, err)
			return
		}
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (s *Service) fetch(ctx context.Context, table string, filter types.Filter) ([]types.Row, error) {
	meta := s.meta.Table(table)
	if meta == nil {
		return nil, types.Errorf(types.SchemaError, "query", "unknown table %q", table)
	}

	query, args, err := s.BuildSelect(meta, filter)
	if err != nil {
		return nil, err
	}

	s.issued++
	s.log.WithTable(table).Debugw("query", "filter", filter.String())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Wrap(types.QueryServiceError, "query",
			fmt.Errorf("failed to query %s: %w", table, err))
	}
	defer rows.Close()

	result, err := ScanRows(rows, table, meta.PrimaryKey)
	if err != nil {
		return nil, types.Wrap(types.QueryServiceError, "query",
			fmt.Errorf("failed to read %s: %w", table, err))
	}
	return result, nil
}

// BuildSelect renders the SELECT statement for a table and filter.
// Equality columns are bound in sorted order; a nil value becomes IS NULL.
// Raw predicates are inserted verbatim.
func (s *Service) BuildSelect(meta *types.TableMeta, filter types.Filter) (string, []interface{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", s.dialect.QuoteAll(meta.Columns), s.dialect.Quote(meta.Name))

	var conditions []string
	var args []interface{}

	switch filter.Kind {
	case types.NoFilter:
	case types.EqualityFilter:
		for _, col := range filter.Columns() {
			if !meta.HasColumn(col) {
				return "", nil, types.Errorf(types.SchemaError, "query",
					"table %q has no column %q", meta.Name, col)
			}
			value := filter.Equals[col]
			if value == nil {
				conditions = append(conditions, s.dialect.Quote(col)+" IS NULL")
				continue
			}
			args = append(args, value)
			conditions = append(conditions, s.dialect.Quote(col)+" = "+s.dialect.Placeholder(len(args)))
		}
	case types.ExpressionFilter:
		conditions = append(conditions, filter.Expression)
	case types.ExpressionListFilter:
		for _, expr := range filter.Expressions {
			conditions = append(conditions, "("+expr+")")
		}
	default:
		return "", nil, fmt.Errorf("unsupported filter kind %s", filter.Kind)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args, nil
}

// ScanRows reads every row of rows into Rows of table, normalizing values.
func ScanRows(rows *sql.Rows, table string, pkColumns []string) ([]types.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []types.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		data := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			data[col] = types.NormalizeValue(values[i])
		}
		result = append(result, types.NewRow(table, pkColumns, data))
	}
	return result, rows.Err()
}
