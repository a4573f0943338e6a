// Package verifier checks that copied rows arrived intact in the destination.
package verifier

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

// VerificationMethod defines how to verify data integrity.
type VerificationMethod string

const (
	// MethodNone skips verification entirely
	MethodNone VerificationMethod = "none"
	// MethodCount checks that every copied key exists in the destination
	MethodCount VerificationMethod = "count"
	// MethodSHA256 also compares a hash of the copied column values
	MethodSHA256 VerificationMethod = "sha256"
)

// VerifyResult holds verification results for a single table.
type VerifyResult struct {
	Table        string
	Method       VerificationMethod
	SourceCount  int64
	DestCount    int64
	SourceHash   string
	DestHash     string
	Match        bool
	ErrorMessage string
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	TablesVerified int
	TablesPassed   int
	TablesFailed   int
	TotalRows      int64
	Method         VerificationMethod
}

// Querier runs destination lookups. *sql.DB and *sql.Conn both satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Verifier looks copied rows up in the destination by primary key.
type Verifier struct {
	destination Querier
	dialect     sqlutil.Dialect
	meta        types.Metadata
	method      VerificationMethod
	logger      *logger.Logger
}

// NewVerifier creates a new verifier. meta describes the destination.
func NewVerifier(destination Querier, dialect sqlutil.Dialect, meta types.Metadata, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if destination == nil {
		return nil, fmt.Errorf("destination database is nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	switch method {
	case "":
		method = MethodNone
	case MethodNone, MethodCount, MethodSHA256:
	default:
		return nil, types.Errorf(types.ConfigurationError, "verify", "unsupported verification method: %s", method)
	}

	return &Verifier{
		destination: destination,
		dialect:     dialect,
		meta:        meta,
		method:      method,
		logger:      log,
	}, nil
}

// Method returns the configured verification method.
func (v *Verifier) Method() VerificationMethod {
	return v.method
}

// Verify checks rows against the destination, table by table in the order
// the tables first appear. The first mismatching table ends verification
// with an error.
func (v *Verifier) Verify(ctx context.Context, rows []types.Row) (*VerifyStats, error) {
	if v.method == MethodNone {
		v.logger.Debug("Verification skipped (method=none)")
		return &VerifyStats{Method: MethodNone}, nil
	}

	stats := &VerifyStats{
		Method: v.method,
	}

	byTable := orderedmap.NewOrderedMap[string, []types.Row]()
	for _, row := range rows {
		group, _ := byTable.Get(row.Table)
		byTable.Set(row.Table, append(group, row))
	}

	v.logger.Infof("Starting verification (method=%s) for %d tables", v.method, byTable.Len())

	for el := byTable.Front(); el != nil; el = el.Next() {
		table, group := el.Key, el.Value

		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}

		result, err := v.verifyTable(ctx, table, group)
		if err != nil {
			return stats, types.Wrap(types.QueryServiceError, "verify", fmt.Errorf("verification failed for table %s: %w", table, err))
		}

		stats.TablesVerified++
		stats.TotalRows += result.SourceCount

		if !result.Match {
			stats.TablesFailed++
			v.logger.Errorf("Verification FAILED for table %q: %s", table, result.ErrorMessage)
			return stats, fmt.Errorf("verification mismatch in table %s: %s", table, result.ErrorMessage)
		}
		stats.TablesPassed++
		v.logger.Debugf("Verification PASSED for table %q (%d rows)", table, result.SourceCount)
	}

	v.logger.Infof("Verification complete: %d tables verified, %d passed, %d total rows",
		stats.TablesVerified, stats.TablesPassed, stats.TotalRows)

	return stats, nil
}

// verifyTable fetches each row back by key. With MethodCount only presence
// is compared; with MethodSHA256 the values of the columns both sides share
// are hashed too.
func (v *Verifier) verifyTable(ctx context.Context, table string, rows []types.Row) (*VerifyResult, error) {
	meta := v.meta.Table(table)
	if meta == nil {
		return nil, types.Errorf(types.SchemaError, "verify", "table %q does not exist in destination", table)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Identity() < rows[j].Identity() })

	result := &VerifyResult{
		Table:       table,
		Method:      v.method,
		SourceCount: int64(len(rows)),
	}
	sourceHash := sha256.New()
	destHash := sha256.New()

	for _, row := range rows {
		cols := sharedColumns(meta, row)
		values, found, err := v.fetch(ctx, table, cols, row.PK)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		result.DestCount++

		if v.method == MethodSHA256 {
			source := make([]interface{}, len(cols))
			for i, col := range cols {
				source[i] = row.Data[col]
			}
			sourceHash.Write([]byte(serializeRow(cols, source)))
			sourceHash.Write([]byte("\n"))
			destHash.Write([]byte(serializeRow(cols, values)))
			destHash.Write([]byte("\n"))
		}
	}

	result.Match = result.SourceCount == result.DestCount
	if !result.Match {
		result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", result.SourceCount, result.DestCount)
		return result, nil
	}

	if v.method == MethodSHA256 {
		result.SourceHash = hex.EncodeToString(sourceHash.Sum(nil))
		result.DestHash = hex.EncodeToString(destHash.Sum(nil))
		result.Match = result.SourceHash == result.DestHash
		if !result.Match {
			result.ErrorMessage = fmt.Sprintf("hash mismatch: source=%s, dest=%s", result.SourceHash[:16], result.DestHash[:16])
		}
	}

	return result, nil
}

// fetch selects cols of the destination row with the given key.
func (v *Verifier) fetch(ctx context.Context, table string, cols []string, pk map[string]interface{}) ([]interface{}, bool, error) {
	keyCols := make([]string, 0, len(pk))
	for col := range pk {
		keyCols = append(keyCols, col)
	}
	sort.Strings(keyCols)

	if len(keyCols) == 0 {
		return nil, false, types.Errorf(types.SchemaError, "verify", "row of %q has no key", table)
	}

	var conds []string
	var args []interface{}
	for _, col := range keyCols {
		if pk[col] == nil {
			conds = append(conds, v.dialect.Quote(col)+" IS NULL")
			continue
		}
		args = append(args, pk[col])
		conds = append(conds, v.dialect.Quote(col)+" = "+v.dialect.Placeholder(len(args)))
	}

	selectList := "1"
	if v.method == MethodSHA256 && len(cols) > 0 {
		selectList = v.dialect.QuoteAll(cols)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		selectList, v.dialect.Quote(table), strings.Join(conds, " AND "))

	rows, err := v.destination.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}

	n := 1
	if selectList != "1" {
		n = len(cols)
	}
	values := make([]interface{}, n)
	valuePtrs := make([]interface{}, n)
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, false, fmt.Errorf("failed to scan row: %w", err)
	}
	return values, true, rows.Err()
}

// sharedColumns lists the destination columns present in row, in the
// destination's declared order.
func sharedColumns(meta *types.TableMeta, row types.Row) []string {
	cols := make([]string, 0, len(meta.Columns))
	for _, col := range meta.Columns {
		if _, ok := row.Data[col]; ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// serializeRow converts a row to a deterministic string representation for hashing.
// Format: col1=val1,col2=val2,...
func serializeRow(columns []string, values []interface{}) string {
	var parts []string

	for i, col := range columns {
		var valStr string

		switch v := types.NormalizeValue(values[i]).(type) {
		case nil:
			valStr = "NULL"
		case int64:
			valStr = fmt.Sprintf("%d", v)
		case float64:
			valStr = fmt.Sprintf("%f", v)
		case bool:
			valStr = fmt.Sprintf("%t", v)
		case string:
			valStr = v
		case time.Time:
			valStr = v.Format(time.RFC3339Nano)
		default:
			valStr = fmt.Sprintf("%v", v)
		}

		parts = append(parts, fmt.Sprintf("%s=%s", col, valStr))
	}

	// Use null byte separator to avoid ambiguity with column values containing commas
	return strings.Join(parts, "\x00")
}
