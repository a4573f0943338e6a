// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"sort"
	"strconv"
	"strings"
)

// Row is one record read from a table.
type Row struct {
	Table string                 `json:"table"`
	PK    map[string]interface{} `json:"pk"`
	Data  map[string]interface{} `json:"data"`
}

// NewRow builds a Row, deriving the primary-key map from data.
// When pkColumns is empty every column takes part in the identity.
func NewRow(table string, pkColumns []string, data map[string]interface{}) Row {
	if len(pkColumns) == 0 {
		pkColumns = make([]string, 0, len(data))
		for col := range data {
			pkColumns = append(pkColumns, col)
		}
	}
	pk := make(map[string]interface{}, len(pkColumns))
	for _, col := range pkColumns {
		pk[col] = data[col]
	}
	return Row{Table: table, PK: pk, Data: data}
}

// Identity returns a canonical key for the row's table and primary key.
func (r Row) Identity() string {
	cols := make([]string, 0, len(r.PK))
	for col := range r.PK {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	sb.WriteString(strconv.Quote(r.Table))
	for _, col := range cols {
		sb.WriteByte('|')
		sb.WriteString(strconv.Quote(col))
		sb.WriteByte('=')
		sb.WriteString(CanonicalValue(r.PK[col]))
	}
	return sb.String()
}

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r.Data))
	for col := range r.Data {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
