// Package sqlutil provides SQL dialect helpers for dcp.
package sqlutil

import (
	"strings"
)

// QuoteIdentifier quotes a MySQL identifier (table name, column name) with backticks.
// It escapes any existing backticks by doubling them.
// Example: "my_table" -> "`my_table`"
// Example: "my`table" -> "`my“table`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteANSI quotes an identifier with double quotes as PostgreSQL and SQLite expect.
// Embedded double quotes are doubled.
func QuoteANSI(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
