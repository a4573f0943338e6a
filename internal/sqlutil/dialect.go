package sqlutil

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the syntax differences between supported databases.
type Dialect string

// Supported dialects. The names match the DSN scheme families.
const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect returns the dialect with the given name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", name)
}

func (d Dialect) String() string {
	return string(d)
}

// Quote quotes a table or column name.
func (d Dialect) Quote(name string) string {
	if d == MySQL {
		return QuoteIdentifier(name)
	}
	return QuoteANSI(name)
}

// QuoteAll quotes every name and joins them with ", ".
func (d Dialect) QuoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// Placeholder returns the bind parameter marker for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders returns count comma-separated markers starting at argument start.
func (d Dialect) Placeholders(start, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(start + i)
	}
	return strings.Join(marks, ", ")
}

// Insert builds an INSERT statement for table and columns. With ignore set,
// rows that collide with an existing key are skipped instead of failing.
func (d Dialect) Insert(table string, columns []string, ignore bool) string {
	verb := "INSERT INTO"
	suffix := ""
	if ignore {
		switch d {
		case MySQL:
			verb = "INSERT IGNORE INTO"
		case SQLite:
			verb = "INSERT OR IGNORE INTO"
		case Postgres:
			suffix = " ON CONFLICT DO NOTHING"
		}
	}

	return fmt.Sprintf("%s %s (%s) VALUES (%s)%s",
		verb, d.Quote(table), d.QuoteAll(columns), d.Placeholders(1, len(columns)), suffix)
}
