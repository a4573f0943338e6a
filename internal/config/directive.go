package config

import (
	"fmt"
	"strings"
)

// Directive is a manual graph override: the child column refers to the
// parent column. Used for both link and unlink lists.
type Directive struct {
	ChildTable   string
	ChildColumn  string
	ParentTable  string
	ParentColumn string
}

func (d Directive) String() string {
	return fmt.Sprintf("%s:%s = %s:%s", d.ChildTable, d.ChildColumn, d.ParentTable, d.ParentColumn)
}

// ParseDirectives parses one directive per line in the form
// "child_table:child_column = parent_table:parent_column". Blank lines are
// ignored. Malformed lines are reported to warn and skipped.
func ParseDirectives(value string, warn func(line string)) []Directive {
	var result []Directive
	for _, raw := range strings.Split(value, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		d, ok := parseDirective(line)
		if !ok {
			if warn != nil {
				warn(line)
			}
			continue
		}
		result = append(result, d)
	}
	return result
}

func parseDirective(line string) (Directive, bool) {
	if strings.Count(line, "=") != 1 || strings.Count(line, ":") != 2 {
		return Directive{}, false
	}

	left, right, _ := strings.Cut(line, "=")
	childTable, childColumn, ok := splitRef(left)
	if !ok {
		return Directive{}, false
	}
	parentTable, parentColumn, ok := splitRef(right)
	if !ok {
		return Directive{}, false
	}

	return Directive{
		ChildTable:   childTable,
		ChildColumn:  childColumn,
		ParentTable:  parentTable,
		ParentColumn: parentColumn,
	}, true
}

func splitRef(ref string) (table, column string, ok bool) {
	table, column, found := strings.Cut(strings.TrimSpace(ref), ":")
	table = strings.TrimSpace(table)
	column = strings.TrimSpace(column)
	if !found || table == "" || column == "" {
		return "", "", false
	}
	return table, column, true
}

// Links parses the database's link directives.
func (d *DatabaseConfig) Links(warn func(line string)) []Directive {
	return ParseDirectives(d.Link, warn)
}

// Unlinks parses the database's unlink directives.
func (d *DatabaseConfig) Unlinks(warn func(line string)) []Directive {
	return ParseDirectives(d.Unlink, warn)
}
