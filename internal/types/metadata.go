package types

import "sort"

// ForeignKey is a declared constraint from Columns in the owning table to
// ReferencedColumns in ReferencedTable. Composite keys list columns pairwise.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// TableMeta is the reflected structure of one table.
type TableMeta struct {
	Name        string
	Columns     []string
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// HasColumn reports whether the table declares column.
func (t *TableMeta) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Metadata maps table names to their reflected structure.
type Metadata map[string]*TableMeta

// TableNames returns all table names in sorted order.
func (m Metadata) TableNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the named table or nil.
func (m Metadata) Table(name string) *TableMeta {
	return m[name]
}
