package schema

import (
	"github.com/dbsmedya/dcp/internal/types"
)

// collector assembles metadata from the row-per-column result sets that
// catalog queries return.
type collector struct {
	meta types.Metadata
}

func newCollector() *collector {
	return &collector{meta: types.Metadata{}}
}

func (c *collector) table(name string) *types.TableMeta {
	t, ok := c.meta[name]
	if !ok {
		t = &types.TableMeta{Name: name}
		c.meta[name] = t
	}
	return t
}

func (c *collector) addColumn(table, column string) {
	t := c.table(table)
	t.Columns = append(t.Columns, column)
}

// addPrimaryKey appends a key column. Tables unknown to the column pass
// (views, other schemas) are ignored.
func (c *collector) addPrimaryKey(table, column string) {
	if t, ok := c.meta[table]; ok {
		t.PrimaryKey = append(t.PrimaryKey, column)
	}
}

// addForeignKey appends one column pair to the named constraint. Rows of the
// same constraint must arrive consecutively and in key order.
func (c *collector) addForeignKey(table, constraint, column, refTable, refColumn string) {
	t, ok := c.meta[table]
	if !ok {
		return
	}
	n := len(t.ForeignKeys)
	if n == 0 || t.ForeignKeys[n-1].Name != constraint || t.ForeignKeys[n-1].ReferencedTable != refTable {
		t.ForeignKeys = append(t.ForeignKeys, types.ForeignKey{Name: constraint, ReferencedTable: refTable})
		n++
	}
	fk := &t.ForeignKeys[n-1]
	fk.Columns = append(fk.Columns, column)
	fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
}
