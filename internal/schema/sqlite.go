package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

func init() {
	Register(sqlutil.SQLite, func() Reflector { return &SQLiteReflector{} })
}

// SQLiteReflector reads sqlite_master and the table-valued pragma functions.
type SQLiteReflector struct{}

const sqliteTablesQuery = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

const sqliteColumnsQuery = `SELECT name, pk FROM pragma_table_info(?) ORDER BY cid`

const sqliteForeignKeyQuery = `SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`

type keyColumn struct {
	pos  int // 1-based position within the primary key
	name string
}

type sqliteFK struct {
	id        int
	refTable  string
	column    string
	refColumn sql.NullString
}

// Reflect implements Reflector. Each result set is read to the end before
// the next query so a single-connection pool never blocks.
func (r *SQLiteReflector) Reflect(ctx context.Context, db *sql.DB) (types.Metadata, error) {
	var tables []string
	err := scanRows(ctx, db, sqliteTablesQuery, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	c := newCollector()
	fks := make(map[string][]sqliteFK, len(tables))

	for _, table := range tables {
		var pk []keyColumn
		c.table(table)
		err := scanRows(ctx, db, sqliteColumnsQuery, func(rows *sql.Rows) error {
			var name string
			var pos int
			if err := rows.Scan(&name, &pos); err != nil {
				return err
			}
			c.addColumn(table, name)
			if pos > 0 {
				pk = append(pk, keyColumn{pos: pos, name: name})
			}
			return nil
		}, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		ordered := make([]string, len(pk))
		for _, p := range pk {
			if p.pos <= len(ordered) {
				ordered[p.pos-1] = p.name
			}
		}
		for _, name := range ordered {
			if name != "" {
				c.addPrimaryKey(table, name)
			}
		}

		err = scanRows(ctx, db, sqliteForeignKeyQuery, func(rows *sql.Rows) error {
			var fk sqliteFK
			if err := rows.Scan(&fk.id, &fk.refTable, &fk.column, &fk.refColumn); err != nil {
				return err
			}
			fks[table] = append(fks[table], fk)
			return nil
		}, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
		}
	}

	// A foreign key without target columns references the primary key.
	for _, table := range tables {
		implicit := map[int]int{}
		for _, fk := range fks[table] {
			refColumn := fk.refColumn.String
			if !fk.refColumn.Valid || refColumn == "" {
				ref := c.meta[fk.refTable]
				if ref == nil || implicit[fk.id] >= len(ref.PrimaryKey) {
					// unknown target; the graph builder reports it
					refColumn = fk.column
				} else {
					refColumn = ref.PrimaryKey[implicit[fk.id]]
				}
				implicit[fk.id]++
			}
			c.addForeignKey(table, fmt.Sprintf("%s_fk%d", table, fk.id), fk.column, fk.refTable, refColumn)
		}
	}

	return c.meta, nil
}
