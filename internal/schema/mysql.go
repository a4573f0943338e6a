package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

func init() {
	Register(sqlutil.MySQL, func() Reflector { return &MySQLReflector{} })
}

// MySQLReflector reads information_schema for the connection's current database.
type MySQLReflector struct{}

const mysqlColumnsQuery = `
		SELECT c.TABLE_NAME, c.COLUMN_NAME
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
			AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = DATABASE()
		AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

const mysqlPrimaryKeyQuery = `
		SELECT TABLE_NAME, COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE()
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

const mysqlForeignKeyQuery = `
		SELECT
			TABLE_NAME,
			CONSTRAINT_NAME,
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE()
		AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`

// Reflect implements Reflector.
func (r *MySQLReflector) Reflect(ctx context.Context, db *sql.DB) (types.Metadata, error) {
	return reflectCatalog(ctx, db, mysqlColumnsQuery, mysqlPrimaryKeyQuery, mysqlForeignKeyQuery)
}

// reflectCatalog runs the three information_schema style queries shared by
// MySQL and PostgreSQL.
func reflectCatalog(ctx context.Context, db *sql.DB, columnsQuery, pkQuery, fkQuery string) (types.Metadata, error) {
	c := newCollector()

	err := scanRows(ctx, db, columnsQuery, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		c.addColumn(table, column)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	err = scanRows(ctx, db, pkQuery, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		c.addPrimaryKey(table, column)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read primary keys: %w", err)
	}

	err = scanRows(ctx, db, fkQuery, func(rows *sql.Rows) error {
		var table, constraint, column, refTable, refColumn string
		if err := rows.Scan(&table, &constraint, &column, &refTable, &refColumn); err != nil {
			return err
		}
		c.addForeignKey(table, constraint, column, refTable, refColumn)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}

	return c.meta, nil
}

func scanRows(ctx context.Context, db *sql.DB, query string, fn func(*sql.Rows) error, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
