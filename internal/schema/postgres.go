package schema

import (
	"context"
	"database/sql"

	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

func init() {
	Register(sqlutil.Postgres, func() Reflector { return &PostgresReflector{} })
}

// PostgresReflector reads information_schema for current_schema().
type PostgresReflector struct{}

const postgresColumnsQuery = `
		SELECT c.table_name, c.column_name
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
		WHERE c.table_schema = current_schema()
		AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`

const postgresPrimaryKeyQuery = `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
		WHERE tc.table_schema = current_schema()
		AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.table_name, kcu.ordinal_position`

// Composite keys are paired through position_in_unique_constraint.
const postgresForeignKeyQuery = `
		SELECT
			kcu.table_name,
			kcu.constraint_name,
			kcu.column_name,
			ref.table_name,
			ref.column_name
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = rc.constraint_schema
			AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage ref
			ON ref.constraint_schema = rc.unique_constraint_schema
			AND ref.constraint_name = rc.unique_constraint_name
			AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema = current_schema()
		ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

// Reflect implements Reflector.
func (r *PostgresReflector) Reflect(ctx context.Context, db *sql.DB) (types.Metadata, error) {
	return reflectCatalog(ctx, db, postgresColumnsQuery, postgresPrimaryKeyQuery, postgresForeignKeyQuery)
}
