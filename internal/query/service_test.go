package query

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

func testMetadata() types.Metadata {
	return types.Metadata{
		"movies": {
			Name:       "movies",
			Columns:    []string{"id", "distributor", "name"},
			PrimaryKey: []string{"id"},
		},
		"log": {
			Name:    "log",
			Columns: []string{"at", "message"},
		},
	}
}

func collect(t *testing.T, seq func(func(types.Row, error) bool)) ([]types.Row, error) {
	t.Helper()
	var rows []types.Row
	for row, err := range seq {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func TestBuildSelect(t *testing.T) {
	meta := testMetadata()["movies"]

	tests := []struct {
		name     string
		dialect  sqlutil.Dialect
		filter   types.Filter
		expected string
		args     []interface{}
	}{
		{
			name:     "no filter",
			dialect:  sqlutil.MySQL,
			filter:   types.All(),
			expected: "SELECT `id`, `distributor`, `name` FROM `movies`",
		},
		{
			name:     "equality sorted",
			dialect:  sqlutil.MySQL,
			filter:   types.Equal(map[string]interface{}{"name": "Kitten", "distributor": 3}),
			expected: "SELECT `id`, `distributor`, `name` FROM `movies` WHERE `distributor` = ? AND `name` = ?",
			args:     []interface{}{3, "Kitten"},
		},
		{
			name:     "equality postgres placeholders",
			dialect:  sqlutil.Postgres,
			filter:   types.Equal(map[string]interface{}{"name": "Kitten", "id": 7}),
			expected: `SELECT "id", "distributor", "name" FROM "movies" WHERE "id" = $1 AND "name" = $2`,
			args:     []interface{}{7, "Kitten"},
		},
		{
			name:     "null becomes IS NULL",
			dialect:  sqlutil.SQLite,
			filter:   types.Equal(map[string]interface{}{"distributor": nil, "id": 1}),
			expected: `SELECT "id", "distributor", "name" FROM "movies" WHERE "distributor" IS NULL AND "id" = ?`,
			args:     []interface{}{1},
		},
		{
			name:     "raw expression",
			dialect:  sqlutil.MySQL,
			filter:   types.Expr("id > 5"),
			expected: "SELECT `id`, `distributor`, `name` FROM `movies` WHERE id > 5",
		},
		{
			name:     "expression list",
			dialect:  sqlutil.MySQL,
			filter:   types.Exprs("id > 5", "name LIKE 'C%' OR name IS NULL"),
			expected: "SELECT `id`, `distributor`, `name` FROM `movies` WHERE (id > 5) AND (name LIKE 'C%' OR name IS NULL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(nil, tt.dialect, testMetadata(), nil)
			query, args, err := s.BuildSelect(meta, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, query)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildSelect_UnknownColumn(t *testing.T) {
	s := NewService(nil, sqlutil.MySQL, testMetadata(), nil)
	_, _, err := s.BuildSelect(testMetadata()["movies"], types.Equal(map[string]interface{}{"nope": 1}))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.SchemaError))
}

func TestQuery_ReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `distributor`, `name` FROM `movies` WHERE `distributor` = ?")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "distributor", "name"}).
			AddRow(int64(6), int64(3), []byte("Cute Kitten")).
			AddRow(int64(7), int64(3), "Cute Kitten 2"))

	s := NewService(db, sqlutil.MySQL, testMetadata(), nil)
	rows, err := collect(t, s.Query(context.Background(), "movies", types.Equal(map[string]interface{}{"distributor": 3})))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, rows, 2)
	assert.Equal(t, "movies", rows[0].Table)
	assert.Equal(t, map[string]interface{}{"id": int64(6)}, rows[0].PK)
	assert.Equal(t, "Cute Kitten", rows[0].Data["name"])
	assert.Equal(t, int64(7), rows[1].PK["id"])
	assert.Equal(t, 1, s.Issued())
}

func TestQuery_NoPrimaryKeyUsesAllColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT `at`, `message` FROM `log`").
		WillReturnRows(sqlmock.NewRows([]string{"at", "message"}).AddRow("noon", "hi"))

	s := NewService(db, sqlutil.MySQL, testMetadata(), nil)
	rows, err := collect(t, s.Query(context.Background(), "log", types.All()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]interface{}{"at": "noon", "message": "hi"}, rows[0].PK)
}

func TestQuery_UnknownTable(t *testing.T) {
	s := NewService(nil, sqlutil.MySQL, testMetadata(), nil)
	_, err := collect(t, s.Query(context.Background(), "nope", types.All()))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.SchemaError))
	assert.Equal(t, 0, s.Issued())
}

func TestQuery_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	s := NewService(db, sqlutil.MySQL, testMetadata(), nil)
	_, err = collect(t, s.Query(context.Background(), "movies", types.All()))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.QueryServiceError))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestQuery_StopEarlyReleasesCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "distributor", "name"}).
			AddRow(int64(1), nil, "a").
			AddRow(int64(2), nil, "b")).
		RowsWillBeClosed()

	s := NewService(db, sqlutil.MySQL, testMetadata(), nil)
	for row, err := range s.Query(context.Background(), "movies", types.All()) {
		require.NoError(t, err)
		assert.Nil(t, row.Data["distributor"])
		break
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_Lazy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewService(db, sqlutil.MySQL, testMetadata(), nil)
	_ = s.Query(context.Background(), "movies", types.All())

	assert.Equal(t, 0, s.Issued())
	assert.NoError(t, mock.ExpectationsWereMet())
}
