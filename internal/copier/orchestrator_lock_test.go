package copier

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/dcp/internal/config"
	"github.com/dbsmedya/dcp/internal/database"
	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/sqlutil"
)

// lockedOrchestrator returns an initialized orchestrator whose MySQL
// destination pool holds a single connection.
func lockedOrchestrator(t *testing.T) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	cfg := config.DefaultConfig()
	cfg.Copy.Lock = true

	manager := &database.Manager{Destination: &database.Conn{DB: db, Dialect: sqlutil.MySQL}}
	o, err := NewOrchestrator(cfg, "", "prod", manager, logger.NewNop())
	require.NoError(t, err)
	o.destMeta = destMeta()
	o.initialized = true
	return o, mock
}

func TestImport_SingleConnectionPoolUnderLock(t *testing.T) {
	o, mock := lockedOrchestrator(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WithArgs("dcp:copy:prod", 1).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `distributors` (`id`, `name`) VALUES (?, ?)")).
		WithArgs(int64(1), "new videos").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).
		WithArgs("dcp:copy:prod").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line := `{"table":"distributors","pk":{"id":1},"data":{"id":1,"name":"new videos"}}` + "\n"
	stats, err := o.Import(ctx, strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RowsCopied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImport_LockContended(t *testing.T) {
	o, mock := lockedOrchestrator(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(0))

	_, err := o.Import(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dcp:copy:prod")
	assert.NoError(t, mock.ExpectationsWereMet())
}
