package verifier

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

// ============================================================================
// Test Helpers
// ============================================================================

func destMetadata() types.Metadata {
	return types.Metadata{
		"distributors": {Name: "distributors", Columns: []string{"id", "name"}, PrimaryKey: []string{"id"}},
		"movies":       {Name: "movies", Columns: []string{"id", "distributor", "name"}, PrimaryKey: []string{"id"}},
	}
}

func movie(id int64, distributor int64, name string) types.Row {
	return types.NewRow("movies", []string{"id"}, map[string]interface{}{
		"id": id, "distributor": distributor, "name": name,
	})
}

func distributor(id int64, name string) types.Row {
	return types.NewRow("distributors", []string{"id"}, map[string]interface{}{"id": id, "name": name})
}

func newMockVerifier(t *testing.T, method VerificationMethod) (*Verifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	v, err := NewVerifier(db, sqlutil.SQLite, destMetadata(), method, logger.NewNop())
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return v, mock
}

const (
	presenceMovies       = `SELECT 1 FROM "movies" WHERE "id" = ?`
	presenceDistributors = `SELECT 1 FROM "distributors" WHERE "id" = ?`
	valuesMovies         = `SELECT "id", "distributor", "name" FROM "movies" WHERE "id" = ?`
)

// ============================================================================
// NewVerifier Tests
// ============================================================================

func TestNewVerifier_NilDatabase(t *testing.T) {
	_, err := NewVerifier(nil, sqlutil.SQLite, destMetadata(), MethodCount, nil)
	if err == nil {
		t.Fatal("Expected error for nil destination")
	}
}

func TestNewVerifier_DefaultsToNone(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	v, err := NewVerifier(db, sqlutil.SQLite, destMetadata(), "", nil)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	if v.Method() != MethodNone {
		t.Errorf("Method() = %q, want %q", v.Method(), MethodNone)
	}
}

func TestNewVerifier_UnsupportedMethod(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	_, err = NewVerifier(db, sqlutil.SQLite, destMetadata(), "md5", nil)
	if !types.IsKind(err, types.ConfigurationError) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

// ============================================================================
// Verify Tests
// ============================================================================

func TestVerify_NoneIssuesNoQueries(t *testing.T) {
	v, mock := newMockVerifier(t, MethodNone)

	stats, err := v.Verify(context.Background(), []types.Row{movie(1, 1, "A")})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if stats.Method != MethodNone || stats.TablesVerified != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestVerify_CountPass(t *testing.T) {
	v, mock := newMockVerifier(t, MethodCount)

	mock.ExpectQuery(regexp.QuoteMeta(presenceDistributors)).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(presenceMovies)).WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(presenceMovies)).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	rows := []types.Row{distributor(3, "cat videos"), movie(7, 3, "A Cute Kitten"), movie(6, 3, "A Startled Cat")}
	stats, err := v.Verify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if stats.TablesVerified != 2 || stats.TablesPassed != 2 || stats.TablesFailed != 0 {
		t.Errorf("Unexpected table stats: %+v", stats)
	}
	if stats.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", stats.TotalRows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestVerify_CountMismatch(t *testing.T) {
	v, mock := newMockVerifier(t, MethodCount)

	mock.ExpectQuery(regexp.QuoteMeta(presenceMovies)).WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(presenceMovies)).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	stats, err := v.Verify(context.Background(), []types.Row{movie(6, 3, "A Startled Cat"), movie(7, 3, "A Cute Kitten")})
	if err == nil {
		t.Fatal("Expected mismatch error")
	}
	if !strings.Contains(err.Error(), "count mismatch: source=2, dest=1") {
		t.Errorf("Unexpected error: %v", err)
	}
	if stats.TablesFailed != 1 {
		t.Errorf("TablesFailed = %d, want 1", stats.TablesFailed)
	}
}

func TestVerify_SHA256Pass(t *testing.T) {
	v, mock := newMockVerifier(t, MethodSHA256)

	// drivers may hand text back as bytes
	mock.ExpectQuery(regexp.QuoteMeta(valuesMovies)).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "distributor", "name"}).AddRow(int64(7), int64(3), []byte("A Cute Kitten")))

	stats, err := v.Verify(context.Background(), []types.Row{movie(7, 3, "A Cute Kitten")})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if stats.TablesPassed != 1 {
		t.Errorf("TablesPassed = %d, want 1", stats.TablesPassed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestVerify_SHA256Mismatch(t *testing.T) {
	v, mock := newMockVerifier(t, MethodSHA256)

	mock.ExpectQuery(regexp.QuoteMeta(valuesMovies)).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "distributor", "name"}).AddRow(int64(7), int64(3), "A Grumpy Kitten"))

	_, err := v.Verify(context.Background(), []types.Row{movie(7, 3, "A Cute Kitten")})
	if err == nil {
		t.Fatal("Expected mismatch error")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestVerify_QueryError(t *testing.T) {
	v, mock := newMockVerifier(t, MethodCount)

	mock.ExpectQuery(regexp.QuoteMeta(presenceMovies)).WithArgs(int64(7)).
		WillReturnError(errors.New("connection reset"))

	_, err := v.Verify(context.Background(), []types.Row{movie(7, 3, "A Cute Kitten")})
	if !types.IsKind(err, types.QueryServiceError) {
		t.Fatalf("Expected query error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestVerify_UnknownTable(t *testing.T) {
	v, _ := newMockVerifier(t, MethodCount)

	row := types.NewRow("reviews", []string{"id"}, map[string]interface{}{"id": int64(1)})
	_, err := v.Verify(context.Background(), []types.Row{row})
	if !types.IsKind(err, types.SchemaError) {
		t.Fatalf("Expected schema error, got %v", err)
	}
}

func TestVerify_NullKeyColumn(t *testing.T) {
	v, mock := newMockVerifier(t, MethodCount)

	row := types.NewRow("distributors", nil, map[string]interface{}{"id": int64(1), "name": nil})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "distributors" WHERE "id" = ? AND "name" IS NULL`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	if _, err := v.Verify(context.Background(), []types.Row{row}); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestVerify_ContextCancelled(t *testing.T) {
	v, _ := newMockVerifier(t, MethodCount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, []types.Row{movie(7, 3, "A Cute Kitten")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

// ============================================================================
// serializeRow Tests
// ============================================================================

func TestSerializeRow(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := serializeRow(
		[]string{"id", "name", "score", "ok", "at", "note"},
		[]interface{}{int32(1), []byte("x,y"), 1.5, true, ts, nil},
	)
	want := "id=1\x00name=x,y\x00score=1.500000\x00ok=true\x00at=2024-01-02T03:04:05Z\x00note=NULL"
	if got != want {
		t.Errorf("serializeRow() = %q, want %q", got, want)
	}
}

func TestSerializeRow_TypesAgree(t *testing.T) {
	a := serializeRow([]string{"id"}, []interface{}{int64(7)})
	b := serializeRow([]string{"id"}, []interface{}{7})
	if a != b {
		t.Errorf("int and int64 serialize differently: %q vs %q", a, b)
	}
}
