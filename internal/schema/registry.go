// Package schema reflects table structure (columns, primary keys and
// foreign keys) from a live database.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/dbsmedya/dcp/internal/sqlutil"
	"github.com/dbsmedya/dcp/internal/types"
)

// Reflector reads the metadata of every base table visible to the connection.
type Reflector interface {
	Reflect(ctx context.Context, db *sql.DB) (types.Metadata, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[sqlutil.Dialect]func() Reflector)
)

// Register adds a reflector factory for a dialect.
// Called by reflector implementations in their init() functions.
func Register(dialect sqlutil.Dialect, factory func() Reflector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[dialect] = factory
}

// Get retrieves a reflector factory by dialect.
func Get(dialect sqlutil.Dialect) (func() Reflector, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[dialect]
	return f, ok
}

// For returns a reflector for the dialect.
func For(dialect sqlutil.Dialect) (Reflector, error) {
	factory, ok := Get(dialect)
	if !ok {
		return nil, &UnknownDialectError{
			Dialect:   dialect,
			Available: ListReflectors(),
		}
	}
	return factory(), nil
}

// ListReflectors returns all registered dialect names (sorted).
func ListReflectors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for d := range registry {
		names = append(names, d.String())
	}
	sort.Strings(names)
	return names
}

// UnknownDialectError is returned when no reflector is registered for a dialect.
type UnknownDialectError struct {
	Dialect   sqlutil.Dialect
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("no schema reflector for dialect %q (available: %v)", e.Dialect, e.Available)
}

// Reflect is a convenience that picks the reflector for dialect and runs it.
// Failures are classified as query errors.
func Reflect(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect) (types.Metadata, error) {
	r, err := For(dialect)
	if err != nil {
		return nil, types.Wrap(types.ConfigurationError, "reflect", err)
	}
	meta, err := r.Reflect(ctx, db)
	if err != nil {
		return nil, types.Wrap(types.QueryServiceError, "reflect", err)
	}
	return meta, nil
}
