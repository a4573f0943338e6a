package copier

import (
	"fmt"

	"github.com/dbsmedya/dcp/internal/graph"
	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/types"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check   string
	Message string
	Tables  []string
}

func (e *PreflightError) Error() string {
	if len(e.Tables) > 0 {
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// Preflight checks that the destination can receive rows of every listed
// source table. A missing table fails the check; missing columns only warn,
// since the Inserter drops them.
func Preflight(g *graph.Graph, tables []string, dest types.Metadata, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	log.Debugf("Running preflight checks for %d tables", len(tables))

	var missing []string
	for _, table := range tables {
		target := dest.Table(table)
		if target == nil {
			missing = append(missing, table)
			continue
		}

		source := g.Table(table)
		if source == nil {
			continue
		}
		var absent []string
		for _, col := range source.Columns {
			if !target.HasColumn(col) {
				absent = append(absent, col)
			}
		}
		if len(absent) > 0 {
			log.Warnw("destination table lacks source columns",
				"table", table,
				"columns", absent,
			)
		}
	}

	if len(missing) > 0 {
		return types.Wrap(types.SchemaError, "preflight", &PreflightError{
			Check:   "table existence",
			Message: "tables missing in destination",
			Tables:  missing,
		})
	}

	log.Debug("All preflight checks passed")
	return nil
}
