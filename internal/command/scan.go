package command

import (
	"database/sql"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

// scanRows is a thin wrapper kept for call-site symmetry with the rest of
// the executor; the real work is engine.ScanRows so both the adapter's
// own callers and the executor share one scanning code path.
func scanRows(rows *sql.Rows, _ []string) ([]domain.Row, error) {
	return engine.ScanRows(rows)
}
