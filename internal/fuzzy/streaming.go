package fuzzy

import (
	"context"
	"fmt"

	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/snapshot"
)

// CollectFromLiveTable reads matchColumn plus _cs_id, in _cs_id order,
// from a live table — used when the matcher runs against the currently
// resident table.
func CollectFromLiveTable(ctx context.Context, eng *engine.Engine, table, matchColumn string) ([]Row, error) {
	q := fmt.Sprintf(`SELECT %q, %q FROM %q ORDER BY %q ASC`, domain.CSIDColumn, matchColumn, table, domain.CSIDColumn)
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(scanned))
	for _, r := range scanned {
		out = append(out, Row{CSID: toInt64(r[domain.CSIDColumn]), Value: fmt.Sprintf("%v", r[matchColumn])})
	}
	return out, nil
}

// CollectFromSnapshot streams a frozen table's shards through the Chunk
// Manager ("stream rows ... from the active table or
// Chunk-Manager-backed snapshot") rather than thawing the whole table back
// into the engine. Only the match column's value and _cs_id are retained
// per row, so peak memory is the per-shard row budget the Chunk Manager
// already enforces, not the table's full column set.
func CollectFromSnapshot(mgr *chunk.Manager, store *snapshot.Store, snapshotID, matchColumn string, columns []domain.ColumnInfo) ([]Row, error) {
	manifest, err := store.ReadManifest(snapshotID)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = mgr.MapChunks(manifest, columns, func(_ domain.ShardInfo, rows []domain.Row) error {
		for _, r := range rows {
			out = append(out, Row{CSID: toInt64(r[domain.CSIDColumn]), Value: fmt.Sprintf("%v", r[matchColumn])})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
