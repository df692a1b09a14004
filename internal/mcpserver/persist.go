package mcpserver

import (
	"context"

	"github.com/cleanslate/core/internal/diffengine"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/snapshot"
)

// PersistAll implements persist_now ("explicit persist
// action"): every resident live table is re-exported to a fresh snapshot
// and its changelog cleared, since every cheap edit in this design is
// already applied to the live table at Execute time — the changelog is a
// crash-recovery log, not a staging area, so compaction is "snapshot now,
// the log up to here is redundant."
func PersistAll(ctx context.Context, d *ToolDeps) error {
	tables, err := d.Eng.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		source, err := diffengine.ReadLiveSource(ctx, d.Eng, table)
		if err != nil {
			return err
		}
		info := &domain.TableInfo{Name: table, Columns: source.Columns}
		snapID := snapshot.NewSnapshotID()
		if _, err := d.SnapStore.Export(snapID, info, source.Rows, domain.OrderByCSID, d.Cfg.Export.Compression); err != nil {
			return err
		}
		if err := d.Changelog.Clear(table); err != nil {
			return err
		}
	}
	return nil
}
