// Package freeze implements the single-active-table memory policy:
// freeze exports a live table to its on-disk snapshot and drops
// it from the engine; thaw does the reverse. switch_to does both
// atomically so at most one user table is ever resident.
package freeze

import (
	"context"
	"fmt"

	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/snapshot"
)

// Manager owns the freeze/thaw lifecycle for every table in the
// workbench. Each table's frozen image lives at a stable snapshot id
// derived from its table id, re-exported in place whenever a freeze finds
// pending changelog entries or no snapshot yet.
type Manager struct {
	eng       *engine.Engine
	store     *snapshot.Store
	changelog *changelog.Store
	log       *diag.Logger
}

func NewManager(eng *engine.Engine, store *snapshot.Store, cl *changelog.Store, log *diag.Logger) *Manager {
	return &Manager{eng: eng, store: store, changelog: cl, log: log}
}

func frozenSnapshotID(tableID string) string {
	return "frozen_" + snapshot.SanitizeID(tableID)
}

// Freeze persists tableID (if dirty, or if no snapshot exists yet) and
// drops it from the engine. A table with nothing pending and an existing
// snapshot is dropped without re-exporting.
func (m *Manager) Freeze(ctx context.Context, tableID string) error {
	exists, err := m.eng.TableExists(ctx, tableID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	snapID := frozenSnapshotID(tableID)
	dirty, err := m.changelog.Count(tableID)
	if err != nil {
		return err
	}
	_, manifestErr := m.store.ReadManifest(snapID)
	needsExport := dirty > 0 || manifestErr != nil

	if needsExport {
		if err := m.export(ctx, tableID, snapID); err != nil {
			return err
		}
		if err := m.changelog.Clear(tableID); err != nil {
			m.log.Warn("freeze", "changelog clear failed for "+tableID+": "+err.Error())
		}
	}

	if err := m.eng.DropTable(ctx, tableID); err != nil {
		return err
	}
	return m.eng.Checkpoint(ctx)
}

// Thaw imports tableID's frozen snapshot into the engine if it is not
// already resident.
func (m *Manager) Thaw(ctx context.Context, tableID string) error {
	exists, err := m.eng.TableExists(ctx, tableID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	snapID := frozenSnapshotID(tableID)
	manifest, err := m.store.ReadManifest(snapID)
	if err != nil {
		return domain.NewErrMissingSnapshot(snapID)
	}
	cols := columnsFromNames(manifest.Columns)
	if err := m.eng.CreateTable(ctx, tableID, cols); err != nil {
		return err
	}
	for _, shard := range manifest.Shards {
		var rows []domain.Row
		if err := m.store.ReadShard(snapID, shard, cols, func(r domain.Row) error {
			rows = append(rows, r)
			return nil
		}); err != nil {
			return err
		}
		if err := m.eng.InsertRowsPreserveIdentity(ctx, tableID, cols, rows); err != nil {
			return err
		}
	}
	return nil
}

// SwitchTo freezes outgoing (if non-empty and different from incoming)
// then thaws incoming, implementing the single-active-table invariant. If
// the thaw fails, outgoing is thawed back before the error is returned.
func (m *Manager) SwitchTo(ctx context.Context, outgoing, incoming string) error {
	froze := false
	if outgoing != "" && outgoing != incoming {
		if err := m.Freeze(ctx, outgoing); err != nil {
			return err
		}
		froze = true
	}
	if err := m.Thaw(ctx, incoming); err != nil {
		if froze {
			if rerr := m.Thaw(ctx, outgoing); rerr != nil {
				m.log.Warn("freeze", "restoring "+outgoing+" after failed switch: "+rerr.Error())
			}
		}
		return err
	}
	return nil
}

func (m *Manager) export(ctx context.Context, tableID, snapID string) error {
	cols, err := m.eng.DescribeColumns(ctx, tableID)
	if err != nil {
		return err
	}
	info := &domain.TableInfo{Name: tableID, Columns: cols}

	colNames := append([]string{domain.CSIDColumn, domain.OriginIDColumn}, info.ColumnNames()...)
	quoted := make([]string, len(colNames))
	for i, n := range colNames {
		quoted[i] = `"` + n + `"`
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC", joinStrs(quoted), `"`+tableID+`"`, domain.CSIDColumn)
	rows, err := m.eng.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return err
	}

	_, err = m.store.Export(snapID, info, scanned, domain.OrderByCSID, "snappy")
	return err
}

func columnsFromNames(names []string) []domain.ColumnInfo {
	cols := make([]domain.ColumnInfo, len(names))
	for i, n := range names {
		cols[i] = domain.ColumnInfo{Name: n, Type: "string", Nullable: true}
	}
	return cols
}

func joinStrs(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
