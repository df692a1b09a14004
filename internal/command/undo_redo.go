package command

import (
	"context"

	"github.com/cleanslate/core/internal/domain"
)

// Undo inverts the command at the timeline's current position and steps
// back.
func (x *Executor) Undo(ctx context.Context, tableID string) (*domain.Command, error) {
	tl := x.timelines.get(tableID)
	if tl == nil || !tl.CanUndo() {
		return nil, domain.NewErrValidation("undo", "nothing to undo")
	}
	cmd := tl.Current()
	x.invert(ctx, cmd)
	tl.CurrentPosition--
	return cmd, nil
}

// invert performs the rollback-style action for a command already
// committed to the timeline (as opposed to rollback() in executor.go,
// which backs out a command that failed mid-apply). The two share
// identical mechanics; invert additionally handles expensive commands by
// restoring their recorded pre-command snapshot.
func (x *Executor) invert(ctx context.Context, cmd *domain.Command) {
	if cmd.Type.ProducesNewTable() {
		// combine:stack/combine:join never mutated their sources; undoing
		// one just deletes the table it produced.
		_ = x.eng.DropTable(ctx, cmd.TableID)
		return
	}
	if cmd.Type.Expensive() {
		if cmd.PreSnapshotID == "" {
			return
		}
		x.restoreSnapshot(ctx, cmd.TableID, cmd.PreSnapshotID)
		return
	}
	x.rollback(ctx, cmd)
}

func (x *Executor) restoreSnapshot(ctx context.Context, tableID, snapshotID string) {
	if x.hot.isHot(snapshotID) {
		_ = x.eng.DropTable(ctx, tableID)
		_, err := x.eng.Exec(ctx, `ALTER TABLE `+quoteIdent(hotTableName(snapshotID))+` RENAME TO `+quoteIdent(tableID))
		if err != nil {
			x.log.Error("command", "hot restore failed: "+err.Error())
		}
		// Re-materialize the hot copy so a second undo/redo across the
		// same snapshot still finds it resident.
		if info, rows, rerr := x.readTable(ctx, tableID); rerr == nil {
			_ = x.eng.CreateTable(ctx, hotTableName(snapshotID), info.Columns)
			_ = x.eng.InsertRowsPreserveIdentity(ctx, hotTableName(snapshotID), info.Columns, rows)
		}
		return
	}
	manifest, err := x.snapStore.ReadManifest(snapshotID)
	if err != nil {
		x.log.Error("command", "cold restore: manifest missing for "+snapshotID)
		return
	}
	cols := columnsFromNames(manifest.Columns)
	var rows []domain.Row
	for _, shard := range manifest.Shards {
		if rerr := x.snapStore.ReadShard(snapshotID, shard, cols, func(r domain.Row) error {
			rows = append(rows, r)
			return nil
		}); rerr != nil {
			x.log.Error("command", "cold restore read failed: "+rerr.Error())
			return
		}
	}
	_ = x.eng.DropTable(ctx, tableID)
	_ = x.eng.CreateTable(ctx, tableID, cols)
	_ = x.eng.InsertRowsPreserveIdentity(ctx, tableID, cols, rows)
	x.promoteHot(snapshotID)
}

func columnsFromNames(names []string) []domain.ColumnInfo {
	cols := make([]domain.ColumnInfo, len(names))
	for i, n := range names {
		cols[i] = domain.ColumnInfo{Name: n, Type: "string", Nullable: true}
	}
	return cols
}

// Redo re-applies the command immediately after the timeline's current
// position and steps forward.
func (x *Executor) Redo(ctx context.Context, tableID string) (*domain.Command, error) {
	tl := x.timelines.get(tableID)
	if tl == nil || !tl.CanRedo() {
		return nil, domain.NewErrValidation("redo", "nothing to redo")
	}
	cmd := tl.Commands[tl.CurrentPosition+1]
	if err := x.apply(ctx, cmd); err != nil {
		return nil, err
	}
	tl.CurrentPosition++
	return cmd, nil
}

// Goto repeats Undo/Redo until the timeline reaches position.
func (x *Executor) Goto(ctx context.Context, tableID string, position int) error {
	tl := x.timelines.get(tableID)
	if tl == nil {
		return domain.NewErrTableNotFound(tableID)
	}
	for tl.CurrentPosition > position {
		if _, err := x.Undo(ctx, tableID); err != nil {
			return err
		}
	}
	for tl.CurrentPosition < position {
		if _, err := x.Redo(ctx, tableID); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotStatus reports "instant" if a command's pre-command snapshot is
// hot, else "cold" (an "Instant"/"~2s" UI hint).
func (x *Executor) SnapshotStatus(tableID string, commandIndex int) string {
	tl := x.timelines.get(tableID)
	if tl == nil || commandIndex < 0 || commandIndex >= len(tl.Commands) {
		return ""
	}
	cmd := tl.Commands[commandIndex]
	if cmd.PreSnapshotID == "" {
		return "instant"
	}
	if x.hot.isHot(cmd.PreSnapshotID) {
		return "instant"
	}
	return "cold"
}
