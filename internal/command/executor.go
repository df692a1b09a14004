// Package command is the Command Executor, Timeline Engine and Audit
// Projection. It is the single entry point for mutating a
// table: every command is classified cheap or expensive, expensive
// commands get a pre-command snapshot before they run, and any adapter
// error rolls the table back to its pre-command state. The pre-command
// hot-snapshot LRU is grounded on the same container/list pattern as
// internal/chunk, itself grounded on a
// pkg/resource/memory.BufferPool.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cleanslate/core/internal/auditstore"
	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/config"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/snapshot"
)

// Result is the outcome of Execute, matching the
// { success, error?, execution_result?, audit_entry_id } contract.
type Result struct {
	Success      bool
	Error        error
	Command      *domain.Command
	AuditEntryID string
}

// Executor is the process-wide Command Executor.
type Executor struct {
	eng       *engine.Engine
	snapStore *snapshot.Store
	chunkMgr  *chunk.Manager
	changelog *changelog.Store
	audits    *auditstore.Store
	log       *diag.Logger
	cfg       *config.Config

	timelines *timelines
	hot       *hotSnapshots
}

func NewExecutor(eng *engine.Engine, snapStore *snapshot.Store, chunkMgr *chunk.Manager, cl *changelog.Store, audits *auditstore.Store, log *diag.Logger, cfg *config.Config) *Executor {
	return &Executor{
		eng:       eng,
		snapStore: snapStore,
		chunkMgr:  chunkMgr,
		changelog: cl,
		audits:    audits,
		log:       log,
		cfg:       cfg,
		timelines: newTimelines(),
		hot:       newHotSnapshots(cfg.Timeline.HotSnapshotCapacity),
	}
}

// RegisterTable starts a fresh timeline pinned to originalSnapshotID,
// called once at import time.
func (x *Executor) RegisterTable(tableID, originalSnapshotID string) {
	x.timelines.getOrCreate(tableID, originalSnapshotID)
	x.hot.pin(originalSnapshotID)
}

func hotTableName(snapshotID string) string {
	return "__snap_" + snapshot.SanitizeID(snapshotID)
}

// Execute runs one command end to end: classify, pre-snapshot if needed,
// apply, and roll back on failure.
func (x *Executor) Execute(ctx context.Context, cmd *domain.Command) Result {
	cmd.CommandID = uuid.NewString()
	cmd.CreatedAt = time.Now()
	cmd.AuditEntryID = cmd.CommandID

	tl := x.timelines.getOrCreate(cmd.TableID, "")

	if cmd.Type.NeedsPreSnapshot() {
		preID := "pre_" + cmd.CommandID
		if err := x.exportLive(ctx, cmd.TableID, preID); err != nil {
			return Result{Success: false, Error: err, Command: cmd}
		}
		cmd.PreSnapshotID = preID
		x.promoteHot(preID)
	}

	applyErr := x.apply(ctx, cmd)
	if applyErr != nil {
		if cmd.Type.ProducesNewTable() {
			// Nothing was snapshotted and nothing existed before; a failed
			// combine just leaves no result table, there's nothing to roll
			// back to.
			return Result{Success: false, Error: applyErr, Command: cmd}
		}
		x.rollback(ctx, cmd)
		return Result{Success: false, Error: applyErr, Command: cmd}
	}

	if !cmd.Type.Expensive() {
		if err := x.appendChangelog(cmd); err != nil {
			x.log.Error("command", "changelog append failed: "+err.Error())
		}
	}

	tl.Append(cmd)
	return Result{Success: true, Command: cmd, AuditEntryID: cmd.AuditEntryID}
}

func (x *Executor) promoteHot(snapshotID string) {
	evicted, did := x.hot.touch(snapshotID)
	if did {
		_ = x.eng.DropTable(context.Background(), hotTableName(evicted))
	}
}

// exportLive snapshots the current contents of tableID to snapshotID,
// importing it as a named hot table so undo can restore without a disk
// round-trip while it remains hot.
func (x *Executor) exportLive(ctx context.Context, tableID, snapshotID string) error {
	info, rows, err := x.readTable(ctx, tableID)
	if err != nil {
		return err
	}
	_, err = x.snapStore.Export(snapshotID, info, rows, domain.OrderByCSID, x.cfg.Export.Compression)
	if err != nil {
		return err
	}
	hotTable := hotTableName(snapshotID)
	if err := x.eng.CreateTable(ctx, hotTable, info.Columns); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return x.eng.InsertRowsPreserveIdentity(ctx, hotTable, info.Columns, rows)
}

func (x *Executor) readTable(ctx context.Context, tableID string) (*domain.TableInfo, []domain.Row, error) {
	cols, err := x.eng.DescribeColumns(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	info := &domain.TableInfo{Name: tableID, Columns: cols}

	colNames := append([]string{domain.CSIDColumn, domain.OriginIDColumn}, info.ColumnNames()...)
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC", joinIdents(colNames), quoteIdent(tableID), domain.CSIDColumn)
	rows, err := x.eng.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows, colNames)
	if err != nil {
		return nil, nil, err
	}
	return info, out, nil
}

// rollback restores tableID to its pre-command state: from the hot
// snapshot table if expensive, or by applying the command's inverse if
// cheap.
func (x *Executor) rollback(ctx context.Context, cmd *domain.Command) {
	if cmd.Type.Expensive() {
		if cmd.PreSnapshotID == "" {
			return
		}
		_ = x.eng.DropTable(ctx, cmd.TableID)
		_, err := x.eng.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(hotTableName(cmd.PreSnapshotID)), quoteIdent(cmd.TableID)))
		if err != nil {
			x.log.Error("command", "rollback rename failed: "+err.Error())
			return
		}
		// The rename just consumed the hot table; re-materialize it so a
		// later undo across this same snapshot still finds it resident,
		// matching restoreSnapshot's hot-restore path in undo_redo.go.
		if info, rows, rerr := x.readTable(ctx, cmd.TableID); rerr == nil {
			hotTable := hotTableName(cmd.PreSnapshotID)
			_ = x.eng.CreateTable(ctx, hotTable, info.Columns)
			_ = x.eng.InsertRowsPreserveIdentity(ctx, hotTable, info.Columns, rows)
		}
		return
	}
	switch cmd.Type {
	case domain.CmdInsertRow:
		// Inverse of an insert is a delete of the row it created.
		if p, ok := cmd.Inverse.(DeleteRowParams); ok {
			_ = x.eng.DeleteByCSIDs(ctx, cmd.TableID, p.CSIDs)
		}
	case domain.CmdDeleteRow:
		// Inverse of a delete is reinserting the exact rows removed,
		// identity preserved.
		if rows, ok := cmd.Inverse.([]domain.Row); ok {
			cols, err := x.eng.DescribeColumns(ctx, cmd.TableID)
			if err == nil {
				_ = x.eng.InsertRowsPreserveIdentity(ctx, cmd.TableID, cols, rows)
			}
		}
	case domain.CmdEditCell, domain.CmdEditBatch, domain.CmdRenameColumn, domain.CmdReorderColumns:
		if cmd.Inverse != nil {
			inv := *cmd
			inv.Params = cmd.Inverse
			inv.Inverse = nil
			_ = x.apply(ctx, &inv)
		}
	}
}

func quoteIdent(name string) string { return `"` + name + `"` }

func joinIdents(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += quoteIdent(n)
	}
	return out
}
