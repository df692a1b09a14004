package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/auditstore"
	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/config"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/snapshot"
)

type testRig struct {
	eng *engine.Engine
	x   *Executor
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	log := diag.NewLogger(1000)
	eng, err := engine.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	root := t.TempDir()
	snapStore := snapshot.New(root)
	chunkMgr := chunk.NewManager(snapStore, 150_000, log)
	cl := changelog.New(root)
	t.Cleanup(func() { cl.Close() })
	audits, err := auditstore.Open(root + "/audit")
	require.NoError(t, err)
	t.Cleanup(func() { audits.Close() })

	cfg := config.Default()
	x := NewExecutor(eng, snapStore, chunkMgr, cl, audits, log, cfg)
	return &testRig{eng: eng, x: x}
}

func (r *testRig) createTable(t *testing.T, name string) {
	t.Helper()
	cols := []domain.ColumnInfo{
		{Name: "name", Type: "string", Nullable: true},
		{Name: "age", Type: "int64", Nullable: true},
	}
	require.NoError(t, r.eng.CreateTable(context.Background(), name, cols))
	require.NoError(t, r.eng.InsertRows(context.Background(), name, cols, []domain.Row{
		{"name": "Alice", "age": int64(30)},
		{"name": "Bob", "age": int64(40)},
	}))
	snapID := snapshot.NewSnapshotID()
	info, rows, err := r.x.readTable(context.Background(), name)
	require.NoError(t, err)
	_, err = r.x.snapStore.Export(snapID, info, rows, domain.OrderByCSID, "")
	require.NoError(t, err)
	r.x.RegisterTable(name, snapID)
}

func TestExecute_EditCell_UndoRedo_RoundTrips(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdEditCell,
		Params:  EditCellParams{CSID: 1, Column: "age", Value: int64(31)},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	age, err := rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(31), age)

	_, err = rig.x.Undo(ctx, "people")
	require.NoError(t, err)
	age, err = rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), age)

	_, err = rig.x.Redo(ctx, "people")
	require.NoError(t, err)
	age, err = rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(31), age)
}

func TestExecute_InsertRow_UndoDeletesIt(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdInsertRow,
		Params:  InsertRowParams{Values: domain.Row{"name": "Carol", "age": int64(22)}},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	count, err := rig.eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = rig.x.Undo(ctx, "people")
	require.NoError(t, err)
	count, err = rig.eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExecute_DeleteRow_UndoReinsertsWithSameIdentity(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdDeleteRow,
		Params:  DeleteRowParams{CSIDs: []int64{1}},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	count, err := rig.eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = rig.x.Undo(ctx, "people")
	require.NoError(t, err)

	count, err = rig.eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	name, err := rig.x.readCell(ctx, "people", 1, "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}

func TestExecute_Transform_ExpensiveCommand_UndoRestoresSnapshot(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdTransform,
		Params:  TransformParams{Name: "uppercase", TargetColumn: "name", Expr: `UPPER("name")`},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)
	assert.NotEmpty(t, cmd.PreSnapshotID)

	name, err := rig.x.readCell(ctx, "people", 1, "name")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", name)

	_, err = rig.x.Undo(ctx, "people")
	require.NoError(t, err)
	name, err = rig.x.readCell(ctx, "people", 1, "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}

func TestExecute_CombineStack_UndoDropsResultTable(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.createTable(t, "a")
	rig.createTable(t, "b")

	cmd := &domain.Command{
		TableID: "a_b_combined",
		Type:    domain.CmdCombineStack,
		Params:  CombineStackParams{SourceTables: []string{"a", "b"}, ResultTable: "a_b_combined"},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	exists, err := rig.eng.TableExists(ctx, "a_b_combined")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = rig.x.Undo(ctx, "a_b_combined")
	require.NoError(t, err)

	exists, err = rig.eng.TableExists(ctx, "a_b_combined")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUndo_NothingToUndoReturnsValidationError(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	_, err := rig.x.Undo(context.Background(), "people")
	require.Error(t, err)
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestGoto_MovesAcrossMultipleCommands(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cmd := &domain.Command{
			TableID: "people",
			Type:    domain.CmdEditCell,
			Params:  EditCellParams{CSID: 1, Column: "age", Value: int64(40 + i)},
		}
		res := rig.x.Execute(ctx, cmd)
		require.True(t, res.Success, "%v", res.Error)
	}

	age, err := rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(42), age)

	require.NoError(t, rig.x.Goto(ctx, "people", 0))
	age, err = rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(40), age)

	require.NoError(t, rig.x.Goto(ctx, "people", 2))
	age, err = rig.x.readCell(ctx, "people", 1, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(42), age)
}

func TestExecute_MergeApply_WritesRowDetailAndAffectsExpectedRows(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdMergeApply,
		Params: MergeApplyParams{Pairs: []domain.MatchPair{
			{RowACSID: 1, RowBCSID: 2, Similarity: 92, Status: domain.MatchMerged, KeepRow: domain.KeepA, MatchColumn: "name"},
		}},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, int64(1), cmd.RowsAffected)

	count, err := rig.eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.True(t, rig.x.audits.Has(cmd.AuditEntryID))
	rows, err := rig.x.audits.Rows(cmd.AuditEntryID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "name", rows[0]["match_column"])
	assert.EqualValues(t, 92, rows[0]["similarity"])
}

func TestExecute_StandardizeApply_WritesRowDetailPerMappingValue(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdStandardizeApply,
		Params:  StandardizeApplyParams{Column: "name", Mapping: map[string]string{"Alice": "ALICE_STD"}},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, int64(1), cmd.RowsAffected)

	name, err := rig.x.readCell(ctx, "people", 1, "name")
	require.NoError(t, err)
	assert.Equal(t, "ALICE_STD", name)

	assert.True(t, rig.x.audits.Has(cmd.AuditEntryID))
	rows, err := rig.x.audits.Rows(cmd.AuditEntryID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0]["original_value"])
	assert.Equal(t, "ALICE_STD", rows[0]["standardized_to"])
	assert.EqualValues(t, 1, rows[0]["rows_changed"])
}

func TestExecute_EditCell_WritesRowDetail(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdEditCell,
		Params:  EditCellParams{CSID: 1, Column: "age", Value: int64(31)},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	rows, err := rig.x.audits.Rows(cmd.AuditEntryID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "age", rows[0]["column"])
	assert.EqualValues(t, 30, rows[0]["previous_value"])
	assert.EqualValues(t, 31, rows[0]["new_value"])
}

func TestExecute_Transform_WritesRowDetailForChangedRows(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdTransform,
		Params:  TransformParams{Name: "uppercase", TargetColumn: "name", Expr: `UPPER("name")`},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	rows, err := rig.x.audits.Rows(cmd.AuditEntryID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSnapshotStatus_InstantForHotCommand(t *testing.T) {
	rig := newTestRig(t)
	rig.createTable(t, "people")
	ctx := context.Background()

	cmd := &domain.Command{
		TableID: "people",
		Type:    domain.CmdTransform,
		Params:  TransformParams{Name: "uppercase", TargetColumn: "name", Expr: `UPPER("name")`},
	}
	res := rig.x.Execute(ctx, cmd)
	require.True(t, res.Success, "%v", res.Error)

	status := rig.x.SnapshotStatus("people", 0)
	assert.Equal(t, "instant", status)
}
