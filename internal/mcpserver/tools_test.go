package mcpserver

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/auditstore"
	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/command"
	"github.com/cleanslate/core/internal/config"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/freeze"
	"github.com/cleanslate/core/internal/pagination"
	"github.com/cleanslate/core/internal/snapshot"
)

func makeCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

func setupToolDeps(t *testing.T) *ToolDeps {
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
	exec := command.NewExecutor(eng, snapStore, chunkMgr, cl, audits, log, cfg)
	freezeMgr := freeze.NewManager(eng, snapStore, cl, log)
	pageMgr := pagination.NewManager(eng)

	return &ToolDeps{
		Eng:       eng,
		Executor:  exec,
		Freeze:    freezeMgr,
		Page:      pageMgr,
		ChunkMgr:  chunkMgr,
		SnapStore: snapStore,
		Changelog: cl,
		Audits:    audits,
		Cfg:       cfg,
		Log:       log,
	}
}

func createAndRegisterTable(t *testing.T, d *ToolDeps, name string) {
	t.Helper()
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string", Nullable: true}}
	require.NoError(t, d.Eng.CreateTable(ctx, name, cols))
	require.NoError(t, d.Eng.InsertRows(ctx, name, cols, []domain.Row{
		{"name": "Alice"}, {"name": "Bob"},
	}))
	require.NoError(t, registerImportedTable(ctx, d, name, &domain.TableInfo{Name: name, Columns: cols}))
}

func TestHandleExecute_EditCellSucceeds(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")

	req := makeCallToolRequest(map[string]interface{}{
		"table_id":     "people",
		"command_type": string(domain.CmdEditCell),
		"params_json":  `{"CSID":1,"Column":"name","Value":"Alicia"}`,
	})
	result, err := d.HandleExecute(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestHandleExecute_MissingTableIDIsError(t *testing.T) {
	d := setupToolDeps(t)
	req := makeCallToolRequest(map[string]interface{}{
		"command_type": string(domain.CmdEditCell),
	})
	result, err := d.HandleExecute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleExecute_UnrecognizedCommandTypeIsError(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")
	req := makeCallToolRequest(map[string]interface{}{
		"table_id":     "people",
		"command_type": "bogus",
	})
	result, err := d.HandleExecute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleUndoRedo_RoundTrips(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")
	ctx := context.Background()

	execReq := makeCallToolRequest(map[string]interface{}{
		"table_id":     "people",
		"command_type": string(domain.CmdEditCell),
		"params_json":  `{"CSID":1,"Column":"name","Value":"Alicia"}`,
	})
	result, err := d.HandleExecute(ctx, execReq)
	require.NoError(t, err)
	require.False(t, result.IsError)

	undoResult, err := d.HandleUndo(ctx, makeCallToolRequest(map[string]interface{}{"table_id": "people"}))
	require.NoError(t, err)
	assert.False(t, undoResult.IsError)

	redoResult, err := d.HandleRedo(ctx, makeCallToolRequest(map[string]interface{}{"table_id": "people"}))
	require.NoError(t, err)
	assert.False(t, redoResult.IsError)
}

func TestHandleFreezeThaw_RoundTrips(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")
	ctx := context.Background()

	freezeResult, err := d.HandleFreeze(ctx, makeCallToolRequest(map[string]interface{}{"table_id": "people"}))
	require.NoError(t, err)
	assert.False(t, freezeResult.IsError)

	exists, err := d.Eng.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.False(t, exists)

	thawResult, err := d.HandleThaw(ctx, makeCallToolRequest(map[string]interface{}{"table_id": "people"}))
	require.NoError(t, err)
	assert.False(t, thawResult.IsError)

	exists, err = d.Eng.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleFetchPage_ReturnsRows(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")

	req := makeCallToolRequest(map[string]interface{}{
		"table_id": "people",
		"cursor":   float64(0),
		"limit":    float64(10),
	})
	result, err := d.HandleFetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestHandleImportCSV_CreatesTable(t *testing.T) {
	d := setupToolDeps(t)
	csv := "name,age\nAlice,30\nBob,40\n"
	req := makeCallToolRequest(map[string]interface{}{
		"table_name":  "imported",
		"data_base64": base64.StdEncoding.EncodeToString([]byte(csv)),
	})
	result, err := d.HandleImportCSV(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	exists, err := d.Eng.TableExists(context.Background(), "imported")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleImportCSV_MissingFieldsIsError(t *testing.T) {
	d := setupToolDeps(t)
	result, err := d.HandleImportCSV(context.Background(), makeCallToolRequest(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandlePersistNow_ClearsChangelog(t *testing.T) {
	d := setupToolDeps(t)
	createAndRegisterTable(t, d, "people")
	ctx := context.Background()

	result, err := d.HandleExecute(ctx, makeCallToolRequest(map[string]interface{}{
		"table_id":     "people",
		"command_type": string(domain.CmdEditCell),
		"params_json":  `{"CSID":1,"Column":"name","Value":"Alicia"}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	persistResult, err := d.HandlePersistNow(ctx, makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.False(t, persistResult.IsError)

	n, err := d.Changelog.Count("people")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
