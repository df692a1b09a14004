package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cleanslate/core/internal/command"
	"github.com/cleanslate/core/internal/csvimport"
	"github.com/cleanslate/core/internal/diffengine"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/excelimport"
	"github.com/cleanslate/core/internal/fuzzy"
	"github.com/cleanslate/core/internal/snapshot"
)

// buildParams decodes paramsJSON into the concrete params struct
// command.Executor's dispatch table expects for commandType.
func buildParams(commandType domain.CommandType, paramsJSON string) (interface{}, error) {
	switch commandType {
	case domain.CmdEditCell:
		var p command.EditCellParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdEditBatch:
		var p command.EditBatchParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdInsertRow:
		var p command.InsertRowParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdDeleteRow:
		var p command.DeleteRowParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdRenameColumn:
		var p command.RenameColumnParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdReorderColumns:
		var p command.ReorderColumnsParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdTransform:
		var p command.TransformParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdScrubBatch:
		var p command.ScrubBatchParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdStandardizeApply:
		var p command.StandardizeApplyParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdMergeApply:
		var p command.MergeApplyParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdCombineStack:
		var p command.CombineStackParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	case domain.CmdCombineJoin:
		var p command.CombineJoinParams
		return p, json.Unmarshal([]byte(paramsJSON), &p)
	default:
		return nil, domain.NewErrValidation("execute", fmt.Sprintf("unrecognized command_type %q", commandType))
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (d *ToolDeps) HandleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	commandType := domain.CommandType(req.GetString("command_type", ""))
	paramsJSON := req.GetString("params_json", "{}")
	if tableID == "" || commandType == "" {
		return mcp.NewToolResultError("table_id and command_type are required"), nil
	}
	params, err := buildParams(commandType, paramsJSON)
	if err != nil {
		return mcp.NewToolResultError("bad params_json: " + err.Error()), nil
	}
	cmd := &domain.Command{TableID: tableID, Type: commandType, Params: params}
	// combine:stack/combine:join address their result table as TableID
	// (internal/command/params.go's documented convention); the caller's
	// table_id is ignored in favor of the params' ResultTable in that case.
	switch p := params.(type) {
	case command.CombineStackParams:
		cmd.TableID = p.ResultTable
	case command.CombineJoinParams:
		cmd.TableID = p.ResultTable
	}
	result := d.Executor.Execute(ctx, cmd)
	d.Page.InvalidateTable(cmd.TableID)
	if !result.Success {
		return mcp.NewToolResultError(result.Error.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success":          true,
		"audit_entry_id":   result.AuditEntryID,
		"rows_affected":    cmd.RowsAffected,
		"affected_cs_ids":  cmd.AffectedCSIDs,
	})
}

func (d *ToolDeps) HandleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	cmd, err := d.Executor.Undo(ctx, tableID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d.Page.InvalidateTable(tableID)
	return jsonResult(map[string]interface{}{"command_id": cmd.CommandID, "command_type": cmd.Type})
}

func (d *ToolDeps) HandleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	cmd, err := d.Executor.Redo(ctx, tableID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d.Page.InvalidateTable(tableID)
	return jsonResult(map[string]interface{}{"command_id": cmd.CommandID, "command_type": cmd.Type})
}

func (d *ToolDeps) HandleGoto(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	position := int(req.GetFloat("position", 0))
	if err := d.Executor.Goto(ctx, tableID, position); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d.Page.InvalidateTable(tableID)
	return mcp.NewToolResultText("ok"), nil
}

func (d *ToolDeps) HandleFreeze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if err := d.Freeze.Freeze(ctx, tableID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("frozen"), nil
}

func (d *ToolDeps) HandleThaw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if err := d.Freeze.Thaw(ctx, tableID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("thawed"), nil
}

func (d *ToolDeps) HandleSwitchTo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outgoing := req.GetString("outgoing", "")
	incoming := req.GetString("incoming", "")
	if err := d.Freeze.SwitchTo(ctx, outgoing, incoming); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("switched"), nil
}

func (d *ToolDeps) HandleGetAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	entries := d.Executor.Audit(tableID)
	return jsonResult(entries)
}

func (d *ToolDeps) HandleSnapshotStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	idx := int(req.GetFloat("command_index", 0))
	status := d.Executor.SnapshotStatus(tableID, idx)
	return mcp.NewToolResultText(status), nil
}

func (d *ToolDeps) HandleFetchPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	cursor := int64(req.GetFloat("cursor", 0))
	limit := int(req.GetFloat("limit", float64(d.Cfg.Page.PageSize)))
	direction := req.GetString("direction", "forward")

	if direction == "backward" {
		page, err := d.Page.FetchBackward(ctx, tableID, cursor, limit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(page)
	}
	page, err := d.Page.FetchForward(ctx, tableID, cursor, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (d *ToolDeps) HandleFetchDiffPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultTable := req.GetString("result_table", "")
	afterSortKey := int64(req.GetFloat("after_sort_key", 0))
	direction := req.GetString("direction", "forward")
	limit := int64(req.GetFloat("limit", float64(d.Cfg.Page.PageSize)))

	rows, next, prev, err := diffengine.FetchPageKeyset(ctx, d.Eng, resultTable, afterSortKey, direction, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"rows":      rows,
		"next_key":  next,
		"prev_key":  prev,
	})
}

func (d *ToolDeps) HandleRowsWithColumnChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultTable := req.GetString("result_table", "")
	column := req.GetString("column", "")
	rowIDs, err := diffengine.GetRowsWithColumnChanges(ctx, d.Eng, resultTable, column)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rowIDs)
}

func (d *ToolDeps) HandleRunMatcher(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	column := req.GetString("column", "")
	strategy := fuzzy.Strategy(req.GetString("strategy", string(fuzzy.BlockFirstLetter)))
	definite := int(req.GetFloat("definite_threshold", 90))
	maybe := int(req.GetFloat("maybe_threshold", 70))

	rows, err := fuzzy.CollectFromLiveTable(ctx, d.Eng, tableID, column)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pairs, err := fuzzy.Run(ctx, rows, fuzzy.Options{
		Strategy:          strategy,
		MatchColumn:       column,
		DefiniteThreshold: definite,
		MaybeThreshold:    maybe,
	}, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pairs)
}

func (d *ToolDeps) HandleApplyMerges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	pairsJSON := req.GetString("pairs_json", "[]")
	var pairs []domain.MatchPair
	if err := json.Unmarshal([]byte(pairsJSON), &pairs); err != nil {
		return mcp.NewToolResultError("bad pairs_json: " + err.Error()), nil
	}
	cmd := &domain.Command{
		TableID: tableID,
		Type:    domain.CmdMergeApply,
		Params:  command.MergeApplyParams{Pairs: pairs},
	}
	result := d.Executor.Execute(ctx, cmd)
	d.Page.InvalidateTable(tableID)
	if !result.Success {
		return mcp.NewToolResultError(result.Error.Error()), nil
	}
	return jsonResult(map[string]interface{}{"rows_affected": cmd.RowsAffected})
}

func (d *ToolDeps) HandlePersistNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := PersistAll(ctx, d); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("persisted"), nil
}

func (d *ToolDeps) HandleImportCSV(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableName := req.GetString("table_name", "")
	dataB64 := req.GetString("data_base64", "")
	if tableName == "" || dataB64 == "" {
		return mcp.NewToolResultError("table_name and data_base64 are required"), nil
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return mcp.NewToolResultError("bad data_base64: " + err.Error()), nil
	}
	settings := domain.ImportSettings{
		HeaderRow: int(req.GetFloat("header_row", 1)),
		Encoding:  domain.ImportEncoding(req.GetString("encoding", string(domain.EncodingAuto))),
		Delimiter: domain.ImportDelimiter(req.GetString("delimiter", string(domain.DelimiterAuto))),
	}
	info, err := csvimport.Import(ctx, d.Eng, tableName, data, settings)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := registerImportedTable(ctx, d, tableName, info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"table_name": tableName, "columns": info.Columns})
}

func (d *ToolDeps) HandleImportExcel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableName := req.GetString("table_name", "")
	dataB64 := req.GetString("data_base64", "")
	if tableName == "" || dataB64 == "" {
		return mcp.NewToolResultError("table_name and data_base64 are required"), nil
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return mcp.NewToolResultError("bad data_base64: " + err.Error()), nil
	}
	sheet := req.GetString("sheet", "")
	settings := domain.ImportSettings{HeaderRow: int(req.GetFloat("header_row", 1))}
	info, err := excelimport.Import(ctx, d.Eng, tableName, sheet, data, settings)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := registerImportedTable(ctx, d, tableName, info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"table_name": tableName, "columns": info.Columns})
}

// registerImportedTable exports the just-imported table's initial contents
// as its original snapshot and pins the table's timeline to it (the
// "original" position every Goto/Undo can eventually return to).
func registerImportedTable(ctx context.Context, d *ToolDeps, tableName string, info *domain.TableInfo) error {
	source, err := diffengine.ReadLiveSource(ctx, d.Eng, tableName)
	if err != nil {
		return err
	}
	snapID := snapshot.NewSnapshotID()
	if _, err := d.SnapStore.Export(snapID, info, source.Rows, domain.OrderByCSID, d.Cfg.Export.Compression); err != nil {
		return err
	}
	d.Executor.RegisterTable(tableName, snapID)
	return nil
}
