// Package mcpserver exposes the command-level API as MCP tools: a UI
// process talks to this process purely through named tool calls instead of
// a SQL dialect.
package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/cleanslate/core/internal/auditstore"
	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/command"
	"github.com/cleanslate/core/internal/config"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/freeze"
	"github.com/cleanslate/core/internal/pagination"
	"github.com/cleanslate/core/internal/snapshot"
)

// Server owns the MCP tool registrations and the shared core dependencies
// every handler dispatches against.
type Server struct {
	cfg *config.MCPConfig
	log *diag.Logger
	deps *ToolDeps
}

// ToolDeps bundles the core components the Command-level API sits on top
// of, a common MCP-server dependency bundle.
type ToolDeps struct {
	Eng       *engine.Engine
	Executor  *command.Executor
	Freeze    *freeze.Manager
	Page      *pagination.Manager
	ChunkMgr  *chunk.Manager
	SnapStore *snapshot.Store
	Changelog *changelog.Store
	Audits    *auditstore.Store
	Cfg       *config.Config
	Log       *diag.Logger
}

// NewServer builds a Server over deps, bound to cfg's host/port.
func NewServer(cfg *config.MCPConfig, log *diag.Logger, deps *ToolDeps) *Server {
	return &Server{cfg: cfg, log: log, deps: deps}
}

// Start registers every tool and blocks serving Streamable HTTP at
// cfg.Host:cfg.Port, the "any UI must call" surface.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	srv := mcpsrv.NewMCPServer(
		"cleanslate-core",
		"1.0.0",
		mcpsrv.WithToolCapabilities(true),
		mcpsrv.WithRecovery(),
	)

	d := s.deps

	srv.AddTool(mcp.NewTool("execute",
		mcp.WithDescription("Apply one command to a table's live state, recording it on the table's timeline."),
		mcp.WithString("table_id", mcp.Description("Target table"), mcp.Required()),
		mcp.WithString("command_type", mcp.Description("One of: edit:cell, edit:batch, transform, scrub:batch, standardize:apply, merge:apply, insert_row, delete_row, combine:stack, combine:join, rename_column, reorder_columns"), mcp.Required()),
		mcp.WithString("params_json", mcp.Description("JSON-encoded params payload matching command_type"), mcp.Required()),
	), d.HandleExecute)

	srv.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the most recent command on a table's timeline."),
		mcp.WithString("table_id", mcp.Required()),
	), d.HandleUndo)

	srv.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the next undone command on a table's timeline."),
		mcp.WithString("table_id", mcp.Required()),
	), d.HandleRedo)

	srv.AddTool(mcp.NewTool("goto",
		mcp.WithDescription("Move a table's timeline to an absolute position via undo/redo."),
		mcp.WithString("table_id", mcp.Required()),
		mcp.WithNumber("position", mcp.Required()),
	), d.HandleGoto)

	srv.AddTool(mcp.NewTool("freeze",
		mcp.WithDescription("Export a table's live state to a snapshot and drop it from memory."),
		mcp.WithString("table_id", mcp.Required()),
	), d.HandleFreeze)

	srv.AddTool(mcp.NewTool("thaw",
		mcp.WithDescription("Import a table's frozen snapshot back into the live engine."),
		mcp.WithString("table_id", mcp.Required()),
	), d.HandleThaw)

	srv.AddTool(mcp.NewTool("switch_to",
		mcp.WithDescription("Freeze one table and thaw another atomically, enforcing the single-active-table policy."),
		mcp.WithString("outgoing", mcp.Required()),
		mcp.WithString("incoming", mcp.Required()),
	), d.HandleSwitchTo)

	srv.AddTool(mcp.NewTool("get_audit",
		mcp.WithDescription("Return the audit projection for a table, newest-first."),
		mcp.WithString("table_id", mcp.Required()),
	), d.HandleGetAudit)

	srv.AddTool(mcp.NewTool("get_snapshot_status",
		mcp.WithDescription("Report instant/cold for a command's pre-command snapshot, for the undo UI hint."),
		mcp.WithString("table_id", mcp.Required()),
		mcp.WithNumber("command_index", mcp.Required()),
	), d.HandleSnapshotStatus)

	srv.AddTool(mcp.NewTool("fetch_page",
		mcp.WithDescription("Keyset-paginate a live table forward or backward from a cursor."),
		mcp.WithString("table_id", mcp.Required()),
		mcp.WithNumber("cursor", mcp.Description("_cs_id to page from; 0 for the first page")),
		mcp.WithNumber("limit", mcp.Description("page size, default from config")),
		mcp.WithString("direction", mcp.Description("forward|backward, default forward")),
	), d.HandleFetchPage)

	srv.AddTool(mcp.NewTool("fetch_diff_page",
		mcp.WithDescription("Keyset-paginate a materialized diff result table."),
		mcp.WithString("result_table", mcp.Required()),
		mcp.WithNumber("after_sort_key", mcp.Description("sort_key to page from; 0 for the first page")),
		mcp.WithString("direction", mcp.Description("forward|backward, default forward")),
		mcp.WithNumber("limit", mcp.Description("page size, default from config")),
	), d.HandleFetchDiffPage)

	srv.AddTool(mcp.NewTool("get_rows_with_column_changes",
		mcp.WithDescription("List diff row ids where a given column differs between A and B."),
		mcp.WithString("result_table", mcp.Required()),
		mcp.WithString("column", mcp.Required()),
	), d.HandleRowsWithColumnChanges)

	srv.AddTool(mcp.NewTool("run_matcher",
		mcp.WithDescription("Run the fuzzy duplicate matcher against one column of a table."),
		mcp.WithString("table_id", mcp.Required()),
		mcp.WithString("column", mcp.Required()),
		mcp.WithString("strategy", mcp.Description("first_letter|double_metaphone|soundex|ngram|full_scan"), mcp.Required()),
		mcp.WithNumber("definite_threshold", mcp.Description("0..100")),
		mcp.WithNumber("maybe_threshold", mcp.Description("0..100")),
	), d.HandleRunMatcher)

	srv.AddTool(mcp.NewTool("apply_merges",
		mcp.WithDescription("Apply accepted fuzzy-match pairs as a merge:apply command."),
		mcp.WithString("table_id", mcp.Required()),
		mcp.WithString("pairs_json", mcp.Description("JSON array of domain.MatchPair"), mcp.Required()),
	), d.HandleApplyMerges)

	srv.AddTool(mcp.NewTool("persist_now",
		mcp.WithDescription("Force changelog compaction and a fresh snapshot of every resident table."),
	), d.HandlePersistNow)

	srv.AddTool(mcp.NewTool("import_csv",
		mcp.WithDescription("Import CSV bytes as a brand-new table."),
		mcp.WithString("table_name", mcp.Required()),
		mcp.WithString("data_base64", mcp.Description("raw file bytes, base64-encoded"), mcp.Required()),
		mcp.WithNumber("header_row", mcp.Description("1..10, default 1")),
		mcp.WithString("encoding", mcp.Description("auto|utf8|latin1, default auto")),
		mcp.WithString("delimiter", mcp.Description("auto|,|\\t|'|'|;, default auto")),
	), d.HandleImportCSV)

	srv.AddTool(mcp.NewTool("import_excel",
		mcp.WithDescription("Import the first (or named) sheet of an .xlsx workbook as a brand-new table."),
		mcp.WithString("table_name", mcp.Required()),
		mcp.WithString("data_base64", mcp.Description("raw .xlsx bytes, base64-encoded"), mcp.Required()),
		mcp.WithString("sheet", mcp.Description("sheet name, default first sheet")),
		mcp.WithNumber("header_row", mcp.Description("1..10, default 1")),
	), d.HandleImportExcel)

	s.log.Info("mcpserver", "listening on "+addr)
	httpSrv := mcpsrv.NewStreamableHTTPServer(srv, mcpsrv.WithEndpointPath("/mcp"))
	return httpSrv.Start(addr)
}
