// Command cleanslated is the process that owns the sandboxed filesystem
// root, the embedded SQL engine connection, and exposes the command-level
// API as MCP tools over HTTP. It is pure wiring, no business logic of its
// own.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cleanslate/core/internal/auditstore"
	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/chunk"
	"github.com/cleanslate/core/internal/command"
	"github.com/cleanslate/core/internal/config"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/freeze"
	"github.com/cleanslate/core/internal/mcpserver"
	"github.com/cleanslate/core/internal/pagination"
	"github.com/cleanslate/core/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults used if absent)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cleanslated:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return fmt.Errorf("creating storage root %q: %w", cfg.Storage.Root, err)
	}

	log := diag.NewLogger(cfg.Log.RingBufferSize)

	eng, err := engine.Open("", log)
	if err != nil {
		return fmt.Errorf("opening embedded engine: %w", err)
	}
	defer eng.Close()

	snapStore := snapshot.New(filepath.Join(cfg.Storage.Root, "snapshots"))
	snapStore.Sweep(log)

	changelogStore := changelog.New(cfg.Storage.Root)
	defer changelogStore.Close()

	auditStore, err := auditstore.Open(filepath.Join(cfg.Storage.Root, "audit"))
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer auditStore.Close()

	chunkMgr := chunk.NewManager(snapStore, cfg.Chunk.RowLimit, log)
	pageMgr := pagination.NewManager(eng)
	executor := command.NewExecutor(eng, snapStore, chunkMgr, changelogStore, auditStore, log, cfg)
	freezeMgr := freeze.NewManager(eng, snapStore, changelogStore, log)

	deps := &mcpserver.ToolDeps{
		Eng:       eng,
		Executor:  executor,
		Freeze:    freezeMgr,
		Page:      pageMgr,
		ChunkMgr:  chunkMgr,
		SnapStore: snapStore,
		Changelog: changelogStore,
		Audits:    auditStore,
		Cfg:       cfg,
		Log:       log,
	}
	srv := mcpserver.NewServer(&cfg.MCP, log, deps)

	log.Info("cleanslated", fmt.Sprintf("storage root %q ready", cfg.Storage.Root))
	return srv.Start()
}
