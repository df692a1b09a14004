// Package config is the application configuration tree, loaded from JSON
// with sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Timeline  TimelineConfig  `json:"timeline"`
	Chunk     ChunkConfig     `json:"chunk"`
	Page      PageConfig      `json:"page"`
	Export    ExportConfig    `json:"export"`
	Changelog ChangelogConfig `json:"changelog"`
	MCP       MCPConfig       `json:"mcp"`
	Log       LogConfig       `json:"log"`
}

// StorageConfig locates the sandboxed filesystem root.
type StorageConfig struct {
	Root string `json:"root"` // app root, e.g. "./cleanslate"
}

// TimelineConfig tunes the per-process hot-snapshot LRU.
type TimelineConfig struct {
	HotSnapshotCapacity int `json:"hot_snapshot_capacity"` // N
}

// ChunkConfig tunes the chunk manager's row-budget LRU.
type ChunkConfig struct {
	RowLimit int64 `json:"row_limit"` // CHUNK_MANAGER_ROW_LIMIT, default 150,000
}

// PageConfig tunes the grid page cache.
type PageConfig struct {
	PageSize     int           `json:"page_size"`     // 500
	Prefetch     int           `json:"prefetch"`      // 1000
	Capacity     int           `json:"capacity"`      // 10-12 pages
	DebounceWait time.Duration `json:"debounce_wait"` // ~50ms
}

// ExportConfig tunes the snapshot store's export path.
type ExportConfig struct {
	SingleFileRowThreshold int64  `json:"single_file_row_threshold"` // 250,000
	ManifestShardTarget    int64  `json:"manifest_shard_target"`     // 50,000
	Compression            string `json:"compression"`               // snappy|gzip|zstd|lz4|none
	CheckpointAfterRows     int64  `json:"checkpoint_after_rows"`     // 100,000
}

// ChangelogConfig tunes changelog compaction.
type ChangelogConfig struct {
	CompactThreshold int `json:"compact_threshold"` // entry count before auto-compaction
}

// MCPConfig binds the command-level API's MCP tool transport.
type MCPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LogConfig tunes the diagnostics ring buffer (internal/diag).
type LogConfig struct {
	RingBufferSize int `json:"ring_buffer_size"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Root: "./cleanslate"},
		Timeline: TimelineConfig{
			HotSnapshotCapacity: 5,
		},
		Chunk: ChunkConfig{
			RowLimit: 150_000,
		},
		Page: PageConfig{
			PageSize:     500,
			Prefetch:     1000,
			Capacity:     12,
			DebounceWait: 50 * time.Millisecond,
		},
		Export: ExportConfig{
			SingleFileRowThreshold: 250_000,
			ManifestShardTarget:    50_000,
			Compression:            "snappy",
			CheckpointAfterRows:    100_000,
		},
		Changelog: ChangelogConfig{
			CompactThreshold: 5000,
		},
		MCP: MCPConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Log: LogConfig{
			RingBufferSize: 1000,
		},
	}
}

// Load reads configuration from a JSON file, falling back to defaults for
// any zero-valued field left unset. An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}
