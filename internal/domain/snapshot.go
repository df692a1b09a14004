package domain

// ShardInfo records one shard file within a snapshot's Manifest.
type ShardInfo struct {
	Index    int    `json:"index"`
	FileName string `json:"fileName"`
	RowCount int64  `json:"rowCount"`
	ByteSize int64  `json:"byteSize"`
	MinCSID  *int64 `json:"minCsId"`
	MaxCSID  *int64 `json:"maxCsId"`
}

// OrderByColumn is the column a snapshot's shards are sorted by on export.
type OrderByColumn string

const (
	OrderByCSID    OrderByColumn = CSIDColumn
	OrderBySortKey OrderByColumn = "sort_key"
	OrderByRowID   OrderByColumn = "row_id"
	OrderByNone    OrderByColumn = ""
)

// Manifest is the JSON index of a snapshot's shards and metadata
// (manifest schema v1).
type Manifest struct {
	Version       int           `json:"version"`
	SnapshotID    string        `json:"snapshotId"`
	TotalRows     int64         `json:"totalRows"`
	TotalBytes    int64         `json:"totalBytes"`
	ShardSize     int64         `json:"shardSize"`
	Shards        []ShardInfo   `json:"shards"`
	Columns       []string      `json:"columns"`
	OrderByColumn OrderByColumn `json:"orderByColumn"`
	CreatedAtMs   int64         `json:"createdAt"`
}

// ManifestShardTarget is the manifest-level shard unit: each
// shard targets this many rows, independent of the COPY-threshold memory
// guard below.
const ManifestShardTarget = 50_000

// SingleFileRowThreshold is the row count above which export chunks a
// snapshot into multiple shard files instead of one.
const SingleFileRowThreshold = 250_000
