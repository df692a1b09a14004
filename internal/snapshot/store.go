package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	pq "github.com/parquet-go/parquet-go"

	"github.com/cleanslate/core/internal/domain"
)

// minValidShardBytes is the size below which a shard file is treated as
// corrupt (a truncated write that survived a crash before rename), per
// its crash-safety invariant.
const minValidShardBytes = 200

// Store persists and restores table snapshots as manifest.json + shard-*
// .parquet files rooted at root/snapshots/<SanitizeID(snapshotID)>/.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dir(snapshotID string) string {
	return filepath.Join(s.root, "snapshots", SanitizeID(snapshotID))
}

// NewSnapshotID mints a fresh snapshot id.
func NewSnapshotID() string {
	return uuid.NewString()
}

// SanitizeID normalizes a snapshot id to lowercase with any character
// outside [a-z0-9_] mapped to '_', avoiding case-collisions on
// case-sensitive sandbox filesystems.
func SanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Export writes rows to one or more shards under a fresh directory named
// snapshotID and returns the manifest it wrote. Rows above
// domain.SingleFileRowThreshold are split into domain.ManifestShardTarget
// -sized shards; at or below it, everything goes in one
// shard.
func (s *Store) Export(snapshotID string, table *domain.TableInfo, rows []domain.Row, orderBy domain.OrderByColumn, compression string) (*domain.Manifest, error) {
	dir := s.dir(snapshotID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewErrIO(dir, err.Error())
	}

	shardTarget := int(domain.ManifestShardTarget)
	if int64(len(rows)) <= domain.SingleFileRowThreshold {
		shardTarget = len(rows)
		if shardTarget == 0 {
			shardTarget = 1
		}
	}

	var shards []domain.ShardInfo
	var totalBytes int64
	for idx, start := 0, 0; start < len(rows) || idx == 0 && len(rows) == 0; idx, start = idx+1, start+shardTarget {
		end := start + shardTarget
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		name := shardFileName(idx)
		path := filepath.Join(dir, name)
		byteSize, minCS, maxCS, err := writeShard(path, table.Columns, chunk)
		if err != nil {
			return nil, err
		}
		totalBytes += byteSize
		shards = append(shards, domain.ShardInfo{
			Index:    idx,
			FileName: name,
			RowCount: int64(len(chunk)),
			ByteSize: byteSize,
			MinCSID:  minCS,
			MaxCSID:  maxCS,
		})
		if end >= len(rows) {
			break
		}
	}

	manifest := &domain.Manifest{
		Version:       1,
		SnapshotID:    snapshotID,
		TotalRows:     int64(len(rows)),
		TotalBytes:    totalBytes,
		ShardSize:     int64(shardTarget),
		Shards:        shards,
		Columns:       table.ColumnNames(),
		OrderByColumn: orderBy,
		CreatedAtMs:   nowMs(),
	}
	if err := s.writeManifest(snapshotID, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeShard(path string, columns []domain.ColumnInfo, rows []domain.Row) (byteSize int64, minCSID, maxCSID *int64, err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".shard-tmp-*.parquet")
	if err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	schema := domainSchemaToParquet(filepath.Base(path), columns)
	opts := []pq.WriterOption{schema}
	writer := pq.NewGenericWriter[map[string]interface{}](tmp, opts...)

	batch := make([]map[string]interface{}, 0, 1024)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for _, r := range rows {
		if csid, ok := r[domain.CSIDColumn]; ok {
			v := toInt64(csid)
			if minCSID == nil || v < *minCSID {
				minCSID = &v
			}
			if maxCSID == nil || v > *maxCSID {
				maxCSID = &v
			}
		}
		batch = append(batch, domainRowToParquetMap(r))
		if len(batch) >= 1024 {
			if err := flush(); err != nil {
				return 0, nil, nil, domain.NewErrIO(path, err.Error())
			}
		}
	}
	if err := flush(); err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	if err := writer.Close(); err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	st, err := tmp.Stat()
	if err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	byteSize = st.Size()
	if err := tmp.Close(); err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, nil, nil, domain.NewErrIO(path, err.Error())
	}
	success = true
	return byteSize, minCSID, maxCSID, nil
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func (s *Store) writeManifest(snapshotID string, m *domain.Manifest) error {
	dir := s.dir(snapshotID)
	path := filepath.Join(dir, "manifest.json")
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return domain.NewErrIO(path, err.Error())
	}
	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*.json")
	if err != nil {
		return domain.NewErrIO(path, err.Error())
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewErrIO(path, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewErrIO(path, err.Error())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return domain.NewErrIO(path, err.Error())
	}
	return nil
}

// ReadManifest loads a snapshot's manifest. Returns ErrMissingSnapshot if
// the directory or manifest file does not exist.
func (s *Store) ReadManifest(snapshotID string) (*domain.Manifest, error) {
	path := filepath.Join(s.dir(snapshotID), "manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewErrMissingSnapshot(snapshotID)
		}
		return nil, domain.NewErrIO(path, err.Error())
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.NewErrCorruptSnapshot(snapshotID, err.Error())
	}
	return &m, nil
}

// ReadShard streams every row of one shard file to visit, in on-disk
// order, without materializing the whole shard in memory — used by the
// Chunk Manager to load a shard's rows under its row budget.
func (s *Store) ReadShard(snapshotID string, shard domain.ShardInfo, columns []domain.ColumnInfo, visit func(domain.Row) error) error {
	path := filepath.Join(s.dir(snapshotID), shard.FileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewErrCorruptSnapshot(snapshotID, fmt.Sprintf("shard %q is missing", shard.FileName))
		}
		return domain.NewErrIO(path, err.Error())
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return domain.NewErrIO(path, err.Error())
	}
	if st.Size() < minValidShardBytes {
		return domain.NewErrCorruptSnapshot(snapshotID, fmt.Sprintf("shard %q is %d bytes", shard.FileName, st.Size()))
	}

	pf, err := pq.OpenFile(f, st.Size())
	if err != nil {
		return domain.NewErrCorruptSnapshot(snapshotID, err.Error())
	}
	reader := pq.NewReader(pf)
	defer reader.Close()

	order := shardFieldOrder(columns)
	byName := shardColumnByName(columns)

	rows := make([]pq.Row, 256)
	for {
		n, err := reader.ReadRows(rows)
		for i := 0; i < n; i++ {
			if verr := visit(parquetRowToDomain(order, byName, rows[i])); verr != nil {
				return verr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return domain.NewErrCorruptSnapshot(snapshotID, err.Error())
		}
	}
}

// Delete removes a snapshot's directory entirely (used when a thawed
// table's prior snapshot is superseded and no longer referenced by any
// timeline entry).
func (s *Store) Delete(snapshotID string) error {
	dir := s.dir(snapshotID)
	if err := os.RemoveAll(dir); err != nil {
		return domain.NewErrIO(dir, err.Error())
	}
	return nil
}

// Root exposes the storage root for the startup sweep.
func (s *Store) Root() string { return s.root }
