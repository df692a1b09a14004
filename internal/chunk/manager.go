// Package chunk is the chunk manager: it keeps at most
// CHUNK_MANAGER_ROW_LIMIT rows of a thawed table's shards resident in
// memory, loading shards from the Snapshot Store on demand and evicting
// the least-recently-used shard when the budget is exceeded. The
// LRU bookkeeping — a container/list queue plus a key→element index,
// touched on access and walked front-to-back for an eviction candidate —
// follows a standard Go LRU cache shape.
package chunk

import (
	"container/list"
	"sync"

	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/snapshot"
)

// Key identifies one shard of one snapshot.
type Key struct {
	SnapshotID string
	ShardIndex int
}

type loadedShard struct {
	key      Key
	rows     []domain.Row
	rowCount int64
}

// Manager caches shard rows under a fixed row budget.
type Manager struct {
	store     *snapshot.Store
	rowLimit  int64
	log       *diag.Logger

	mu        sync.Mutex
	loaded    map[Key]*loadedShard
	lru       *list.List
	elements  map[Key]*list.Element
	usedRows  int64
}

func NewManager(store *snapshot.Store, rowLimit int64, log *diag.Logger) *Manager {
	return &Manager{
		store:    store,
		rowLimit: rowLimit,
		log:      log,
		loaded:   make(map[Key]*loadedShard),
		lru:      list.New(),
		elements: make(map[Key]*list.Element),
	}
}

// LoadShard returns shard's rows, reading them from disk on a cache miss
// and evicting other shards (LRU order) until the result fits the row
// budget. A shard larger than the whole budget is still loaded in full —
// the budget governs how many OTHER shards stay resident alongside it,
// not a hard cap on a single read.
func (m *Manager) LoadShard(snapshotID string, shard domain.ShardInfo, columns []domain.ColumnInfo) ([]domain.Row, error) {
	key := Key{SnapshotID: snapshotID, ShardIndex: shard.Index}

	m.mu.Lock()
	if ls, ok := m.loaded[key]; ok {
		m.touch(key)
		rows := ls.rows
		m.mu.Unlock()
		return rows, nil
	}
	m.mu.Unlock()

	var rows []domain.Row
	err := m.store.ReadShard(snapshotID, shard, columns, func(r domain.Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.usedRows+int64(len(rows)) > m.rowLimit && m.evictOneLocked(key) {
	}

	m.loaded[key] = &loadedShard{key: key, rows: rows, rowCount: int64(len(rows))}
	m.usedRows += int64(len(rows))
	m.touch(key)
	return rows, nil
}

func (m *Manager) touch(key Key) {
	if elem, ok := m.elements[key]; ok {
		m.lru.MoveToBack(elem)
		return
	}
	m.elements[key] = m.lru.PushBack(key)
}

// evictOneLocked evicts the least-recently-used shard other than
// keepKey. Returns false if nothing is left to evict.
func (m *Manager) evictOneLocked(keepKey Key) bool {
	for elem := m.lru.Front(); elem != nil; elem = elem.Next() {
		key := elem.Value.(Key)
		if key == keepKey {
			continue
		}
		ls, ok := m.loaded[key]
		if !ok {
			m.lru.Remove(elem)
			delete(m.elements, key)
			continue
		}
		m.usedRows -= ls.rowCount
		delete(m.loaded, key)
		m.lru.Remove(elem)
		delete(m.elements, key)
		if m.log != nil {
			m.log.Info("chunk", "evicted shard "+key.SnapshotID)
		}
		return true
	}
	return false
}

// EvictShard drops one shard's cached rows regardless of LRU order;
// MapChunks calls it after visiting each shard.
func (m *Manager) EvictShard(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok := m.loaded[key]; ok {
		m.usedRows -= ls.rowCount
		delete(m.loaded, key)
	}
	if elem, ok := m.elements[key]; ok {
		m.lru.Remove(elem)
		delete(m.elements, key)
	}
}

// EvictAll drops every cached shard and resets the row budget in use to
// zero.
func (m *Manager) EvictAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = make(map[Key]*loadedShard)
	m.lru = list.New()
	m.elements = make(map[Key]*list.Element)
	m.usedRows = 0
}

// UsedRows reports the manager's current row-budget consumption.
func (m *Manager) UsedRows() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedRows
}

// MapChunks is the canonical streaming path over a snapshot:
// it visits every shard of manifest in order, invoking fn with that
// shard's rows, then evicts the shard before moving to the next one so
// the resident set never grows beyond a single shard for this walk. fn's
// error aborts the walk and is returned to the caller.
func (m *Manager) MapChunks(manifest *domain.Manifest, columns []domain.ColumnInfo, fn func(shard domain.ShardInfo, rows []domain.Row) error) error {
	for _, shard := range manifest.Shards {
		rows, err := m.LoadShard(manifest.SnapshotID, shard, columns)
		if err != nil {
			return err
		}
		err = fn(shard, rows)
		m.EvictShard(Key{SnapshotID: manifest.SnapshotID, ShardIndex: shard.Index})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRowRange loads every shard in manifest that overlaps [minCSID,
// maxCSID] and returns their rows concatenated in shard order, filtered
// to the requested CSID range. Shards are assumed sorted by CSID
// ascending, matching how Export lays them out.
func (m *Manager) GetRowRange(manifest *domain.Manifest, columns []domain.ColumnInfo, minCSID, maxCSID int64) ([]domain.Row, error) {
	var out []domain.Row
	for _, shard := range manifest.Shards {
		if shard.MinCSID != nil && *shard.MinCSID > maxCSID {
			continue
		}
		if shard.MaxCSID != nil && *shard.MaxCSID < minCSID {
			continue
		}
		rows, err := m.LoadShard(manifest.SnapshotID, shard, columns)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			csid, ok := r[domain.CSIDColumn].(int64)
			if !ok {
				continue
			}
			if csid >= minCSID && csid <= maxCSID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
