package command

import (
	"container/list"
	"sync"

	"github.com/cleanslate/core/internal/domain"
)

// timelines owns one domain.Timeline per table_id.
type timelines struct {
	mu  sync.Mutex
	byID map[string]*domain.Timeline
}

func newTimelines() *timelines {
	return &timelines{byID: make(map[string]*domain.Timeline)}
}

func (t *timelines) get(tableID string) *domain.Timeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[tableID]
}

func (t *timelines) getOrCreate(tableID, originalSnapshotID string) *domain.Timeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	tl, ok := t.byID[tableID]
	if !ok {
		tl = domain.NewTimeline(tableID, originalSnapshotID)
		t.byID[tableID] = tl
	}
	return tl
}

// hotSnapshots is the LRU of pre-command snapshots retained as named live
// engine tables. It never evicts a pinned id (the
// original-import snapshot of whichever table it belongs to).
type hotSnapshots struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List
	elements map[string]*list.Element
	pinned   map[string]bool
}

func newHotSnapshots(capacity int) *hotSnapshots {
	return &hotSnapshots{
		capacity: capacity,
		lru:      list.New(),
		elements: make(map[string]*list.Element),
		pinned:   make(map[string]bool),
	}
}

func (h *hotSnapshots) pin(snapshotID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pinned[snapshotID] = true
}

// touch marks snapshotID hot (most-recently-used) and returns the
// snapshot id evicted as a result, if any, so the caller can drop its
// live engine table.
func (h *hotSnapshots) touch(snapshotID string) (evicted string, didEvict bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if elem, ok := h.elements[snapshotID]; ok {
		h.lru.MoveToBack(elem)
		return "", false
	}
	h.elements[snapshotID] = h.lru.PushBack(snapshotID)

	for h.lru.Len() > h.capacity {
		for elem := h.lru.Front(); elem != nil; elem = elem.Next() {
			id := elem.Value.(string)
			if h.pinned[id] {
				continue
			}
			h.lru.Remove(elem)
			delete(h.elements, id)
			return id, true
		}
		break // everything remaining is pinned
	}
	return "", false
}

// isHot reports whether snapshotID is currently resident, for the UI's
// "Instant"/"~2s" hint.
func (h *hotSnapshots) isHot(snapshotID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.elements[snapshotID]
	return ok || h.pinned[snapshotID]
}

func (h *hotSnapshots) drop(snapshotID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if elem, ok := h.elements[snapshotID]; ok {
		h.lru.Remove(elem)
		delete(h.elements, snapshotID)
	}
}
