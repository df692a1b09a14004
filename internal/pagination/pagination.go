// Package pagination implements keyset-paginated reads over a live table:
// fetch_forward/fetch_backward walk _cs_id order directly in
// the engine so paging cost stays flat regardless of scroll depth, and an
// LRU page cache (a container/list-backed buffer pool) avoids re-querying
// pages the UI has already rendered.
package pagination

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

// Page is one window of rows plus the cursors needed to fetch its
// neighbors.
type Page struct {
	Rows        []domain.Row
	NextCursor  *int64
	PrevCursor  *int64
	HasNext     bool
	HasPrev     bool
}

type pageKey struct {
	tableID   string
	cursor    int64
	pageSize  int
	direction string
}

type cachedPage struct {
	key  pageKey
	page *Page
}

// Manager serves keyset pages over live tables and caches the most
// recently used pages, up to one capacity shared by all tables.
type Manager struct {
	eng      *engine.Engine
	capacity int
	prefetch int

	mu       sync.Mutex
	lru      *list.List
	elements map[pageKey]*list.Element
}

const (
	// DefaultCacheCapacity bounds how many pages stay resident per
	// workbench, matching the UI's realistic scroll window.
	DefaultCacheCapacity = 12
	// PrefetchRows is the prefetch window, in rows, stored on each new
	// Manager. FetchForward and FetchBackward read only the requested
	// page; nothing is fetched ahead of it.
	PrefetchRows = 1000
)

func NewManager(eng *engine.Engine) *Manager {
	return &Manager{
		eng:      eng,
		capacity: DefaultCacheCapacity,
		prefetch: PrefetchRows,
		lru:      list.New(),
		elements: make(map[pageKey]*list.Element),
	}
}

// FetchForward returns pageSize rows with _cs_id > afterCSID, in ascending
// order. afterCSID of 0 starts at the beginning of the table.
func (m *Manager) FetchForward(ctx context.Context, tableID string, afterCSID int64, pageSize int) (*Page, error) {
	key := pageKey{tableID, afterCSID, pageSize, "fwd"}
	if p := m.get(key); p != nil {
		return p, nil
	}

	cols, err := m.eng.DescribeColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	selectCols := selectList(cols)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE "%s" > ? ORDER BY "%s" ASC LIMIT ?`,
		selectCols, quoteIdent(tableID), domain.CSIDColumn, domain.CSIDColumn)
	rows, err := m.eng.Query(ctx, q, afterCSID, pageSize+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	page := &Page{HasPrev: afterCSID > 0}
	if afterCSID > 0 {
		prev := afterCSID
		page.PrevCursor = &prev
	}
	if len(scanned) > pageSize {
		page.HasNext = true
		scanned = scanned[:pageSize]
	}
	page.Rows = scanned
	if len(scanned) > 0 {
		next := toInt64(scanned[len(scanned)-1][domain.CSIDColumn])
		page.NextCursor = &next
	}

	m.put(key, page)
	return page, nil
}

// FetchBackward returns pageSize rows with _cs_id < beforeCSID, returned in
// ascending order for direct UI rendering.
func (m *Manager) FetchBackward(ctx context.Context, tableID string, beforeCSID int64, pageSize int) (*Page, error) {
	key := pageKey{tableID, beforeCSID, pageSize, "bwd"}
	if p := m.get(key); p != nil {
		return p, nil
	}

	cols, err := m.eng.DescribeColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	selectCols := selectList(cols)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE "%s" < ? ORDER BY "%s" DESC LIMIT ?`,
		selectCols, quoteIdent(tableID), domain.CSIDColumn, domain.CSIDColumn)
	rows, err := m.eng.Query(ctx, q, beforeCSID, pageSize+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	page := &Page{HasNext: true}
	hasPrev := len(scanned) > pageSize
	if hasPrev {
		scanned = scanned[:pageSize]
	}
	page.HasPrev = hasPrev
	for i, j := 0, len(scanned)-1; i < j; i, j = i+1, j-1 {
		scanned[i], scanned[j] = scanned[j], scanned[i]
	}
	page.Rows = scanned
	if len(scanned) > 0 {
		next := toInt64(scanned[len(scanned)-1][domain.CSIDColumn])
		page.NextCursor = &next
		prev := toInt64(scanned[0][domain.CSIDColumn])
		page.PrevCursor = &prev
	}

	m.put(key, page)
	return page, nil
}

// JumpToOffset estimates the _cs_id at offset (via the engine's sampled
// estimator) and returns the page starting there, for scrollbar-drag style
// jumps where an exact offset isn't worth a full table scan.
func (m *Manager) JumpToOffset(ctx context.Context, tableID string, offset int64, pageSize int) (*Page, error) {
	csid, err := m.eng.EstimateCSIDForOffset(ctx, tableID, offset)
	if err != nil {
		return nil, err
	}
	after := int64(0)
	if csid != nil {
		after = *csid - 1
	}
	return m.FetchForward(ctx, tableID, after, pageSize)
}

// InvalidateTable drops every cached page for tableID, called after any
// command mutates it.
func (m *Manager) InvalidateTable(tableID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, el := range m.elements {
		if k.tableID == tableID {
			m.lru.Remove(el)
			delete(m.elements, k)
		}
	}
}

func (m *Manager) get(key pageKey) *Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elements[key]
	if !ok {
		return nil
	}
	m.lru.MoveToFront(el)
	return el.Value.(*cachedPage).page
}

func (m *Manager) put(key pageKey, page *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.elements[key]; ok {
		el.Value.(*cachedPage).page = page
		m.lru.MoveToFront(el)
		return
	}
	el := m.lru.PushFront(&cachedPage{key: key, page: page})
	m.elements[key] = el
	for m.lru.Len() > m.capacity {
		back := m.lru.Back()
		if back == nil {
			break
		}
		m.lru.Remove(back)
		delete(m.elements, back.Value.(*cachedPage).key)
	}
}

func selectList(cols []domain.ColumnInfo) string {
	names := []string{`"` + domain.CSIDColumn + `"`, `"` + domain.OriginIDColumn + `"`}
	for _, c := range cols {
		names = append(names, `"`+c.Name+`"`)
	}
	return strings.Join(names, ", ")
}

func quoteIdent(name string) string { return `"` + name + `"` }

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Debouncer coalesces a burst of scroll-driven fetch requests into a
// single call after delay has passed with no new request, cancelling any
// in-flight call that the coalescing supersedes.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// DefaultDebounce matches the UI's ~50ms scroll-settle window.
const DefaultDebounce = 50 * time.Millisecond

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule cancels any pending call and arranges for fn to run after delay,
// with a context that is cancelled if Schedule is called again first.
func (d *Debouncer) Schedule(fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.timer = time.AfterFunc(d.delay, func() {
		if ctx.Err() == nil {
			fn(ctx)
		}
	})
}

// Stop cancels any pending scheduled call without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
}
