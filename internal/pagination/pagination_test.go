package pagination

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

func seedTable(t *testing.T, n int) *engine.Engine {
	t.Helper()
	log := diag.NewLogger(100)
	eng, err := engine.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	cols := []domain.ColumnInfo{{Name: "label", Type: "string", Nullable: true}}
	require.NoError(t, eng.CreateTable(context.Background(), "items", cols))
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{"label": fmt.Sprintf("item-%d", i+1)}
	}
	require.NoError(t, eng.InsertRows(context.Background(), "items", cols, rows))
	return eng
}

func TestFetchForward_FirstPage(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	page, err := mgr.FetchForward(context.Background(), "items", 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 10)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
	assert.Equal(t, "item-1", page.Rows[0]["label"])
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, int64(10), *page.NextCursor)
}

func TestFetchForward_LastPage(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	page, err := mgr.FetchForward(context.Background(), "items", 20, 10)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestFetchBackward_ReturnsAscendingOrder(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	page, err := mgr.FetchBackward(context.Background(), "items", 21, 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 10)
	assert.Equal(t, "item-11", page.Rows[0]["label"])
	assert.Equal(t, "item-20", page.Rows[9]["label"])
	assert.True(t, page.HasPrev)
	assert.True(t, page.HasNext)
}

func TestFetchBackward_FirstPageHasNoPrev(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	page, err := mgr.FetchBackward(context.Background(), "items", 6, 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 5)
	assert.False(t, page.HasPrev)
}

func TestPagination_ForwardBackwardAreInverse(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	fwd, err := mgr.FetchForward(context.Background(), "items", 10, 10)
	require.NoError(t, err)

	bwd, err := mgr.FetchBackward(context.Background(), "items", 21, 10)
	require.NoError(t, err)

	assert.Equal(t, fwd.Rows, bwd.Rows)
}

func TestInvalidateTable_ClearsCachedPages(t *testing.T) {
	eng := seedTable(t, 25)
	mgr := NewManager(eng)

	_, err := mgr.FetchForward(context.Background(), "items", 0, 10)
	require.NoError(t, err)

	key := pageKey{"items", 0, 10, "fwd"}
	assert.NotNil(t, mgr.get(key))

	mgr.InvalidateTable("items")
	assert.Nil(t, mgr.get(key))
}

func TestCachePage_EvictsLRUBeyondCapacity(t *testing.T) {
	eng := seedTable(t, 1000)
	mgr := NewManager(eng)
	mgr.capacity = 2

	_, err := mgr.FetchForward(context.Background(), "items", 0, 10)
	require.NoError(t, err)
	_, err = mgr.FetchForward(context.Background(), "items", 10, 10)
	require.NoError(t, err)
	_, err = mgr.FetchForward(context.Background(), "items", 20, 10)
	require.NoError(t, err)

	assert.Nil(t, mgr.get(pageKey{"items", 0, 10, "fwd"}))
	assert.NotNil(t, mgr.get(pageKey{"items", 20, 10, "fwd"}))
}

func TestDebouncer_CoalescesBurstIntoOneCall(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	calls := 0
	for i := 0; i < 5; i++ {
		d.Schedule(func(ctx context.Context) { calls++ })
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestDebouncer_StopPreventsCall(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	calls := 0
	d.Schedule(func(ctx context.Context) { calls++ })
	d.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, calls)
}
