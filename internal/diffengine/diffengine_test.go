package diffengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

func newDiffEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Open("", diag.NewLogger(100))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestMaterializeCompareOriginal_ClassifiesEachStatus(t *testing.T) {
	eng := newDiffEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string", Nullable: true}}

	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{
		{"name": "Alice"},
		{"name": "Bob"},
		{"name": "Carol"},
	}))

	original, err := ReadLiveSource(ctx, eng, "t")
	require.NoError(t, err)

	// mutate the live table: modify row 1, delete row 2, insert a new row
	require.NoError(t, eng.UpdateCell(ctx, "t", 1, "name", "Alicia"))
	require.NoError(t, eng.DeleteByCSIDs(ctx, "t", []int64{2}))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{{"name": "Dave"}}))

	current, err := ReadLiveSource(ctx, eng, "t")
	require.NoError(t, err)

	result, err := MaterializeCompareOriginal(ctx, eng, original, current)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.RowCount) // modified + removed + added; unchanged (Carol) excluded

	page, err := FetchPage(ctx, eng, result.TableName, 0, 10, "")
	require.NoError(t, err)
	require.Len(t, page, 3)

	statuses := map[domain.DiffStatus]int{}
	for _, r := range page {
		statuses[r.DiffStatus]++
	}
	assert.Equal(t, 1, statuses[domain.DiffModified])
	assert.Equal(t, 1, statuses[domain.DiffRemoved])
	assert.Equal(t, 1, statuses[domain.DiffAdded])
}

func TestMaterializeTwoTable_AlignsByKeyColumn(t *testing.T) {
	eng := newDiffEngine(t)
	ctx := context.Background()
	colsA := []domain.ColumnInfo{{Name: "sku", Type: "string"}, {Name: "price", Type: "float64"}}
	colsB := []domain.ColumnInfo{{Name: "sku", Type: "string"}, {Name: "price", Type: "float64"}}

	require.NoError(t, eng.CreateTable(ctx, "a", colsA))
	require.NoError(t, eng.InsertRows(ctx, "a", colsA, []domain.Row{
		{"sku": "X1", "price": 9.99},
		{"sku": "X2", "price": 5.0},
	}))
	require.NoError(t, eng.CreateTable(ctx, "b", colsB))
	require.NoError(t, eng.InsertRows(ctx, "b", colsB, []domain.Row{
		{"sku": "X1", "price": 10.99},
		{"sku": "X3", "price": 1.0},
	}))

	a, err := ReadLiveSource(ctx, eng, "a")
	require.NoError(t, err)
	b, err := ReadLiveSource(ctx, eng, "b")
	require.NoError(t, err)

	result, err := MaterializeTwoTable(ctx, eng, a, b, []string{"sku"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.RowCount) // X1 modified, X2 removed, X3 added
}

func TestGetRowsWithColumnChanges(t *testing.T) {
	eng := newDiffEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string", Nullable: true}}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{{"name": "Alice"}}))

	original, err := ReadLiveSource(ctx, eng, "t")
	require.NoError(t, err)
	require.NoError(t, eng.UpdateCell(ctx, "t", 1, "name", "Alicia"))
	current, err := ReadLiveSource(ctx, eng, "t")
	require.NoError(t, err)

	result, err := MaterializeCompareOriginal(ctx, eng, original, current)
	require.NoError(t, err)

	ids, err := GetRowsWithColumnChanges(ctx, eng, result.TableName, "name")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestValuesEqual_TreatsNilAndEmptyStringSame(t *testing.T) {
	assert.True(t, valuesEqual(nil, ""))
	assert.True(t, valuesEqual("", nil))
	assert.False(t, valuesEqual("a", "b"))
}
