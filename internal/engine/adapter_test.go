package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open("", diag.NewLogger(100))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestListTables_ReflectsCreatedTables(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.CreateTable(ctx, "people", []domain.ColumnInfo{{Name: "name", Type: "string"}}))
	require.NoError(t, eng.CreateTable(ctx, "products", []domain.ColumnInfo{{Name: "sku", Type: "string"}}))

	tables, err := eng.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "people")
	assert.Contains(t, tables, "products")
}

func TestRenameColumn_UpdatesSchemaAndPreservesData(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string"}}
	require.NoError(t, eng.CreateTable(ctx, "people", cols))
	require.NoError(t, eng.InsertRows(ctx, "people", cols, []domain.Row{{"name": "Alice"}}))

	require.NoError(t, eng.RenameColumn(ctx, "people", "name", "full_name"))

	described, err := eng.DescribeColumns(ctx, "people")
	require.NoError(t, err)
	names := make([]string, len(described))
	for i, c := range described {
		names[i] = c.Name
	}
	assert.Contains(t, names, "full_name")
	assert.NotContains(t, names, "name")

	val, err := eng.Query(ctx, `SELECT "full_name" FROM "people"`)
	require.NoError(t, err)
	defer val.Close()
	rows, err := ScanRows(val)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0]["full_name"])
}

func TestReorderColumns_PreservesRowsAndIdentity(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{
		{Name: "first", Type: "string"},
		{Name: "second", Type: "string"},
	}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{{"first": "a", "second": "b"}}))

	require.NoError(t, eng.ReorderColumns(ctx, "t", []string{"second", "first"}))

	described, err := eng.DescribeColumns(ctx, "t")
	require.NoError(t, err)
	require.Len(t, described, 2)
	assert.Equal(t, "second", described[0].Name)
	assert.Equal(t, "first", described[1].Name)

	count, err := eng.RowCount(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEstimateCSIDForOffset_ReturnsCSIDAtOffset(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string"}}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{
		{"name": "a"}, {"name": "b"}, {"name": "c"},
	}))

	csID, err := eng.EstimateCSIDForOffset(ctx, "t", 1)
	require.NoError(t, err)
	require.NotNil(t, csID)
	assert.Equal(t, int64(2), *csID)
}

func TestEstimateCSIDForOffset_BeyondRowCountReturnsNil(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string"}}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{{"name": "a"}}))

	csID, err := eng.EstimateCSIDForOffset(ctx, "t", 10)
	require.NoError(t, err)
	assert.Nil(t, csID)
}

func TestDeleteByCSIDs_RemovesOnlyGivenRows(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string"}}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))
	require.NoError(t, eng.InsertRows(ctx, "t", cols, []domain.Row{
		{"name": "a"}, {"name": "b"}, {"name": "c"},
	}))

	require.NoError(t, eng.DeleteByCSIDs(ctx, "t", []int64{2}))

	count, err := eng.RowCount(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestInsertRowsPreserveIdentity_KeepsOriginalCSIDs(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string"}}
	require.NoError(t, eng.CreateTable(ctx, "t", cols))

	rows := []domain.Row{
		{domain.CSIDColumn: int64(5), domain.OriginIDColumn: "origin-5", "name": "e"},
	}
	require.NoError(t, eng.InsertRowsPreserveIdentity(ctx, "t", cols, rows))

	val, err := eng.Query(ctx, `SELECT "_cs_id", "name" FROM "t"`)
	require.NoError(t, err)
	defer val.Close()
	scanned, err := ScanRows(val)
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, int64(5), scanned[0][domain.CSIDColumn])
}
