package freeze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate/core/internal/changelog"
	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
	"github.com/cleanslate/core/internal/snapshot"
)

func newManager(t *testing.T) (*Manager, *engine.Engine) {
	t.Helper()
	log := diag.NewLogger(100)
	eng, err := engine.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	root := t.TempDir()
	store := snapshot.New(root)
	cl := changelog.New(root)
	t.Cleanup(func() { cl.Close() })

	return NewManager(eng, store, cl, log), eng
}

func seedPeople(t *testing.T, eng *engine.Engine, table string) {
	t.Helper()
	cols := []domain.ColumnInfo{{Name: "name", Type: "string", Nullable: true}}
	require.NoError(t, eng.CreateTable(context.Background(), table, cols))
	require.NoError(t, eng.InsertRows(context.Background(), table, cols, []domain.Row{
		{"name": "Alice"}, {"name": "Bob"},
	}))
}

func TestFreeze_DropsTableAndPersistsSnapshot(t *testing.T) {
	mgr, eng := newManager(t)
	ctx := context.Background()
	seedPeople(t, eng, "people")

	require.NoError(t, mgr.Freeze(ctx, "people"))

	exists, err := eng.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.False(t, exists)

	manifest, err := mgr.store.ReadManifest(frozenSnapshotID("people"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), manifest.TotalRows)
}

func TestFreeze_NonexistentTableIsNoop(t *testing.T) {
	mgr, _ := newManager(t)
	assert.NoError(t, mgr.Freeze(context.Background(), "ghost"))
}

func TestThaw_RestoresRowsFromFrozenSnapshot(t *testing.T) {
	mgr, eng := newManager(t)
	ctx := context.Background()
	seedPeople(t, eng, "people")
	require.NoError(t, mgr.Freeze(ctx, "people"))

	require.NoError(t, mgr.Thaw(ctx, "people"))

	exists, err := eng.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestThaw_AlreadyResidentIsNoop(t *testing.T) {
	mgr, eng := newManager(t)
	ctx := context.Background()
	seedPeople(t, eng, "people")

	require.NoError(t, mgr.Thaw(ctx, "people"))

	count, err := eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestThaw_MissingSnapshotReturnsErrMissingSnapshot(t *testing.T) {
	mgr, _ := newManager(t)
	err := mgr.Thaw(context.Background(), "ghost")
	require.Error(t, err)
	var merr *domain.ErrMissingSnapshot
	assert.ErrorAs(t, err, &merr)
}

func TestSwitchTo_FreezesOutgoingAndThawsIncoming(t *testing.T) {
	mgr, eng := newManager(t)
	ctx := context.Background()
	seedPeople(t, eng, "people")

	cols := []domain.ColumnInfo{{Name: "sku", Type: "string", Nullable: true}}
	require.NoError(t, eng.CreateTable(ctx, "products", cols))
	require.NoError(t, eng.InsertRows(ctx, "products", cols, []domain.Row{{"sku": "X1"}}))
	require.NoError(t, mgr.Freeze(ctx, "products"))

	require.NoError(t, mgr.SwitchTo(ctx, "people", "products"))

	peopleExists, err := eng.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.False(t, peopleExists)

	productsExists, err := eng.TableExists(ctx, "products")
	require.NoError(t, err)
	assert.True(t, productsExists)
}

func TestSwitchTo_SameTableDoesNotFreezeFirst(t *testing.T) {
	mgr, eng := newManager(t)
	ctx := context.Background()
	seedPeople(t, eng, "people")
	require.NoError(t, mgr.Freeze(ctx, "people"))

	require.NoError(t, mgr.SwitchTo(ctx, "people", "people"))

	count, err := eng.RowCount(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
