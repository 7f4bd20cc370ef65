package las

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lastree/codec"
	"lastree/common"
	"lastree/lasconfig"
)

func TestDatabaseCreateTreeRejectsDuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bin")
	db, err := OpenDatabase(path, 0, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.CreateTree("orders", kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.NoError(t, err)

	_, err = db.CreateTree("orders", kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.Error(t, err)
}

func TestDatabaseTreesShareOneBufferPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bin")
	db, err := OpenDatabase(path, 0, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orders, err := db.CreateTree("orders", kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.NoError(t, err)
	customers, err := db.CreateTree("customers", kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, orders.Insert(kvVal(1)))
	require.NoError(t, customers.Insert(kvVal(2)))

	_, ok, err := orders.Get(common.Int64Key(1))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = customers.Get(common.Int64Key(2))
	require.NoError(t, err)
	require.True(t, ok)

	found, ok := db.Tree("orders")
	require.True(t, ok)
	require.Same(t, orders, found)
}

func TestDatabaseClosePersistsDataAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bin")

	db, err := OpenDatabase(path, 0, 16)
	require.NoError(t, err)
	tree, err := db.CreateTree("orders", kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.NoError(t, err)
	for i := int64(0); i < 20; i++ {
		require.NoError(t, tree.Insert(kvVal(i)))
	}
	rootId := tree.RootID()
	require.NoError(t, db.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	db2, err := OpenDatabase(path, 0, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	reopened, err := db2.OpenTree("orders", rootId, kvCodec{}, codec.Int64KeySerializer{}, lasconfig.DefaultConfig())
	require.NoError(t, err)

	for i := int64(0); i < 20; i++ {
		_, ok, err := reopened.Get(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d missing after reopen", i)
	}
}
