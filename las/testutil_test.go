package las

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"lastree/buffer"
	"lastree/codec"
	"lastree/common"
	"lastree/disk"
	"lastree/lasconfig"
)

// kv is the tuple shape every test in this package uses: an int64 key
// field plus a short string payload.
type kv struct {
	Key   common.Int64Key
	Value string
}

type kvCodec struct{}

func (kvCodec) Length(tuple any) int {
	t := tuple.(kv)
	return 8 + 2 + len(t.Value)
}

func (kvCodec) Serialize(dest []byte, tuple any) {
	t := tuple.(kv)
	binary.BigEndian.PutUint64(dest, uint64(t.Key))
	binary.BigEndian.PutUint16(dest[8:], uint16(len(t.Value)))
	copy(dest[10:], t.Value)
}

func (kvCodec) Deserialize(src []byte) any {
	key := common.Int64Key(binary.BigEndian.Uint64(src))
	n := int(binary.BigEndian.Uint16(src[8:]))
	value := string(src[10 : 10+n])
	return kv{Key: key, Value: value}
}

func (kvCodec) Field(tuple any, index int) common.Key {
	return tuple.(kv).Key
}

var _ codec.TupleCodec = kvCodec{}

// newTestLeafPage allocates a zeroed byte slice the size of one page and
// formats it as an empty leaf, returning a view over it.
func newTestLeafPage(pageSize int) *LeafNode {
	data := make([]byte, pageSize)
	return InitLeaf(Pointer(1), data, kvCodec{}, codec.Int64KeySerializer{}, 0)
}

// newTestDiskPool opens a fresh temp-file-backed buffer pool for tests
// that need real page allocation and I/O.
func newTestDiskPool(t *testing.T, poolSize int) *buffer.BufferPool {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "las-*.db")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dm, err := disk.NewManager(f.Name(), 256)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	return buffer.NewBufferPool(dm, poolSize)
}

// newTestTree builds a Tree over a small page size so ordinary test
// workloads exercise splits without inserting thousands of tuples.
func newTestTree(t *testing.T, cfg lasconfig.Config) *Tree {
	t.Helper()
	pool := newTestDiskPool(t, 64)
	tree, err := NewTree(pool, kvCodec{}, codec.Int64KeySerializer{}, cfg)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func kvVal(n int64) kv { return kv{Key: common.Int64Key(n), Value: "v"} }
