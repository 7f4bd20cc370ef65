package las

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lastree/buffer"
	"lastree/codec"
	"lastree/disk"
	"lastree/lasconfig"
)

// Database owns one buffer pool and disk manager shared by every Tree
// opened against it, so a process hosting several indexes over the same
// file pays for one cache rather than one per tree. It is an explicit
// value a caller constructs and passes around, never a package-level
// singleton: nothing here reaches for global mutable state.
type Database struct {
	ID uuid.UUID

	disk *disk.Manager
	pool *buffer.BufferPool

	mu    sync.Mutex
	trees map[string]*Tree
}

// OpenDatabase opens (creating if absent) the file at path as a
// Database backing one or more named trees. pageSize is the page
// granularity the file is read and written with. The file does not
// record its own page size, so an existing file is read with whatever
// pageSize is passed here. A zero pageSize uses disk.DefaultPageSize.
func OpenDatabase(path string, pageSize, poolSize int) (*Database, error) {
	if pageSize == 0 {
		pageSize = disk.DefaultPageSize
	}
	dm, err := disk.NewManager(path, pageSize)
	if err != nil {
		return nil, wrapIO("open-database", err)
	}
	return &Database{
		ID:    uuid.New(),
		disk:  dm,
		pool:  buffer.NewBufferPool(dm, poolSize),
		trees: make(map[string]*Tree),
	}, nil
}

// CreateTree formats a fresh tree under name and registers it with the
// database. A second call with the same name returns an error: use
// OpenTree to resume one created in a previous run.
func (d *Database) CreateTree(name string, tc codec.TupleCodec, ks codec.KeySerializer, cfg lasconfig.Config) (*Tree, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.trees[name]; exists {
		return nil, fmt.Errorf("las: tree %q already registered", name)
	}
	t, err := NewTree(d.pool, tc, ks, cfg)
	if err != nil {
		return nil, err
	}
	d.trees[name] = t
	return t, nil
}

// OpenTree resumes a tree previously created under name, given the page
// id its root lives at, and registers it with the database.
func (d *Database) OpenTree(name string, rootId Pointer, tc codec.TupleCodec, ks codec.KeySerializer, cfg lasconfig.Config) (*Tree, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.trees[name]; exists {
		return nil, fmt.Errorf("las: tree %q already registered", name)
	}
	t, err := OpenTree(d.pool, tc, ks, cfg, rootId)
	if err != nil {
		return nil, err
	}
	d.trees[name] = t
	return t, nil
}

// Tree returns a previously registered tree by name.
func (d *Database) Tree(name string) (*Tree, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.trees[name]
	return t, ok
}

// Close drains every registered tree's background sort worker, flushes
// all dirty pages, and closes the backing file.
func (d *Database) Close() error {
	d.mu.Lock()
	trees := make([]*Tree, 0, len(d.trees))
	for _, t := range d.trees {
		trees = append(trees, t)
	}
	d.mu.Unlock()

	for _, t := range trees {
		t.Close()
	}
	if err := d.pool.FlushAll(); err != nil {
		return wrapIO("close-database", err)
	}
	return wrapIO("close-database", d.disk.Close())
}
