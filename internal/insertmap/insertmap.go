// Package insertmap indexes the insert log by key so that both
// Table.Update/Remove (finding a pending insert for a key with no
// main-tier entry yet) and GC's page rewrite (spec.md §4.6, "walks
// records ... in key order") can find entries without a linear scan of
// the whole log.
//
// Grounded on the teacher's use of github.com/tidwall/btree in
// pkg/f_mv_store.go (an ordered btree.BTreeG[Pair[K, V]] standing in for
// a version index, guarded by the same sync.RWMutex-around-a-tree shape
// used here); this package applies the identical pattern to an ordered
// key -> anchor map, which additionally gives GC's rewrite pass the
// key-order walk the original algorithm assumes for free.
package insertmap

import (
	"sync"

	"github.com/tidwall/btree"

	"deltamain/internal/record"
)

// entry is the btree.BTreeG element type, mirroring the teacher's
// Pair[K, V] convention.
type entry struct {
	key    uint64
	anchor *record.Node
}

// Map is a concurrency-safe ordered index from key to the anchor node
// most recently inserted for that key. It is a pure lookup accelerator:
// the insert log itself remains the source of truth, and a key present
// here that has since been compacted into the main tier is simply a
// stale hint callers double check by looking at the node's chain.
type Map struct {
	lock sync.RWMutex
	tree *btree.BTreeG[entry]
}

// New creates an empty Map.
func New() *Map {
	return &Map{
		tree: btree.NewBTreeG(func(a, b entry) bool {
			return a.key < b.key
		}),
	}
}

// Put records anchor as the current insert-log anchor for key, replacing
// any previous entry. Table.Insert calls it once its insert log entry for
// key is sealed, and RunGC calls it for every valid insert log entry when
// it rebuilds the map; updates to the same key extend the anchor's chain
// in place (see internal/record.Node.Update) and do not call Put.
func (m *Map) Put(key uint64, anchor *record.Node) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tree.Set(entry{key: key, anchor: anchor})
}

// Get returns the insert-log anchor for key, if one is currently known.
func (m *Map) Get(key uint64) (*record.Node, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	res, ok := m.tree.Get(entry{key: key})
	if !ok {
		return nil, false
	}
	return res.anchor, true
}

// Delete removes key's entry, called once GC has compacted that key's
// insert-log history into the main tier and the pointer is no longer
// needed.
func (m *Map) Delete(key uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tree.Delete(entry{key: key})
}

// Len reports the number of keys currently indexed.
func (m *Map) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.tree.Len()
}

// Ascend calls fn once per entry in ascending key order, stopping early
// if fn returns false. GC's page rewrite pass uses this to walk pending
// inserts in the same key order the main tier is compacted in.
func (m *Map) Ascend(fn func(key uint64, anchor *record.Node) bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	m.tree.Scan(func(e entry) bool {
		return fn(e.key, e.anchor)
	})
}
