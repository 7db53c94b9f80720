// Package table implements the Delta-Main table engine of spec.md §4.5:
// the component that composes a HashTable, an insert log, an update log
// and a swappable main-page list into get/insert/update/remove/revert and
// a background-triggered runGC.
//
// Grounded on the teacher's pkg/db.Db (internal/a_db.go), which wraps
// pkg/txn into the same View/Update-style facade shape; Table plays the
// analogous role one level down, as the single-table engine a store
// (package store) composes many of. Logging and error-wrapping follow
// the teacher's pkg/txn/z_error.go and e_executor.go conventions
// (github.com/sirupsen/logrus fields, github.com/pkg/errors.Wrap at
// call-site boundaries).
package table

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"

	"deltamain/internal/deltalog"
	"deltamain/internal/gc"
	"deltamain/internal/hashindex"
	"deltamain/internal/insertmap"
	"deltamain/internal/page"
	"deltamain/internal/record"
	"deltamain/snapshot"
)

// DefaultMainPageCapacity is the number of anchor chains a freshly
// allocated main-tier page can hold before GC must spill into another.
const DefaultMainPageCapacity = 4096

// pageList is the atomically swappable main-tier page list published by
// GC (spec.md §4.5: "atomically swappable main-page list (PageList*)").
type pageList struct {
	pages []*gc.Page
}

// Table is one Delta-Main table: a hash index over the main tier, two
// delta logs, and a GC-swappable page list, all guarded only where the
// spec calls for locking and otherwise lock-free.
type Table struct {
	name   string
	schema Schema

	hashIndex atomic.Pointer[hashindex.Table[record.Node]]
	mainPages atomic.Pointer[pageList]

	insertLog *deltalog.Log
	updateLog *deltalog.Log

	// insertIndex accelerates update/remove's "is there a pending insert
	// for this key" lookup and is rebuilt wholesale by RunGC from the
	// insert log's sealed entries (spec.md §4.6 step 1).
	insertIndex atomic.Pointer[insertmap.Map]

	pages *page.Manager

	gcMu sync.Mutex // serializes RunGC: "one GC per table at a time".

	log *logrus.Entry
}

// Schema is the minimal shape the storage core needs from the
// (out-of-scope, per spec.md's Non-goals) schema/tuple-layout library:
// enough to reject payloads that obviously don't belong to this table.
// A real deployment injects a richer implementation; this one exists so
// Table does not have to special-case "no schema" throughout its code.
type Schema interface {
	// Validate reports an error if payload cannot be stored under this
	// schema. The storage core never interprets payload bytes beyond
	// this check; see spec.md §6 "the storage core treats payloads as
	// opaque bytes".
	Validate(payload []byte) error
}

// TupleEncoder is the optional collaborator behind InsertTuple: a schema
// that also knows how to encode a caller-supplied tuple into the opaque
// payload bytes Insert expects.
type TupleEncoder interface {
	Create(tuple any) ([]byte, error)
}

// InsertTuple is a convenience wrapper over Insert for callers whose
// schema implements TupleEncoder, so they don't have to hand-encode
// bytes themselves when a codec is available.
func (t *Table) InsertTuple(key uint64, tuple any, snap snapshot.Descriptor) error {
	enc, ok := t.schema.(TupleEncoder)
	if !ok {
		return errors.Wrapf(ErrSchemaMismatch, "table %q: schema does not implement TupleEncoder", t.name)
	}
	payload, err := enc.Create(tuple)
	if err != nil {
		return errors.Wrapf(ErrSchemaMismatch, "table %q key %d: %v", t.name, key, err)
	}
	return t.Insert(key, payload, snap)
}

// New creates an empty Table named name, backed by pages allocated from
// pageMgr. pageMgr is shared across every table of a store, mirroring
// spec.md's "Global state: none beyond the engine instance. ... the
// page allocator is injected."
func New(name string, schema Schema, pageMgr *page.Manager) *Table {
	t := &Table{
		name:      name,
		schema:    schema,
		insertLog: deltalog.New(deltalog.DefaultPageCapacity),
		updateLog: deltalog.New(deltalog.DefaultPageCapacity),
		pages:     pageMgr,
		log:       logrus.WithFields(logrus.Fields{"component": "table", "table": name}),
	}
	t.hashIndex.Store(hashindex.NewBuilder[record.Node](0).Finish())
	t.mainPages.Store(&pageList{})
	t.insertIndex.Store(insertmap.New())
	return t
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// GetResult is the outcome of a successful Get.
type GetResult struct {
	Payload  []byte
	Version  uint64
	IsNewest bool
}

// Get implements spec.md §4.5's get(k, snapshot): consult the hash
// index first, falling through to an insert-log scan when the hash
// index has no entry, or its entry resolves to "not valid" / "newest
// and deleted" -- the case where a key was deleted and later
// reinserted but GC has not yet folded the reinsert into the main
// tier.
func (t *Table) Get(key uint64, snap snapshot.Descriptor) (GetResult, error) {
	if hashindex.IsReservedKey(key) {
		return GetResult{}, errs(errReservedKey, key)
	}

	if anchor, ok := t.hashIndex.Load().Get(key); ok {
		res, found, blocked := anchor.Data(snap)
		if found && !(res.WasDeleted && res.IsNewest) {
			return toGetResult(res), nil
		}
		if blocked {
			return GetResult{}, errors.Wrapf(ErrNotInSnapshot, "table %q key %d", t.name, key)
		}
	}

	blockedInLog := false
	it := t.insertLog.NewIterator()
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		if !n.Sealed() || n.Key() != key || !n.IsValidDataRecord() {
			continue
		}
		res, found, blocked := n.Data(snap)
		if blocked {
			blockedInLog = true
		}
		if found {
			if res.WasDeleted && res.IsNewest {
				continue
			}
			return toGetResult(res), nil
		}
	}

	if blockedInLog {
		return GetResult{}, errors.Wrapf(ErrNotInSnapshot, "table %q key %d", t.name, key)
	}
	return GetResult{}, errors.Wrapf(ErrNotFound, "table %q key %d", t.name, key)
}

func toGetResult(d record.DataResult) GetResult {
	return GetResult{Payload: d.Payload, Version: d.Version, IsNewest: d.IsNewest}
}

// Insert implements spec.md §4.5's insert(k, payload, snapshot): the
// append-then-rescan protocol that gives linearizable key uniqueness
// without ever taking a lock.
func (t *Table) Insert(key uint64, payload []byte, snap snapshot.Descriptor) error {
	if hashindex.IsReservedKey(key) {
		return errs(errReservedKey, key)
	}
	if t.schema != nil {
		if err := t.schema.Validate(payload); err != nil {
			return errors.Wrapf(ErrSchemaMismatch, "table %q key %d: %v", t.name, key, err)
		}
	}

	it0 := t.insertLog.NewIterator()

	if anchor, ok := t.hashIndex.Load().Get(key); ok {
		res, found, blocked := anchor.Data(snap)
		if blocked {
			return errors.Wrapf(ErrNotInSnapshot, "table %q key %d", t.name, key)
		}
		if found && !res.WasDeleted {
			return errors.Wrapf(ErrAlreadyExists, "table %q key %d", t.name, key)
		}
	}

	mine := record.New(key, snap.Version(), record.TypeLogInsert, payload)
	t.insertLog.Append(mine)

	for {
		n, ok := it0.NextRaw()
		if !ok {
			// it0 was snapshotted before mine was appended, so this
			// cannot happen before we reach mine; if it does, something
			// violated the log's append-order guarantee.
			panic("table: insert rescan exhausted log before reaching own entry")
		}
		if n == mine {
			mine.Seal()
			t.insertIndex.Load().Put(key, mine)
			t.log.WithFields(logrus.Fields{"key": key, "version": snap.Version()}).Debug("insert")
			return nil
		}
		// n belongs to a different, concurrent inserter; wait for it to
		// resolve to SEALED or REVERTED+SEALED before judging it, per
		// spec.md §4.7.
		n.WaitSealed()
		if n.Key() == key && n.IsValidDataRecord() {
			if res, found, _ := n.Data(snap); found && res.WasDeleted && res.IsNewest {
				// That earlier insert has since been removed, visibly to
				// snap, so it does not block this one.
				continue
			}
			mine.Revert()
			mine.Seal()
			return errors.Wrapf(ErrAlreadyExists, "table %q key %d", t.name, key)
		}
	}
}

// Update implements spec.md §4.5's update(k, payload, snapshot).
func (t *Table) Update(key uint64, payload []byte, snap snapshot.Descriptor) error {
	if t.schema != nil {
		if err := t.schema.Validate(payload); err != nil {
			return errors.Wrapf(ErrSchemaMismatch, "table %q key %d: %v", t.name, key, err)
		}
	}
	return t.genericUpdate(key, record.TypeLogUpdate, payload, snap)
}

// Remove implements spec.md §4.5's remove(k, snapshot).
func (t *Table) Remove(key uint64, snap snapshot.Descriptor) error {
	return t.genericUpdate(key, record.TypeLogDelete, nil, snap)
}

// Revert implements spec.md §4.5's revert(k, snapshot): a user-initiated
// rollback of the version k currently holds under snap. It marks the
// key's current head node reverted, provided that head was written under
// snap's own version, which is the only version a transaction is ever
// entitled to roll back; otherwise it fails with ErrConflict. No log
// entry is appended.
func (t *Table) Revert(key uint64, snap snapshot.Descriptor) error {
	anchor, err := t.findAnchor(key)
	if err != nil {
		return err
	}
	head := anchor.Head()
	if head.Version() != snap.Version() {
		return errors.Wrapf(ErrConflict, "table %q key %d: head version %d is not this snapshot's own version %d", t.name, key, head.Version(), snap.Version())
	}
	head.Revert()
	t.log.WithFields(logrus.Fields{"key": key, "version": snap.Version()}).Debug("revert")
	return nil
}

// genericUpdate backs both Update and Remove, per spec.md §4.5: locate
// the current head (hash index, else a scan of the insert log), append
// the new log entry, then CAS it onto the head.
func (t *Table) genericUpdate(key uint64, typ record.Type, payload []byte, snap snapshot.Descriptor) error {
	anchor, err := t.findAnchor(key)
	if err != nil {
		return err
	}

	next := record.New(key, snap.Version(), typ, payload)
	log := t.updateLog
	log.Append(next)

	if !anchor.Update(next, snap) {
		next.Revert()
		next.Seal()
		return errors.Wrapf(ErrConflict, "table %q key %d", t.name, key)
	}
	next.Seal()
	t.log.WithFields(logrus.Fields{"key": key, "version": snap.Version(), "type": typ.String()}).Debug("genericUpdate")
	return nil
}

// findAnchor locates the current anchor node for key: the hash index's
// main-tier entry, or else the first valid sealed insert-log entry for
// key. It never consults snapshot visibility -- that's Data/Update's
// job -- it only answers "does any record for this key exist at all".
func (t *Table) findAnchor(key uint64) (*record.Node, error) {
	if anchor, ok := t.hashIndex.Load().Get(key); ok {
		return anchor, nil
	}
	if anchor, ok := t.insertIndex.Load().Get(key); ok && anchor.IsValidDataRecord() {
		return anchor, nil
	}
	// insertIndex is rebuilt wholesale on RunGC and a successful Insert
	// also sets it directly (see Insert's t.insertIndex.Load().Put call),
	// but its entry for key may be reverted, or missing if RunGC replaced
	// the map after that Put, so fall back to a linear scan of the insert
	// log.
	var found *record.Node
	t.insertLog.ForEach(func(n *record.Node) {
		if found == nil && n.Sealed() && n.Key() == key && n.IsValidDataRecord() {
			found = n
		}
	})
	if found != nil {
		return found, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "table %q key %d", t.name, key)
}

// RunGC implements spec.md §4.6's Table::runGC(minVersion): build an
// InsertMap from the insert log's sealed entries, rewrite every
// existing main page under minVersion, then pack any still-homeless
// inserts into fresh pages, and publish the result atomically.
func (t *Table) RunGC(minVersion uint64) error {
	t.gcMu.Lock()
	defer t.gcMu.Unlock()

	im := insertmap.New()
	it := t.insertLog.NewIterator()
	for {
		n, ok := it.NextRaw()
		if !ok || !n.Sealed() {
			// Per spec.md §4.6 step 1: "Iterate the insert log up to the
			// first unsealed entry" -- GC does not wait for concurrent
			// inserters, it simply treats them as not-yet-committed for
			// this sweep.
			break
		}
		if n.IsValidDataRecord() {
			im.Put(n.Key(), n)
		}
	}

	old := t.mainPages.Load()
	var fresh []*gc.Page
	capacity := t.mainCapacity()

	for _, src := range old.pages {
		cursor := 0
		for {
			dst, err := gc.NewPage(capacity, t.pages)
			if err != nil {
				releaseAll(fresh, t.pages)
				return errors.Wrapf(err, "table %q: runGC", t.name)
			}
			next, done := gc.RewritePage(src, minVersion, im, dst, cursor)
			cursor = next
			if dst.Len() > 0 {
				fresh = append(fresh, dst)
			} else {
				dst.Release(t.pages)
			}
			if done {
				break
			}
		}
	}

	for {
		dst, err := gc.NewPage(capacity, t.pages)
		if err != nil {
			releaseAll(fresh, t.pages)
			return errors.Wrapf(err, "table %q: runGC", t.name)
		}
		done := gc.PackInserts(im, minVersion, dst)
		if dst.Len() > 0 {
			fresh = append(fresh, dst)
		} else {
			dst.Release(t.pages)
		}
		if done {
			break
		}
	}

	builder := hashindex.NewBuilder[record.Node](countAnchors(fresh))
	for _, p := range fresh {
		p.ForEach(func(n *record.Node) {
			builder.Put(n.Key(), n)
		})
	}
	t.hashIndex.Store(builder.Finish())
	t.mainPages.Store(&pageList{pages: fresh})
	t.insertIndex.Store(im)

	// old.pages' arenas are only an accounting token against the memory
	// budget (see internal/gc.Page): the anchors they tracked are Go heap
	// objects reachable independently through any reader's already-loaded
	// hashIndex/page-list snapshot, and Release never touches those.
	// Freeing the arena slots here, right after the new page list is
	// published, does not invalidate anything a concurrent reader is
	// still walking.
	releaseAll(old.pages, t.pages)

	t.log.WithFields(logrus.Fields{"minVersion": minVersion, "pages": len(fresh)}).Info("runGC")
	return nil
}

func (t *Table) mainCapacity() int {
	if t.pages == nil {
		return DefaultMainPageCapacity
	}
	// Estimate anchors-per-page from the byte page size, assuming a
	// conservative average stride; see DESIGN.md for why main-tier
	// pages here are slot-counted rather than byte-packed.
	est := t.pages.PageSize() / 64
	if est < 64 {
		est = DefaultMainPageCapacity
	}
	return est
}

// Keys returns every key visible to snap, in ascending order. It exists
// for inspection and test tooling, not the hot read/write path: it walks
// every main page and every insert-log entry and sorts the result with a
// throwaway tidwall/btree rather than maintaining one continuously,
// mirroring how internal/insertmap only keeps pending inserts ordered
// (the set this would need to stay ordered forever) and leaves ad hoc
// enumeration to a one-off sort.
func (t *Table) Keys(snap snapshot.Descriptor) []uint64 {
	seen := btree.NewBTreeG(func(a, b uint64) bool { return a < b })

	for _, p := range t.mainPages.Load().pages {
		p.ForEach(func(n *record.Node) {
			if res, found, _ := n.Data(snap); found && !(res.WasDeleted && res.IsNewest) {
				seen.Set(n.Key())
			}
		})
	}
	it := t.insertLog.NewIterator()
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		if !n.IsValidDataRecord() {
			continue
		}
		if res, found, _ := n.Data(snap); found && !(res.WasDeleted && res.IsNewest) {
			seen.Set(n.Key())
		}
	}

	keys := make([]uint64, 0, seen.Len())
	seen.Scan(func(k uint64) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

func countAnchors(pages []*gc.Page) int {
	n := 0
	for _, p := range pages {
		n += p.Len()
	}
	return n
}

func releaseAll(pages []*gc.Page, mgr *page.Manager) {
	for _, p := range pages {
		p.Release(mgr)
	}
}
