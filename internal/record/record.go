// Package record implements DMRecord, the on-wire/in-memory layout of a
// versioned record described in spec.md §4.4: a newest-to-oldest chain of
// versions spanning the main tier and the two delta-tier logs.
//
// A key's HashTable entry or insert-log slot always addresses the same
// "anchor" Node for that key's lifetime between GC cycles; concurrent
// updates CAS the anchor's own forward-looking newest pointer rather than
// rewriting the hash index or the log, which is what lets spec.md §4.3 say
// the hash index itself is only ever mutated by GC even though updates
// happen continuously between GC cycles. This mirrors the teacher's
// CAS-chain idiom (pkg/txn's MvStore is CAS-free because it snapshots a
// whole btree instead, but other_examples/okian-lfdb__entry.go's
// Entry{head atomic.Pointer[Version]} is the closer model: here the
// "head" field lives on the anchor node itself instead of a separate
// wrapper, because every anchor -- whether a main-tier chunk or an
// insert-log entry -- needs exactly one).
package record

import (
	"runtime"
	"sync/atomic"
)

// Type distinguishes a record node's physical origin and semantics.
type Type uint8

const (
	// TypeMain is a main-tier version, produced only by GC. A chain
	// anchored in the main tier always ends in a TypeMain node (spec.md §3
	// "the main tier is the oldest segment"); a chain anchored in the
	// insert log ends in its TypeLogInsert entry instead.
	TypeMain Type = iota
	// TypeLogInsert is a delta-tier insert log entry.
	TypeLogInsert
	// TypeLogUpdate is a delta-tier update log entry.
	TypeLogUpdate
	// TypeLogDelete is a delta-tier delete (tombstone) log entry.
	TypeLogDelete
)

func (t Type) String() string {
	switch t {
	case TypeMain:
		return "MAIN"
	case TypeLogInsert:
		return "LOG_INSERT"
	case TypeLogUpdate:
		return "LOG_UPDATE"
	case TypeLogDelete:
		return "LOG_DELETE"
	default:
		return "UNKNOWN"
	}
}

// Node is one version of one key. Nodes form two intertwined structures:
//
//   - previous links backward to the next-older version, strictly
//     decreasing in Version (spec.md §3).
//   - newest is a CAS-able forward pointer used only on an anchor node
//     (the node addressed by the hash index or the insert log): it points
//     at whichever version is currently the newest for this key, or nil if
//     the anchor itself still is.
type Node struct {
	key      uint64
	version  uint64
	typ      Type
	payload  []byte // nil for TypeLogDelete
	reverted atomic.Bool
	sealed   atomic.Bool
	previous atomic.Pointer[Node]
	newest   atomic.Pointer[Node]
}

// New creates an unsealed node. Callers finish initializing it and then
// call Seal to publish it to readers, mirroring the log entry state
// machine of spec.md §4.7 (RESERVED -> SEALED, or RESERVED -> REVERTED ->
// SEALED).
func New(key, version uint64, typ Type, payload []byte) *Node {
	return &Node{key: key, version: version, typ: typ, payload: payload}
}

// NewMain creates an already-sealed main-tier node. GC is the only
// producer of TypeMain nodes and always publishes them fully formed.
func NewMain(key, version uint64, payload []byte) *Node {
	n := &Node{key: key, version: version, typ: TypeMain, payload: payload}
	n.sealed.Store(true)
	return n
}

func (n *Node) Key() uint64     { return n.key }
func (n *Node) Version() uint64 { return n.version }
func (n *Node) Type() Type      { return n.typ }
func (n *Node) IsDeleted() bool { return n.typ == TypeLogDelete }
func (n *Node) Sealed() bool    { return n.sealed.Load() }
func (n *Node) Previous() *Node { return n.previous.Load() }

// SetPrevious links n to its next-older version. Writers call this before
// Seal; GC's compaction pass (internal/gc) also relinks already sealed
// nodes in place.
func (n *Node) SetPrevious(p *Node) {
	n.previous.Store(p)
}

// Payload returns the node's stored bytes. Callers must not mutate the
// returned slice.
func (n *Node) Payload() []byte { return n.payload }

// Seal publishes the node to readers. Until Seal is called, readers that
// reach this node via an iterator busy-wait (see internal/deltalog).
func (n *Node) Seal() {
	n.sealed.Store(true)
}

// WaitSealed busy-waits until n is sealed. Callers use this when they
// have already decided -- typically by pointer identity, as
// table.Table.Insert does for its own just-appended entry -- that n
// belongs to someone else and must be waited on rather than treated as
// their own unsealed reservation.
func (n *Node) WaitSealed() {
	for !n.sealed.Load() {
		runtime.Gosched()
	}
}

// Revert marks a log entry as logically deleted; once reverted, readers
// and GC skip it. A writer that loses the append-then-rescan race for
// insert, or the CAS race for update, reverts its own entry before
// sealing it (spec.md §4.7); table.Table.Revert also reverts an already
// sealed head written under the caller's own version.
func (n *Node) Revert() {
	n.reverted.Store(true)
}

// IsValidDataRecord reports whether this node is a live version: it was
// not reverted by its own writer. Callers (Table.Get's log scan, GC) must
// check this before treating a node as part of any key's visible history.
func (n *Node) IsValidDataRecord() bool {
	return !n.reverted.Load()
}

// currentHead returns whichever node is presently the newest version
// reachable from anchor: anchor itself, unless a CAS-based Update has
// chained a newer one onto it.
func (anchor *Node) currentHead() *Node {
	if h := anchor.newest.Load(); h != nil {
		return h
	}
	return anchor
}

// Head exposes currentHead to collaborators outside this package that
// must resolve a chain's current newest node directly, rather than via
// Data's snapshot-filtered walk: GC's compaction pass (internal/gc),
// which rewrites the whole chain and therefore needs every version
// regardless of any one snapshot's visibility.
func (anchor *Node) Head() *Node {
	return anchor.currentHead()
}

// AdoptHead installs head as anchor's current newest version directly,
// bypassing the CAS in Update. Only GC may call this, and only on an
// anchor it has exclusive ownership of because it has not yet been
// published into any page list or hash index.
func (anchor *Node) AdoptHead(head *Node) {
	anchor.newest.Store(head)
}

// Visibility is the pure predicate the caller's snapshot descriptor
// exposes; record.Data and record.Update depend only on this narrow
// interface rather than the whole snapshot.Descriptor, keeping this
// package independent of the snapshot package.
type Visibility interface {
	Version() uint64
	Visible(v uint64) bool
}

// DataResult is the outcome of walking a chain under a snapshot.
type DataResult struct {
	Payload    []byte
	Version    uint64
	IsNewest   bool // the visible version is the first valid (non-reverted) node in the chain
	WasDeleted bool
}

// Data resolves anchor's current head and walks the chain backward via
// Previous, returning the first version visible to snap. The three
// possible outcomes mirror spec.md §6's get() contract:
//
//   - found=true: a visible version exists; res is populated.
//   - found=false, blocked=true: the chain has at least one valid node but
//     none of them are visible to snap -- some writer (in-flight or
//     future) contests this key and the caller should report
//     not_in_snapshot rather than not_found.
//   - found=false, blocked=false: every node in the chain was an invalid
//     (reverted) entry; the caller should treat this exactly like the key
//     never existed.
func (anchor *Node) Data(snap Visibility) (res DataResult, found bool, blocked bool) {
	head := anchor.currentHead()
	first := true
	for cur := head; cur != nil; cur = cur.Previous() {
		if !cur.IsValidDataRecord() {
			// A reverted node was never a real version, so it does not
			// count as "the newest" for IsNewest's purposes either;
			// first stays set to whatever it was, meaning the next
			// valid node found (even though physically not the head)
			// is reported as the newest surviving version.
			continue
		}
		if snap.Visible(cur.version) || cur.version == snap.Version() {
			return DataResult{
				Payload:    cur.payload,
				Version:    cur.version,
				IsNewest:   first,
				WasDeleted: cur.typ == TypeLogDelete,
			}, true, false
		}
		first = false
		blocked = true
	}
	return DataResult{}, false, blocked
}

// Update atomically extends anchor's chain by making next the new current
// head, setting next's Previous to the old head. It follows spec.md
// §4.4's update(nextPtr, snapshot) contract: it fails (returns false) if
// the current head's version is not visible to snap and is not snap's own
// version -- a concurrent writer committed (or is in flight with) a
// version snap cannot see, so swinging in behind it would silently lose
// that writer's update. On failure the caller must revert and seal its
// own log entry (see spec.md §4.5's genericUpdate).
func (anchor *Node) Update(next *Node, snap Visibility) bool {
	for {
		old := anchor.newest.Load()
		head := old
		if head == nil {
			head = anchor
		}
		if head.IsValidDataRecord() && !snap.Visible(head.version) && head.version != snap.Version() {
			return false
		}
		next.SetPrevious(head)
		if anchor.newest.CompareAndSwap(old, next) {
			return true
		}
	}
}
