// Package deltalog implements the two append-only logs of spec.md §3 (the
// insert log and the update log are two independent instances of the same
// structure). A Log is a forward-linked chain of fixed-capacity pages;
// writers reserve a slot with a single atomic increment and never block
// each other, and a reader walking the log with an Iterator busy-waits on
// a reserved-but-not-yet-sealed slot rather than skipping it, exactly as
// spec.md §4.7 requires ("readers must wait (spin) for RESERVED entries
// to become SEALED or REVERTED+SEALED, never skip them").
//
// The teacher repo has no equivalent lock-free append log -- pkg/txn
// serializes all writes through a single executor goroutine instead -- so
// this package is grounded directly on original_source/deltamain/Table.cpp
// (the insert/update LogImpl it drives) and on the same
// reserve-then-CAS-next-page pattern used by other_examples' MVCC stores
// for their version chains.
package deltalog

import (
	"runtime"
	"sync/atomic"

	"deltamain/internal/record"
)

// DefaultPageCapacity is the number of entries a single log page holds
// before a writer must allocate the next one.
const DefaultPageCapacity = 512

type page struct {
	entries  []atomic.Pointer[record.Node]
	len      atomic.Int64
	next     atomic.Pointer[page]
	capacity int64
}

func newPage(capacity int) *page {
	return &page{
		entries:  make([]atomic.Pointer[record.Node], capacity),
		capacity: int64(capacity),
	}
}

// Log is a lock-free, append-only sequence of record.Node entries. The
// zero value is not usable; construct with New.
type Log struct {
	capacity int
	head     atomic.Pointer[page]
	tail     atomic.Pointer[page]
}

// New creates an empty Log whose pages hold capacity entries each.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultPageCapacity
	}
	p := newPage(capacity)
	l := &Log{capacity: capacity}
	l.head.Store(p)
	l.tail.Store(p)
	return l
}

// Append reserves the next slot in the log and stores n there. It never
// blocks on another writer's in-progress append; it only blocks (via a
// short spin) if it must wait for a page extension that another goroutine
// has already started.
//
// Append does not seal n: callers (Table.Insert/Update/Remove) finish
// populating n and call n.Seal() themselves once it is safe for readers
// to observe, per spec.md §4.7's RESERVED -> SEALED state machine.
func (l *Log) Append(n *record.Node) {
	for {
		tail := l.tail.Load()
		idx := tail.len.Add(1) - 1
		if idx < tail.capacity {
			tail.entries[idx].Store(n)
			return
		}
		// This page is full. Whoever first notices CAS-installs the next
		// page; everyone else spins until it appears, then retries from
		// the (possibly still old) tail -- the outer loop re-reads
		// l.tail.Load() either way.
		l.extend(tail)
	}
}

func (l *Log) extend(full *page) {
	if full.next.Load() != nil {
		l.advanceTail(full)
		return
	}
	candidate := newPage(l.capacity)
	if full.next.CompareAndSwap(nil, candidate) {
		l.tail.CompareAndSwap(full, candidate)
		return
	}
	l.advanceTail(full)
}

func (l *Log) advanceTail(full *page) {
	for {
		next := full.next.Load()
		if next == nil {
			runtime.Gosched()
			continue
		}
		l.tail.CompareAndSwap(full, next)
		return
	}
}

// Iterator walks a Log from oldest entry to newest. A single Iterator
// must not be shared across goroutines; multiple independent Iterators
// over the same Log are safe.
type Iterator struct {
	cur *page
	idx int64
}

// NewIterator returns an Iterator positioned before the first entry.
func (l *Log) NewIterator() *Iterator {
	return &Iterator{cur: l.head.Load(), idx: -1}
}

// NextRaw advances the iterator and returns the next entry's pointer as
// soon as its slot is reserved, without waiting for it to be sealed.
// Most callers want Next instead; NextRaw exists for the two callers
// that must not block on an arbitrary unsealed entry: table.Table.Insert,
// which needs to recognize its own just-appended, still-unsealed entry
// by pointer identity before deciding whether to wait on anyone else's,
// and GC's insert-log scan (spec.md §4.6 step 1), which stops at the
// first unsealed entry rather than waiting for it.
func (it *Iterator) NextRaw() (*record.Node, bool) {
	for {
		if it.cur == nil {
			return nil, false
		}
		next := it.idx + 1
		// Check the page-advance condition before consulting len: a page
		// that overflowed (writers that lost the capacity race still
		// incremented len before retrying on the next page, see Append)
		// can report len > capacity, and must still be treated as
		// exhausted at capacity, not at that inflated len.
		if next >= it.cur.capacity {
			nxt := it.cur.next.Load()
			if nxt == nil {
				return nil, false
			}
			it.cur = nxt
			it.idx = -1
			continue
		}
		length := it.cur.len.Load()
		if length > it.cur.capacity {
			length = it.cur.capacity
		}
		if next >= length {
			return nil, false
		}
		it.idx = next
		for {
			n := it.cur.entries[it.idx].Load()
			if n != nil {
				return n, true
			}
			runtime.Gosched()
		}
	}
}

// Next advances the iterator and returns the next entry, busy-waiting
// until it is sealed before returning it, per spec.md §4.2's generic
// reader contract: "Readers that encounter an unsealed entry busy-wait
// on it."
func (it *Iterator) Next() (*record.Node, bool) {
	n, ok := it.NextRaw()
	if !ok {
		return nil, false
	}
	n.WaitSealed()
	return n, true
}

// ForEach walks every entry currently visible in the log, calling fn for
// each. It is a convenience for GC's insert-log/update-log scans.
func (l *Log) ForEach(fn func(*record.Node)) {
	it := l.NewIterator()
	for {
		n, ok := it.Next()
		if !ok {
			return
		}
		fn(n)
	}
}
