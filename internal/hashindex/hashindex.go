// Package hashindex implements the concurrent key-to-main-tier-pointer map
// described in spec.md §4.3: a fixed-capacity open-addressing table from a
// 64-bit key to a pointer into the main tier.
//
// Per spec.md §5, the hash index is mutated only by the GC thread, which
// builds a brand-new table off to the side and installs it with a single
// atomic pointer swap; concurrent readers always see either the old table
// or the new one, never a partially built one. Table itself is therefore
// immutable once Finish is called on its Builder, which is what lets Get
// run without any locking or atomics beyond what the caller uses to load
// the *Table pointer.
package hashindex

import "math"

const (
	// EmptyKey is a reserved key: Put rejects it and callers must not use
	// it as a real key. Slots track occupancy with their own flag, not
	// with this value.
	EmptyKey uint64 = 0
	// TombstoneKey is the second reserved key, rejected by Put like
	// EmptyKey; a Table never deletes entries and stores no tombstones.
	// Both are exposed so callers can validate keys up front (spec.md §9
	// open question: expose the sentinels rather than bake them in).
	TombstoneKey uint64 = math.MaxUint64
)

// IsReservedKey reports whether k collides with a hash index sentinel and
// therefore cannot be used as a table key.
func IsReservedKey(k uint64) bool {
	return k == EmptyKey || k == TombstoneKey
}

type slot[V any] struct {
	key   uint64
	used  bool
	value *V
}

// Table is an immutable, fixed-capacity open-addressing map from key to a
// pointer of type *V. A nil Table behaves as an empty map.
type Table[V any] struct {
	slots []slot[V]
	mask  uint64
}

// Get returns the value stored for k, or (nil, false) if k is absent. A nil
// *Table always reports "not found".
func (t *Table[V]) Get(k uint64) (*V, bool) {
	if t == nil || len(t.slots) == 0 {
		return nil, false
	}
	i := hash64(k) & t.mask
	for probe := uint64(0); probe < uint64(len(t.slots)); probe++ {
		s := &t.slots[(i+probe)&t.mask]
		if !s.used {
			return nil, false
		}
		if s.key == k {
			return s.value, true
		}
	}
	return nil, false
}

// Len reports the number of live entries.
func (t *Table[V]) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, s := range t.slots {
		if s.used {
			n++
		}
	}
	return n
}

// ForEach calls fn once per live entry, in arbitrary order. fn must not
// retain the *Table across calls that could trigger a publish elsewhere;
// Table itself is immutable so this is purely a convenience for GC and
// tests.
func (t *Table[V]) ForEach(fn func(key uint64, value *V)) {
	if t == nil {
		return
	}
	for _, s := range t.slots {
		if s.used {
			fn(s.key, s.value)
		}
	}
}

// Builder accumulates key/value pairs single-threaded (the GC goroutine)
// before Finish publishes an immutable Table.
type Builder[V any] struct {
	slots []slot[V]
	mask  uint64
	count int
}

// NewBuilder creates a Builder with room for at least capacity entries at
// a comfortable load factor. Capacity is fixed for the lifetime of the
// resulting Table; resizing is out of scope per spec.md §4.3.
func NewBuilder[V any](capacity int) *Builder[V] {
	size := nextPow2(capacity*2 + 1)
	if size < 8 {
		size = 8
	}
	return &Builder[V]{
		slots: make([]slot[V], size),
		mask:  uint64(size - 1),
	}
}

// Put inserts or overwrites the value for k. Put panics if k is a reserved
// sentinel or the builder's capacity is exhausted, both of which indicate
// a caller bug (GC computing an undersized capacity), not a runtime
// condition.
func (b *Builder[V]) Put(k uint64, v *V) {
	if IsReservedKey(k) {
		panic("hashindex: attempt to insert a reserved sentinel key")
	}
	i := hash64(k) & b.mask
	for probe := uint64(0); probe < uint64(len(b.slots)); probe++ {
		s := &b.slots[(i+probe)&b.mask]
		if !s.used {
			s.used = true
			s.key = k
			s.value = v
			b.count++
			return
		}
		if s.key == k {
			s.value = v
			return
		}
	}
	panic("hashindex: builder capacity exhausted")
}

// Finish returns the immutable Table built so far. The Builder must not be
// used afterwards.
func (b *Builder[V]) Finish() *Table[V] {
	return &Table[V]{slots: b.slots, mask: b.mask}
}

// hash64 is a splitmix64-style finalizer, chosen for speed and adequate
// avalanche behaviour over the dense uint64 keys this store expects.
func hash64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
