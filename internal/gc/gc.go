// Package gc implements the per-page compaction pass described in
// spec.md §4.6: merging a main-tier page's existing chains with pending
// update-log entries and insert-log entries for the same key range into
// a freshly allocated output page.
//
// Grounded on original_source/deltamain/Table.cpp's Page::gc, the only
// place the original algorithm lives; the teacher has no compaction
// pass of its own (pkg/txn keeps its whole history in one btree.BTreeG
// and never compacts), so the rewrite/coalesce logic below follows the
// original directly while the surrounding style (doc comments, error
// handling, logging hooks) follows the teacher's conventions elsewhere
// in this module.
package gc

import (
	"deltamain/internal/insertmap"
	"deltamain/internal/page"
	"deltamain/internal/record"
)

// Page is a main-tier page: a fixed-capacity, densely packed run of
// anchor chains in ascending key order. Unlike internal/page.Page, which
// tracks raw byte capacity for allocator bookkeeping, Page here tracks
// record slots directly, since main-tier records in this engine are Go
// heap objects rather than a packed byte layout (see DESIGN.md for why
// that simplification is faithful to the spec's contract but not its
// literal memory layout). It still reserves one backing page.Page per
// instance from the shared allocator purely as an accounting token, so
// the engine's memory budget (spec.md §4.1/§7 out_of_memory) is actually
// charged against main-tier growth rather than left unenforced.
type Page struct {
	anchors  []*record.Node
	capacity int
	arena    *page.Page
}

// NewPage creates an empty output page that can hold up to capacity
// anchor chains, reserving one page from mgr to account for it against
// the store's memory budget. It returns mgr's errs.ErrOutOfMemory
// unchanged if the arena is exhausted.
func NewPage(capacity int, mgr *page.Manager) (*Page, error) {
	arena, err := mgr.Alloc()
	if err != nil {
		return nil, err
	}
	return &Page{capacity: capacity, arena: arena}, nil
}

// Release returns the page's reserved arena slot to mgr. Callers must
// not use p after calling Release. Safe to call on a page whose arena
// is already released (e.g. a zero-length page discarded right after
// NewPage): it is a no-op the second time.
func (p *Page) Release(mgr *page.Manager) {
	if p.arena == nil {
		return
	}
	mgr.Free(p.arena)
	p.arena = nil
}

// Len reports how many anchors are currently packed into the page.
func (p *Page) Len() int { return len(p.anchors) }

// Full reports whether the page has no room for another anchor.
func (p *Page) Full() bool { return len(p.anchors) >= p.capacity }

// append adds anchor to the page. Callers must check Full first.
func (p *Page) append(anchor *record.Node) {
	p.anchors = append(p.anchors, anchor)
}

// ForEach calls fn once per anchor, in the page's packed order (which is
// always ascending key order: both RewritePage's source walk and the
// leftover-insert walk proceed in key order).
func (p *Page) ForEach(fn func(*record.Node)) {
	for _, a := range p.anchors {
		fn(a)
	}
}

// Get returns the anchor for key if this page holds it, scanning
// linearly. Main pages are typically small (capacity in the low
// thousands) and this is only used by tests; Table.Get looks keys up
// through the hash index.
func (p *Page) Get(key uint64) (*record.Node, bool) {
	for _, a := range p.anchors {
		if a.Key() == key {
			return a, true
		}
	}
	return nil, false
}

// RewritePage compacts src under minVersion into dst, per spec.md §4.6's
// four-part contract:
//
//  1. every version >= minVersion visible before GC remains visible;
//  2. versions strictly older than minVersion are coalesced into a
//     single representative (the newest such version), dropped entirely
//     if that representative is a delete;
//  3. an insertMap entry for a key present in src (a pending insert that
//     postdates a delete already resident in src) is spliced into that
//     key's chain; entries for keys with no main-tier home are left for
//     PackInserts;
//  4. rewriting stops, returning done=false, if dst fills before src is
//     exhausted; the caller allocates a fresh dst and calls RewritePage
//     again with the same src and a resume cursor.
//
// RewritePage consumes insertMap entries as it uses them (via
// insertmap.Map.Delete) so that the final leftover-insert sweep in
// table.Table.RunGC only sees genuinely homeless keys.
func RewritePage(src *Page, minVersion uint64, insertMap *insertmap.Map, dst *Page, cursor int) (next int, done bool) {
	i := cursor
	for ; i < len(src.anchors); i++ {
		if dst.Full() {
			return i, false
		}
		anchor := src.anchors[i]
		rewritten := coalesce(anchor, minVersion)
		if pending, ok := insertMap.Get(anchor.Key()); ok && pending != anchor {
			rewritten = spliceInsert(rewritten, pending, minVersion)
			insertMap.Delete(anchor.Key())
		}
		if rewritten == nil {
			continue
		}
		dst.append(rewritten)
	}
	return i, true
}

// PackInserts packs insertMap's remaining entries (keys with no
// main-tier home at all) into dst in ascending key order, per spec.md
// §4.6 step 3: "insertMap still contains inserts whose key had no
// main-tier home. Pack these into additional fresh pages, in key
// order."
//
// It stops and returns done=false as soon as dst fills; the caller
// allocates a fresh dst and calls PackInserts again to continue.
func PackInserts(insertMap *insertmap.Map, minVersion uint64, dst *Page) (done bool) {
	full := false
	var consumed []uint64
	insertMap.Ascend(func(key uint64, anchor *record.Node) bool {
		if dst.Full() {
			full = true
			return false
		}
		rewritten := coalesce(anchor, minVersion)
		if rewritten != nil {
			dst.append(rewritten)
		}
		consumed = append(consumed, key)
		return true
	})
	// Ascend holds the map's read lock for the whole walk, so consumed
	// keys are deleted only after it returns.
	for _, key := range consumed {
		insertMap.Delete(key)
	}
	return !full
}

// coalesce walks anchor's chain from newest to oldest, keeping every
// version >= minVersion and collapsing the run of versions < minVersion
// into at most one representative: the newest of that run, or nothing
// if that representative is a delete. It returns a new anchor node for
// the rewritten chain, or nil if the whole chain collapses to nothing
// (every version was below the watermark and the newest of them was a
// delete).
//
// kept holds the original node objects, not copies, and rebuildAnchor
// below relinks their Previous pointers in place rather than copying
// them. That is only safe because minVersion is the store's reclamation
// watermark: any reader whose snapshot could still observe one of these
// nodes through a previously captured hashIndex/insertIndex entry is by
// construction a reader at or above minVersion, and every node this
// function relinks has version >= minVersion, so such a reader never
// needed the link this rewrite changes. A reader below minVersion is one
// GC has already decided not to serve precisely; it may see a torn
// chain, which is the same contract every other watermark-gated read
// path in this package relies on.
func coalesce(anchor *record.Node, minVersion uint64) *record.Node {
	head := anchor.Head()

	var kept []*record.Node
	var belowWatermarkNewest *record.Node
	for cur := head; cur != nil; cur = cur.Previous() {
		if !cur.IsValidDataRecord() {
			continue
		}
		if cur.Version() >= minVersion {
			kept = append(kept, cur)
			continue
		}
		if belowWatermarkNewest == nil {
			belowWatermarkNewest = cur
		}
	}

	if belowWatermarkNewest != nil && !belowWatermarkNewest.IsDeleted() {
		kept = append(kept, record.NewMain(belowWatermarkNewest.Key(), belowWatermarkNewest.Version(), belowWatermarkNewest.Payload()))
	}
	if len(kept) == 0 {
		return nil
	}

	// kept is in newest-to-oldest order already (we appended the
	// coalesced representative last, and it is by construction older
	// than everything kept before it). Relink into a fresh chain.
	for i := 0; i < len(kept)-1; i++ {
		kept[i].SetPrevious(kept[i+1])
	}
	return rebuildAnchor(kept)
}

// rebuildAnchor turns a newest-to-oldest slice of already-linked nodes
// into a fresh anchor: the oldest node becomes the new TypeMain anchor
// record (GC's whole point is to collapse everything into main-tier
// nodes), and the chain above it is preserved as-is.
func rebuildAnchor(kept []*record.Node) *record.Node {
	oldest := kept[len(kept)-1]
	anchor := record.NewMain(oldest.Key(), oldest.Version(), oldest.Payload())
	if len(kept) == 1 {
		return anchor
	}
	// Re-point the node just above the old oldest at the new anchor
	// (same version and payload, different identity) and leave the rest
	// of the chain untouched.
	kept[len(kept)-2].SetPrevious(anchor)
	newest := kept[0]
	sealAll(newest)
	anchor.AdoptHead(newest)
	return anchor
}

// spliceInsert folds a pending insert-log chain into an already
// rewritten main-tier chain for the same key, used when a key has both
// a main-tier record and a not-yet-compacted insert (spec.md §3: "An
// insert entry and a main-tier record for the same key may coexist
// transiently between commit and GC"). The insert side can only be
// newer, since a main-tier record for the key already existed when the
// insert was accepted -- which per Table.Insert's contract only
// succeeds over a prior delete.
func spliceInsert(mainChain *record.Node, pendingInsert *record.Node, minVersion uint64) *record.Node {
	if mainChain == nil {
		return coalesce(pendingInsert, minVersion)
	}
	mainHead := mainChain.Head()
	insertHead := pendingInsert.Head()
	if insertHead.Version() <= mainHead.Version() {
		return mainChain
	}
	sealAll(insertHead)
	// Walk back from the freshly spliced head until we reach a node
	// already anchored in mainChain's rewritten history, relinking as
	// we go so the combined chain is contiguous newest-to-oldest.
	cur := insertHead
	for {
		prev := cur.Previous()
		if prev == nil || prev.Version() <= mainHead.Version() {
			cur.SetPrevious(mainHead)
			break
		}
		cur = prev
	}
	mainChain.AdoptHead(insertHead)
	return mainChain
}

func sealAll(n *record.Node) {
	for cur := n; cur != nil; cur = cur.Previous() {
		cur.Seal()
	}
}
