// Package colstore documents the column-store variant's seam without
// implementing it, per spec.md §3's closing note: "The column-store
// variant and the log-structured variant share the same external
// contract and differ only in main-tier layout." Building a second full
// main-tier layout is out of scope for this engine; what belongs here is
// the interface that layout would have to satisfy, so a future
// implementation has a concrete extension point rather than a prose
// description.
//
// No teacher or example repo in this corpus implements a column store;
// this package is grounded directly on spec.md §3's own description of
// what the variant would need, kept intentionally thin.
package colstore

import (
	"deltamain/internal/gc"
	"deltamain/internal/insertmap"
)

// MainTierLayout is what internal/gc.RewritePage and table.Table's GC
// driver require of a main-tier page representation. *gc.Page, the
// row-oriented layout this engine actually uses, satisfies it; a
// column-oriented layout (one page per row-group, per-column arrays
// plus a null bitmap, per spec.md §3) would satisfy it too by
// rewriting column arrays instead of row chunks while preserving the
// same compaction contract GC depends on.
type MainTierLayout interface {
	Len() int
	Full() bool
}

var _ MainTierLayout = (*gc.Page)(nil)

// Rewriter is the function shape of one compaction step over a layout:
// rewrite pending state under minVersion into dst and report whether it
// finished. gc.RewritePage and gc.PackInserts do this work for *gc.Page
// with their own concrete signatures (RewritePage also takes a source
// page and a resume cursor); neither is a Rewriter value.
type Rewriter func(minVersion uint64, insertMap *insertmap.Map, dst MainTierLayout) (done bool)
