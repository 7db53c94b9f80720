// Package page implements the fixed-size bump allocator the storage core
// charges its main-tier pages against.
//
// Grounded on the teacher's channel/mutex-guarded resource pattern (see
// pkg/txn/e_executor.go's single mutex around a shared channel); here a
// single mutex guards a free list and a carve-from-arena counter, since
// allocation is rare relative to reads and writes and does not need to be
// lock-free.
package page

import (
	"sync"

	"github.com/pkg/errors"

	"deltamain/internal/errs"
)

// DefaultSize is the page size, in bytes, a Manager uses when NewManager
// is given a non-positive one. The real tell::store engine uses 2 MiB
// pages; tests use a much smaller size (see Manager.PageSize) so that
// exhausting an arena is cheap to exercise.
const DefaultSize = 2 << 20

// Page is a fixed-capacity arena of bytes. It carries no zeroing contract:
// callers must initialize whatever region they reserve with Bump before
// reading it. A Page is never moved once handed to a caller; its backing
// array is allocated once and reused across GC cycles via the free list.
type Page struct {
	buf    []byte
	offset int
}

// Bump reserves n contiguous bytes from the page and returns the backing
// slice, or false if the page does not have room. It performs no
// synchronization of its own: callers that share a page across goroutines
// must serialize advancement themselves.
func (p *Page) Bump(n int) ([]byte, bool) {
	if p.offset+n > len(p.buf) {
		return nil, false
	}
	b := p.buf[p.offset : p.offset+n]
	p.offset += n
	return b, true
}

// Remaining reports how many bytes are still available in the page.
func (p *Page) Remaining() int {
	return len(p.buf) - p.offset
}

// Cap reports the page's total capacity in bytes.
func (p *Page) Cap() int {
	return len(p.buf)
}

func (p *Page) reset() {
	p.offset = 0
}

// Manager is a thread-safe bump allocator over a pre-reserved arena of
// fixed-size pages. Alloc fails with errs.ErrOutOfMemory once the arena is
// exhausted and the free list is empty; Free returns a page to the free
// list for reuse by a later Alloc.
//
// Manager performs no zeroing on reuse: a page's previous contents remain
// until the new owner overwrites them via Bump.
type Manager struct {
	mu        sync.Mutex
	pageSize  int
	maxPages  int
	allocated int
	free      []*Page
}

// NewManager creates a Manager that can hand out at most
// totalMemory/pageSize pages before Alloc starts returning
// errs.ErrOutOfMemory.
func NewManager(totalMemory int, pageSize int) *Manager {
	if pageSize <= 0 {
		pageSize = DefaultSize
	}
	maxPages := totalMemory / pageSize
	if maxPages < 1 {
		maxPages = 1
	}
	return &Manager{
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// PageSize reports the fixed size of pages this manager hands out.
func (m *Manager) PageSize() int {
	return m.pageSize
}

// Alloc returns a fresh or recycled page, or errs.ErrOutOfMemory if the
// arena is exhausted.
func (m *Manager) Alloc() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.free); n > 0 {
		p := m.free[n-1]
		m.free = m.free[:n-1]
		p.reset()
		return p, nil
	}
	if m.allocated >= m.maxPages {
		return nil, errors.Wrapf(errs.ErrOutOfMemory, "page manager: %d/%d pages in use", m.allocated, m.maxPages)
	}
	m.allocated++
	return &Page{buf: make([]byte, m.pageSize)}, nil
}

// Free returns p to the manager's free list. p must not be referenced by
// any live snapshot when Free is called; the caller is responsible for
// that ordering.
func (m *Manager) Free(p *Page) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = append(m.free, p)
}

// InUse reports how many pages are currently handed out: pages carved
// from the arena minus those sitting on the free list awaiting reuse.
func (m *Manager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated - len(m.free)
}
