// Package testsnapshot is a minimal, in-memory implementation of
// snapshot.Descriptor and snapshot.CommitManager, used by the engine's own
// tests and by callers that don't need a full distributed transaction
// coordinator.
//
// It is grounded on the teacher's Oracle (pkg/txn/c_scheduler.go), which
// hands out a monotonically increasing timestamp per transaction and
// tracks which timestamps are still in flight to compute a low watermark,
// and on original_source/deltamain's DummyCommitManager, which the
// original project's own tests use for exactly this purpose: a
// self-contained commit manager with no external WAL or network
// dependency.
package testsnapshot

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager assigns each transaction a monotonically increasing version at
// Begin and tracks which versions are committed, in flight, or aborted. It
// implements snapshot.CommitManager.
type Manager struct {
	mu        sync.Mutex
	next      uint64
	committed map[uint64]uint64 // version -> value of next when it committed
	inFlight  map[uint64]bool
	log       *logrus.Entry
}

// NewManager creates a Manager whose first assigned version is 1; version
// 0 is reserved to mean "no version" throughout the engine.
func NewManager() *Manager {
	return &Manager{
		next:      1,
		committed: make(map[uint64]uint64),
		inFlight:  make(map[uint64]bool),
		log:       logrus.WithField("component", "testsnapshot"),
	}
}

// Begin starts a new transaction and returns its Tx, both a writer handle
// (Commit/Abort) and a reader/writer snapshot.Descriptor.
func (m *Manager) Begin() *Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.next
	m.next++
	m.inFlight[v] = true
	m.log.WithField("version", v).Debug("begin")
	return &Tx{mgr: m, version: v}
}

// MinVersion returns the lowest version any in-flight transaction might
// still read or write, i.e. the GC watermark. With no transactions in
// flight it returns the next version to be assigned, since nothing older
// can ever be observed again.
func (m *Manager) MinVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := m.next
	for v := range m.inFlight {
		if v < min {
			min = v
		}
	}
	return min
}

// visible reports whether v was committed at or before snapshotVersion was
// taken. It is called by Tx.Visible, never directly.
func (m *Manager) visible(v uint64, snapshotVersion uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > snapshotVersion {
		return false
	}
	committedBefore, ok := m.committed[v]
	return ok && committedBefore <= snapshotVersion
}

func (m *Manager) commit(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed[v] = m.next
	delete(m.inFlight, v)
}

func (m *Manager) abort(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, v)
}

// snapshotOfCommitted returns the committed versions at or below upTo, in
// ascending order. Exposed only for diagnostics/tests; the engine never
// needs a materialized list.
func (m *Manager) snapshotOfCommitted(upTo uint64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, 0, len(m.committed))
	for v := range m.committed {
		if v <= upTo {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tx is both a transaction handle and a snapshot.Descriptor: its own
// version is always self-visible (spec.md §8 scenario 1: a transaction
// sees its own uncommitted writes), and any other version is visible only
// once Commit has returned for it.
type Tx struct {
	mgr     *Manager
	version uint64
	done    bool
}

// Version implements snapshot.Descriptor.
func (t *Tx) Version() uint64 { return t.version }

// Visible implements snapshot.Descriptor. A transaction always sees its
// own version; any other version must have committed at or before this
// transaction began.
func (t *Tx) Visible(v uint64) bool {
	if v == t.version {
		return true
	}
	return t.mgr.visible(v, t.version)
}

// Commit marks t's version as committed, making its writes visible to
// every transaction that begins afterward.
func (t *Tx) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.mgr.commit(t.version)
	t.mgr.log.WithField("version", t.version).Debug("commit")
}

// Abort discards t's version without making it visible to anyone. Any log
// entries t wrote must still be reverted by the caller; Abort alone does
// not rewrite the log.
func (t *Tx) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.mgr.abort(t.version)
	t.mgr.log.WithField("version", t.version).Debug("abort")
}
