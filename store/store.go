// Package store is the top-level facade described in spec.md §6: a
// multi-table engine keyed by tableId, composing package table's
// per-table engine with package gc's background collector and an
// injected snapshot.CommitManager.
//
// Grounded on the teacher's pkg/db.Db, which wraps pkg/txn's
// Oracle/Executor/MvStore trio behind New/View/Update/Stop; Store plays
// the same role one level up, wrapping many table.Table instances behind
// CreateTable/GetTableID/Get/Insert/Update/Remove/Revert/ForceGC/Close.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	gcdriver "deltamain/gc"
	"deltamain/internal/errs"
	"deltamain/internal/page"
	"deltamain/snapshot"
	"deltamain/table"
)

// TableID identifies a table within a Store, stable for the table's
// lifetime. It is minted from github.com/google/uuid rather than a bare
// counter so a TableID never needs a central allocator and stays stable
// across a store that is later sharded or restarted from a snapshot of
// its table catalogue.
type TableID uuid.UUID

// String renders id in the standard UUID text form.
func (id TableID) String() string { return uuid.UUID(id).String() }

// Options configures a Store. The zero value is a usable default.
type Options struct {
	// PageArenaBytes bounds the total memory the store's shared page
	// allocator hands out. Zero uses a generous default.
	PageArenaBytes int
	// PageSize is the fixed size of each page the allocator hands out.
	// Zero uses page.DefaultSize.
	PageSize int
	// GCInterval is how often the background collector sweeps every
	// table. Zero uses a 5 second default; a negative value disables the
	// background sweep entirely (callers must drive ForceGC themselves).
	GCInterval time.Duration
}

// Store is a collection of tables sharing one page allocator, one
// commit manager, and one background GC collector.
type Store struct {
	mu        sync.RWMutex
	byID      map[TableID]*table.Table
	byName    map[string]TableID
	pages     *page.Manager
	commitMgr snapshot.CommitManager
	collector *gcdriver.Collector

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	log *logrus.Entry
}

// New creates an empty Store. commitMgr is the injected transaction
// coordinator (spec.md's Non-goals: "the transaction coordinator /
// commit manager that issues snapshot descriptors and assigns versions"
// is external); package snapshot/testsnapshot provides a usable
// in-memory one for tests and standalone use.
func New(commitMgr snapshot.CommitManager, opts Options) *Store {
	if opts.PageArenaBytes <= 0 {
		opts.PageArenaBytes = 512 << 20
	}
	if opts.PageSize <= 0 {
		opts.PageSize = page.DefaultSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		byID:      make(map[TableID]*table.Table),
		byName:    make(map[string]TableID),
		pages:     page.NewManager(opts.PageArenaBytes, opts.PageSize),
		commitMgr: commitMgr,
		ctx:       ctx,
		cancel:    cancel,
		log:       logrus.WithField("component", "store"),
	}

	interval := opts.GCInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	if interval > 0 {
		s.collector = gcdriver.New(commitMgr, interval)
		go s.collector.Run(ctx)
	}
	return s
}

// CreateTable implements spec.md §6's createTable(name, schema) ->
// tableId.
func (s *Store) CreateTable(name string, schema table.Schema) (TableID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return TableID{}, errors.Wrapf(errs.ErrTableExists, "store: table %q", name)
	}
	id := TableID(uuid.New())
	t := table.New(name, schema, s.pages)
	s.byID[id] = t
	s.byName[name] = id
	if s.collector != nil {
		s.collector.Register(t)
	}
	s.log.WithFields(logrus.Fields{"table": name, "id": id}).Info("createTable")
	return id, nil
}

// GetTableID implements spec.md §6's getTableId(name) -> id.
func (s *Store) GetTableID(name string) (TableID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return TableID{}, errors.Wrapf(errs.ErrTableNotFound, "store: table %q", name)
	}
	return id, nil
}

func (s *Store) table(id TableID) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrTableNotFound, "store: table id %s", id)
	}
	return t, nil
}

// Get implements spec.md §6's get(tableId, key, snapshot, allocCb). This
// Go rendering returns the payload directly rather than taking a buffer
// allocator callback, since Go callers don't need to pre-size a
// destination buffer the way the original C++ API's callers did.
func (s *Store) Get(id TableID, key uint64, snap snapshot.Descriptor) (table.GetResult, error) {
	t, err := s.table(id)
	if err != nil {
		return table.GetResult{}, err
	}
	return t.Get(key, snap)
}

// Insert implements spec.md §6's insert(tableId, key, data, snapshot).
func (s *Store) Insert(id TableID, key uint64, payload []byte, snap snapshot.Descriptor) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	return t.Insert(key, payload, snap)
}

// Update implements spec.md §6's update(tableId, key, data, snapshot).
func (s *Store) Update(id TableID, key uint64, payload []byte, snap snapshot.Descriptor) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	return t.Update(key, payload, snap)
}

// Remove implements spec.md §6's remove(tableId, key, snapshot).
func (s *Store) Remove(id TableID, key uint64, snap snapshot.Descriptor) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	return t.Remove(key, snap)
}

// Revert implements spec.md §4.5's revert(k, snapshot), exposed at the
// store level alongside the rest of the per-key operations even though
// §6's summary table omits it (it is documented in full in §4.5 and the
// spec's explicit scope says every operation of the Table engine is in
// bounds).
func (s *Store) Revert(id TableID, key uint64, snap snapshot.Descriptor) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	return t.Revert(key, snap)
}

// ForceGC implements spec.md §6's forceGC(): an out-of-band sweep of
// every table using the commit manager's current watermark, for callers
// (and tests) that don't want to wait for the background ticker.
func (s *Store) ForceGC() {
	if s.collector != nil {
		s.collector.SweepOnce()
		return
	}
	// No background collector was configured (Options.GCInterval < 0);
	// sweep directly against the registered tables.
	s.mu.RLock()
	tables := make([]*table.Table, 0, len(s.byID))
	for _, t := range s.byID {
		tables = append(tables, t)
	}
	s.mu.RUnlock()
	minVersion := s.commitMgr.MinVersion()
	for _, t := range tables {
		if err := t.RunGC(minVersion); err != nil {
			s.log.WithFields(logrus.Fields{"table": t.Name(), "error": err}).Warn("forceGC: runGC failed")
		}
	}
}

// Close stops the background collector and releases the store. Tables
// and their data remain reachable through any handle still held, but no
// further GC sweeps run.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		if s.collector != nil {
			s.collector.Stop()
		}
		s.cancel()
	})
}
