// Package gc implements the GarbageCollector driver of spec.md §3.7: a
// background sweep across every table of a store, using a single
// minVersion watermark obtained from the injected commit manager.
//
// Grounded on the teacher's pkg/txn/e_executor.go, which runs a
// dedicated goroutine off a ticker to drive periodic work against
// shared state; here the periodic work is runGC instead of transaction
// scheduling, but the goroutine/ticker/stop-channel shape is the same.
package gc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deltamain/snapshot"
)

// Sweepable is the subset of table.Table the collector needs: a name for
// logging and a RunGC entry point. Declared here rather than imported
// from package table so this package has no dependency on it; table
// depends on nothing in gc, keeping the dependency graph one-directional
// the way the teacher's pkg/txn depends on pkg/db's collaborators, never
// the reverse.
type Sweepable interface {
	Name() string
	RunGC(minVersion uint64) error
}

// Collector periodically computes a watermark from its CommitManager and
// runs RunGC on every table currently registered with it.
type Collector struct {
	mu        sync.Mutex
	tables    map[string]Sweepable
	commitMgr snapshot.CommitManager
	interval  time.Duration

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started bool

	log *logrus.Entry
}

// New creates a Collector that sweeps every interval using commitMgr's
// MinVersion as the watermark. It does not start sweeping until Run is
// called.
func New(commitMgr snapshot.CommitManager, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		tables:    make(map[string]Sweepable),
		commitMgr: commitMgr,
		interval:  interval,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		log:       logrus.WithField("component", "gc.Collector"),
	}
}

// Register adds t to the set of tables swept on every tick. Registering a
// table with a name already registered replaces the previous entry.
func (c *Collector) Register(t Sweepable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[t.Name()] = t
}

// Unregister removes a table from the sweep set, called when a table is
// dropped.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, name)
}

// Run starts the background sweep loop; it returns once ctx is
// cancelled or Stop is called. Run is meant to be launched with `go`, in
// the same "one goroutine per store" shape as the teacher's executor
// loop.
func (c *Collector) Run(ctx context.Context) {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	defer close(c.stopped)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.SweepOnce()
		}
	}
}

// SweepOnce runs RunGC on every registered table using the current
// watermark. It is exported so ForceGC-style callers (spec.md §6's
// forceGC()) and tests can trigger an out-of-band sweep without waiting
// for the ticker.
func (c *Collector) SweepOnce() {
	minVersion := c.commitMgr.MinVersion()
	c.mu.Lock()
	tables := make([]Sweepable, 0, len(c.tables))
	for _, t := range c.tables {
		tables = append(tables, t)
	}
	c.mu.Unlock()

	for _, t := range tables {
		if err := t.RunGC(minVersion); err != nil {
			c.log.WithFields(logrus.Fields{"table": t.Name(), "minVersion": minVersion, "error": err}).Warn("runGC failed")
		}
	}
}

// Stop signals Run to return and waits for it to do so. Calling Stop
// before Run was ever started returns immediately; a Run invoked later
// observes the closed channel and returns at once.
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.stopped
	}
}
