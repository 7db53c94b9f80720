package gc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"deltamain/snapshot/testsnapshot"
)

type fakeTable struct {
	name  string
	calls atomic.Int64
	seen  atomic.Uint64
	fail  bool
}

func (f *fakeTable) Name() string { return f.name }

func (f *fakeTable) RunGC(minVersion uint64) error {
	f.calls.Add(1)
	f.seen.Store(minVersion)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func TestSweepOnceRunsGCOnEveryRegisteredTable(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, time.Hour)

	t1 := &fakeTable{name: "t1"}
	t2 := &fakeTable{name: "t2"}
	c.Register(t1)
	c.Register(t2)

	c.SweepOnce()
	assert.EqualValues(t, 1, t1.calls.Load())
	assert.EqualValues(t, 1, t2.calls.Load())
}

func TestSweepOnceUsesCommitManagerWatermark(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, time.Hour)

	tbl := &fakeTable{name: "t"}
	c.Register(tbl)

	tx := mgr.Begin()
	c.SweepOnce()
	assert.Equal(t, tx.Version(), tbl.seen.Load())
}

func TestUnregisterStopsFutureSweeps(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, time.Hour)

	tbl := &fakeTable{name: "t"}
	c.Register(tbl)
	c.Unregister("t")

	c.SweepOnce()
	assert.EqualValues(t, 0, tbl.calls.Load())
}

func TestSweepOnceContinuesPastAFailingTable(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, time.Hour)

	bad := &fakeTable{name: "bad", fail: true}
	good := &fakeTable{name: "good"}
	c.Register(bad)
	c.Register(good)

	c.SweepOnce()
	assert.EqualValues(t, 1, bad.calls.Load())
	assert.EqualValues(t, 1, good.calls.Load())
}

func TestRunSweepsOnEveryTick(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, 5*time.Millisecond)
	tbl := &fakeTable{name: "t"}
	c.Register(tbl)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for tbl.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	assert.GreaterOrEqual(t, tbl.calls.Load(), int64(2))
}

func TestStopReturnsImmediatelyWhenRunWasNeverStarted(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, time.Hour)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked forever when Run was never called")
	}
}

func TestStopHaltsARunningCollector(t *testing.T) {
	mgr := testsnapshot.NewManager()
	c := New(mgr, 5*time.Millisecond)

	go c.Run(context.Background())
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after Run started")
	}
}
