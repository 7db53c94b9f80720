package testsnapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxSeesItsOwnUncommittedVersion(t *testing.T) {
	mgr := NewManager()
	tx := mgr.Begin()
	assert.True(t, tx.Visible(tx.Version()))
}

func TestUncommittedWriteIsNotVisibleToAnotherTransaction(t *testing.T) {
	mgr := NewManager()
	writer := mgr.Begin()
	reader := mgr.Begin()

	assert.False(t, reader.Visible(writer.Version()))
	writer.Commit()
	assert.False(t, reader.Visible(writer.Version()), "reader began before writer committed")
}

func TestCommittedWriteIsVisibleToLaterTransactions(t *testing.T) {
	mgr := NewManager()
	writer := mgr.Begin()
	writer.Commit()

	later := mgr.Begin()
	assert.True(t, later.Visible(writer.Version()))
}

func TestAbortedWriteIsNeverVisible(t *testing.T) {
	mgr := NewManager()
	writer := mgr.Begin()
	writer.Abort()

	later := mgr.Begin()
	assert.False(t, later.Visible(writer.Version()))
}

func TestMinVersionTracksOldestInFlightTransaction(t *testing.T) {
	mgr := NewManager()
	tx1 := mgr.Begin()
	tx2 := mgr.Begin()
	assert.Equal(t, tx1.Version(), mgr.MinVersion())

	tx1.Commit()
	assert.Equal(t, tx2.Version(), mgr.MinVersion())

	tx2.Commit()
	assert.Equal(t, mgr.next, mgr.MinVersion())
}
