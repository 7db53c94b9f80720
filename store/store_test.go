package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"deltamain/internal/errs"
	"deltamain/snapshot/testsnapshot"
)

func newTestStore() (*Store, *testsnapshot.Manager) {
	mgr := testsnapshot.NewManager()
	s := New(mgr, Options{GCInterval: -1})
	return s, mgr
}

func TestCreateTableThenGetTableID(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	id, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)

	got, err := s.GetTableID("widgets")
	assert.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	_, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)
	_, err = s.CreateTable("widgets", nil)
	assert.ErrorIs(t, err, errs.ErrTableExists)
}

func TestGetTableIDOnUnknownNameFails(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	_, err := s.GetTableID("nope")
	assert.ErrorIs(t, err, errs.ErrTableNotFound)
}

func TestOperationsOnUnknownTableIDFail(t *testing.T) {
	s, mgr := newTestStore()
	defer s.Close()

	unknown := TableID(uuid.New())
	tx := mgr.Begin()
	_, err := s.Get(unknown, 1, tx)
	assert.ErrorIs(t, err, errs.ErrTableNotFound)

	err = s.Insert(unknown, 1, []byte("x"), tx)
	assert.ErrorIs(t, err, errs.ErrTableNotFound)
}

func TestInsertGetUpdateRemoveRoundTripThroughStore(t *testing.T) {
	s, mgr := newTestStore()
	defer s.Close()

	id, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)

	tx1 := mgr.Begin()
	assert.NoError(t, s.Insert(id, 1, []byte("v1"), tx1))
	tx1.Commit()

	read1 := mgr.Begin()
	res, err := s.Get(id, 1, read1)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), res.Payload)

	tx2 := mgr.Begin()
	assert.NoError(t, s.Update(id, 1, []byte("v2"), tx2))
	tx2.Commit()

	tx3 := mgr.Begin()
	assert.NoError(t, s.Remove(id, 1, tx3))
	tx3.Commit()

	read2 := mgr.Begin()
	_, err = s.Get(id, 1, read2)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRevertThroughStoreUndoesUncommittedWrite(t *testing.T) {
	s, mgr := newTestStore()
	defer s.Close()

	id, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)

	tx := mgr.Begin()
	assert.NoError(t, s.Insert(id, 1, []byte("v1"), tx))
	assert.NoError(t, s.Revert(id, 1, tx))
	tx.Commit()

	read := mgr.Begin()
	_, err = s.Get(id, 1, read)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestForceGCWithNoBackgroundCollectorStillSweeps(t *testing.T) {
	s, mgr := newTestStore()
	defer s.Close()

	id, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)

	tx1 := mgr.Begin()
	assert.NoError(t, s.Insert(id, 1, []byte("v1"), tx1))
	tx1.Commit()

	later := mgr.Begin()
	s.ForceGC()

	res, err := s.Get(id, 1, later)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), res.Payload)
}

func TestForceGCWithBackgroundCollectorRegistered(t *testing.T) {
	mgr := testsnapshot.NewManager()
	s := New(mgr, Options{GCInterval: 0})
	defer s.Close()

	id, err := s.CreateTable("widgets", nil)
	assert.NoError(t, err)

	tx1 := mgr.Begin()
	assert.NoError(t, s.Insert(id, 1, []byte("v1"), tx1))
	tx1.Commit()

	later := mgr.Begin()
	s.ForceGC()

	res, err := s.Get(id, 1, later)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), res.Payload)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	s.Close()
	s.Close()
}
