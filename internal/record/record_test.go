package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSnapshot struct {
	version   uint64
	committed map[uint64]bool
}

func (f fakeSnapshot) Version() uint64 { return f.version }
func (f fakeSnapshot) Visible(v uint64) bool {
	if v == f.version {
		return true
	}
	return f.committed[v]
}

func TestDataReturnsNotFoundOnEmptyChain(t *testing.T) {
	anchor := NewMain(1, 5, []byte("hello"))
	anchor.Revert()

	_, found, blocked := anchor.Data(fakeSnapshot{version: 10, committed: map[uint64]bool{5: true}})
	assert.False(t, found)
	assert.False(t, blocked)
}

func TestDataFindsVisibleVersion(t *testing.T) {
	anchor := NewMain(1, 5, []byte("hello"))

	res, found, blocked := anchor.Data(fakeSnapshot{version: 10, committed: map[uint64]bool{5: true}})
	assert.True(t, found)
	assert.False(t, blocked)
	assert.Equal(t, []byte("hello"), res.Payload)
	assert.True(t, res.IsNewest)
}

func TestDataReportsBlockedWhenNothingIsVisible(t *testing.T) {
	anchor := NewMain(1, 8, []byte("hello"))

	res, found, blocked := anchor.Data(fakeSnapshot{version: 3, committed: map[uint64]bool{}})
	assert.False(t, found)
	assert.True(t, blocked)
	assert.Equal(t, DataResult{}, res)
}

func TestUpdateExtendsChainAndIsVisibleAfterward(t *testing.T) {
	anchor := NewMain(1, 5, []byte("v1"))
	snap := fakeSnapshot{version: 10, committed: map[uint64]bool{5: true}}

	next := New(1, 10, TypeLogUpdate, []byte("v2"))
	ok := anchor.Update(next, snap)
	assert.True(t, ok)
	next.Seal()

	res, found, _ := anchor.Data(fakeSnapshot{version: 11, committed: map[uint64]bool{5: true, 10: true}})
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), res.Payload)
	assert.True(t, res.IsNewest)
}

func TestUpdateFailsWhenHeadNotVisibleToSnapshot(t *testing.T) {
	anchor := NewMain(1, 5, []byte("v1"))
	writer1 := New(1, 6, TypeLogUpdate, []byte("v2-from-writer1"))
	assert.True(t, anchor.Update(writer1, fakeSnapshot{version: 6, committed: map[uint64]bool{5: true}}))
	writer1.Seal()

	// writer2 began before writer1 committed and still thinks version 5 is
	// the head; its update must fail rather than silently overwrite.
	writer2 := New(1, 7, TypeLogUpdate, []byte("v2-from-writer2"))
	ok := anchor.Update(writer2, fakeSnapshot{version: 5, committed: map[uint64]bool{}})
	assert.False(t, ok)
}

func TestIsValidDataRecordReflectsRevert(t *testing.T) {
	n := New(1, 1, TypeLogInsert, []byte("x"))
	assert.True(t, n.IsValidDataRecord())
	n.Revert()
	assert.False(t, n.IsValidDataRecord())
}

func TestTypeStringRoundTrips(t *testing.T) {
	assert.Equal(t, "MAIN", TypeMain.String())
	assert.Equal(t, "LOG_INSERT", TypeLogInsert.String())
	assert.Equal(t, "LOG_UPDATE", TypeLogUpdate.String())
	assert.Equal(t, "LOG_DELETE", TypeLogDelete.String())
}
