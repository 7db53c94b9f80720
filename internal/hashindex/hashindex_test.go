package hashindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderAndGetRoundTrip(t *testing.T) {
	b := NewBuilder[int](16)
	values := map[uint64]*int{}
	for i := uint64(1); i <= 10; i++ {
		v := int(i * 100)
		values[i] = &v
		b.Put(i, &v)
	}
	table := b.Finish()

	for i := uint64(1); i <= 10; i++ {
		got, ok := table.Get(i)
		assert.True(t, ok)
		assert.Equal(t, *values[i], *got)
	}

	_, ok := table.Get(999)
	assert.False(t, ok)
}

func TestGetOnNilTableIsAlwaysMiss(t *testing.T) {
	var table *Table[int]
	_, ok := table.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestPutPanicsOnReservedKey(t *testing.T) {
	b := NewBuilder[int](4)
	assert.Panics(t, func() {
		b.Put(EmptyKey, new(int))
	})
	assert.Panics(t, func() {
		b.Put(TombstoneKey, new(int))
	})
}

func TestForEachVisitsEveryLiveEntry(t *testing.T) {
	b := NewBuilder[int](8)
	want := map[uint64]int{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		vv := v
		b.Put(k, &vv)
	}
	table := b.Finish()

	got := map[uint64]int{}
	table.ForEach(func(key uint64, value *int) {
		got[key] = *value
	})
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), table.Len())
}

func TestIsReservedKey(t *testing.T) {
	assert.True(t, IsReservedKey(EmptyKey))
	assert.True(t, IsReservedKey(TombstoneKey))
	assert.False(t, IsReservedKey(42))
}
