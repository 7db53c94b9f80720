package deltalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"deltamain/internal/record"
)

func TestAppendAndIterateInOrder(t *testing.T) {
	log := New(4)
	for i := 0; i < 10; i++ {
		n := record.New(uint64(i), 1, record.TypeLogInsert, nil)
		n.Seal()
		log.Append(n)
	}

	var keys []uint64
	log.ForEach(func(n *record.Node) {
		keys = append(keys, n.Key())
	})
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, keys)
}

func TestAppendSpansMultiplePages(t *testing.T) {
	log := New(2)
	for i := 0; i < 7; i++ {
		n := record.New(uint64(i), 1, record.TypeLogInsert, nil)
		n.Seal()
		log.Append(n)
	}

	count := 0
	log.ForEach(func(n *record.Node) { count++ })
	assert.Equal(t, 7, count)
}

func TestConcurrentAppendersEachGetAUniqueSlot(t *testing.T) {
	log := New(8)
	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node := record.New(uint64(i), 1, record.TypeLogInsert, nil)
			node.Seal()
			log.Append(node)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	log.ForEach(func(n *record.Node) {
		seen[n.Key()] = true
	})
	assert.Len(t, seen, n)
}

func TestIteratorBusyWaitsOnUnsealedEntry(t *testing.T) {
	log := New(4)
	n := record.New(1, 1, record.TypeLogInsert, []byte("x"))
	log.Append(n)

	done := make(chan struct{})
	var got *record.Node
	go func() {
		it := log.NewIterator()
		v, ok := it.Next()
		if ok {
			got = v
		}
		close(done)
	}()

	n.Seal()
	<-done
	assert.Equal(t, n, got)
}
