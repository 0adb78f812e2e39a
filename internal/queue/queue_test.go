package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing[string](3)
	assert.Equal(t, 3, r.Cap())

	for _, v := range []string{"a", "b", "c"} {
		_, evicted := r.Push(v)
		assert.False(t, evicted)
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Items())

	old, evicted := r.Push("d")
	assert.True(t, evicted)
	assert.Equal(t, "a", old)

	old, evicted = r.Push("e")
	assert.True(t, evicted)
	assert.Equal(t, "b", old)

	assert.Equal(t, []string{"c", "d", "e"}, r.Items())
	assert.Equal(t, 3, r.Len())
}

func TestRing_FindReturnsNewest(t *testing.T) {
	type status struct {
		id   string
		done bool
	}

	r := NewRing[status](4)
	r.Push(status{id: "x"})
	r.Push(status{id: "y"})
	r.Push(status{id: "x", done: true})

	s, ok := r.Find(func(s status) bool { return s.id == "x" })
	assert.True(t, ok)
	assert.True(t, s.done)

	_, ok = r.Find(func(s status) bool { return s.id == "z" })
	assert.False(t, ok)
}

func TestRing_ZeroCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{2}, r.Items())
}

func TestRing_ConcurrentPush(t *testing.T) {
	r := NewRing[int](10)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Push(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	assert.Len(t, r.Items(), 10)
}
