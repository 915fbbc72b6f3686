package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_PushWithinCapacity(t *testing.T) {
	r := NewRing[int](3)

	_, evicted := r.Push(1)
	assert.False(t, evicted)
	_, evicted = r.Push(2)
	assert.False(t, evicted)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, []int{1, 2}, r.AppendTo(nil))

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 2, last)
}

func TestRing_EvictsOldestOnePerPush(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	old, evicted := r.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)

	old, evicted = r.Push(5)
	assert.True(t, evicted)
	assert.Equal(t, 2, old)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.AppendTo(nil))
}

func TestRing_Empty(t *testing.T) {
	r := NewRing[string](1)
	_, ok := r.Last()
	assert.False(t, ok)
	assert.Empty(t, r.AppendTo(nil))
}

func TestRing_PanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRing[int](0) })
}
