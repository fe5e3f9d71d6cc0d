package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushWithinCapacity(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Full())
	assert.Equal(t, []int{1, 2, 3}, r.Slice())
}

func TestPushEvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	old, evicted := r.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, 3, r.Len(), "length never exceeds capacity")
	assert.Equal(t, []int{2, 3, 4}, r.Slice())
	assert.NotContains(t, r.Slice(), 1)
}

func TestNewestIsMostRecentFirst(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{6, 5}, r.Newest(2))
	assert.Equal(t, []int{6, 5, 4, 3}, r.Newest(10))
	assert.Nil(t, r.Newest(0))
	// Newest does not consume.
	assert.Equal(t, 4, r.Len())
}

func TestPopFront(t *testing.T) {
	r := New[string](2)
	_, ok := r.PopFront()
	assert.False(t, ok)

	r.Push("a")
	r.Push("b")
	r.Push("c")

	v, ok := r.PopFront()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, r.Len())

	r.Push("d")
	assert.Equal(t, []string{"c", "d"}, r.Slice())
}

func TestDoAndReset(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	sum := 0
	r.Do(func(v int) { sum += v })
	assert.Equal(t, 3+4+5, sum)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Slice())
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
