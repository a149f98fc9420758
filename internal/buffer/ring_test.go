package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushWithinCapacity(t *testing.T) {
	s := NewStore[int](5)
	s.Push(1)
	s.Push(2)
	s.Push(3)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int{1, 2, 3}, s.All())
}

func TestEvictionKeepsLastN(t *testing.T) {
	// Pushing N+1 items into a store of capacity N keeps exactly the
	// last N in original relative order.
	s := NewStore[int](3)
	for i := 1; i <= 4; i++ {
		s.Push(i)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int{2, 3, 4}, s.All())

	// Keep wrapping.
	for i := 5; i <= 10; i++ {
		s.Push(i)
	}
	assert.Equal(t, []int{8, 9, 10}, s.All())
}

func TestAllReturnsSnapshotCopy(t *testing.T) {
	s := NewStore[int](4)
	s.Push(1)
	s.Push(2)

	snap := s.All()
	s.Push(3)
	s.Push(4)
	s.Push(5)

	assert.Equal(t, []int{1, 2}, snap, "earlier snapshot must not observe later pushes")
}

func TestLatest(t *testing.T) {
	s := NewStore[string](2)

	_, ok := s.Latest()
	assert.False(t, ok)

	s.Push("a")
	s.Push("b")
	s.Push("c")

	got, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", got)
}

func TestClear(t *testing.T) {
	s := NewStore[int](3)
	s.Push(1)
	s.Push(2)
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.All())

	// Store remains usable after clearing.
	s.Push(7)
	assert.Equal(t, []int{7}, s.All())
}

func TestDefaultCapacity(t *testing.T) {
	s := NewStore[int](0)
	assert.Equal(t, DefaultCapacity, s.Cap())

	s = NewStore[int](-3)
	assert.Equal(t, DefaultCapacity, s.Cap())
}
