package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkEdges(t *testing.T) {
	tr := NewTracker(8)

	assert.False(t, tr.Mark(3, false, 1), "false to false is a no-op")
	assert.False(t, tr.Mark(3, true, 2), "false to true")
	assert.True(t, tr.Visible(3))
	assert.False(t, tr.Mark(3, true, 3), "true to true")
	assert.True(t, tr.Mark(3, false, 4), "true to false")
	assert.False(t, tr.Visible(3))
	assert.False(t, tr.Mark(3, false, 5), "only the first invisible frame is an edge")
	assert.Equal(t, uint64(3), tr.LastSeen(3))
}

func TestResetAndCount(t *testing.T) {
	tr := NewTracker(4)
	tr.Mark(0, true, 1)
	tr.Mark(2, true, 1)
	assert.Equal(t, 2, tr.Count())

	tr.Reset(2)
	assert.Equal(t, 1, tr.Count())
	assert.False(t, tr.Mark(2, false, 2), "a reset region has no edge")
}

func TestLeastRecentlySeen(t *testing.T) {
	tr := NewTracker(5)
	tr.Mark(0, true, 10)
	tr.Mark(1, true, 4)
	tr.Mark(2, true, 7)
	tr.Mark(4, true, 4)

	exists := func(id int) bool { return id != 3 }
	id, ok := tr.LeastRecentlySeen(exists)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok = tr.LeastRecentlySeen(func(int) bool { return false })
	assert.False(t, ok)
}

func TestOutOfRangePanics(t *testing.T) {
	tr := NewTracker(2)
	assert.Panics(t, func() { tr.Mark(2, true, 0) })
	assert.Panics(t, func() { tr.Visible(-1) })
}
