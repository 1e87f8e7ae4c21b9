// Package visibility remembers which regions were visible on the last
// rendered frame.
package visibility

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Tracker holds one visibility bit and a last-seen frame per region.
type Tracker struct {
	bits     *bitset.BitSet
	lastSeen []uint64
}

// NewTracker sizes a tracker for capacity regions.
func NewTracker(capacity int) *Tracker {
	return &Tracker{
		bits:     bitset.New(uint(capacity)),
		lastSeen: make([]uint64, capacity),
	}
}

func (t *Tracker) check(id int) {
	if id < 0 || id >= len(t.lastSeen) {
		panic(fmt.Sprintf("visibility: region %d outside capacity %d", id, len(t.lastSeen)))
	}
}

// Mark records this frame's visibility of a region and reports whether it
// was visible last frame but is not now.
func (t *Tracker) Mark(id int, visible bool, frame uint64) (becameInvisible bool) {
	t.check(id)
	was := t.bits.Test(uint(id))
	if visible {
		t.bits.Set(uint(id))
		t.lastSeen[id] = frame
		return false
	}
	if was {
		t.bits.Clear(uint(id))
		return true
	}
	return false
}

// Visible reports the last recorded visibility of a region.
func (t *Tracker) Visible(id int) bool {
	t.check(id)
	return t.bits.Test(uint(id))
}

// Reset forgets a region, as when it is evicted.
func (t *Tracker) Reset(id int) {
	t.check(id)
	t.bits.Clear(uint(id))
	t.lastSeen[id] = 0
}

// Count returns the number of regions marked visible.
func (t *Tracker) Count() int {
	return int(t.bits.Count())
}

// Capacity returns the number of tracked regions.
func (t *Tracker) Capacity() int { return len(t.lastSeen) }

// LastSeen returns the frame a region was last visible, or 0.
func (t *Tracker) LastSeen(id int) uint64 {
	t.check(id)
	return t.lastSeen[id]
}

// LeastRecentlySeen picks the existing region that has gone longest without
// being visible. Ties go to the lowest id.
func (t *Tracker) LeastRecentlySeen(exists func(id int) bool) (int, bool) {
	best, found := -1, false
	var bestFrame uint64
	for id, frame := range t.lastSeen {
		if !exists(id) {
			continue
		}
		if !found || frame < bestFrame {
			best, bestFrame, found = id, frame, true
		}
	}
	return best, found
}
