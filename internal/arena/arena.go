// Package arena allocates packed section geometry inside one device buffer.
//
// Addresses and sizes are counted in quads. The buffer is reserved at its
// full capacity up front so its device address never changes.
package arena

import (
	"errors"
	"fmt"
	"slices"

	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
)

// ErrFull is returned when no free span can hold an allocation.
var ErrFull = errors.New("geometry arena full")

// Addr is a quad offset into the arena.
type Addr uint32

type span struct {
	start, size int
}

// Arena is a first-fit allocator with a coalescing free list. Space past
// the high-water mark is handed out by bumping it.
type Arena struct {
	buf      gpu.Buffer
	capacity int
	top      int
	free     []span // sorted by start, never adjacent
	live     map[Addr]int
	used     int
}

// New reserves capacityQuads quads of device memory.
func New(dev gpu.Device, label string, capacityQuads int) (*Arena, error) {
	if capacityQuads <= 0 {
		return nil, fmt.Errorf("arena %q: invalid capacity %d", label, capacityQuads)
	}
	buf, err := dev.CreateBuffer(label, capacityQuads*geometry.QuadSize)
	if err != nil {
		return nil, fmt.Errorf("arena %q: %w", label, err)
	}
	return &Arena{buf: buf, capacity: capacityQuads, live: make(map[Addr]int)}, nil
}

// Alloc reserves quads quads.
func (a *Arena) Alloc(quads int) (Addr, error) {
	if quads <= 0 {
		panic(fmt.Sprintf("arena: alloc of %d quads", quads))
	}
	for i, s := range a.free {
		if s.size < quads {
			continue
		}
		if s.size == quads {
			a.free = slices.Delete(a.free, i, i+1)
		} else {
			a.free[i] = span{s.start + quads, s.size - quads}
		}
		return a.take(s.start, quads), nil
	}
	if a.top+quads > a.capacity {
		return 0, fmt.Errorf("alloc %d quads (%d of %d in use): %w", quads, a.used, a.capacity, ErrFull)
	}
	start := a.top
	a.top += quads
	return a.take(start, quads), nil
}

func (a *Arena) take(start, quads int) Addr {
	addr := Addr(start)
	a.live[addr] = quads
	a.used += quads
	return addr
}

// Free returns an allocation. Freeing an address that is not live panics.
func (a *Arena) Free(addr Addr) {
	size, ok := a.live[addr]
	if !ok {
		panic(fmt.Sprintf("arena: free of unallocated address %d", addr))
	}
	delete(a.live, addr)
	a.used -= size

	s := span{int(addr), size}
	i, _ := slices.BinarySearchFunc(a.free, s.start, func(f span, start int) int { return f.start - start })
	if i > 0 && a.free[i-1].start+a.free[i-1].size == s.start {
		i--
		s = span{a.free[i].start, a.free[i].size + s.size}
		a.free = slices.Delete(a.free, i, i+1)
	}
	if i < len(a.free) && s.start+s.size == a.free[i].start {
		s.size += a.free[i].size
		a.free = slices.Delete(a.free, i, i+1)
	}
	if s.start+s.size == a.top {
		a.top = s.start
		return
	}
	a.free = slices.Insert(a.free, i, s)
}

// Size returns the quad count of a live allocation.
func (a *Arena) Size(addr Addr) (int, bool) {
	n, ok := a.live[addr]
	return n, ok
}

// Upload returns the staging bytes for a live allocation.
func (a *Arena) Upload(up gpu.Uploader, addr Addr) []byte {
	size, ok := a.live[addr]
	if !ok {
		panic(fmt.Sprintf("arena: upload to unallocated address %d", addr))
	}
	return up.Upload(a.buf, int(addr)*geometry.QuadSize, size*geometry.QuadSize)
}

// Used returns the number of quads in live allocations.
func (a *Arena) Used() int { return a.used }

// Live returns the number of live allocations.
func (a *Arena) Live() int { return len(a.live) }

// Capacity returns the arena size in quads.
func (a *Arena) Capacity() int { return a.capacity }

// HighWater returns the first quad never handed out since the last time
// the arena drained down to it.
func (a *Arena) HighWater() int { return a.top }

// Address returns the device address of quad 0.
func (a *Arena) Address() uint64 { return a.buf.Address() }

// Release frees the device buffer.
func (a *Arena) Release() {
	a.buf.Release()
	a.live = nil
	a.free = nil
}
