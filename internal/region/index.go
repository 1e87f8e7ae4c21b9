// Package region groups sections into 8x4x8 regions, hands out section
// slots and mirrors the region table on the device.
package region

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-gl/mathgl/mgl64"

	"gputerrain/internal/cull"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
	"gputerrain/internal/section"
)

const (
	// Width and Depth are region extents in sections; Height is the vertical extent.
	Width  = 8
	Height = 4
	Depth  = 8

	// MaxIDs bounds region ids. Ids and the visible region count are both
	// packed into 16 bits on the device.
	MaxIDs = 1<<16 - 1

	// RecordSize is the size of one region record in the device table.
	RecordSize = 48
)

// Pos is a region coordinate.
type Pos struct {
	X, Y, Z int32
}

// Of returns the region holding a section.
func Of(s geometry.SectionPos) Pos {
	return Pos{s.X >> 3, s.Y >> 2, s.Z >> 3}
}

func localIndex(s geometry.SectionPos) int {
	return int(s.X&7) | int(s.Z&7)<<3 | int(s.Y&3)<<6
}

type region struct {
	pos      Pos
	count    int
	occupied *bitset.BitSet
}

// Index is the CPU side of the region table.
type Index struct {
	up    gpu.Uploader
	table gpu.Buffer

	maxRegions int
	ids        *bitset.BitSet
	byPos      map[Pos]int
	regions    []*region
}

// New creates an index for maxRegions regions.
func New(dev gpu.Device, up gpu.Uploader, maxRegions int) (*Index, error) {
	if maxRegions <= 0 || maxRegions > MaxIDs {
		panic(fmt.Sprintf("region: capacity %d outside 1..%d", maxRegions, MaxIDs))
	}
	table, err := dev.CreateBuffer("region table", maxRegions*RecordSize)
	if err != nil {
		return nil, fmt.Errorf("region index: %w", err)
	}
	return &Index{
		up:         up,
		table:      table,
		maxRegions: maxRegions,
		ids:        bitset.New(uint(maxRegions)),
		byPos:      make(map[Pos]int),
		regions:    make([]*region, maxRegions),
	}, nil
}

func (x *Index) get(id int) *region {
	if id < 0 || id >= x.maxRegions {
		panic(fmt.Sprintf("region: id %d outside capacity %d", id, x.maxRegions))
	}
	return x.regions[id]
}

// CreateSectionSlot assigns a slot to a section, creating its region if
// needed. It returns section.ErrNoSlot when every region id is taken.
func (x *Index) CreateSectionSlot(s geometry.SectionPos) (int, error) {
	p := Of(s)
	id, ok := x.byPos[p]
	if !ok {
		free, found := x.ids.NextClear(0)
		if !found || free >= uint(x.maxRegions) {
			return -1, fmt.Errorf("region: all %d regions in use, cannot place %v: %w", x.maxRegions, s, section.ErrNoSlot)
		}
		id = int(free)
		x.ids.Set(free)
		x.byPos[p] = id
		x.regions[id] = &region{pos: p, occupied: bitset.New(section.SectionsPerRegion)}
	}
	r := x.regions[id]
	local := localIndex(s)
	if r.occupied.Test(uint(local)) {
		panic(fmt.Sprintf("region: section %v already has a slot", s))
	}
	r.occupied.Set(uint(local))
	r.count++
	x.writeRecord(id)
	return id<<8 | local, nil
}

// RemoveSectionSlot frees a slot, dropping its region once empty.
func (x *Index) RemoveSectionSlot(slot int) {
	id, local := slot>>8, slot&0xff
	r := x.get(id)
	if r == nil || !r.occupied.Test(uint(local)) {
		panic(fmt.Sprintf("region: slot %d is not in use", slot))
	}
	r.occupied.Clear(uint(local))
	r.count--
	if r.count == 0 {
		delete(x.byPos, r.pos)
		x.regions[id] = nil
		x.ids.Clear(uint(id))
	}
	x.writeRecord(id)
}

//	0   i32 x, y, z
//	12  u32 section count
//	16  u64 x4 occupancy
func (x *Index) writeRecord(id int) {
	dst := x.up.Upload(x.table, id*RecordSize, RecordSize)
	r := x.regions[id]
	if r == nil {
		clear(dst)
		return
	}
	le := binary.LittleEndian
	le.PutUint32(dst[0:], uint32(r.pos.X))
	le.PutUint32(dst[4:], uint32(r.pos.Y))
	le.PutUint32(dst[8:], uint32(r.pos.Z))
	le.PutUint32(dst[12:], uint32(r.count))
	words := r.occupied.Words()
	for i := range 4 {
		var w uint64
		if i < len(words) {
			w = words[i]
		}
		le.PutUint64(dst[16+8*i:], w)
	}
}

// RegionExists reports whether a region id is in use.
func (x *Index) RegionExists(id int) bool {
	return x.get(id) != nil
}

// RegionPos returns the coordinate of a live region.
func (x *Index) RegionPos(id int) Pos {
	r := x.get(id)
	if r == nil {
		panic(fmt.Sprintf("region: %d does not exist", id))
	}
	return r.pos
}

// blockBounds is the world-space box of a region.
func (p Pos) blockBounds() (mn, mx mgl64.Vec3) {
	const s = geometry.SectionSize
	mn = mgl64.Vec3{float64(p.X) * Width * s, float64(p.Y) * Height * s, float64(p.Z) * Depth * s}
	mx = mn.Add(mgl64.Vec3{Width * s, Height * s, Depth * s})
	return mn, mx
}

// IsRegionVisible tests a region's box against the frustum.
func (x *Index) IsRegionVisible(f cull.Frustum, id int) bool {
	mn, mx := x.RegionPos(id).blockBounds()
	return f.IntersectsBox(mn, mx)
}

func axisDistance(c, lo, hi int32) int {
	switch {
	case c < lo:
		return int(lo - c)
	case c > hi:
		return int(c - hi)
	}
	return 0
}

// Distance is the Chebyshev distance in sections from a camera section to
// the nearest section of a region.
func (x *Index) Distance(id int, camera geometry.SectionPos) int {
	p := x.RegionPos(id)
	dx := axisDistance(camera.X, p.X*Width, p.X*Width+Width-1)
	dy := axisDistance(camera.Y, p.Y*Height, p.Y*Height+Height-1)
	dz := axisDistance(camera.Z, p.Z*Depth, p.Z*Depth+Depth-1)
	return max(dx, dy, dz)
}

// WithinDistance reports whether a region lies inside the horizontal square
// of half-width limit sections around the camera.
func (x *Index) WithinDistance(id, limit int, camera geometry.SectionPos) bool {
	p := x.RegionPos(id)
	dx := axisDistance(camera.X, p.X*Width, p.X*Width+Width-1)
	dz := axisDistance(camera.Z, p.Z*Depth, p.Z*Depth+Depth-1)
	return max(dx, dz) <= limit
}

// IsRegionInAxis reports whether the region spans the camera position on
// at least one axis.
func (x *Index) IsRegionInAxis(id int, camera mgl64.Vec3) bool {
	mn, mx := x.RegionPos(id).blockBounds()
	for i := range 3 {
		if mn[i] <= camera[i] && camera[i] < mx[i] {
			return true
		}
	}
	return false
}

// RegionOfSlot returns the region a slot belongs to.
func (x *Index) RegionOfSlot(slot int) int { return slot >> 8 }

// RegionSections returns the number of occupied slots of a region.
func (x *Index) RegionSections(id int) int {
	r := x.get(id)
	if r == nil {
		return 0
	}
	return r.count
}

// MaxRegions is the region capacity.
func (x *Index) MaxRegions() int { return x.maxRegions }

// MaxRegionIndex is one past the highest region id in use.
func (x *Index) MaxRegionIndex() int {
	for id := x.maxRegions - 1; id >= 0; id-- {
		if x.regions[id] != nil {
			return id + 1
		}
	}
	return 0
}

// RegionCount is the number of regions in use.
func (x *Index) RegionCount() int { return len(x.byPos) }

// TableAddress is the device address of the region table.
func (x *Index) TableAddress() uint64 { return x.table.Address() }

// Release frees the region table.
func (x *Index) Release() {
	x.table.Release()
	x.byPos = nil
}
