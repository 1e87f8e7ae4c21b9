package region

import (
	"encoding/binary"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gputerrain/internal/cull"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu/soft"
	"gputerrain/internal/section"
)

func newIndex(t *testing.T, capacity int) (*Index, *soft.Device) {
	t.Helper()
	dev := soft.New()
	x, err := New(dev, dev, capacity)
	require.NoError(t, err)
	return x, dev
}

func slotOf(t *testing.T, x *Index, pos geometry.SectionPos) int {
	t.Helper()
	slot, err := x.CreateSectionSlot(pos)
	require.NoError(t, err)
	return slot
}

func TestSlotsShareRegion(t *testing.T) {
	x, _ := newIndex(t, 4)
	a := slotOf(t, x, geometry.SectionPos{X: 0, Y: 0, Z: 0})
	b := slotOf(t, x, geometry.SectionPos{X: 7, Y: 3, Z: 7})
	c := slotOf(t, x, geometry.SectionPos{X: 8, Y: 0, Z: 0})

	assert.Equal(t, 0, x.RegionOfSlot(a))
	assert.Equal(t, 0, x.RegionOfSlot(b))
	assert.Equal(t, 1, x.RegionOfSlot(c))
	assert.Equal(t, 255, b&0xff)
	assert.Equal(t, 2, x.RegionSections(0))
	assert.Equal(t, 2, x.RegionCount())
	assert.Equal(t, 2, x.MaxRegionIndex())
	assert.Equal(t, Pos{1, 0, 0}, x.RegionPos(1))

	assert.Panics(t, func() { _, _ = x.CreateSectionSlot(geometry.SectionPos{X: 7, Y: 3, Z: 7}) })
}

func TestNegativeCoordinates(t *testing.T) {
	assert.Equal(t, Pos{-1, -1, -1}, Of(geometry.SectionPos{X: -1, Y: -1, Z: -8}))
	assert.Equal(t, Pos{-2, 0, 0}, Of(geometry.SectionPos{X: -9, Y: 3, Z: 7}))
}

func TestRemoveFreesRegionAndReusesLowestID(t *testing.T) {
	x, _ := newIndex(t, 4)
	s0 := slotOf(t, x, geometry.SectionPos{X: 0})
	slotOf(t, x, geometry.SectionPos{X: 8})
	s2 := slotOf(t, x, geometry.SectionPos{X: 16})

	x.RemoveSectionSlot(s0)
	assert.False(t, x.RegionExists(0))
	assert.Equal(t, 3, x.MaxRegionIndex())
	x.RemoveSectionSlot(s2)
	assert.Equal(t, 2, x.MaxRegionIndex())

	s := slotOf(t, x, geometry.SectionPos{X: 100})
	assert.Equal(t, 0, x.RegionOfSlot(s))
	assert.Panics(t, func() { x.RemoveSectionSlot(s2) })
}

func TestCapacityExceededReturnsErrNoSlot(t *testing.T) {
	x, _ := newIndex(t, 1)
	first := slotOf(t, x, geometry.SectionPos{})

	slot, err := x.CreateSectionSlot(geometry.SectionPos{X: 8})
	require.ErrorIs(t, err, section.ErrNoSlot)
	assert.Equal(t, -1, slot)
	assert.Equal(t, 1, x.RegionCount())

	// the existing region still takes sections
	second := slotOf(t, x, geometry.SectionPos{X: 1})
	x.RemoveSectionSlot(first)
	x.RemoveSectionSlot(second)
	assert.Zero(t, x.RegionCount())
	slotOf(t, x, geometry.SectionPos{X: 8})
}

func TestCapacityBounds(t *testing.T) {
	assert.Panics(t, func() { _, _ = New(soft.New(), soft.New(), 0) })
	assert.Panics(t, func() { _, _ = New(soft.New(), soft.New(), MaxIDs+1) })
	assert.Panics(t, func() { _, _ = New(soft.New(), soft.New(), 1<<16) })
}

func TestRegionRecordUpload(t *testing.T) {
	x, dev := newIndex(t, 2)
	slot := slotOf(t, x, geometry.SectionPos{X: -8, Y: 5, Z: 3})
	dev.Commit()

	rec := dev.Lookup("region table").Bytes()[:RecordSize]
	le := binary.LittleEndian
	assert.Equal(t, int32(-1), int32(le.Uint32(rec[0:])))
	assert.Equal(t, int32(1), int32(le.Uint32(rec[4:])))
	assert.Equal(t, int32(0), int32(le.Uint32(rec[8:])))
	assert.Equal(t, uint32(1), le.Uint32(rec[12:]))
	local := slot & 0xff
	word := le.Uint64(rec[16+8*(local/64):])
	assert.Equal(t, uint64(1)<<(local%64), word)

	x.RemoveSectionSlot(slot)
	dev.Commit()
	assert.Equal(t, make([]byte, RecordSize), dev.Lookup("region table").Bytes()[:RecordSize])
}

func TestDistanceAndAxis(t *testing.T) {
	x, _ := newIndex(t, 4)
	// region (1,0,0): sections x 8..15, y 0..3, z 0..7
	id := x.RegionOfSlot(slotOf(t, x, geometry.SectionPos{X: 9, Y: 1, Z: 2}))

	assert.Equal(t, 0, x.Distance(id, geometry.SectionPos{X: 10, Y: 2, Z: 4}))
	assert.Equal(t, 3, x.Distance(id, geometry.SectionPos{X: 5, Y: 0, Z: 0}))
	assert.Equal(t, 6, x.Distance(id, geometry.SectionPos{X: 12, Y: 9, Z: 1}))

	assert.True(t, x.WithinDistance(id, 0, geometry.SectionPos{X: 12, Y: 90, Z: 1}), "height is ignored")
	assert.False(t, x.WithinDistance(id, 2, geometry.SectionPos{X: 12, Y: 0, Z: 10}))
	assert.True(t, x.WithinDistance(id, 3, geometry.SectionPos{X: 12, Y: 0, Z: 10}))

	// block extent x 128..256, y 0..64, z 0..128
	assert.True(t, x.IsRegionInAxis(id, mgl64.Vec3{130, 500, -50}))
	assert.True(t, x.IsRegionInAxis(id, mgl64.Vec3{0, 63.9, -50}))
	assert.False(t, x.IsRegionInAxis(id, mgl64.Vec3{256, 64, 128}))
}

func TestIsRegionVisible(t *testing.T) {
	x, _ := newIndex(t, 4)
	ahead := x.RegionOfSlot(slotOf(t, x, geometry.SectionPos{X: 0, Y: 0, Z: -1}))
	behind := x.RegionOfSlot(slotOf(t, x, geometry.SectionPos{X: 0, Y: 0, Z: 24}))

	proj := mgl32.Perspective(mgl32.DegToRad(70), 1, 0.1, 1000)
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	f := cull.New(proj.Mul4(view), mgl64.Vec3{64, 32, 0})

	assert.True(t, x.IsRegionVisible(f, ahead))
	assert.False(t, x.IsRegionVisible(f, behind))
}

func TestWorksWithSectionManager(t *testing.T) {
	dev := soft.New()
	x, err := New(dev, dev, 4)
	require.NoError(t, err)
	m, err := section.NewManager(dev, dev, x, 4, 256)
	require.NoError(t, err)

	for z := range int32(4) {
		geom := make([]byte, geometry.QuadSize)
		require.NoError(t, m.Upload(&geometry.PackedSection{Pos: geometry.SectionPos{Z: z}, Geometry: geom, Quads: 1}))
	}
	require.True(t, x.RegionExists(0))
	assert.Equal(t, 4, x.RegionSections(0))

	assert.Equal(t, 4, m.EvictRegion(0))
	assert.False(t, x.RegionExists(0))
	assert.Zero(t, x.RegionCount())
}
