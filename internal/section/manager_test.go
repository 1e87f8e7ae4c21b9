package section

import (
	"testing"

	"gputerrain/internal/arena"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu/soft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex puts every section of region r at slots r<<8 .. r<<8+255,
// reusing the lowest free local index.
type fakeIndex struct {
	regionOf func(geometry.SectionPos) int
	used     map[int]bool
	full     bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		regionOf: func(p geometry.SectionPos) int { return int(p.X) },
		used:     map[int]bool{},
	}
}

func (f *fakeIndex) CreateSectionSlot(pos geometry.SectionPos) (int, error) {
	if f.full {
		return -1, ErrNoSlot
	}
	base := f.regionOf(pos) << 8
	for slot := base; slot < base+SectionsPerRegion; slot++ {
		if !f.used[slot] {
			f.used[slot] = true
			return slot, nil
		}
	}
	panic("region full")
}

func (f *fakeIndex) RemoveSectionSlot(slot int) {
	if !f.used[slot] {
		panic("slot not in use")
	}
	delete(f.used, slot)
}

func (f *fakeIndex) slotsIn(region int) int {
	n := 0
	for slot := range f.used {
		if slot>>8 == region {
			n++
		}
	}
	return n
}

func packed(pos geometry.SectionPos, quads int) *geometry.PackedSection {
	geom := make([]byte, quads*geometry.QuadSize)
	for i := range geom {
		geom[i] = byte(i*7 + int(pos.Z))
	}
	return &geometry.PackedSection{
		Pos:      pos,
		Geometry: geom,
		Quads:    quads,
		Offsets:  [geometry.PackedBuckets]uint16{uint16(quads), 0, 0, 0, 0, 0, 0, 0},
		Min:      [3]uint8{1, 2, 3},
		Size:     [3]uint8{14, 13, 12},
	}
}

func newManager(t *testing.T, arenaQuads int) (*Manager, *soft.Device, *fakeIndex) {
	t.Helper()
	dev := soft.New()
	idx := newFakeIndex()
	m, err := NewManager(dev, dev, idx, 4, arenaQuads)
	require.NoError(t, err)
	return m, dev, idx
}

func tableRecord(dev *soft.Device, slot int) []byte {
	b := dev.Lookup("section table").Bytes()
	return append([]byte(nil), b[slot*RecordSize:(slot+1)*RecordSize]...)
}

func TestUploadWritesRecordAndGeometry(t *testing.T) {
	m, dev, _ := newManager(t, 64)
	pos := geometry.SectionPos{X: 1, Y: -2, Z: 5}
	s := packed(pos, 3)
	require.NoError(t, m.Upload(s))
	dev.Commit()

	slot, ok := m.Slot(pos)
	require.True(t, ok)
	assert.Equal(t, 1<<8, slot)

	rec := DecodeRecord(tableRecord(dev, slot))
	assert.Equal(t, pos, rec.Pos)
	assert.Equal(t, s.Min, rec.Min)
	assert.Equal(t, s.Size, rec.Size)
	assert.Equal(t, s.Offsets, rec.Offsets)

	arenaBytes := dev.Lookup("geometry arena").Bytes()
	off := int(rec.Addr) * geometry.QuadSize
	assert.Equal(t, s.Geometry, arenaBytes[off:off+len(s.Geometry)])
}

func TestDeleteThenReuploadIsIdentical(t *testing.T) {
	m, dev, _ := newManager(t, 64)
	pos := geometry.SectionPos{X: 2, Y: 0, Z: 1}
	require.NoError(t, m.Upload(packed(pos, 5)))
	dev.Commit()
	slot, _ := m.Slot(pos)
	before := tableRecord(dev, slot)

	m.Delete(pos)
	dev.Commit()
	assert.Equal(t, make([]byte, RecordSize), tableRecord(dev, slot))
	assert.Zero(t, m.Arena().Live())

	require.NoError(t, m.Upload(packed(pos, 5)))
	dev.Commit()
	again, _ := m.Slot(pos)
	require.Equal(t, slot, again)
	assert.Equal(t, before, tableRecord(dev, slot))
}

func TestEmptyUploadDeletes(t *testing.T) {
	m, dev, idx := newManager(t, 64)
	pos := geometry.SectionPos{X: 0, Y: 3, Z: 3}
	require.NoError(t, m.Upload(packed(pos, 2)))
	dev.Commit()
	slot, _ := m.Slot(pos)

	require.NoError(t, m.Upload(&geometry.PackedSection{Pos: pos}))
	dev.Commit()

	_, ok := m.Slot(pos)
	assert.False(t, ok)
	assert.Zero(t, m.Arena().Live())
	assert.Zero(t, idx.slotsIn(0))
	assert.Equal(t, make([]byte, RecordSize), tableRecord(dev, slot))

	// deleting something never uploaded is a no-op
	require.NoError(t, m.Upload(&geometry.PackedSection{Pos: geometry.SectionPos{X: 3}}))
	require.NoError(t, m.Upload(nil))
}

func TestReuploadKeepsOneAllocation(t *testing.T) {
	m, dev, _ := newManager(t, 64)
	pos := geometry.SectionPos{X: 1}
	for quads := 1; quads <= 6; quads++ {
		require.NoError(t, m.Upload(packed(pos, quads)))
		assert.Equal(t, 1, m.Arena().Live())
		assert.Equal(t, quads, m.Arena().Used())
	}
	dev.Commit()
	info, ok := m.Info(pos)
	require.True(t, ok)
	assert.Equal(t, 6, info.Quads)
	rec := DecodeRecord(tableRecord(dev, info.Slot))
	assert.Equal(t, uint32(info.Addr), rec.Addr)
}

func TestEvictRegionReleasesSlots(t *testing.T) {
	m, dev, idx := newManager(t, 256)
	for z := range int32(3) {
		require.NoError(t, m.Upload(packed(geometry.SectionPos{X: 1, Z: z}, 2)))
	}
	require.NoError(t, m.Upload(packed(geometry.SectionPos{X: 2}, 2)))
	dev.Commit()
	require.Equal(t, 3, idx.slotsIn(1))

	assert.Equal(t, 3, m.EvictRegion(1))
	assert.Zero(t, idx.slotsIn(1))
	assert.Equal(t, 1, idx.slotsIn(2))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 1, m.Arena().Live())
	assert.Zero(t, m.EvictRegion(1))
}

func TestUploadArenaFull(t *testing.T) {
	m, dev, idx := newManager(t, 4)
	pos := geometry.SectionPos{X: 1}
	require.NoError(t, m.Upload(packed(pos, 3)))

	err := m.Upload(packed(pos, 5))
	require.ErrorIs(t, err, arena.ErrFull)
	dev.Commit()

	_, ok := m.Slot(pos)
	assert.False(t, ok, "a section that failed to upload is removed")
	assert.Zero(t, idx.slotsIn(1))
	assert.Equal(t, make([]byte, RecordSize), tableRecord(dev, 1<<8))
}

func TestSideTableFlags(t *testing.T) {
	m, _, _ := newManager(t, 16)
	pos := geometry.SectionPos{X: 1}
	assert.False(t, m.SetFlags(pos, 1))
	require.NoError(t, m.Upload(packed(pos, 1)))
	assert.True(t, m.SetFlags(pos, 0b101))
	require.NoError(t, m.Upload(packed(pos, 2)))
	info, _ := m.Info(pos)
	assert.Equal(t, uint32(0b101), info.Flags, "flags survive a re-upload")
}

func TestReleaseFreesBuffers(t *testing.T) {
	m, dev, _ := newManager(t, 16)
	assert.Equal(t, 2, dev.Live())
	m.Release()
	assert.Zero(t, dev.Live())
}

func TestRecordRoundTrip(t *testing.T) {
	in := Record{
		Pos:     geometry.SectionPos{X: -1000, Y: -4, Z: 123456},
		Min:     [3]uint8{0, 15, 7},
		Size:    [3]uint8{15, 0, 8},
		Addr:    0xdeadbeef,
		Offsets: [geometry.PackedBuckets]uint16{1, 2, 3, 4, 5, 6, 65535, 0},
	}
	buf := make([]byte, RecordSize)
	in.Encode(buf)
	assert.Equal(t, in, DecodeRecord(buf))
	assert.Equal(t, Record{}, DecodeRecord(make([]byte, RecordSize)))
}

func TestUploadWithoutFreeSlotReturnsErrNoSlot(t *testing.T) {
	m, _, idx := newManager(t, 64)
	idx.full = true
	pos := geometry.SectionPos{X: 2}

	err := m.Upload(packed(pos, 2))
	require.ErrorIs(t, err, ErrNoSlot)
	_, ok := m.Slot(pos)
	assert.False(t, ok)
	assert.Zero(t, m.Count())
	assert.Zero(t, m.Arena().Live())
}
