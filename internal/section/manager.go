// Package section keeps the device section table and the geometry of every
// uploaded section in sync.
package section

import (
	"errors"
	"fmt"

	"gputerrain/internal/arena"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
)

// SectionsPerRegion is the number of slots in one region.
const SectionsPerRegion = 256

// ErrNoSlot is returned when a SlotIndex has no region left for a section.
var ErrNoSlot = errors.New("no free section slot")

// SlotIndex hands out section slots. A slot is regionID<<8 | local index.
type SlotIndex interface {
	CreateSectionSlot(pos geometry.SectionPos) (int, error)
	RemoveSectionSlot(slot int)
}

// Info is the side-table entry for one uploaded section.
type Info struct {
	Slot  int
	Addr  arena.Addr
	Quads int
	// Flags holds renderer-owned per-section bits; the manager never reads them.
	Flags uint32
}

// Manager owns the section table and the geometry arena.
type Manager struct {
	up       gpu.Uploader
	index    SlotIndex
	arena    *arena.Arena
	table    gpu.Buffer
	maxSlots int

	sections map[geometry.SectionPos]*Info
	slots    map[int]geometry.SectionPos
}

// NewManager sizes the section table for maxRegions regions.
func NewManager(dev gpu.Device, up gpu.Uploader, index SlotIndex, maxRegions, arenaQuads int) (*Manager, error) {
	maxSlots := maxRegions * SectionsPerRegion
	table, err := dev.CreateBuffer("section table", maxSlots*RecordSize)
	if err != nil {
		return nil, fmt.Errorf("section manager: %w", err)
	}
	ar, err := arena.New(dev, "geometry arena", arenaQuads)
	if err != nil {
		table.Release()
		return nil, fmt.Errorf("section manager: %w", err)
	}
	return &Manager{
		up:       up,
		index:    index,
		arena:    ar,
		table:    table,
		maxSlots: maxSlots,
		sections: make(map[geometry.SectionPos]*Info),
		slots:    make(map[int]geometry.SectionPos),
	}, nil
}

// Upload stores a packed section. An empty section deletes it.
//
// The previous allocation is freed before the new one is made and the
// record is rewritten in the same upload batch, so no committed record ever
// points at geometry another section owns.
func (m *Manager) Upload(s *geometry.PackedSection) error {
	if s.Empty() {
		if s != nil {
			m.Delete(s.Pos)
		}
		return nil
	}

	info, ok := m.sections[s.Pos]
	if !ok {
		slot, err := m.index.CreateSectionSlot(s.Pos)
		if err != nil {
			return fmt.Errorf("upload section %v: %w", s.Pos, err)
		}
		if slot < 0 || slot >= m.maxSlots {
			panic(fmt.Sprintf("section: slot %d for %v outside table of %d", slot, s.Pos, m.maxSlots))
		}
		info = &Info{Slot: slot}
		m.sections[s.Pos] = info
		m.slots[slot] = s.Pos
	}
	if info.Quads > 0 {
		m.arena.Free(info.Addr)
		info.Quads = 0
	}

	addr, err := m.arena.Alloc(s.Quads)
	if err != nil {
		// the old record must not outlive its freed geometry
		m.Delete(s.Pos)
		return fmt.Errorf("upload section %v: %w", s.Pos, err)
	}
	info.Addr = addr
	info.Quads = s.Quads
	copy(m.arena.Upload(m.up, addr), s.Geometry)

	rec := Record{
		Pos:     s.Pos,
		Min:     s.Min,
		Size:    s.Size,
		Addr:    uint32(addr),
		Offsets: s.Offsets,
	}
	rec.Encode(m.up.Upload(m.table, info.Slot*RecordSize, RecordSize))
	return nil
}

// Delete frees a section's geometry, returns its slot and zeroes its
// record. Unknown sections are ignored.
func (m *Manager) Delete(pos geometry.SectionPos) {
	info, ok := m.sections[pos]
	if !ok {
		return
	}
	if info.Quads > 0 {
		m.arena.Free(info.Addr)
	}
	delete(m.sections, pos)
	delete(m.slots, info.Slot)
	m.index.RemoveSectionSlot(info.Slot)
	clear(m.up.Upload(m.table, info.Slot*RecordSize, RecordSize))
}

// EvictRegion deletes every section in a region and returns how many there were.
func (m *Manager) EvictRegion(region int) int {
	n := 0
	base := region * SectionsPerRegion
	for slot := base; slot < base+SectionsPerRegion; slot++ {
		if pos, ok := m.slots[slot]; ok {
			m.Delete(pos)
			n++
		}
	}
	return n
}

// Slot returns the slot of an uploaded section.
func (m *Manager) Slot(pos geometry.SectionPos) (int, bool) {
	info, ok := m.sections[pos]
	if !ok {
		return -1, false
	}
	return info.Slot, true
}

// Info returns the side-table entry of an uploaded section.
func (m *Manager) Info(pos geometry.SectionPos) (Info, bool) {
	info, ok := m.sections[pos]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// SetFlags replaces the renderer-owned flags of an uploaded section.
func (m *Manager) SetFlags(pos geometry.SectionPos, flags uint32) bool {
	info, ok := m.sections[pos]
	if ok {
		info.Flags = flags
	}
	return ok
}

// Count returns the number of uploaded sections.
func (m *Manager) Count() int { return len(m.sections) }

// Arena exposes the geometry arena.
func (m *Manager) Arena() *arena.Arena { return m.arena }

// TableAddress is the device address of the section table.
func (m *Manager) TableAddress() uint64 { return m.table.Address() }

// ArenaAddress is the device address of the geometry arena.
func (m *Manager) ArenaAddress() uint64 { return m.arena.Address() }

// Release frees the section table and the arena.
func (m *Manager) Release() {
	m.table.Release()
	m.arena.Release()
	m.sections = nil
	m.slots = nil
}
