// Package geometry converts meshed sections into the packed, bucketed layout
// that lives in the device geometry arena.
package geometry

import "fmt"

// SectionSize is the edge length of a section in blocks.
const SectionSize = 16

// Facing names a directional geometry bucket.
type Facing int

const (
	FaceDown Facing = iota // -Y
	FaceUp                 // +Y
	FaceNorth              // -Z
	FaceSouth              // +Z
	FaceWest               // -X
	FaceEast               // +X
	Unassigned

	// Translucent is the packed bucket holding all translucent quads.
	Translucent Facing = 7
)

// PassBuckets is the number of per-pass buckets (six faces plus unassigned).
const PassBuckets = int(Unassigned) + 1

// PackedBuckets is the number of offsets in a packed section.
const PackedBuckets = 8

func (f Facing) String() string {
	switch f {
	case FaceDown:
		return "down"
	case FaceUp:
		return "up"
	case FaceNorth:
		return "north"
	case FaceSouth:
		return "south"
	case FaceWest:
		return "west"
	case FaceEast:
		return "east"
	case Unassigned:
		return "unassigned"
	case Translucent:
		return "translucent"
	}
	return fmt.Sprintf("Facing(%d)", int(f))
}

// SectionPos is a section coordinate in chunk units.
type SectionPos struct {
	X, Y, Z int32
}

// Origin returns the block coordinate of the section's minimum corner.
func (p SectionPos) Origin() (x, y, z int64) {
	return int64(p.X) * SectionSize, int64(p.Y) * SectionSize, int64(p.Z) * SectionSize
}

func (p SectionPos) String() string {
	return fmt.Sprintf("[%d %d %d]", p.X, p.Y, p.Z)
}

// PassMesh holds the encoded vertices of one render pass, one slice per
// bucket. Every slice is a whole number of quads.
type PassMesh struct {
	Buckets [PassBuckets][]byte
}

// Quads counts the quads across all buckets.
func (p *PassMesh) Quads() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, b := range p.Buckets {
		n += len(b) / QuadSize
	}
	return n
}

func (p *PassMesh) bytes() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, b := range p.Buckets {
		n += len(b)
	}
	return n
}

func (p *PassMesh) validate(pass string) error {
	if p == nil {
		return nil
	}
	for i, b := range p.Buckets {
		if len(b)%QuadSize != 0 {
			return fmt.Errorf("%s bucket %s: %d bytes is not a whole number of quads", pass, Facing(i), len(b))
		}
	}
	return nil
}

// Mesh is the meshing result of one section. A nil pass has no geometry.
type Mesh struct {
	Pos         SectionPos
	Opaque      *PassMesh
	Cutout      *PassMesh
	Translucent *PassMesh
}

// Quads counts the quads across all passes. A nil mesh has none.
func (m *Mesh) Quads() int {
	if m == nil {
		return 0
	}
	return m.Opaque.Quads() + m.Cutout.Quads() + m.Translucent.Quads()
}

// PackedSection is a repackaged section ready for the arena.
//
// Geometry holds the translucent quads farthest first, followed by buckets
// 0..6 each holding its opaque quads then its cutout quads. Offsets holds
// the quad count of each bucket, with the translucent count at index 7.
type PackedSection struct {
	Pos      SectionPos
	Geometry []byte
	Quads    int
	Offsets  [PackedBuckets]uint16
	Min      [3]uint8
	Size     [3]uint8
}

// Empty reports whether the section has no geometry and should be deleted.
func (s *PackedSection) Empty() bool {
	return s == nil || s.Quads == 0
}
