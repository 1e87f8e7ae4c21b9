package section

import (
	"encoding/binary"

	"gputerrain/internal/geometry"
)

// RecordSize is the size of one section record in the device table.
const RecordSize = 32

// Record is the device form of one section. The zero Record means the slot
// holds no geometry.
type Record struct {
	Pos     geometry.SectionPos
	Min     [3]uint8
	Size    [3]uint8
	Addr    uint32
	Offsets [geometry.PackedBuckets]uint16
}

// Encode writes r into dst, which must be at least RecordSize bytes.
//
//	word0  x<<8  | sizeX<<4 | minX
//	word1  y<<24 | sizeY<<4 | minY
//	word2  z<<8  | sizeZ<<4 | minZ
//	word3  arena address in quads
//	word4+ offset[2i] | offset[2i+1]<<16
func (r *Record) Encode(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0:], uint32(r.Pos.X)<<8|uint32(r.Size[0]&15)<<4|uint32(r.Min[0]&15))
	le.PutUint32(dst[4:], uint32(r.Pos.Y)<<24|uint32(r.Size[1]&15)<<4|uint32(r.Min[1]&15))
	le.PutUint32(dst[8:], uint32(r.Pos.Z)<<8|uint32(r.Size[2]&15)<<4|uint32(r.Min[2]&15))
	le.PutUint32(dst[12:], r.Addr)
	for i := range 4 {
		le.PutUint32(dst[16+4*i:], uint32(r.Offsets[2*i])|uint32(r.Offsets[2*i+1])<<16)
	}
}

// DecodeRecord is the inverse of Encode. Coordinates are sign extended from
// their packed widths.
func DecodeRecord(src []byte) Record {
	le := binary.LittleEndian
	w0, w1, w2 := le.Uint32(src[0:]), le.Uint32(src[4:]), le.Uint32(src[8:])
	r := Record{
		Pos: geometry.SectionPos{
			X: int32(w0) >> 8,
			Y: int32(w1) >> 24,
			Z: int32(w2) >> 8,
		},
		Min:  [3]uint8{uint8(w0 & 15), uint8(w1 & 15), uint8(w2 & 15)},
		Size: [3]uint8{uint8(w0 >> 4 & 15), uint8(w1 >> 4 & 15), uint8(w2 >> 4 & 15)},
		Addr: le.Uint32(src[12:]),
	}
	for i := range 4 {
		w := le.Uint32(src[16+4*i:])
		r.Offsets[2*i] = uint16(w)
		r.Offsets[2*i+1] = uint16(w >> 16)
	}
	return r
}
