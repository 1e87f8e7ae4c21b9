package geometry

import (
	"encoding/binary"
	"fmt"
)

const (
	// VertexSize is the stride of one terrain vertex in bytes.
	VertexSize = 16
	// QuadSize is four consecutive vertices.
	QuadSize = 4 * VertexSize

	// FlagMipNoAlphaCut marks a vertex as mip biased with alpha testing off.
	FlagMipNoAlphaCut uint8 = 0b100

	flagsOffset = 6
)

// Vertex is the decoded form of the 16-byte terrain vertex:
//
//	0..5   x, y, z  uint16 fixed point, raw/2048 - 8
//	6      render flags
//	7      packed light
//	8..11  colour (ABGR)
//	12..15 texture u, v (uint16 normalised)
type Vertex struct {
	X, Y, Z float32
	Flags   uint8
	Light   uint8
	Color   uint32
	U, V    uint16
}

// EncodePosition converts a section-local coordinate to fixed point.
// Values outside [-8, 24) are clamped.
func EncodePosition(v float32) uint16 {
	raw := (v + 8) * 2048
	switch {
	case raw < 0:
		return 0
	case raw > 0xffff:
		return 0xffff
	}
	return uint16(raw + 0.5)
}

// DecodePosition converts a fixed point coordinate back to section-local units.
func DecodePosition(raw uint16) float32 {
	return float32(raw)*(1.0/2048.0) - 8.0
}

// AppendVertex encodes v onto dst.
func AppendVertex(dst []byte, v Vertex) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, EncodePosition(v.X))
	dst = binary.LittleEndian.AppendUint16(dst, EncodePosition(v.Y))
	dst = binary.LittleEndian.AppendUint16(dst, EncodePosition(v.Z))
	dst = append(dst, v.Flags, v.Light)
	dst = binary.LittleEndian.AppendUint32(dst, v.Color)
	dst = binary.LittleEndian.AppendUint16(dst, v.U)
	return binary.LittleEndian.AppendUint16(dst, v.V)
}

// DecodeVertex reads the vertex at the start of src.
func DecodeVertex(src []byte) (Vertex, error) {
	if len(src) < VertexSize {
		return Vertex{}, fmt.Errorf("decode vertex: need %d bytes, have %d", VertexSize, len(src))
	}
	return Vertex{
		X:     DecodePosition(binary.LittleEndian.Uint16(src[0:])),
		Y:     DecodePosition(binary.LittleEndian.Uint16(src[2:])),
		Z:     DecodePosition(binary.LittleEndian.Uint16(src[4:])),
		Flags: src[6],
		Light: src[7],
		Color: binary.LittleEndian.Uint32(src[8:]),
		U:     binary.LittleEndian.Uint16(src[12:]),
		V:     binary.LittleEndian.Uint16(src[14:]),
	}, nil
}

func vertexPosition(src []byte) (x, y, z float32) {
	return DecodePosition(binary.LittleEndian.Uint16(src[0:])),
		DecodePosition(binary.LittleEndian.Uint16(src[2:])),
		DecodePosition(binary.LittleEndian.Uint16(src[4:]))
}
