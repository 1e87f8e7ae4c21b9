package pipeline

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Bindless address slots of the scene record, in order.
const (
	addrRegionIDs = iota
	addrRegionTable
	addrSectionTable
	addrRegionVisibility
	addrSectionVisibility
	addrTerrainCommands
	addrTranslucentCommands
	addrSortList
	addrArena
	addrTransforms
	addrOrigins
	addrStatistics
	sceneAddresses
)

const (
	matrixSize = 64
	// sceneTail is everything after the matrices.
	sceneTail = 16 + 16 + 16 + 8*sceneAddresses + 4*4 + 4 + 4 + 2 + 1

	// SceneSize is the bound scene range. It fits the fog layout, so the
	// region id list that follows it never moves.
	SceneSize = (2*matrixSize + sceneTail + 15) &^ 15
)

// scene is one frame of scene state.
type scene struct {
	viewProj   mgl32.Mat4
	inverse    mgl32.Mat4
	fog        bool
	chunk      [3]int32
	offset     mgl32.Vec3
	fogColor   mgl32.Vec4
	addresses  [sceneAddresses]uint64
	halfWidth  float32
	halfHeight float32
	fogStart   float32
	fogEnd     float32
	fogShape   int32
	flags      int32
	visible    uint16
	frame      uint8
}

const sceneFlagFaceCulling = 1

// encode writes the scene into dst and returns the bytes written. The
// inverse matrix is only present when compiled for fog.
func (s *scene) encode(dst []byte) int {
	le := binary.LittleEndian
	o := 0
	putF := func(v float32) {
		le.PutUint32(dst[o:], math.Float32bits(v))
		o += 4
	}
	putM := func(m mgl32.Mat4) {
		for _, v := range m {
			putF(v)
		}
	}

	putM(s.viewProj)
	if s.fog {
		putM(s.inverse)
	}
	for _, c := range s.chunk {
		le.PutUint32(dst[o:], uint32(c))
		o += 4
	}
	le.PutUint32(dst[o:], 0)
	o += 4
	putF(s.offset.X())
	putF(s.offset.Y())
	putF(s.offset.Z())
	putF(0)
	for _, v := range s.fogColor {
		putF(v)
	}
	for _, a := range s.addresses {
		le.PutUint64(dst[o:], a)
		o += 8
	}
	putF(s.halfWidth)
	putF(s.halfHeight)
	putF(s.fogStart)
	putF(s.fogEnd)
	le.PutUint32(dst[o:], uint32(s.fogShape))
	le.PutUint32(dst[o+4:], uint32(s.flags))
	le.PutUint16(dst[o+8:], s.visible)
	dst[o+10] = s.frame
	return o + 11
}
