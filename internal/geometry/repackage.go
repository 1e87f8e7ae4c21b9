package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/shawnsmithdev/zermelo/v2"
)

// maxSortCameraDistance caps how far from the section the sort camera sits.
const maxSortCameraDistance = 32

const quadIndexMask = 1<<29 - 1

// ErrMalformedMesh reports a mesh that cannot be packed.
var ErrMalformedMesh = errors.New("malformed mesh")

type bounds struct {
	min, max [3]int
}

func newBounds() bounds {
	return bounds{min: [3]int{2000, 2000, 2000}, max: [3]int{-2000, -2000, -2000}}
}

func (b *bounds) add(x, y, z float32) {
	for i, v := range [3]float32{x, y, z} {
		b.min[i] = min(b.min[i], int(math32.Floor(v)))
		b.max[i] = max(b.max[i], int(math32.Ceil(v)))
	}
}

// clamp produces the section-local minimum and size the cull shaders expect.
func (b *bounds) clamp() (mn, size [3]uint8) {
	for i := range 3 {
		lo := min(max(b.min[i], 0), 15)
		hi := max(min(b.max[i], 16), 0)
		mn[i] = uint8(lo)
		size[i] = uint8(min(max(hi-lo-1, 0), 15))
	}
	return mn, size
}

// Repackage packs a meshed section into its arena layout. camera is the
// world position used to order translucent quads back to front.
//
// A nil mesh, or one without quads, yields an empty PackedSection.
func Repackage(mesh *Mesh, camera mgl64.Vec3) (*PackedSection, error) {
	if mesh == nil {
		return &PackedSection{}, nil
	}
	out := &PackedSection{Pos: mesh.Pos}
	for _, p := range []struct {
		name string
		mesh *PassMesh
	}{{"opaque", mesh.Opaque}, {"cutout", mesh.Cutout}, {"translucent", mesh.Translucent}} {
		if err := p.mesh.validate(p.name); err != nil {
			return nil, fmt.Errorf("repackage section %v: %w: %v", mesh.Pos, ErrMalformedMesh, err)
		}
	}

	total := mesh.Opaque.bytes() + mesh.Cutout.bytes() + mesh.Translucent.bytes()
	if total == 0 {
		return out, nil
	}

	ox, oy, oz := mesh.Pos.Origin()
	cam := mgl64.Vec3{camera.X() - float64(ox), camera.Y() - float64(oy), camera.Z() - float64(oz)}

	geom := make([]byte, total)
	b := newBounds()

	quads := packTranslucent(geom, mesh.Translucent, sortCamera(cam), &b)
	if quads > math.MaxUint16 {
		return nil, fmt.Errorf("repackage section %v: %w: %d translucent quads", mesh.Pos, ErrMalformedMesh, quads)
	}
	out.Offsets[Translucent] = uint16(quads)

	for i := range PassBuckets {
		start := quads
		quads = copyBucket(geom, quads, mesh.Opaque, i, &b)
		quads = copyBucket(geom, quads, mesh.Cutout, i, &b)
		n := quads - start
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("repackage section %v: %w: %d quads in bucket %s", mesh.Pos, ErrMalformedMesh, n, Facing(i))
		}
		out.Offsets[i] = uint16(n)
	}

	if quads*QuadSize != len(geom) {
		panic(fmt.Sprintf("geometry: internal accounting mismatch: expected %d bytes but packed %d", len(geom), quads*QuadSize))
	}

	out.Geometry = geom
	out.Quads = quads
	out.Min, out.Size = b.clamp()
	return out, nil
}

// sortCamera points from the section origin towards the camera, no further
// than maxSortCameraDistance.
func sortCamera(rel mgl64.Vec3) [3]float32 {
	x, y, z := float32(rel.X()), float32(rel.Y()), float32(rel.Z())
	l := math32.Sqrt(x*x + y*y + z*z)
	if l == 0 {
		return [3]float32{}
	}
	s := math32.Min(l, maxSortCameraDistance) / l
	return [3]float32{x * s, y * s, z * s}
}

// packTranslucent writes translucent quads farthest first and returns their count.
func packTranslucent(dst []byte, pass *PassMesh, cam [3]float32, b *bounds) int {
	n := pass.Quads()
	if n == 0 {
		return 0
	}

	keys := make([]uint64, 0, n)
	for bucket, src := range pass.Buckets {
		var cx, cy, cz float32
		for j := 0; j*VertexSize < len(src); j++ {
			x, y, z := vertexPosition(src[j*VertexSize:])
			b.add(x, y, z)
			cx += x
			cy += y
			cz += z
			if j&3 != 3 {
				continue
			}
			// keyed on the mean of all four corners, not the fourth vertex
			dx, dy, dz := cx/4-cam[0], cy/4-cam[1], cz/4-cam[2]
			dist := uint32((dx*dx + dy*dy + dz*dz) * (1 << 12))
			keys = append(keys, uint64(dist)<<32|uint64(j>>2)<<3|uint64(bucket))
			cx, cy, cz = 0, 0, 0
		}
	}

	// keys are unique, so an unstable order is still total
	zermelo.Sort(keys)

	for i, k := range keys {
		src := pass.Buckets[k&7]
		q := int((k >> 3) & quadIndexMask)
		o := (len(keys) - 1 - i) * QuadSize
		copy(dst[o:o+QuadSize], src[q*QuadSize:(q+1)*QuadSize])
		setFlags(dst[o : o+QuadSize])
	}
	return n
}

// copyBucket appends one bucket of a pass verbatim at quad offset at.
func copyBucket(dst []byte, at int, pass *PassMesh, bucket int, b *bounds) int {
	if pass == nil || len(pass.Buckets[bucket]) == 0 {
		return at
	}
	src := pass.Buckets[bucket]
	o := at * QuadSize
	copy(dst[o:], src)
	region := dst[o : o+len(src)]
	setFlags(region)
	for v := 0; v < len(region); v += VertexSize {
		b.add(vertexPosition(region[v:]))
	}
	return at + len(src)/QuadSize
}

func setFlags(vertices []byte) {
	for v := 0; v < len(vertices); v += VertexSize {
		vertices[v+flagsOffset] = FlagMipNoAlphaCut
	}
}
