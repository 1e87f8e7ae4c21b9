// Package cull extracts view frustum planes and tests boxes against them.
//
// Planes are built from a camera-relative projection*view matrix so that the
// float32 math stays precise far from the world origin. Boxes given in world
// coordinates are shifted by the frustum origin before testing.
package cull

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Margin inflates boxes (in blocks) before they are tested.
const Margin float32 = 1.0

type plane struct {
	a, b, c, d float32
}

// Frustum is a set of six planes in camera-relative space.
// The zero value accepts every box.
type Frustum struct {
	planes [6]plane
	origin mgl64.Vec3
	valid  bool
}

// New builds a frustum from a projection*view matrix whose translation is
// relative to origin.
// Planes are ordered left, right, bottom, top, near, far.
func New(clip mgl32.Mat4, origin mgl64.Vec3) Frustum {
	// Matrix is in column-major order in mgl32
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	f := Frustum{origin: origin, valid: true}
	f.planes[0] = normalizePlane(plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03})
	f.planes[1] = normalizePlane(plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03})
	f.planes[2] = normalizePlane(plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13})
	f.planes[3] = normalizePlane(plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13})
	f.planes[4] = normalizePlane(plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23})
	f.planes[5] = normalizePlane(plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23})
	return f
}

func normalizePlane(p plane) plane {
	l := math32.Sqrt(p.a*p.a + p.b*p.b + p.c*p.c)
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// Origin returns the world position the planes are relative to.
func (f Frustum) Origin() mgl64.Vec3 { return f.origin }

// IntersectsBox tests a world-space box.
func (f Frustum) IntersectsBox(min, max mgl64.Vec3) bool {
	o := f.origin
	return f.IntersectsRelative(
		float32(min.X()-o.X())-Margin, float32(min.Y()-o.Y())-Margin, float32(min.Z()-o.Z())-Margin,
		float32(max.X()-o.X())+Margin, float32(max.Y()-o.Y())+Margin, float32(max.Z()-o.Z())+Margin,
	)
}

// IntersectsRelative tests a box already relative to the frustum origin.
// No margin is applied.
func (f Frustum) IntersectsRelative(minx, miny, minz, maxx, maxy, maxz float32) bool {
	if !f.valid {
		return true
	}
	for i := range f.planes {
		p := f.planes[i]
		// positive vertex for this plane normal
		px := maxx
		if p.a < 0 {
			px = minx
		}
		py := maxy
		if p.b < 0 {
			py = miny
		}
		pz := maxz
		if p.c < 0 {
			pz = minz
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}
