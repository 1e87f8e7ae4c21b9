package cull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func lookDownNegZ() mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(70), 16.0/9.0, 0.1, 500)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func TestFrustumRelativeBoxes(t *testing.T) {
	f := New(lookDownNegZ(), mgl64.Vec3{})

	assert.True(t, f.IntersectsRelative(-1, -1, -20, 1, 1, -10), "box ahead")
	assert.False(t, f.IntersectsRelative(-1, -1, 10, 1, 1, 20), "box behind")
	assert.False(t, f.IntersectsRelative(-1, -1, -900, 1, 1, -800), "box past far plane")
	assert.False(t, f.IntersectsRelative(400, -1, -20, 410, 1, -10), "box far to the right")
}

func TestFrustumWorldBoxUsesOrigin(t *testing.T) {
	origin := mgl64.Vec3{1_000_000, 64, -2_000_000}
	f := New(lookDownNegZ(), origin)

	ahead := origin.Add(mgl64.Vec3{0, 0, -16})
	assert.True(t, f.IntersectsBox(ahead, ahead.Add(mgl64.Vec3{16, 16, 16})))

	behind := origin.Add(mgl64.Vec3{0, 0, 32})
	assert.False(t, f.IntersectsBox(behind, behind.Add(mgl64.Vec3{16, 16, 16})))
}

func TestZeroFrustumAcceptsEverything(t *testing.T) {
	var f Frustum
	assert.True(t, f.IntersectsRelative(1e6, 1e6, 1e6, 1e6+1, 1e6+1, 1e6+1))
}
