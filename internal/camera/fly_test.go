package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"

	"gputerrain/internal/geometry"
	"gputerrain/internal/pipeline"
)

func TestPitchIsClamped(t *testing.T) {
	c := NewFly(mgl64.Vec3{})
	c.HandleMouseMovement(0, 0)
	c.HandleMouseMovement(0, -10000)
	assert.Equal(t, 89.0, c.Pitch)
	c.HandleMouseMovement(0, 10000)
	assert.Equal(t, -89.0, c.Pitch)
}

func TestFirstMouseEventOnlyAnchors(t *testing.T) {
	c := NewFly(mgl64.Vec3{})
	c.HandleMouseMovement(500, 300)
	assert.Zero(t, c.Yaw)
	c.HandleMouseMovement(510, 300)
	assert.InDelta(t, 1.0, c.Yaw, 1e-9)
}

func TestMoveForwardFollowsYaw(t *testing.T) {
	c := NewFly(mgl64.Vec3{0, 64, 0})
	c.Yaw = 90
	c.Pitch = 45
	c.Move(1, 1, 0, 0, false)
	assert.InDelta(t, 0, c.Position.X(), 1e-9)
	assert.InDelta(t, 64, c.Position.Y(), 1e-9)
	assert.InDelta(t, c.Speed, c.Position.Z(), 1e-9)

	c.Move(0.5, 0, 0, 1, true)
	assert.InDelta(t, 64+c.Speed*2, c.Position.Y(), 1e-9)
}

func TestViewDoesNotTranslate(t *testing.T) {
	c := NewFly(mgl64.Vec3{1000, 64, -5000})
	v := c.View()
	origin := v.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, origin.X(), 1e-6)
	assert.InDelta(t, 0, origin.Y(), 1e-6)
	assert.InDelta(t, 0, origin.Z(), 1e-6)

	// looking along +X puts +X in front of the eye
	ahead := v.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, -1, ahead.Z(), 1e-6)
}

func TestCameraCarriesPositionAndFog(t *testing.T) {
	c := NewFly(mgl64.Vec3{-20, 70, 35})
	fog := pipeline.Fog{Start: 10, End: 100}
	cam := c.Camera(1600, 900, fog)
	assert.Equal(t, c.Position, cam.Position)
	assert.Equal(t, fog, cam.Fog)
	assert.Equal(t, geometry.SectionPos{X: -2, Y: 4, Z: 2}, cam.Chunk())
}
