// Package camera provides the free-flying camera used to drive the terrain
// pipeline.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"gputerrain/internal/pipeline"
)

// Fly is a yaw/pitch camera in world coordinates. Angles are in degrees.
type Fly struct {
	Position mgl64.Vec3
	Yaw      float64
	Pitch    float64

	FOV         float32 // vertical, degrees
	Near, Far   float32
	Speed       float64 // blocks per second
	Sensitivity float64

	FirstMouse bool
	lastMouseX float64
	lastMouseY float64
}

// NewFly returns a camera at pos looking along +X.
func NewFly(pos mgl64.Vec3) *Fly {
	return &Fly{
		Position:    pos,
		FOV:         70,
		Near:        0.05,
		Far:         4096,
		Speed:       24,
		Sensitivity: 0.1,
		FirstMouse:  true,
	}
}

func (c *Fly) HandleMouseMovement(xpos, ypos float64) {
	if c.FirstMouse {
		c.lastMouseX = xpos
		c.lastMouseY = ypos
		c.FirstMouse = false
		return
	}

	xoffset := (xpos - c.lastMouseX) * c.Sensitivity
	yoffset := (c.lastMouseY - ypos) * c.Sensitivity
	c.lastMouseX = xpos
	c.lastMouseY = ypos

	c.Yaw += xoffset
	c.Pitch += yoffset

	// Constrain pitch
	if c.Pitch > 89.0 {
		c.Pitch = 89.0
	}
	if c.Pitch < -89.0 {
		c.Pitch = -89.0
	}
}

// Front is the unit view direction.
func (c *Fly) Front() mgl64.Vec3 {
	y := mgl64.DegToRad(c.Yaw)
	p := mgl64.DegToRad(c.Pitch)
	return mgl64.Vec3{
		math.Cos(y) * math.Cos(p),
		math.Sin(p),
		math.Sin(y) * math.Cos(p),
	}.Normalize()
}

// Move flies the camera. forward, right and up are in [-1, 1]; fast
// quadruples the speed.
func (c *Fly) Move(dt, forward, right, up float64, fast bool) {
	front := c.Front()
	flat := mgl64.Vec3{front.X(), 0, front.Z()}
	if flat.Len() > 1e-6 {
		flat = flat.Normalize()
	}
	side := flat.Cross(mgl64.Vec3{0, 1, 0})

	dir := flat.Mul(forward).Add(side.Mul(right)).Add(mgl64.Vec3{0, up, 0})
	if dir.Len() < 1e-9 {
		return
	}
	speed := c.Speed
	if fast {
		speed *= 4
	}
	c.Position = c.Position.Add(dir.Normalize().Mul(speed * dt))
}

// View rotates world directions into eye space without translating.
func (c *Fly) View() mgl32.Mat4 {
	f := c.Front()
	front := mgl32.Vec3{float32(f.X()), float32(f.Y()), float32(f.Z())}
	return mgl32.LookAtV(mgl32.Vec3{}, front, mgl32.Vec3{0, 1, 0})
}

func (c *Fly) Projection(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
}

// Camera builds the per-frame pipeline camera.
func (c *Fly) Camera(width, height int, fog pipeline.Fog) pipeline.Camera {
	return pipeline.Camera{
		Projection: c.Projection(width, height),
		View:       c.View(),
		Position:   c.Position,
		Width:      width,
		Height:     height,
		Fog:        fog,
	}
}
