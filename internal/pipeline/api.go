package pipeline

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"gputerrain/internal/cull"
	"gputerrain/internal/geometry"
	"gputerrain/internal/section"
)

// SpatialIndex is the region table the pipeline culls against. Slots follow
// section.SlotIndex: regionID<<8 | local index.
type SpatialIndex interface {
	section.SlotIndex

	RegionExists(id int) bool
	IsRegionVisible(f cull.Frustum, id int) bool
	// Distance is measured in sections from the camera's section.
	Distance(id int, camera geometry.SectionPos) int
	IsRegionInAxis(id int, camera mgl64.Vec3) bool
	WithinDistance(id, limit int, camera geometry.SectionPos) bool
	RegionOfSlot(slot int) int
	RegionSections(id int) int
	MaxRegions() int
	// MaxRegionIndex is one past the highest id in use.
	MaxRegionIndex() int
	RegionCount() int
	TableAddress() uint64
}

// Fog holds the fog parameters forwarded to the stages.
type Fog struct {
	Color      mgl32.Vec4
	Start, End float32
	Shape      int32
}

// Camera is the per-frame camera state.
//
// View is camera relative: it rotates but does not translate, the camera
// position is supplied separately in world coordinates.
type Camera struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Position   mgl64.Vec3
	Width      int
	Height     int
	Fog        Fog
}

// ViewProjection is Projection*View.
func (c Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.View)
}

// Frustum builds the culling frustum for this camera.
func (c Camera) Frustum() cull.Frustum {
	return cull.New(c.ViewProjection(), c.Position)
}

// Chunk is the section holding the camera.
func (c Camera) Chunk() geometry.SectionPos {
	floor := func(v float64) int32 {
		b := int64(v)
		if float64(b) > v {
			b--
		}
		return int32(b >> 4)
	}
	return geometry.SectionPos{X: floor(c.Position.X()), Y: floor(c.Position.Y()), Z: floor(c.Position.Z())}
}

// Pass identifies which raster pass just ran.
type Pass int

const (
	PassOpaque Pass = iota
	PassTranslucent
)

// RenderContext is handed to extensions at each lifecycle point.
type RenderContext struct {
	Frame          uint64
	Camera         Camera
	VisibleRegions int
	Pass           Pass
}

// Extension lets the host engine hook into the pipeline lifecycle.
type Extension interface {
	Init(p *Pipeline) error
	// TerrainSetup runs before culling starts on a frame with regions.
	TerrainSetup(ctx RenderContext)
	// RenderPass runs after each raster pass is submitted.
	RenderPass(ctx RenderContext)
	Dispose()
}
