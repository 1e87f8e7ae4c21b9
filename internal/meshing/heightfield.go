package meshing

import (
	"math"

	"gputerrain/internal/config"
)

const (
	octaves     = 4
	persistence = 0.5
	lacunarity  = 2.0

	// one column in plantRarity grows a plant
	plantRarity = 23
)

// Heightfield answers surface queries for the generated terrain. It is
// immutable and safe for concurrent use.
type Heightfield struct {
	seed      int64
	scale     float64
	baseLevel int
	amplitude float64
	seaLevel  int
}

// NewHeightfield builds the heightfield described by t.
func NewHeightfield(t config.Terrain) *Heightfield {
	scale := t.Scale
	if scale <= 0 {
		scale = 1
	}
	return &Heightfield{
		seed:      t.Seed,
		scale:     1 / scale,
		baseLevel: t.BaseLevel,
		amplitude: t.Amplitude,
		seaLevel:  t.SeaLevel,
	}
}

// HeightAt returns the Y of the topmost solid block in column x, z.
func (h *Heightfield) HeightAt(x, z int64) int {
	n := octaveNoise2D(float64(x)*h.scale, float64(z)*h.scale, h.seed, octaves, persistence, lacunarity)
	return h.baseLevel + int(math.Round((n*2-1)*h.amplitude))
}

// PlantAt reports whether a plant grows on top of column x, z.
func (h *Heightfield) PlantAt(x, z int64) bool {
	if h.HeightAt(x, z) < h.seaLevel {
		return false
	}
	return hash2(x, z, h.seed^0x5eed)%plantRarity == 0
}

// SeaLevel is the Y of the topmost water block.
func (h *Heightfield) SeaLevel() int { return h.seaLevel }
