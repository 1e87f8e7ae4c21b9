// Package meshing turns the generated heightfield into per-section meshes
// in the terrain vertex format.
package meshing

import (
	"gputerrain/internal/config"
	"gputerrain/internal/geometry"
)

const size = geometry.SectionSize

// Colours are ABGR.
const (
	colorGrass uint32 = 0xFF3A9E5B
	colorSand  uint32 = 0xFFA3CFDB
	colorDirt  uint32 = 0xFF436086
	colorStone uint32 = 0xFF808080
	colorWater uint32 = 0xA0E4763F
	colorPlant uint32 = 0xFF2E8C4E

	fullLight uint8 = 0xF0

	// water surface sits below the top of its block
	waterSurface = 14.0 / 16.0
	dirtDepth    = 3
)

// Mesher builds section meshes. It keeps no per-call state, so one Mesher
// can serve many goroutines.
type Mesher struct {
	height   func(x, z int64) int
	plant    func(x, z int64) bool
	seaLevel int
}

// NewMesher returns a mesher for the terrain described by t.
func NewMesher(t config.Terrain) *Mesher {
	h := NewHeightfield(t)
	return &Mesher{height: h.HeightAt, plant: h.PlantAt, seaLevel: h.SeaLevel()}
}

// columns caches the heights of a section's columns plus a one block border.
type columns struct {
	heights [(size + 2) * (size + 2)]int
	oy      int
	sea     int
}

func (c *columns) at(lx, lz int) int {
	return c.heights[(lx+1)*(size+2)+lz+1]
}

// solid reports whether the section-local block is solid. lx and lz may be
// one block outside the section.
func (c *columns) solid(lx, ly, lz int) bool {
	return c.oy+ly <= c.at(lx, lz)
}

// Mesh builds the mesh of the section at pos. Sections with no faces get a
// mesh without passes.
func (m *Mesher) Mesh(pos geometry.SectionPos) *geometry.Mesh {
	ox, oy, oz := pos.Origin()
	cols := &columns{oy: int(oy), sea: m.seaLevel}
	for lx := -1; lx <= size; lx++ {
		for lz := -1; lz <= size; lz++ {
			cols.heights[(lx+1)*(size+2)+lz+1] = m.height(ox+int64(lx), oz+int64(lz))
		}
	}

	mesh := &geometry.Mesh{Pos: pos}
	opaque := &geometry.PassMesh{}
	for _, d := range directions {
		m.meshDirection(cols, d, opaque)
	}
	translucent := m.meshWater(cols)
	cutout := m.meshPlants(cols, ox, oz)

	if opaque.Quads() > 0 {
		mesh.Opaque = opaque
	}
	if translucent.Quads() > 0 {
		mesh.Translucent = translucent
	}
	if cutout.Quads() > 0 {
		mesh.Cutout = cutout
	}
	return mesh
}

// direction is a face normal along axis with sign ±1.
type direction struct {
	axis   int
	sign   int
	bucket geometry.Facing
}

var directions = []direction{
	{1, -1, geometry.FaceDown},
	{1, +1, geometry.FaceUp},
	{2, -1, geometry.FaceNorth},
	{2, +1, geometry.FaceSouth},
	{0, -1, geometry.FaceWest},
	{0, +1, geometry.FaceEast},
}

// meshDirection emits the exposed faces looking along d, one layer at a
// time, merging equal coloured faces greedily.
func (m *Mesher) meshDirection(cols *columns, d direction, pass *geometry.PassMesh) {
	ua, va := (d.axis+1)%3, (d.axis+2)%3
	var mask [size * size]uint32
	for layer := 0; layer < size; layer++ {
		empty := true
		for u := 0; u < size; u++ {
			for v := 0; v < size; v++ {
				var c, n [3]int
				c[d.axis], c[ua], c[va] = layer, u, v
				n = c
				n[d.axis] += d.sign
				mask[u*size+v] = 0
				if !cols.solid(c[0], c[1], c[2]) || cols.solid(n[0], n[1], n[2]) {
					continue
				}
				mask[u*size+v] = faceColor(cols, c, d)
				empty = false
			}
		}
		if empty {
			continue
		}
		plane := float32(layer)
		if d.sign > 0 {
			plane++
		}
		greedyMerge(mask[:], size, func(u, v, du, dv int, color uint32) {
			pass.Buckets[d.bucket] = appendQuad(pass.Buckets[d.bucket], d, plane, u, v, du, dv, color)
		})
	}
}

func faceColor(cols *columns, c [3]int, d direction) uint32 {
	top := cols.at(c[0], c[2])
	y := cols.oy + c[1]
	switch {
	case d.axis == 1 && d.sign > 0:
		// beaches
		if top <= cols.sea+1 {
			return colorSand
		}
		return colorGrass
	case y > top-dirtDepth:
		return colorDirt
	}
	return colorStone
}

// meshWater emits the water surface over columns below sea level.
func (m *Mesher) meshWater(cols *columns) *geometry.PassMesh {
	pass := &geometry.PassMesh{}
	ly := m.seaLevel - cols.oy
	if ly < 0 || ly >= size {
		return pass
	}
	up := directions[1]
	var mask [size * size]uint32
	empty := true
	// u runs along z and v along x for the up direction.
	for u := 0; u < size; u++ {
		for v := 0; v < size; v++ {
			if cols.at(v, u) < m.seaLevel {
				mask[u*size+v] = colorWater
				empty = false
			}
		}
	}
	if empty {
		return pass
	}
	plane := float32(ly) + waterSurface
	greedyMerge(mask[:], size, func(u, v, du, dv int, color uint32) {
		pass.Buckets[up.bucket] = appendQuad(pass.Buckets[up.bucket], up, plane, u, v, du, dv, color)
	})
	return pass
}

// meshPlants emits two crossed quads on every column that grows a plant
// inside this section.
func (m *Mesher) meshPlants(cols *columns, ox, oz int64) *geometry.PassMesh {
	pass := &geometry.PassMesh{}
	for lx := 0; lx < size; lx++ {
		for lz := 0; lz < size; lz++ {
			ly := cols.at(lx, lz) + 1 - cols.oy
			if ly < 0 || ly >= size || !m.plant(ox+int64(lx), oz+int64(lz)) {
				continue
			}
			x, y, z := float32(lx), float32(ly), float32(lz)
			b := pass.Buckets[geometry.Unassigned]
			b = appendCorners(b, colorPlant,
				[3]float32{x, y, z}, [3]float32{x + 1, y, z + 1},
				[3]float32{x + 1, y + 1, z + 1}, [3]float32{x, y + 1, z})
			b = appendCorners(b, colorPlant,
				[3]float32{x + 1, y, z}, [3]float32{x, y, z + 1},
				[3]float32{x, y + 1, z + 1}, [3]float32{x + 1, y + 1, z})
			pass.Buckets[geometry.Unassigned] = b
		}
	}
	return pass
}

// appendQuad emits the rectangle [u,u+du)×[v,v+dv) on the plane at the
// given height along d.axis, wound counter-clockwise seen from outside.
func appendQuad(dst []byte, d direction, plane float32, u, v, du, dv int, color uint32) []byte {
	ua, va := (d.axis+1)%3, (d.axis+2)%3
	corner := func(cu, cv int) [3]float32 {
		var p [3]float32
		p[d.axis], p[ua], p[va] = plane, float32(cu), float32(cv)
		return p
	}
	u1, v1 := u+du, v+dv
	if d.sign > 0 {
		return appendCorners(dst, color, corner(u, v), corner(u1, v), corner(u1, v1), corner(u, v1))
	}
	return appendCorners(dst, color, corner(u, v), corner(u, v1), corner(u1, v1), corner(u1, v))
}

func appendCorners(dst []byte, color uint32, corners ...[3]float32) []byte {
	uvs := [4][2]uint16{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, p := range corners {
		dst = geometry.AppendVertex(dst, geometry.Vertex{
			X: p[0], Y: p[1], Z: p[2],
			Light: fullLight,
			Color: color,
			U:     uvs[i][0] * 0x8000,
			V:     uvs[i][1] * 0x8000,
		})
	}
	return dst
}

// greedyMerge covers the non-zero cells of an n×n mask, indexed u*n+v, with
// rectangles of equal value and clears the mask as it goes.
func greedyMerge(mask []uint32, n int, emit func(u, v, du, dv int, value uint32)) {
	i := 0
	for i < n*n {
		value := mask[i]
		if value == 0 {
			i++
			continue
		}
		u0 := i / n
		v0 := i % n
		width := 1
		for v1 := v0 + 1; v1 < n && mask[u0*n+v1] == value; v1++ {
			width++
		}
		height := 1
	outer:
		for u1 := u0 + 1; u1 < n; u1++ {
			for v1 := v0; v1 < v0+width; v1++ {
				if mask[u1*n+v1] != value {
					break outer
				}
			}
			height++
		}
		for du := 0; du < height; du++ {
			for dv := 0; dv < width; dv++ {
				mask[(u0+du)*n+v0+dv] = 0
			}
		}
		emit(u0, v0, height, width, value)
		i += width
	}
}
