package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/all-core/gl"

	"gputerrain/internal/gpu"
)

const (
	commandStride = 8
	fogDefine     = "RENDER_FOG"
)

// Stages holds the compiled terrain, culling and sort programs.
type Stages struct {
	terrain     *Program
	region      *Program
	section     *Program
	translucent *Program
	sort        *Program
}

// Loader returns a StageLoader reading sources from dir.
func Loader(dir string) gpu.StageLoader {
	return func(fog bool) (gpu.Stages, error) {
		return LoadStages(dir, fog)
	}
}

// LoadStages compiles all stage programs. On failure nothing is leaked.
func LoadStages(dir string, fog bool) (*Stages, error) {
	var defines []string
	if fog {
		defines = append(defines, fogDefine)
	}
	s := &Stages{}
	targets := []struct {
		name string
		dst  **Program
	}{
		{"terrain", &s.terrain},
		{"region", &s.region},
		{"section", &s.section},
		{"translucent", &s.translucent},
		{"sort", &s.sort},
	}
	for _, t := range targets {
		p, err := LoadProgram(dir, t.name, defines...)
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("load stages: %w", err)
		}
		*t.dst = p
	}
	return s, nil
}

func (s *Stages) TerrainRaster(regions int, commands uint64) {
	s.terrain.Use()
	multiDrawIndirect(regions, commands)
}

func (s *Stages) RegionRaster(regions int) {
	s.region.Use()
	gl.DrawMeshTasksNV(0, uint32(regions))
}

func (s *Stages) SectionRaster(regions int) {
	s.section.Use()
	gl.DrawMeshTasksNV(0, uint32(regions))
}

func (s *Stages) TranslucentRaster(regions int, commands uint64) {
	s.translucent.Use()
	multiDrawIndirect(regions, commands)
}

func (s *Stages) SortDispatch(regions int) {
	s.sort.Use()
	gl.DispatchCompute(uint32(regions), 1, 1)
}

// multiDrawIndirect draws one mesh task command per region from a resident
// command buffer.
func multiDrawIndirect(regions int, commands uint64) {
	gl.BufferAddressRangeNV(gl.DRAW_INDIRECT_ADDRESS_NV, 0, commands, regions*commandStride)
	gl.MultiDrawMeshTasksIndirectNV(0, int32(regions), 0)
}

func (s *Stages) Release() {
	for _, p := range []*Program{s.terrain, s.region, s.section, s.translucent, s.sort} {
		if p != nil {
			p.Delete()
		}
	}
	gl.UseProgram(0)
	*s = Stages{}
}
