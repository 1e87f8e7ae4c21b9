package soft

import "gputerrain/internal/gpu"

// Stages records stage invocations on the device command log.
type Stages struct {
	dev      *Device
	Fog      bool
	released bool
}

var _ gpu.Stages = (*Stages)(nil)

// Loader returns a gpu.StageLoader producing recording stages. Every load is
// logged as a "load" op labelled "fog" or "nofog".
func (d *Device) Loader() gpu.StageLoader {
	return func(fog bool) (gpu.Stages, error) {
		label := "nofog"
		if fog {
			label = "fog"
		}
		d.Record(Op{Kind: "load", Label: label})
		return &Stages{dev: d, Fog: fog}, nil
	}
}

func (s *Stages) TerrainRaster(regions int, commands uint64) {
	s.dev.Record(Op{Kind: "raster", Label: "terrain", Count: regions, Addr: commands})
}

func (s *Stages) RegionRaster(regions int) {
	s.dev.Record(Op{Kind: "raster", Label: "region", Count: regions})
}

func (s *Stages) SectionRaster(regions int) {
	s.dev.Record(Op{Kind: "raster", Label: "section", Count: regions})
}

func (s *Stages) TranslucentRaster(regions int, commands uint64) {
	s.dev.Record(Op{Kind: "raster", Label: "translucent", Count: regions, Addr: commands})
}

func (s *Stages) SortDispatch(regions int) {
	s.dev.Record(Op{Kind: "dispatch", Label: "sort", Count: regions})
}

func (s *Stages) Release() {
	s.released = true
	s.dev.Record(Op{Kind: "release", Label: "stages"})
}

// Released reports whether Release was called.
func (s *Stages) Released() bool { return s.released }
