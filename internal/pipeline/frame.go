package pipeline

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"

	"gputerrain/internal/config"
	"gputerrain/internal/cull"
	"gputerrain/internal/gpu"
)

var (
	stateCull   = gpu.State{DepthTest: true, CullFragment: true}
	stateRaster = gpu.State{DepthTest: true, DepthWrite: true, ColorWrite: true}
	stateBlend  = gpu.State{DepthTest: true, DepthWrite: true, ColorWrite: true, Blend: true}
	stateIdle   = gpu.State{DepthWrite: true, ColorWrite: true}
)

// RenderFrame culls regions, uploads the frame's scene and dispatches the
// opaque stages. Device errors are logged, never returned.
func (p *Pipeline) RenderFrame(frustum cull.Frustum, cam Camera) {
	if p.index.RegionCount() == 0 {
		return
	}
	defer p.prof.Track("pipeline.renderFrame")()

	ctx := RenderContext{Frame: p.frame, Camera: cam, Pass: PassOpaque}
	for _, ext := range p.exts {
		ext.TerrainSetup(ctx)
	}

	p.syncTemporalCoherence()
	chunk := cam.Chunk()
	keep := p.settings.RegionKeepDistance()

	stopCull := p.prof.Track("pipeline.renderFrame.cull")
	p.visible.Clear(false)
	// eviction only lowers the bound, so it is read once
	limit := p.index.MaxRegionIndex()
	for id := 0; id < limit; id++ {
		if !p.index.RegionExists(id) {
			continue
		}
		if keep > 0 && !p.index.WithinDistance(id, keep+4, chunk) {
			p.evictRegion(id)
			continue
		}
		visible := p.index.IsRegionVisible(frustum, id)
		if visible {
			dist := uint64(p.index.Distance(id, chunk))
			p.visible.ReplaceOrInsert(dist<<16 | uint64(id))
			if p.index.IsRegionInAxis(id, cam.Position) {
				p.resort.Set(uint(id))
			}
		}
		if p.tracker.Mark(id, visible, p.frame+1) && p.temporal {
			p.clearSectionVisibility(id)
		}
	}
	stopCull()

	visibleRegions := p.visible.Len()
	if p.settings.StatisticsLevel() != config.StatsNone {
		p.stats.Frustum = visibleRegions
	}
	if visibleRegions == 0 {
		p.prevRegionCount = 0
		return
	}
	ctx.VisibleRegions = visibleRegions

	stopUpload := p.prof.Track("pipeline.renderFrame.upload")
	ids := p.up.Upload(p.scene, SceneSize, visibleRegions*2)
	i := 0
	p.visible.Ascend(func(key uint64) bool {
		binary.LittleEndian.PutUint16(ids[2*i:], uint16(key))
		i++
		return true
	})

	sc := p.buildScene(cam, visibleRegions)
	sc.encode(p.up.Upload(p.scene, 0, SceneSize))

	if p.settings.TranslucencySorting() == config.SortNone {
		p.resort.ClearAll()
	}
	sortCount := int(p.resort.Count())
	if sortCount > 0 {
		list := p.up.Upload(p.sortList, 0, sortCount*2)
		j := 0
		for id, ok := p.resort.NextSet(0); ok; id, ok = p.resort.NextSet(id + 1) {
			binary.LittleEndian.PutUint16(list[2*j:], uint16(id))
			j++
		}
		p.resort.ClearAll()
	}

	p.up.Commit()
	for _, t := range p.tickables {
		t.Tick()
	}
	stopUpload()

	stopDispatch := p.prof.Track("pipeline.renderFrame.dispatch")
	p.dev.BindScene(p.scene.Address(), SceneSize)

	// last frame's commands hide this frame's cull latency
	if p.prevRegionCount != 0 {
		p.dev.SetState(stateRaster)
		p.stages.TerrainRaster(p.prevRegionCount, p.terrainCommands.Address())
		p.dev.MemoryBarrier(gpu.BarrierFramebuffer)
	}

	p.dev.SetState(stateCull)
	p.stages.RegionRaster(visibleRegions)
	p.dev.MemoryBarrier(gpu.BarrierShaderStorage)
	p.stages.SectionRaster(visibleRegions)
	p.dev.SetState(stateRaster)

	if sortCount > 0 {
		p.dev.MemoryBarrier(gpu.BarrierShaderStorage)
		p.stages.SortDispatch(sortCount)
		p.dev.MemoryBarrier(gpu.BarrierShaderStorage)
	}

	p.dev.UnbindScene()
	p.dev.SetState(stateIdle)
	stopDispatch()

	for _, ext := range p.exts {
		ext.RenderPass(ctx)
	}

	p.prevRegionCount = visibleRegions
	p.frame++
	p.reportErrors("renderFrame")
}

// syncTemporalCoherence wipes all section visibility when temporal
// coherence is switched on, since edges were not cleared while it was off.
func (p *Pipeline) syncTemporalCoherence() {
	on := p.settings.TemporalCoherence()
	if on && !p.temporal {
		p.dev.ClearBuffer(p.sectionVisibility, 0, p.sectionVisibility.Size())
	}
	p.temporal = on
}

func (p *Pipeline) buildScene(cam Camera, visibleRegions int) scene {
	chunk := cam.Chunk()
	pos := cam.Position
	offset := mgl32.Vec3{
		-float32(pos.X() - float64(chunk.X)*16),
		-float32(pos.Y() - float64(chunk.Y)*16),
		-float32(pos.Z() - float64(chunk.Z)*16),
	}
	vp := cam.ViewProjection()
	sc := scene{
		viewProj:   vp.Mul4(mgl32.Translate3D(offset.X(), offset.Y(), offset.Z())),
		fog:        p.compiledForFog,
		chunk:      [3]int32{chunk.X, chunk.Y, chunk.Z},
		offset:     offset,
		fogColor:   cam.Fog.Color,
		halfWidth:  float32(cam.Width) / 2,
		halfHeight: float32(cam.Height) / 2,
		fogStart:   cam.Fog.Start,
		fogEnd:     cam.Fog.End,
		fogShape:   cam.Fog.Shape,
		visible:    uint16(visibleRegions),
		frame:      uint8(p.frame),
	}
	if p.compiledForFog {
		sc.inverse = vp.Inv()
	}
	if p.settings.FaceCulling() {
		sc.flags |= sceneFlagFaceCulling
	}
	sc.addresses = [sceneAddresses]uint64{
		addrRegionIDs:           p.scene.Address() + SceneSize,
		addrRegionTable:         p.index.TableAddress(),
		addrSectionTable:        p.sections.TableAddress(),
		addrRegionVisibility:    p.regionVisibility.Address(),
		addrSectionVisibility:   p.sectionVisibility.Address(),
		addrTerrainCommands:     p.terrainCommands.Address(),
		addrTranslucentCommands: p.translucentCommands.Address(),
		addrSortList:            p.sortList.Address(),
		addrArena:               p.sections.ArenaAddress(),
		addrTransforms:          p.transforms.Address(),
		addrOrigins:             p.origins.Address(),
		addrStatistics:          p.statistics.Address(),
	}
	return sc
}

// RenderTranslucent draws translucent terrain with the commands built on
// the previous frame, then requests the statistics counters.
func (p *Pipeline) RenderTranslucent() {
	defer p.prof.Track("pipeline.renderTranslucent")()

	if p.prevRegionCount != 0 {
		p.dev.BindScene(p.scene.Address(), SceneSize)
		p.dev.SetState(stateBlend)
		p.stages.TranslucentRaster(p.prevRegionCount, p.translucentCommands.Address())
		p.dev.SetState(stateIdle)
		p.dev.UnbindScene()
	}

	ctx := RenderContext{Frame: p.frame, VisibleRegions: p.prevRegionCount, Pass: PassTranslucent}
	for _, ext := range p.exts {
		ext.RenderPass(ctx)
	}

	if p.settings.StatisticsLevel() > config.StatsFrustum {
		p.down.Download(p.statistics, 0, statisticsSize, func(b []byte) {
			le := binary.LittleEndian
			p.stats.Regions = int(le.Uint32(b[0:]))
			p.stats.Sections = int(le.Uint32(b[4:]))
			p.stats.Quads = int(le.Uint32(b[8:]))
		})
		clear(p.up.Upload(p.statistics, 0, statisticsSize))
	}
	p.reportErrors("renderTranslucent")
}

func (p *Pipeline) reportErrors(stage string) {
	if err := p.dev.Err(); err != nil {
		p.log.Error("gl error", "stage", stage, "err", err)
	}
}
