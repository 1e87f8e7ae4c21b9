// Package pipeline drives GPU terrain culling and drawing one frame at a
// time. It owns every persistent device buffer except the region table and
// sequences the stages with the barriers between them.
//
// All methods must be called from the render thread.
package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/btree"

	"gputerrain/internal/arena"
	"gputerrain/internal/config"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
	"gputerrain/internal/profiling"
	"gputerrain/internal/section"
	"gputerrain/internal/visibility"
)

const (
	// MaxTransformations is the number of region transform slots.
	MaxTransformations = 256

	// the visible region count shares the uint16 width of a region id
	maxRegionIDs = 1<<16 - 1
	// commandSize is one indirect mesh-task command per region.
	commandSize = 8
)

// Options configures a Pipeline.
type Options struct {
	Device     gpu.Device
	Uploader   gpu.Uploader
	Downloader gpu.Downloader
	// Tickables run after each frame's commit, before any stage is dispatched.
	Tickables  []gpu.Tickable
	Index      SpatialIndex
	Settings   *config.Settings
	LoadStages gpu.StageLoader
	Extensions []Extension
	Logger     *slog.Logger
	Profiler   *profiling.Profiler
}

// Pipeline is one GPU terrain renderer instance.
type Pipeline struct {
	dev       gpu.Device
	up        gpu.Uploader
	down      gpu.Downloader
	tickables []gpu.Tickable
	index     SpatialIndex
	sections  *section.Manager
	settings  *config.Settings
	load      gpu.StageLoader
	stages    gpu.Stages
	exts      []Extension
	log       *slog.Logger
	prof      *profiling.Profiler

	scene               gpu.Buffer
	regionVisibility    gpu.Buffer
	sectionVisibility   gpu.Buffer
	terrainCommands     gpu.Buffer
	translucentCommands gpu.Buffer
	sortList            gpu.Buffer
	statistics          gpu.Buffer
	transforms          gpu.Buffer
	origins             gpu.Buffer
	owned               []gpu.Buffer

	maxRegions int
	tracker    *visibility.Tracker
	visible    *btree.BTreeG[uint64]
	resort     *bitset.BitSet

	prevRegionCount int
	frame           uint64
	compiledForFog  bool
	temporal        bool
	stats           Statistics
	closed          bool
}

// New allocates the device buffers, compiles the stages and initialises
// extensions.
func New(opts Options) (*Pipeline, error) {
	if opts.Device == nil || opts.Uploader == nil || opts.Downloader == nil || opts.Index == nil || opts.LoadStages == nil {
		return nil, errors.New("pipeline: device, streams, index and stage loader are required")
	}
	settings := opts.Settings
	if settings == nil {
		settings = config.New(config.Defaults())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxRegions := opts.Index.MaxRegions()
	if maxRegions <= 0 || maxRegions > maxRegionIDs {
		panic(fmt.Sprintf("pipeline: region capacity %d outside 1..%d", maxRegions, maxRegionIDs))
	}

	p := &Pipeline{
		dev:        opts.Device,
		up:         opts.Uploader,
		down:       opts.Downloader,
		tickables:  opts.Tickables,
		index:      opts.Index,
		settings:   settings,
		load:       opts.LoadStages,
		exts:       opts.Extensions,
		log:        logger,
		prof:       opts.Profiler,
		maxRegions: maxRegions,
		tracker:    visibility.NewTracker(maxRegions),
		visible:    btree.NewOrderedG[uint64](32),
		resort:     bitset.New(uint(maxRegions)),
		temporal:   settings.TemporalCoherence(),
	}

	snap := settings.Snapshot()
	sections, err := section.NewManager(p.dev, p.up, p.index, maxRegions, snap.ArenaBytes/geometry.QuadSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.sections = sections

	if err := p.createBuffers(); err != nil {
		p.releaseBuffers()
		p.sections.Release()
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p.compiledForFog = settings.RenderFog()
	stages, err := p.load(p.compiledForFog)
	if err != nil {
		p.releaseBuffers()
		p.sections.Release()
		return nil, fmt.Errorf("pipeline: compile stages: %w", err)
	}
	p.stages = stages

	for _, ext := range p.exts {
		if err := ext.Init(p); err != nil {
			p.Teardown()
			return nil, fmt.Errorf("pipeline: init extension: %w", err)
		}
	}
	p.log.Info("pipeline ready", "max_regions", maxRegions, "arena_quads", p.sections.Arena().Capacity(), "fog", p.compiledForFog)
	return p, nil
}

func (p *Pipeline) createBuffers() error {
	create := func(dst *gpu.Buffer, label string, size int) error {
		b, err := p.dev.CreateBuffer(label, size)
		if err != nil {
			return err
		}
		*dst = b
		p.owned = append(p.owned, b)
		return nil
	}
	n := p.maxRegions
	for _, c := range []struct {
		dst   *gpu.Buffer
		label string
		size  int
	}{
		{&p.scene, "scene", SceneSize + n*2},
		{&p.regionVisibility, "region visibility", n},
		{&p.sectionVisibility, "section visibility", n * section.SectionsPerRegion},
		{&p.terrainCommands, "terrain commands", n * commandSize},
		{&p.translucentCommands, "translucent commands", n * commandSize},
		{&p.sortList, "region sort list", n * 2},
		{&p.statistics, "statistics", statisticsSize},
		{&p.transforms, "transformations", MaxTransformations * matrixSize},
		{&p.origins, "origin offsets", MaxTransformations * 8},
	} {
		if err := create(c.dst, c.label, c.size); err != nil {
			return err
		}
	}

	for _, b := range []gpu.Buffer{p.regionVisibility, p.sectionVisibility, p.terrainCommands, p.translucentCommands, p.statistics, p.origins} {
		p.dev.ClearBuffer(b, 0, b.Size())
	}
	identity := mgl32.Ident4()
	dst := p.up.Upload(p.transforms, 0, MaxTransformations*matrixSize)
	for i := range MaxTransformations {
		putMatrix(dst[i*matrixSize:], identity)
	}
	return nil
}

func (p *Pipeline) releaseBuffers() {
	for _, b := range p.owned {
		b.Release()
	}
	p.owned = nil
}

func putMatrix(dst []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

func (p *Pipeline) checkTransform(id int) {
	if id < 0 || id >= MaxTransformations {
		panic(fmt.Sprintf("pipeline: transformation id %d out of bounds", id))
	}
}

// SetTransformation replaces the affine transform of a transform slot.
func (p *Pipeline) SetTransformation(id int, m mgl32.Mat4) {
	p.checkTransform(id)
	putMatrix(p.up.Upload(p.transforms, id*matrixSize, matrixSize), m)
}

// SetOrigin sets the block origin of a transform slot, packed as
// x:25 | z:25 | y:14 bits.
func (p *Pipeline) SetOrigin(id int, x, y, z int32) {
	p.checkTransform(id)
	binary.LittleEndian.PutUint64(p.up.Upload(p.origins, id*8, 8), packOrigin(x, y, z))
}

func packOrigin(x, y, z int32) uint64 {
	return uint64(uint32(x)&0x1ffffff) |
		uint64(uint32(z)&0x1ffffff)<<25 |
		uint64(uint32(y)&0x3fff)<<50
}

// UploadSection stores a packed section, deleting it when empty. When the
// arena or the region ids run out the least recently seen region is
// evicted and the upload retried once.
func (p *Pipeline) UploadSection(s *geometry.PackedSection) error {
	if s.Empty() {
		if s != nil {
			p.DeleteSection(s.Pos)
		}
		return nil
	}
	slot, had := p.sections.Slot(s.Pos)
	err := p.sections.Upload(s)
	if errors.Is(err, arena.ErrFull) || errors.Is(err, section.ErrNoSlot) {
		if had {
			p.forgetIfGone(p.index.RegionOfSlot(slot))
		}
		if p.EvictLeastSeenRegion() {
			what := "arena full"
			if errors.Is(err, section.ErrNoSlot) {
				what = "regions exhausted"
			}
			p.log.Warn(what+", evicted region", "section", s.Pos.String())
			err = p.sections.Upload(s)
		}
	}
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// DeleteSection removes a section's geometry. Unknown sections are ignored.
func (p *Pipeline) DeleteSection(pos geometry.SectionPos) {
	slot, ok := p.sections.Slot(pos)
	if !ok {
		return
	}
	p.sections.Delete(pos)
	p.forgetIfGone(p.index.RegionOfSlot(slot))
}

// ProcessMeshResults uploads up to budget finished repackaging results
// without blocking. It returns how many were handled.
func (p *Pipeline) ProcessMeshResults(ctx context.Context, results <-chan geometry.RepackResult, budget int) (int, error) {
	var errs []error
	n := 0
	for n < budget {
		select {
		case <-ctx.Done():
			return n, errors.Join(append(errs, ctx.Err())...)
		case res := <-results:
			n++
			if res.Err != nil {
				p.log.Warn("repackage failed", "section", res.Pos.String(), "err", res.Err)
				errs = append(errs, res.Err)
				continue
			}
			if res.Section == nil {
				p.DeleteSection(res.Pos)
				continue
			}
			if err := p.UploadSection(res.Section); err != nil {
				errs = append(errs, err)
			}
		default:
			return n, errors.Join(errs...)
		}
	}
	return n, errors.Join(errs...)
}

// EnqueueResort asks for a region's sections to be resorted next frame.
func (p *Pipeline) EnqueueResort(id int) {
	if id < 0 || id >= p.maxRegions {
		panic(fmt.Sprintf("pipeline: region %d out of bounds", id))
	}
	p.resort.Set(uint(id))
}

// EvictLeastSeenRegion evicts the region that has gone longest without
// being visible. It reports false when there are no regions.
func (p *Pipeline) EvictLeastSeenRegion() bool {
	limit := p.index.MaxRegionIndex()
	id, ok := p.tracker.LeastRecentlySeen(func(id int) bool {
		return id < limit && p.index.RegionExists(id)
	})
	if !ok {
		return false
	}
	p.evictRegion(id)
	return true
}

func (p *Pipeline) evictRegion(id int) {
	n := p.sections.EvictRegion(id)
	p.log.Debug("evicted region", "region", id, "sections", n)
	p.forget(id)
}

// forgetIfGone drops the visibility state of a region whose last section
// went away.
func (p *Pipeline) forgetIfGone(id int) {
	if !p.index.RegionExists(id) {
		p.forget(id)
	}
}

func (p *Pipeline) forget(id int) {
	if p.tracker.Visible(id) && p.temporal {
		p.clearSectionVisibility(id)
	}
	p.tracker.Reset(id)
	p.resort.Clear(uint(id))
}

func (p *Pipeline) clearSectionVisibility(id int) {
	p.dev.ClearBuffer(p.sectionVisibility, id*section.SectionsPerRegion, section.SectionsPerRegion)
}

// ReloadPrograms recompiles the stages, picking up the current fog
// setting. The old stages stay in use if compilation fails.
func (p *Pipeline) ReloadPrograms() error {
	fog := p.settings.RenderFog()
	stages, err := p.load(fog)
	if err != nil {
		p.log.Error("reload programs", "err", err)
		return fmt.Errorf("pipeline: reload programs: %w", err)
	}
	p.stages.Release()
	p.stages = stages
	p.compiledForFog = fog
	p.log.Info("programs reloaded", "fog", fog)
	return nil
}

// Stats returns the latest statistics.
func (p *Pipeline) Stats() Statistics { return p.stats }

// Sections exposes the section manager.
func (p *Pipeline) Sections() *section.Manager { return p.sections }

// Frame returns the number of frames submitted so far.
func (p *Pipeline) Frame() uint64 { return p.frame }

// Teardown disposes extensions and releases the stages and every owned
// buffer. It is safe to call more than once.
func (p *Pipeline) Teardown() {
	if p.closed {
		return
	}
	p.closed = true
	for _, ext := range p.exts {
		ext.Dispose()
	}
	if p.stages != nil {
		p.stages.Release()
	}
	p.releaseBuffers()
	p.sections.Release()
}
