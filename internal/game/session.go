// Package game runs the terrain demo: it owns the pipeline, streams
// sections around a flying camera and maps input to settings.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"gputerrain/internal/camera"
	"gputerrain/internal/config"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
	"gputerrain/internal/input"
	"gputerrain/internal/meshing"
	"gputerrain/internal/pipeline"
	"gputerrain/internal/profiling"
	"gputerrain/internal/region"
	"gputerrain/internal/shaders"
	"gputerrain/internal/world"
)

const (
	// resultBudget bounds how many meshed sections are uploaded per frame.
	resultBudget  = 256
	evictInterval = 750 * time.Millisecond
	// sections kept beyond the render distance before eviction
	evictSlack   = 1
	spawnHeadway = 24
)

// SkyColor is the clear colour and the fog colour.
var SkyColor = mgl32.Vec4{0.62, 0.76, 1.0, 1.0}

// SessionOptions wires a Session to a device.
type SessionOptions struct {
	Device     gpu.Device
	Uploader   gpu.Uploader
	Downloader gpu.Downloader
	Tickables  []gpu.Tickable
	LoadStages gpu.StageLoader
	Settings   *config.Settings
	Logger     *slog.Logger
	Profiler   *profiling.Profiler
	Width      int
	Height     int
	// Workers is the number of meshing and repackaging goroutines each.
	Workers int
}

// Session is one running terrain view.
type Session struct {
	Settings *config.Settings
	Pipeline *pipeline.Pipeline
	Index    *region.Index
	Streamer *world.Streamer
	Camera   *camera.Fly
	Watcher  *shaders.Watcher

	Paused bool
	Width  int
	Height int

	Frames           int
	LastFPSCheckTime time.Time

	pool         *geometry.WorkerPool
	prof         *profiling.Profiler
	log          *slog.Logger
	lastEviction time.Time
	lastColumn   [2]int
}

// NewSession builds the region index, the pipeline and the streaming
// machinery, and places the camera above the terrain at the origin.
func NewSession(opts SessionOptions) (*Session, error) {
	settings := opts.Settings
	if settings == nil {
		settings = config.New(config.Defaults())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU()/2, 1)
	}
	snap := settings.Snapshot()

	index, err := region.New(opts.Device, opts.Uploader, world.RegionBudget(snap.RenderDistance+evictSlack, snap.WorldHeight))
	if err != nil {
		return nil, fmt.Errorf("create region index: %w", err)
	}
	p, err := pipeline.New(pipeline.Options{
		Device:     opts.Device,
		Uploader:   opts.Uploader,
		Downloader: opts.Downloader,
		Tickables:  opts.Tickables,
		Index:      index,
		Settings:   settings,
		LoadStages: opts.LoadStages,
		Logger:     logger,
		Profiler:   opts.Profiler,
	})
	if err != nil {
		index.Release()
		return nil, err
	}

	heights := meshing.NewHeightfield(snap.Terrain)
	pool := geometry.NewWorkerPool(workers, 1024)
	streamer := world.NewStreamer(meshing.NewMesher(snap.Terrain), pool, snap.WorldHeight, workers, opts.Profiler)

	spawnY := max(heights.HeightAt(8, 8), heights.SeaLevel()) + spawnHeadway
	s := &Session{
		Settings:         settings,
		Pipeline:         p,
		Index:            index,
		Streamer:         streamer,
		Camera:           camera.NewFly(mgl64.Vec3{8, float64(spawnY), 8}),
		Width:            opts.Width,
		Height:           opts.Height,
		LastFPSCheckTime: time.Now(),
		pool:             pool,
		prof:             opts.Profiler,
		log:              logger,
		lastEviction:     time.Now(),
	}
	s.lastColumn = world.Column(s.Camera.Position)

	if snap.WatchShaders {
		w, err := shaders.Watch(snap.ShaderDir, logger)
		if err != nil {
			logger.Warn("shader hot reload disabled", "err", err)
		} else {
			s.Watcher = w
		}
	}
	logger.Info("session ready", "render_distance", snap.RenderDistance, "regions", index.MaxRegions(), "spawn_y", spawnY)
	return s, nil
}

// Fog derives the fog band from the render distance.
func (s *Session) Fog() pipeline.Fog {
	far := float32(s.Settings.RenderDistance() * geometry.SectionSize)
	return pipeline.Fog{Color: SkyColor, Start: far * 0.8, End: far}
}

// Update applies input, streams sections and uploads finished meshes.
func (s *Session) Update(ctx context.Context, dt float64, im *input.InputManager) error {
	s.handleInputActions(im)

	if !s.Paused {
		func() {
			defer s.prof.Track("camera.Move")()
			s.Camera.Move(dt,
				im.Axis(input.ActionMoveBackward, input.ActionMoveForward),
				im.Axis(input.ActionMoveLeft, input.ActionMoveRight),
				im.Axis(input.ActionMoveDown, input.ActionMoveUp),
				im.IsActive(input.ActionFast))
		}()
	}

	// evicting before streaming on every column change keeps the resident
	// square within the region budget at any flight speed
	radius := s.Settings.RenderDistance()
	column := world.Column(s.Camera.Position)
	if column != s.lastColumn || time.Since(s.lastEviction) > evictInterval {
		if n := s.Streamer.EvictFar(s.Camera.Position, radius+evictSlack, s.Pipeline.DeleteSection); n > 0 {
			s.log.Debug("evicted sections", "count", n)
		}
		s.lastEviction = time.Now()
		s.lastColumn = column
	}
	s.Streamer.StreamAround(s.Camera.Position, radius)

	var errs []error
	func() {
		defer s.prof.Track("pipeline.ProcessMeshResults")()
		if _, err := s.Pipeline.ProcessMeshResults(ctx, s.Streamer.Collect(resultBudget), resultBudget); err != nil {
			s.log.Warn("section upload", "err", err)
			errs = append(errs, err)
		}
	}()

	if s.Watcher != nil {
		if err := s.Watcher.Poll(s.Pipeline.ReloadPrograms); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) handleInputActions(im *input.InputManager) {
	if im.JustPressed(input.ActionPause) {
		s.SetPaused(!s.Paused)
	}
	if im.JustPressed(input.ActionToggleFog) {
		s.Settings.SetRenderFog(!s.Settings.RenderFog())
		// fog changes the scene layout, so the stages must be rebuilt
		if err := s.Pipeline.ReloadPrograms(); err != nil {
			s.log.Warn("fog toggle", "err", err)
		}
	}
	if im.JustPressed(input.ActionReloadShaders) {
		if err := s.Pipeline.ReloadPrograms(); err != nil {
			s.log.Warn("shader reload", "err", err)
		}
	}
	if im.JustPressed(input.ActionToggleTemporal) {
		s.Settings.SetTemporalCoherence(!s.Settings.TemporalCoherence())
		s.log.Info("temporal coherence", "enabled", s.Settings.TemporalCoherence())
	}
	if im.JustPressed(input.ActionToggleFaceCulling) {
		s.Settings.SetFaceCulling(!s.Settings.FaceCulling())
		s.log.Info("face culling", "enabled", s.Settings.FaceCulling())
	}
	if im.JustPressed(input.ActionCycleSorting) {
		next := (s.Settings.TranslucencySorting() + 1) % (config.SortQuads + 1)
		s.Settings.SetTranslucencySorting(next)
		s.log.Info("translucency sorting", "level", next.String())
	}
	if im.JustPressed(input.ActionCycleStatistics) {
		next := (s.Settings.StatisticsLevel() + 1) % (config.StatsQuads + 1)
		s.Settings.SetStatisticsLevel(next)
		s.log.Info("statistics", "level", next.String())
	}
}

// SetPaused stops camera movement. Streaming and rendering continue.
func (s *Session) SetPaused(paused bool) {
	s.Paused = paused
	s.Camera.FirstMouse = true
}

// Render draws one frame.
func (s *Session) Render() {
	cam := s.Camera.Camera(s.Width, s.Height, s.Fog())
	func() {
		defer s.prof.Track("pipeline.RenderFrame")()
		s.Pipeline.RenderFrame(cam.Frustum(), cam)
	}()
	func() {
		defer s.prof.Track("pipeline.RenderTranslucent")()
		s.Pipeline.RenderTranslucent()
	}()
	s.Frames++

	if time.Since(s.LastFPSCheckTime) >= time.Second {
		attrs := []any{"fps", s.Frames, "sections", s.Pipeline.Sections().Count(), "regions", s.Index.RegionCount()}
		for _, line := range s.Pipeline.Stats().Lines(s.Settings.StatisticsLevel()) {
			attrs = append(attrs, "stats", line)
		}
		s.log.Info("frame rate", attrs...)
		s.Frames = 0
		s.LastFPSCheckTime = time.Now()
	}
}

// Resize updates the viewport size used for the projection.
func (s *Session) Resize(width, height int) {
	s.Width = width
	s.Height = height
}

// Cleanup stops the workers and releases every device resource.
func (s *Session) Cleanup() {
	s.pool.Shutdown()
	s.Streamer.Close()
	if s.Watcher != nil {
		if err := s.Watcher.Close(); err != nil {
			s.log.Warn("close shader watcher", "err", err)
		}
	}
	s.Pipeline.Teardown()
	s.Index.Release()
}
