// Command terrain-demo flies a camera over generated terrain rendered by the
// GPU terrain pipeline. With -headless it runs a scripted session against
// the software device instead of opening a window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/go-gl/gl/all-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"gputerrain/internal/config"
	"gputerrain/internal/game"
	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu"
	"gputerrain/internal/gpu/glgpu"
	"gputerrain/internal/gpu/soft"
	"gputerrain/internal/input"
	"gputerrain/internal/profiling"
)

const (
	winW = 1280
	winH = 720

	// host memory backs the arena when headless
	headlessArenaBytes = 1 << 20 * geometry.QuadSize
	downloadBytes      = 1 << 20
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		headless   = flag.Bool("headless", false, "run against the software device without a window")
		frames     = flag.Int("frames", 600, "frames to render when headless")
		fps        = flag.Int("fps", 240, "frame rate cap, 0 disables it")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	settings := config.New(config.Defaults())
	if *configPath != "" {
		var err error
		settings, err = config.Load(*configPath)
		if err != nil {
			logger.Error("load config", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if *headless {
		err = runHeadless(ctx, settings, *frames, logger)
	} else {
		err = runWindowed(ctx, settings, *fps, logger)
	}
	if err != nil {
		logger.Error("terrain-demo", "err", err)
		os.Exit(1)
	}
}

func runHeadless(ctx context.Context, settings *config.Settings, frames int, logger *slog.Logger) error {
	f := settings.Snapshot()
	f.ArenaBytes = min(f.ArenaBytes, headlessArenaBytes)
	f.WatchShaders = false
	settings = config.New(f)

	dev := soft.New()
	prof := &profiling.Profiler{}
	session, err := game.NewSession(game.SessionOptions{
		Device:     dev,
		Uploader:   dev,
		Downloader: dev,
		Tickables:  []gpu.Tickable{dev},
		LoadStages: dev.Loader(),
		Settings:   settings,
		Logger:     logger,
		Profiler:   prof,
		Width:      winW,
		Height:     winH,
	})
	if err != nil {
		return err
	}
	defer session.Cleanup()

	im := input.NewInputManager()
	app := game.NewApp(nil, im, session, 0, prof, logger)
	n := app.RunFrames(ctx, frames, func(frame int, im *input.InputManager) {
		// turn slowly so the frustum sweeps across streamed regions
		session.Camera.Yaw += 0.5
	})
	logger.Info("headless run finished", "frames", n, "sections", session.Pipeline.Sections().Count(), "dropped", session.Streamer.Dropped())
	return dev.Err()
}

func runWindowed(ctx context.Context, settings *config.Settings, fps int, logger *slog.Logger) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	window, err := game.SetupWindow(winW, winH, "terrain-demo")
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	if err := gl.Init(); err != nil {
		return fmt.Errorf("init gl: %w", err)
	}
	logger.Info("opengl", "version", gl.GoStr(gl.GetString(gl.VERSION)), "renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	dev, err := glgpu.New()
	if err != nil {
		return err
	}
	snap := settings.Snapshot()
	up, err := glgpu.NewUploadStream(snap.UploadStreamBytes, snap.UploadFrames)
	if err != nil {
		return err
	}
	defer up.Release()
	down, err := glgpu.NewDownloadStream(downloadBytes)
	if err != nil {
		return err
	}
	defer down.Release()

	fbW, fbH := window.GetFramebufferSize()
	prof := &profiling.Profiler{}
	session, err := game.NewSession(game.SessionOptions{
		Device:     dev,
		Uploader:   up,
		Downloader: down,
		Tickables:  []gpu.Tickable{down},
		LoadStages: glgpu.Loader(snap.ShaderDir),
		Settings:   settings,
		Logger:     logger,
		Profiler:   prof,
		Width:      fbW,
		Height:     fbH,
	})
	if err != nil {
		return err
	}
	defer session.Cleanup()

	im := input.NewInputManager()
	app := game.NewApp(window, im, session, fps, prof, logger)
	app.BeginFrame = func(width, height int) {
		c := game.SkyColor
		dev.BeginFrame(width, height, c.X(), c.Y(), c.Z(), c.W())
	}
	game.SetupInputHandlers(app)

	app.Run(ctx)
	return dev.Err()
}
