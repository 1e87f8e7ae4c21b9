package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"gputerrain/internal/input"
	"gputerrain/internal/profiling"
)

// slowFrame is the frame time above which the top profiled tasks are logged.
const slowFrame = 16 * time.Millisecond

// Script drives a headless run. It is called before each frame with the
// frame number and may trigger actions on im.
type Script func(frame int, im *input.InputManager)

// App owns the main loop. Window is nil for headless runs.
type App struct {
	window       *glfw.Window
	inputManager *input.InputManager
	session      *Session
	fpsLimiter   *FPSLimiter
	prof         *profiling.Profiler
	log          *slog.Logger

	// BeginFrame runs before the session renders, with the current
	// framebuffer size. The windowed demo clears the default framebuffer
	// here.
	BeginFrame func(width, height int)

	profileFrames bool
	lastTime      time.Time
}

// NewApp wraps a running session. window may be nil.
func NewApp(window *glfw.Window, im *input.InputManager, session *Session, fpsLimit int, prof *profiling.Profiler, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if prof == nil {
		prof = &profiling.Profiler{}
	}
	return &App{
		window:       window,
		inputManager: im,
		session:      session,
		fpsLimiter:   NewFPSLimiter(fpsLimit),
		prof:         prof,
		log:          logger,
		lastTime:     time.Now(),
	}
}

// Session returns the running session.
func (a *App) Session() *Session { return a.session }

// Run loops until the window is closed or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	for !a.window.ShouldClose() && ctx.Err() == nil {
		a.tick(ctx)
	}
}

// RunFrames renders n frames, calling script before each one. It stops
// early when ctx is cancelled and returns the number of frames rendered.
func (a *App) RunFrames(ctx context.Context, n int, script Script) int {
	for i := range n {
		if ctx.Err() != nil {
			return i
		}
		if script != nil {
			script(i, a.inputManager)
		}
		a.tick(ctx)
	}
	return n
}

func (a *App) tick(ctx context.Context) {
	a.prof.ResetFrame()
	startTick := time.Now()
	dt := startTick.Sub(a.lastTime).Seconds()
	a.lastTime = startTick

	if a.window != nil {
		func() { defer a.prof.Track("glfw.PollEvents")(); glfw.PollEvents() }()
	}

	if a.inputManager.JustPressed(input.ActionToggleProfiling) {
		a.profileFrames = !a.profileFrames
		a.log.Info("frame profiling", "enabled", a.profileFrames)
	}

	if err := a.session.Update(ctx, dt, a.inputManager); err != nil {
		a.log.Debug("update", "err", err)
	}
	a.SyncCursor()
	if a.BeginFrame != nil {
		a.BeginFrame(a.session.Width, a.session.Height)
	}
	a.session.Render()

	if a.window != nil {
		func() { defer a.prof.Track("glfw.SwapBuffers")(); a.window.SwapBuffers() }()
	}

	if d := time.Since(startTick); a.profileFrames && d > slowFrame {
		a.log.Warn("slow frame", "duration", d, "top", a.prof.TopN(5))
	}

	a.inputManager.PostUpdate() // Clear "JustPressed" flags
	a.fpsLimiter.Wait(a.session.Paused)
}
