package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gputerrain/internal/input"
)

func TestRunFramesFollowsScript(t *testing.T) {
	s, dev := newHeadlessSession(t)
	t.Cleanup(s.Cleanup)
	app := NewApp(nil, input.NewInputManager(), s, 0, nil, nil)

	var sizes [][2]int
	app.BeginFrame = func(w, h int) { sizes = append(sizes, [2]int{w, h}) }

	var seen []int
	n := app.RunFrames(context.Background(), 4, func(frame int, im *input.InputManager) {
		seen = append(seen, frame)
		if frame == 1 {
			im.Trigger(input.ActionPause)
		}
	})

	assert.Equal(t, 4, n)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Len(t, sizes, 4)
	assert.Equal(t, [2]int{320, 200}, sizes[0])
	assert.True(t, s.Paused)
	assert.Contains(t, dev.Kinds(), "commit")
}

func TestRunFramesStopsOnCancel(t *testing.T) {
	s, _ := newHeadlessSession(t)
	t.Cleanup(s.Cleanup)
	app := NewApp(nil, input.NewInputManager(), s, 0, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	n := app.RunFrames(ctx, 10, func(frame int, _ *input.InputManager) {
		if frame == 2 {
			cancel()
		}
	})
	// frame 2 still renders, the cancellation is seen before frame 3
	assert.Equal(t, 3, n)
}

func TestFPSLimiterPacesFrames(t *testing.T) {
	f := NewFPSLimiter(200)
	start := time.Now()
	for range 4 {
		f.Wait(false)
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	unlimited := NewFPSLimiter(0)
	start = time.Now()
	unlimited.Wait(false)
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}
