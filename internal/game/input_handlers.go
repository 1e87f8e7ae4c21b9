package game

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// SetupInputHandlers routes window events to the input manager and the
// session.
func SetupInputHandlers(app *App) {
	window := app.window
	im := app.inputManager

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if app.session != nil && !app.session.Paused {
			app.session.Camera.HandleMouseMovement(xpos, ypos)
		}
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		im.HandleKeyEvent(key, action)
	})

	window.SetFramebufferSizeCallback(func(w *glfw.Window, fbWidth, fbHeight int) {
		// minimised windows report a zero framebuffer
		if fbWidth == 0 || fbHeight == 0 {
			return
		}
		if app.session != nil {
			app.session.Resize(fbWidth, fbHeight)
		}
	})

	window.SetFocusCallback(func(w *glfw.Window, focused bool) {
		if !focused && app.session != nil && !app.session.Paused {
			app.session.SetPaused(true)
			w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	})
}

// SyncCursor shows the cursor while paused and captures it otherwise.
func (a *App) SyncCursor() {
	if a.window == nil {
		return
	}
	mode := glfw.CursorDisabled
	if a.session.Paused {
		mode = glfw.CursorNormal
	}
	if a.window.GetInputMode(glfw.CursorMode) != mode {
		a.window.SetInputMode(glfw.CursorMode, mode)
	}
}
