package input

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
)

func TestKeyEdgesLastOneFrame(t *testing.T) {
	im := NewInputManager()

	im.HandleKeyEvent(glfw.KeyG, glfw.Press)
	assert.True(t, im.JustPressed(ActionToggleFog))
	assert.True(t, im.IsActive(ActionToggleFog))

	im.PostUpdate()
	assert.False(t, im.JustPressed(ActionToggleFog))
	assert.True(t, im.IsActive(ActionToggleFog))

	im.HandleKeyEvent(glfw.KeyG, glfw.Release)
	assert.True(t, im.JustReleased(ActionToggleFog))
	assert.False(t, im.IsActive(ActionToggleFog))
}

func TestAxis(t *testing.T) {
	im := NewInputManager()
	assert.Zero(t, im.Axis(ActionMoveBackward, ActionMoveForward))

	im.HandleKeyEvent(glfw.KeyW, glfw.Press)
	assert.Equal(t, 1.0, im.Axis(ActionMoveBackward, ActionMoveForward))

	im.HandleKeyEvent(glfw.KeyS, glfw.Press)
	assert.Zero(t, im.Axis(ActionMoveBackward, ActionMoveForward))

	im.HandleKeyEvent(glfw.KeyW, glfw.Release)
	assert.Equal(t, -1.0, im.Axis(ActionMoveBackward, ActionMoveForward))
}

func TestTriggerDoesNotHold(t *testing.T) {
	im := NewInputManager()
	im.Trigger(ActionCycleSorting)
	assert.True(t, im.JustPressed(ActionCycleSorting))
	assert.False(t, im.IsActive(ActionCycleSorting))

	im.PostUpdate()
	assert.False(t, im.JustPressed(ActionCycleSorting))
}

func TestUnboundKeyIsIgnored(t *testing.T) {
	im := NewInputManager()
	im.UnbindKey(glfw.KeyW)
	im.HandleKeyEvent(glfw.KeyW, glfw.Press)
	assert.False(t, im.IsActive(ActionMoveForward))
}
