// Package glgpu implements the gpu contracts on OpenGL 4.6 with the NVIDIA
// bindless and mesh shader extensions. Every call must happen on the thread
// that owns the context.
package glgpu

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/all-core/gl"

	"gputerrain/internal/gpu"
)

// ErrNoBindless is returned when the context lacks an extension the
// pipeline depends on.
var ErrNoBindless = errors.New("bindless mesh shading not supported")

var requiredExtensions = []string{
	"GL_NV_shader_buffer_load",
	"GL_NV_vertex_buffer_unified_memory",
	"GL_NV_uniform_buffer_unified_memory",
	"GL_NV_mesh_shader",
	"GL_NV_representative_fragment_test",
}

// Buffer is an immutable-storage buffer made resident for bindless access.
type Buffer struct {
	id       uint32
	label    string
	size     int
	addr     uint64
	released bool
}

func (b *Buffer) Label() string   { return b.label }
func (b *Buffer) Size() int       { return b.size }
func (b *Buffer) Address() uint64 { return b.addr }
func (b *Buffer) ID() uint32      { return b.id }

// Release drops residency and deletes the buffer.
func (b *Buffer) Release() {
	if b.released {
		panic(fmt.Sprintf("glgpu: buffer %q released twice", b.label))
	}
	b.released = true
	gl.MakeNamedBufferNonResidentNV(b.id)
	gl.DeleteBuffers(1, &b.id)
}

// Device issues buffer and state commands on the current context.
type Device struct {
	sceneBound bool
}

// New checks the current context for the required extensions. gl.Init must
// already have been called.
func New() (*Device, error) {
	var n int32
	gl.GetIntegerv(gl.NUM_EXTENSIONS, &n)
	have := make(map[string]bool, n)
	for i := int32(0); i < n; i++ {
		have[gl.GoStr(gl.GetStringi(gl.EXTENSIONS, uint32(i)))] = true
	}
	var missing []string
	for _, ext := range requiredExtensions {
		if !have[ext] {
			missing = append(missing, ext)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrNoBindless, missing)
	}
	gl.DepthFunc(gl.LEQUAL)
	return &Device{}, nil
}

func (d *Device) CreateBuffer(label string, size int) (gpu.Buffer, error) {
	return d.createBuffer(label, size, 0)
}

func (d *Device) createBuffer(label string, size int, flags uint32) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("create buffer %q: invalid size %d", label, size)
	}
	b := &Buffer{label: label, size: size}
	gl.CreateBuffers(1, &b.id)
	gl.NamedBufferStorage(b.id, size, nil, flags)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &b.id)
		return nil, fmt.Errorf("create buffer %q (%d bytes): gl error 0x%x", label, size, code)
	}
	name := gl.Str(label + "\x00")
	gl.ObjectLabel(gl.BUFFER, b.id, int32(len(label)), name)
	gl.MakeNamedBufferResidentNV(b.id, gl.READ_WRITE)
	gl.GetNamedBufferParameterui64vNV(b.id, gl.BUFFER_GPU_ADDRESS_NV, &b.addr)
	return b, nil
}

func buffer(b gpu.Buffer) *Buffer {
	gb, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("glgpu: foreign buffer %T", b))
	}
	if gb.released {
		panic(fmt.Sprintf("glgpu: use of released buffer %q", gb.label))
	}
	return gb
}

func (d *Device) ClearBuffer(b gpu.Buffer, offset, size int) {
	gl.ClearNamedBufferSubData(buffer(b).id, gl.R8UI, offset, size, gl.RED_INTEGER, gl.UNSIGNED_BYTE, nil)
}

func (d *Device) MemoryBarrier(bits gpu.Barrier) {
	var mask uint32
	if bits&gpu.BarrierShaderStorage != 0 {
		mask |= gl.SHADER_STORAGE_BARRIER_BIT
	}
	if bits&gpu.BarrierFramebuffer != 0 {
		mask |= gl.FRAMEBUFFER_BARRIER_BIT
	}
	if bits&gpu.BarrierCommand != 0 {
		mask |= gl.COMMAND_BARRIER_BIT
	}
	if bits&gpu.BarrierUniform != 0 {
		mask |= gl.UNIFORM_BARRIER_BIT
	}
	gl.MemoryBarrier(mask)
}

func (d *Device) SetState(s gpu.State) {
	enable(gl.DEPTH_TEST, s.DepthTest)
	gl.DepthMask(s.DepthWrite)
	gl.ColorMask(s.ColorWrite, s.ColorWrite, s.ColorWrite, s.ColorWrite)
	enable(gl.BLEND, s.Blend)
	if s.Blend {
		gl.BlendFuncSeparate(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA, gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	}
	enable(gl.REPRESENTATIVE_FRAGMENT_TEST_NV, s.CullFragment)
}

func enable(capability uint32, on bool) {
	if on {
		gl.Enable(capability)
	} else {
		gl.Disable(capability)
	}
}

var unifiedStates = []uint32{
	gl.UNIFORM_BUFFER_UNIFIED_NV,
	gl.VERTEX_ATTRIB_ARRAY_UNIFIED_NV,
	gl.ELEMENT_ARRAY_UNIFIED_NV,
	gl.DRAW_INDIRECT_UNIFIED_NV,
}

func (d *Device) BindScene(addr uint64, size int) {
	for _, s := range unifiedStates {
		gl.EnableClientState(s)
	}
	gl.BufferAddressRangeNV(gl.UNIFORM_BUFFER_ADDRESS_NV, 0, addr, size)
	d.sceneBound = true
}

func (d *Device) UnbindScene() {
	if !d.sceneBound {
		return
	}
	for _, s := range unifiedStates {
		gl.DisableClientState(s)
	}
	d.sceneBound = false
}

// Err drains the context error queue.
func (d *Device) Err() error {
	var errs []error
	for i := 0; i < 16; i++ {
		code := gl.GetError()
		if code == gl.NO_ERROR {
			break
		}
		errs = append(errs, fmt.Errorf("gl error 0x%x", code))
	}
	return errors.Join(errs...)
}

// BeginFrame sets the viewport and clears the default framebuffer to the
// given colour. Depth clears to the far plane.
func (d *Device) BeginFrame(width, height int, r, g, b, a float32) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.DepthMask(true)
	gl.ColorMask(true, true, true, true)
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}
