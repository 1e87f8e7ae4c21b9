// Package gpu defines the device-side contracts the terrain pipeline is
// written against: persistent buffers with stable bindless addresses,
// fixed-function state, memory barriers and the streaming upload/download
// primitives. Concrete devices live in subpackages.
package gpu

// Buffer is a persistent device buffer. Its Address is a bindless device
// pointer fetched once at creation; it must not change for the lifetime of
// the buffer, because scene data and section records embed it.
type Buffer interface {
	Label() string
	Size() int
	Address() uint64
	Release()
}

// Barrier selects which prior device writes must be visible to later reads.
type Barrier uint32

const (
	BarrierShaderStorage Barrier = 1 << iota
	BarrierFramebuffer
	BarrierCommand
	BarrierUniform
)

// State is the subset of fixed-function state the pipeline toggles.
type State struct {
	DepthTest    bool
	DepthWrite   bool
	ColorWrite   bool
	Blend        bool // standard alpha compositing
	CullFragment bool // representative fragment test, used by pure culling passes
}

// Device creates buffers and records state changes on the render thread.
type Device interface {
	CreateBuffer(label string, size int) (Buffer, error)
	// ClearBuffer zero-fills size bytes of b starting at offset.
	ClearBuffer(b Buffer, offset, size int)
	MemoryBarrier(bits Barrier)
	SetState(s State)
	// BindScene makes the scene uniform at addr visible to stage programs
	// until UnbindScene.
	BindScene(addr uint64, size int)
	UnbindScene()
	// Err drains device errors raised since the previous call.
	Err() error
}

// Uploader hands out host-writable staging memory for a range of a device
// buffer. The slice is only valid until Commit, which makes every pending
// write visible to the next device submission.
type Uploader interface {
	Upload(dst Buffer, offset, size int) []byte
	Commit()
}

// Downloader copies a range of a device buffer back to the host once all
// previously submitted device work has completed. Callbacks run on the
// render thread in request order and are never cancelled.
type Downloader interface {
	Download(src Buffer, offset, size int, done func(data []byte))
}

// Tickable is per-frame maintenance run after uploads are committed and
// before device work is issued (fence polling, deferred frees).
type Tickable interface {
	Tick()
}

// Stages is one compiled set of terrain stage programs. Counts are region
// counts; command addresses point at indirect command buffers.
type Stages interface {
	// TerrainRaster draws opaque terrain from an indirect command buffer.
	TerrainRaster(regions int, commands uint64)
	// RegionRaster runs the region cull pass.
	RegionRaster(regions int)
	// SectionRaster runs the section cull and command build pass.
	SectionRaster(regions int)
	// TranslucentRaster draws translucent terrain from an indirect command buffer.
	TranslucentRaster(regions int, commands uint64)
	// SortDispatch resorts the sections of the queued regions.
	SortDispatch(regions int)
	Release()
}

// StageLoader compiles stage programs. Fog changes the scene layout, so it
// is fixed at compile time.
type StageLoader func(fog bool) (Stages, error)
