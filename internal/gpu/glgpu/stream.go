package glgpu

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/go-gl/gl/all-core/gl"

	"gputerrain/internal/gpu"
)

const (
	streamAlign  = 16
	fenceTimeout = uint64(time.Second)
)

// mappedBuffer is a persistently mapped staging buffer. It is never made
// resident; shaders do not read it directly.
type mappedBuffer struct {
	id  uint32
	mem []byte
}

func newMappedBuffer(label string, size int, access uint32) (*mappedBuffer, error) {
	m := &mappedBuffer{}
	flags := access | gl.MAP_PERSISTENT_BIT | gl.MAP_COHERENT_BIT
	gl.CreateBuffers(1, &m.id)
	gl.NamedBufferStorage(m.id, size, nil, flags|gl.CLIENT_STORAGE_BIT)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &m.id)
		return nil, fmt.Errorf("create %s (%d bytes): gl error 0x%x", label, size, code)
	}
	gl.ObjectLabel(gl.BUFFER, m.id, int32(len(label)), gl.Str(label+"\x00"))
	ptr := gl.MapNamedBufferRange(m.id, 0, size, flags)
	if ptr == nil {
		gl.DeleteBuffers(1, &m.id)
		return nil, fmt.Errorf("map %s: gl error 0x%x", label, gl.GetError())
	}
	m.mem = unsafe.Slice((*byte)(ptr), size)
	return m, nil
}

func (m *mappedBuffer) release() {
	gl.UnmapNamedBuffer(m.id)
	gl.DeleteBuffers(1, &m.id)
	m.mem = nil
}

// waitFence blocks until sync has signalled, then deletes it.
func waitFence(sync uintptr) error {
	if sync == 0 {
		return nil
	}
	defer gl.DeleteSync(sync)
	for {
		switch gl.ClientWaitSync(sync, gl.SYNC_FLUSH_COMMANDS_BIT, fenceTimeout) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			return nil
		case gl.WAIT_FAILED:
			return fmt.Errorf("fence wait failed: gl error 0x%x", gl.GetError())
		}
	}
}

func fenceSignalled(sync uintptr) bool {
	r := gl.ClientWaitSync(sync, 0, 0)
	return r == gl.ALREADY_SIGNALED || r == gl.CONDITION_SATISFIED
}

type copyOp struct {
	dst            uint32
	srcOff, dstOff int
	size           int
}

// UploadStream stages writes in a persistently mapped ring divided into
// per-frame segments. A segment is reused only after the fence placed at the
// end of its frame has signalled.
type UploadStream struct {
	ring    *mappedBuffer
	segSize int
	fences  []uintptr
	seg     int
	used    int
	copies  []copyOp
}

// NewUploadStream creates a ring of size bytes split into frames segments.
func NewUploadStream(size, frames int) (*UploadStream, error) {
	if frames < 1 {
		frames = 1
	}
	segSize := size / frames &^ (streamAlign - 1)
	if segSize <= 0 {
		return nil, fmt.Errorf("upload stream: %d bytes cannot hold %d frames", size, frames)
	}
	ring, err := newMappedBuffer("upload stream", segSize*frames, gl.MAP_WRITE_BIT)
	if err != nil {
		return nil, err
	}
	return &UploadStream{
		ring:    ring,
		segSize: segSize,
		fences:  make([]uintptr, frames),
	}, nil
}

// Upload returns mapped memory that is copied to dst at the next Commit.
// A write larger than one segment panics.
func (s *UploadStream) Upload(dst gpu.Buffer, offset, size int) []byte {
	b := buffer(dst)
	if offset < 0 || size < 0 || offset+size > b.size {
		panic(fmt.Sprintf("glgpu: upload [%d,%d) outside %q (%d bytes)", offset, offset+size, b.label, b.size))
	}
	if size > s.segSize {
		panic(fmt.Sprintf("glgpu: upload of %d bytes exceeds stream segment of %d", size, s.segSize))
	}
	if s.used+size > s.segSize {
		// Segment exhausted mid-frame: submit what we have and move on.
		s.Commit()
	}
	if s.used == 0 {
		if err := waitFence(s.fences[s.seg]); err != nil {
			panic(fmt.Sprintf("glgpu: upload stream: %v", err))
		}
		s.fences[s.seg] = 0
	}
	src := s.seg*s.segSize + s.used
	s.used += (size + streamAlign - 1) &^ (streamAlign - 1)
	s.copies = append(s.copies, copyOp{dst: b.id, srcOff: src, dstOff: offset, size: size})
	return s.ring.mem[src : src+size : src+size]
}

// Commit issues the copies staged since the last Commit and fences the
// segment they came from.
func (s *UploadStream) Commit() {
	if len(s.copies) == 0 {
		return
	}
	for _, c := range s.copies {
		if c.size == 0 {
			continue
		}
		gl.CopyNamedBufferSubData(s.ring.id, c.dst, c.srcOff, c.dstOff, c.size)
	}
	s.copies = s.copies[:0]
	s.fences[s.seg] = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	s.seg = (s.seg + 1) % len(s.fences)
	s.used = 0
}

// Release waits for in-flight copies and frees the ring.
func (s *UploadStream) Release() {
	for i, f := range s.fences {
		_ = waitFence(f)
		s.fences[i] = 0
	}
	s.ring.release()
}

type download struct {
	off, size int
	done      func([]byte)
}

type downloadBatch struct {
	fence     uintptr
	downloads []download
}

// DownloadStream copies device ranges into a persistently mapped read ring
// and hands them to callbacks from Tick once the copying frame has finished.
type DownloadStream struct {
	ring     *mappedBuffer
	cursor   int
	current  []download
	inFlight []downloadBatch
}

func NewDownloadStream(size int) (*DownloadStream, error) {
	ring, err := newMappedBuffer("download stream", size, gl.MAP_READ_BIT)
	if err != nil {
		return nil, err
	}
	return &DownloadStream{ring: ring}, nil
}

func (s *DownloadStream) Download(src gpu.Buffer, offset, size int, done func([]byte)) {
	b := buffer(src)
	if offset < 0 || size < 0 || offset+size > b.size {
		panic(fmt.Sprintf("glgpu: download [%d,%d) outside %q (%d bytes)", offset, offset+size, b.label, b.size))
	}
	if size > len(s.ring.mem) {
		panic(fmt.Sprintf("glgpu: download of %d bytes exceeds stream of %d", size, len(s.ring.mem)))
	}
	if s.cursor+size > len(s.ring.mem) {
		s.drain()
		s.cursor = 0
	}
	off := s.cursor
	s.cursor += (size + streamAlign - 1) &^ (streamAlign - 1)
	if size > 0 {
		gl.CopyNamedBufferSubData(b.id, s.ring.id, offset, off, size)
	}
	s.current = append(s.current, download{off: off, size: size, done: done})
}

// Tick fences this frame's downloads and completes every batch whose fence
// has signalled, oldest first.
func (s *DownloadStream) Tick() {
	if len(s.current) > 0 {
		s.inFlight = append(s.inFlight, downloadBatch{
			fence:     gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0),
			downloads: s.current,
		})
		s.current = nil
	}
	for len(s.inFlight) > 0 && fenceSignalled(s.inFlight[0].fence) {
		s.complete(s.inFlight[0])
		s.inFlight = s.inFlight[1:]
	}
}

// drain blocks on every pending download so the ring can wrap.
func (s *DownloadStream) drain() {
	s.Tick()
	for _, b := range s.inFlight {
		if err := waitFence(b.fence); err != nil {
			panic(fmt.Sprintf("glgpu: download stream: %v", err))
		}
		b.fence = 0
		s.complete(b)
	}
	s.inFlight = nil
}

func (s *DownloadStream) complete(b downloadBatch) {
	if b.fence != 0 {
		gl.DeleteSync(b.fence)
	}
	for _, d := range b.downloads {
		data := make([]byte, d.size)
		copy(data, s.ring.mem[d.off:d.off+d.size])
		d.done(data)
	}
}

// Release waits for outstanding downloads, delivering them, and frees the ring.
func (s *DownloadStream) Release() {
	s.drain()
	s.ring.release()
}
