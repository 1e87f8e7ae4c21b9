// Package soft is a host-memory implementation of the gpu contracts. It
// executes buffer writes, clears and downloads against byte slices and
// records every state change and stage invocation, so callers can assert
// the exact device command order without a GPU.
package soft

import (
	"errors"
	"fmt"

	"gputerrain/internal/gpu"
)

const addressBase = 0x1_0000_0000

// Op is one recorded device command.
type Op struct {
	Kind    string // clear, barrier, state, bind, unbind, commit, tick, raster, dispatch, release
	Label   string
	Offset  int
	Size    int
	Count   int
	Addr    uint64
	State   gpu.State
	Barrier gpu.Barrier
}

// Device is a software gpu.Device, gpu.Uploader and gpu.Downloader.
type Device struct {
	nextAddr  uint64
	buffers   []*Buffer
	ops       []Op
	errs      []error
	pending   []pendingWrite
	downloads []pendingDownload
	state     gpu.State
}

type pendingWrite struct {
	dst    *Buffer
	offset int
	data   []byte
}

type pendingDownload struct {
	data []byte
	done func([]byte)
}

var (
	_ gpu.Device     = (*Device)(nil)
	_ gpu.Uploader   = (*Device)(nil)
	_ gpu.Downloader = (*Device)(nil)
	_ gpu.Tickable   = (*Device)(nil)
)

// New returns an empty device.
func New() *Device {
	return &Device{nextAddr: addressBase}
}

// Buffer is a device buffer backed by a byte slice.
type Buffer struct {
	dev      *Device
	label    string
	data     []byte
	addr     uint64
	released bool
}

func (b *Buffer) Label() string   { return b.label }
func (b *Buffer) Size() int       { return len(b.data) }
func (b *Buffer) Address() uint64 { return b.addr }

// Bytes exposes the device-side contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Released reports whether Release was called.
func (b *Buffer) Released() bool { return b.released }

func (b *Buffer) Release() {
	if b.released {
		panic(fmt.Sprintf("soft: buffer %q released twice", b.label))
	}
	b.released = true
}

func (d *Device) CreateBuffer(label string, size int) (gpu.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("create buffer %q: invalid size %d", label, size)
	}
	b := &Buffer{dev: d, label: label, data: make([]byte, size), addr: d.nextAddr}
	// keep addresses 256-byte aligned like real allocations
	d.nextAddr += uint64(size+255) &^ 255
	d.buffers = append(d.buffers, b)
	return b, nil
}

// Lookup returns the live buffer with the given label, or nil.
func (d *Device) Lookup(label string) *Buffer {
	for _, b := range d.buffers {
		if b.label == label && !b.released {
			return b
		}
	}
	return nil
}

// Live returns the number of buffers not yet released.
func (d *Device) Live() int {
	n := 0
	for _, b := range d.buffers {
		if !b.released {
			n++
		}
	}
	return n
}

func (d *Device) buffer(b gpu.Buffer) *Buffer {
	sb, ok := b.(*Buffer)
	if !ok || sb.dev != d {
		panic(fmt.Sprintf("soft: foreign buffer %T", b))
	}
	if sb.released {
		panic(fmt.Sprintf("soft: use of released buffer %q", sb.label))
	}
	return sb
}

func checkRange(b *Buffer, offset, size int) {
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		panic(fmt.Sprintf("soft: range [%d,%d) out of bounds for %q (%d bytes)", offset, offset+size, b.label, len(b.data)))
	}
}

func (d *Device) ClearBuffer(b gpu.Buffer, offset, size int) {
	sb := d.buffer(b)
	checkRange(sb, offset, size)
	clear(sb.data[offset : offset+size])
	d.Record(Op{Kind: "clear", Label: sb.label, Offset: offset, Size: size})
}

func (d *Device) MemoryBarrier(bits gpu.Barrier) {
	d.Record(Op{Kind: "barrier", Barrier: bits})
}

func (d *Device) SetState(s gpu.State) {
	d.state = s
	d.Record(Op{Kind: "state", State: s})
}

// State returns the last state set.
func (d *Device) State() gpu.State { return d.state }

func (d *Device) BindScene(addr uint64, size int) {
	d.Record(Op{Kind: "bind", Addr: addr, Size: size})
}

func (d *Device) UnbindScene() {
	d.Record(Op{Kind: "unbind"})
}

// Fail queues err to be reported by the next Err call.
func (d *Device) Fail(err error) {
	d.errs = append(d.errs, err)
}

func (d *Device) Err() error {
	err := errors.Join(d.errs...)
	d.errs = nil
	return err
}

// Record appends op to the command log.
func (d *Device) Record(op Op) {
	d.ops = append(d.ops, op)
}

// Ops returns the command log.
func (d *Device) Ops() []Op { return d.ops }

// ResetOps clears the command log.
func (d *Device) ResetOps() { d.ops = d.ops[:0] }

// Kinds returns the command log as "kind" or "kind:label" strings.
func (d *Device) Kinds() []string {
	out := make([]string, 0, len(d.ops))
	for _, op := range d.ops {
		if op.Label != "" {
			out = append(out, op.Kind+":"+op.Label)
		} else {
			out = append(out, op.Kind)
		}
	}
	return out
}
