package soft

import "gputerrain/internal/gpu"

// Upload stages a write; the returned slice lands in the buffer at Commit.
func (d *Device) Upload(dst gpu.Buffer, offset, size int) []byte {
	sb := d.buffer(dst)
	checkRange(sb, offset, size)
	data := make([]byte, size)
	d.pending = append(d.pending, pendingWrite{dst: sb, offset: offset, data: data})
	return data
}

// Pending returns the number of staged, uncommitted writes.
func (d *Device) Pending() int { return len(d.pending) }

func (d *Device) Commit() {
	for _, w := range d.pending {
		copy(w.dst.data[w.offset:], w.data)
	}
	d.pending = d.pending[:0]
	d.Record(Op{Kind: "commit"})
}

// Download snapshots the range now, as the device would after the work
// already recorded, and delivers it on the next Tick.
func (d *Device) Download(src gpu.Buffer, offset, size int, done func([]byte)) {
	sb := d.buffer(src)
	checkRange(sb, offset, size)
	data := make([]byte, size)
	copy(data, sb.data[offset:offset+size])
	d.downloads = append(d.downloads, pendingDownload{data: data, done: done})
}

// Tick completes every download requested before it.
func (d *Device) Tick() {
	ready := d.downloads
	d.downloads = nil
	for _, dl := range ready {
		dl.done(dl.data)
	}
	d.Record(Op{Kind: "tick"})
}
