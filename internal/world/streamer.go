// Package world keeps the set of meshed sections around the camera: it
// schedules meshing for sections that come into range and drops the ones
// that leave it.
package world

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"gputerrain/internal/geometry"
	"gputerrain/internal/meshing"
	"gputerrain/internal/profiling"
)

type job struct {
	pos    geometry.SectionPos
	camera mgl64.Vec3
}

// Streamer meshes sections on background workers and hands them to a
// repackaging pool. Everything except the workers runs on the render thread.
type Streamer struct {
	jobs   chan job
	loaded map[geometry.SectionPos]struct{}
	wg     sync.WaitGroup

	maxJobsPerCall int
	height         int // sections per column, starting at y=0
	dropped        int

	mesher *meshing.Mesher
	pool   *geometry.WorkerPool
	prof   *profiling.Profiler
}

// NewStreamer starts workers meshing goroutines feeding pool.
func NewStreamer(mesher *meshing.Mesher, pool *geometry.WorkerPool, height, workers int, prof *profiling.Profiler) *Streamer {
	s := &Streamer{
		jobs:           make(chan job, 4096),
		loaded:         make(map[geometry.SectionPos]struct{}),
		maxJobsPerCall: 2048,
		height:         max(height, 1),
		mesher:         mesher,
		pool:           pool,
		prof:           prof,
	}
	for range max(workers, 1) {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Close stops the meshing workers. The repackaging pool must already be
// shut down, or its results drained, so blocked submissions can return.
func (s *Streamer) Close() {
	close(s.jobs)
	s.wg.Wait()
}

func (s *Streamer) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		mesh := s.mesher.Mesh(j.pos)
		s.pool.SubmitJobBlocking(geometry.RepackJob{Pos: j.pos, Mesh: mesh, Camera: j.camera})
	}
}

func sectionCoord(v float64) int {
	return int(math.Floor(v / geometry.SectionSize))
}

// Column is the section column holding a world position.
func Column(camera mgl64.Vec3) [2]int {
	return [2]int{sectionCoord(camera.X()), sectionCoord(camera.Z())}
}

// StreamAround queues the columns within radius sections of the camera,
// nearest rings first, and returns how many sections were queued.
func (s *Streamer) StreamAround(camera mgl64.Vec3, radius int) int {
	defer s.prof.Track("world.StreamAround")()
	cx := sectionCoord(camera.X())
	cz := sectionCoord(camera.Z())

	pushed := 0
	for r := 0; r <= radius; r++ {
		if r == 0 {
			pushed += s.enqueueColumn(cx, cz, camera)
			continue
		}
		x0, x1 := cx-r, cx+r
		z0, z1 := cz-r, cz+r
		for xk := x0; xk <= x1; xk++ {
			pushed += s.enqueueColumn(xk, z0, camera)
			pushed += s.enqueueColumn(xk, z1, camera)
		}
		for zk := z0 + 1; zk <= z1-1; zk++ {
			pushed += s.enqueueColumn(x0, zk, camera)
			pushed += s.enqueueColumn(x1, zk, camera)
		}
		if pushed >= s.maxJobsPerCall {
			break
		}
	}
	return pushed
}

func (s *Streamer) enqueueColumn(x, z int, camera mgl64.Vec3) int {
	n := 0
	for y := 0; y < s.height; y++ {
		if s.request(geometry.SectionPos{X: int32(x), Y: int32(y), Z: int32(z)}, camera) {
			n++
		}
	}
	return n
}

func (s *Streamer) request(pos geometry.SectionPos, camera mgl64.Vec3) bool {
	if _, ok := s.loaded[pos]; ok {
		return false
	}
	select {
	case s.jobs <- job{pos: pos, camera: camera}:
		s.loaded[pos] = struct{}{}
		return true
	default:
		// queue full: retried on a later call
		return false
	}
}

// EvictFar forgets sections whose column lies more than radius sections
// from the camera and calls drop for each.
func (s *Streamer) EvictFar(camera mgl64.Vec3, radius int, drop func(geometry.SectionPos)) int {
	defer s.prof.Track("world.EvictFar")()
	cx := sectionCoord(camera.X())
	cz := sectionCoord(camera.Z())
	removed := 0
	for pos := range s.loaded {
		dx := int(pos.X) - cx
		dz := int(pos.Z) - cz
		if max(abs(dx), abs(dz)) <= radius {
			continue
		}
		delete(s.loaded, pos)
		drop(pos)
		removed++
	}
	return removed
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Collect moves up to budget finished results onto a channel for the
// pipeline, discarding sections evicted while they were in flight.
func (s *Streamer) Collect(budget int) <-chan geometry.RepackResult {
	out := make(chan geometry.RepackResult, max(budget, 0))
	for len(out) < budget {
		select {
		case res := <-s.pool.Results():
			if _, ok := s.loaded[res.Pos]; !ok {
				s.dropped++
				continue
			}
			out <- res
		default:
			return out
		}
	}
	return out
}

// Loaded returns the number of sections requested and not evicted.
func (s *Streamer) Loaded() int { return len(s.loaded) }

// Dropped returns the number of stale results discarded by Collect.
func (s *Streamer) Dropped() int { return s.dropped }
