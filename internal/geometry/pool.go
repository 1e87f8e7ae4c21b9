package geometry

import (
	"context"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// RepackJob asks the pool to repackage one meshed section. Pos names the
// section even when Mesh is nil, so an absent mesh deletes the right one.
type RepackJob struct {
	Pos    SectionPos
	Mesh   *Mesh
	Camera mgl64.Vec3
}

// RepackResult is the outcome of a RepackJob.
type RepackResult struct {
	Pos     SectionPos
	Section *PackedSection
	Err     error
}

// WorkerPool repackages sections off the render thread. Results are read
// from Results on the render thread.
type WorkerPool struct {
	jobQueue chan RepackJob
	results  chan RepackResult
	workers  int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool starts workers goroutines sharing a queue of queueSize jobs.
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		jobQueue: make(chan RepackJob, queueSize),
		results:  make(chan RepackResult, queueSize),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
	for range workers {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool
}

// SubmitJob queues a job. It returns false if the queue is full.
func (p *WorkerPool) SubmitJob(job RepackJob) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

// SubmitJobBlocking queues a job, waiting for space unless the pool shuts down.
func (p *WorkerPool) SubmitJobBlocking(job RepackJob) {
	select {
	case p.jobQueue <- job:
	case <-p.ctx.Done():
	}
}

// Results delivers finished jobs.
func (p *WorkerPool) Results() <-chan RepackResult {
	return p.results
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			packed, err := Repackage(job.Mesh, job.Camera)
			if packed != nil {
				packed.Pos = job.Pos
			}
			result := RepackResult{Pos: job.Pos, Section: packed, Err: err}
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers. Queued jobs are dropped.
func (p *WorkerPool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

// GetQueueLength returns the number of queued jobs.
func (p *WorkerPool) GetQueueLength() int {
	return len(p.jobQueue)
}
