package terrain

import (
	"fmt"

	"github.com/gekko3d/terrain/field"
)

// NormalJob carries copied chunk snapshots to the recompute worker. The
// snapshots are built with field.BuildChunkGeometry, so the worker never
// shares mutable memory with the session that keeps editing the live field.
type NormalJob struct {
	Token  uint64
	Node   NodeId
	Region field.CellRect
	Chunks []*field.ChunkGeometry
}

// NormalResult is the worker's reply: stitched per-chunk normals, or an
// error when the computation panicked.
type NormalResult struct {
	Token   uint64
	Node    NodeId
	Region  field.CellRect
	Normals map[field.ChunkKey]*field.ChunkNormals
	Err     error
}

const normalQueueDepth = 4

// NormalWorker owns the single out-of-line computation unit: one persistent
// goroutine created lazily on the first dispatch and reused afterwards. Each
// dispatch gets a monotonically increasing token; a result arriving after a
// newer job has been dispatched is discarded as superseded. If the worker
// cannot accept a job, or a job comes back failed, normals are recomputed
// synchronously in-line instead of being dropped.
type NormalWorker struct {
	log Logger

	requests chan *NormalJob
	results  chan *NormalResult

	nextToken uint64
	latest    uint64

	// pending keeps dispatched jobs until their result is consumed so the
	// in-line fallback can rerun a failed job.
	pending map[uint64]*NormalJob

	apply func(res *NormalResult)

	// counters for tests and debug logging
	Superseded int
	Fallbacks  int
}

func NewNormalWorker(log Logger) *NormalWorker {
	if log == nil {
		log = NewNopLogger()
	}
	return &NormalWorker{
		log:     log,
		pending: make(map[uint64]*NormalJob),
	}
}

// OnResult registers the callback that applies stitched normals to the
// geometry. Called on the cooperative scheduler, never from the worker
// goroutine.
func (w *NormalWorker) OnResult(fn func(res *NormalResult)) {
	w.apply = fn
}

// Dispatch submits a recompute job and returns its token. Any in-flight
// older job is implicitly invalidated.
func (w *NormalWorker) Dispatch(job *NormalJob) uint64 {
	w.nextToken++
	job.Token = w.nextToken
	w.latest = job.Token

	if w.requests == nil {
		w.start()
	}

	select {
	case w.requests <- job:
		w.pending[job.Token] = job
	default:
		// Queue full: the worker is the only parallel unit and it is
		// saturated, so compute in-line rather than blocking the pointer
		// path.
		w.Fallbacks++
		w.deliver(computeNormalsInline(job))
	}
	return job.Token
}

func (w *NormalWorker) start() {
	w.requests = make(chan *NormalJob, normalQueueDepth)
	w.results = make(chan *NormalResult, normalQueueDepth)
	go func() {
		for job := range w.requests {
			w.results <- runNormalJob(job)
		}
	}()
}

// Poll consumes finished results without blocking. Call once per frame.
func (w *NormalWorker) Poll() {
	if w.results == nil {
		return
	}
	for {
		select {
		case res := <-w.results:
			w.deliver(res)
		default:
			return
		}
	}
}

func (w *NormalWorker) deliver(res *NormalResult) {
	job := w.pending[res.Token]
	delete(w.pending, res.Token)

	if res.Token < w.latest {
		// A newer stroke already dispatched; applying this would overwrite
		// fresher geometry.
		w.Superseded++
		w.log.Debugf("normal result token %d superseded by %d", res.Token, w.latest)
		return
	}
	if res.Err != nil {
		w.log.Warnf("normal recompute failed (%v), retrying in-line", res.Err)
		w.Fallbacks++
		if job == nil {
			return
		}
		res = computeNormalsInline(job)
	}
	if w.apply != nil {
		w.apply(res)
	}
}

// runNormalJob executes on the worker goroutine. A panic in the math turns
// into a failed result instead of killing the worker.
func runNormalJob(job *NormalJob) (res *NormalResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &NormalResult{Token: job.Token, Node: job.Node, Region: job.Region, Err: fmt.Errorf("normal worker panic: %v", r)}
		}
	}()
	return computeNormalsInline(job)
}

// computeNormalsInline is the shared computation: per-chunk vertex normals
// followed by seam stitching across the job's chunk set.
func computeNormalsInline(job *NormalJob) *NormalResult {
	normals := make(map[field.ChunkKey]*field.ChunkNormals, len(job.Chunks))
	for _, g := range job.Chunks {
		normals[g.Key] = g.ComputeNormals()
	}
	field.StitchSeams(normals)
	return &NormalResult{
		Token:   job.Token,
		Node:    job.Node,
		Region:  job.Region,
		Normals: normals,
	}
}

type NormalWorkerModule struct{}

func (NormalWorkerModule) Install(app *App) {
	app.AddResources(NewNormalWorker(app.Logger()))
	app.UseSystem(System(normalPollSystem).InStage(PostUpdate))
}

func normalPollSystem(worker *NormalWorker) {
	worker.Poll()
}
