// Package job provides the cancellable, progress-reporting unit of work that
// backs every asynchronous operation in the engine.
//
// What: A Job owns a cancellation flag, a priority tier and an explicit set
// of progress subscriptions. Long-running loops poll the flag once per
// bounded unit of work; progress events are throttled so subscribers are not
// flooded. A parallel map-reduce helper spreads CPU-bound work over a shared
// worker pool.
// How: Cancellation is a context.Context created per job; subscriptions are
// integer handles in a mutex-guarded map, no weak references. The worker pool
// is a counting semaphore sized to GOMAXPROCS shared by all jobs.
// Why: Callback-driven dataset execution needs one well-defined contract for
// "stop, deliver nothing further" and for progress, independent of where the
// work actually runs.
package job

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority selects the scheduling tier of a job.
type Priority int

const (
	// Interactive jobs compute bounded examples the user is waiting for.
	Interactive Priority = iota
	// Background jobs stream full results.
	Background
)

// progressInterval throttles observer notification; the final event is
// always delivered regardless of the interval.
const progressInterval = 100 * time.Millisecond

// workers is the shared pool: one slot per logical CPU, shared by all jobs.
var workers = make(chan struct{}, runtime.GOMAXPROCS(0))

// Job is one cancellable unit of asynchronous computation. Create one per
// logical operation and discard it after completion or cancellation.
type Job struct {
	id       uuid.UUID
	priority Priority
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	observers map[int]func(float64)
	nextObs   int
	lastEmit  time.Time
	lastFrac  float64
}

// New creates a job with its own lifetime.
func New(p Priority) *Job {
	return WithContext(context.Background(), p)
}

// WithContext creates a job whose cancellation is additionally bound to the
// given parent context.
func WithContext(parent context.Context, p Priority) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		id:        uuid.New(),
		priority:  p,
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]func(float64)),
	}
}

// ID returns the unique identity of this job.
func (j *Job) ID() uuid.UUID { return j.id }

// Priority returns the scheduling tier.
func (j *Job) Priority() Priority { return j.priority }

// Context exposes the cancellation context for APIs that take one.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel requests cooperative cancellation. Results already delivered stay
// valid; loops stop at their next poll.
func (j *Job) Cancel() { j.cancel() }

// Cancelled reports whether cancellation was requested. Poll this once per
// fixed-size unit of work (row batch, sequence chunk, parse record).
func (j *Job) Cancelled() bool {
	select {
	case <-j.ctx.Done():
		return true
	default:
		return false
	}
}

// Err returns context.Canceled after cancellation, nil otherwise.
func (j *Job) Err() error { return j.ctx.Err() }

// Observe subscribes to fractional progress (0.0 to 1.0). The returned
// function removes the subscription; there is no implicit weak-reference
// bookkeeping.
func (j *Job) Observe(fn func(progress float64)) (unsubscribe func()) {
	j.mu.Lock()
	handle := j.nextObs
	j.nextObs++
	j.observers[handle] = fn
	j.mu.Unlock()
	return func() {
		j.mu.Lock()
		delete(j.observers, handle)
		j.mu.Unlock()
	}
}

// ReportProgress delivers a progress fraction to all observers, collapsing
// events that arrive within the minimum interval. A fraction >= 1.0 is final
// and always delivered.
func (j *Job) ReportProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	j.mu.Lock()
	now := time.Now()
	final := fraction >= 1.0
	if !final && now.Sub(j.lastEmit) < progressInterval && fraction >= j.lastFrac {
		j.mu.Unlock()
		return
	}
	j.lastEmit = now
	j.lastFrac = fraction
	fns := make([]func(float64), 0, len(j.observers))
	for _, fn := range j.observers {
		fns = append(fns, fn)
	}
	j.mu.Unlock()
	for _, fn := range fns {
		fn(fraction)
	}
}

// Go schedules fn on the shared worker pool. It returns immediately; fn is
// skipped entirely when the job is already cancelled.
func (j *Job) Go(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case workers <- struct{}{}:
		case <-j.ctx.Done():
			return
		}
		defer func() { <-workers }()
		if !j.Cancelled() {
			fn()
		}
	}()
}

// chunkCount splits n items into worker-sized chunks.
func chunkCount(n int) int {
	w := runtime.GOMAXPROCS(0)
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}
