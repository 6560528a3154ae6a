package job

import (
	"sync"

	"github.com/google/uuid"
)

// MapReduce splits items into per-worker chunks, maps each chunk on the
// shared pool and folds the partial results in chunk order. fold must be
// associative over chunk boundaries. Cancellation surfaces as j.Err().
func MapReduce[T, R any](j *Job, items []T, mapChunk func(chunk []T) (R, error), fold func(acc, part R) R) (R, error) {
	var zero R
	n := len(items)
	if n == 0 {
		return zero, j.Err()
	}
	w := chunkCount(n)
	size := (n + w - 1) / w

	parts := make([]R, 0, w)
	errs := make([]error, 0, w)
	bounds := make([][2]int, 0, w)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		bounds = append(bounds, [2]int{lo, hi})
		parts = append(parts, zero)
		errs = append(errs, nil)
	}

	var wg sync.WaitGroup
	for i, b := range bounds {
		i, b := i, b
		j.Go(&wg, func() {
			parts[i], errs[i] = mapChunk(items[b[0]:b[1]])
		})
	}
	wg.Wait()

	if err := j.Err(); err != nil {
		return zero, err
	}
	acc := zero
	for i, p := range parts {
		if errs[i] != nil {
			return zero, errs[i]
		}
		if i == 0 {
			acc = p
			continue
		}
		acc = fold(acc, p)
	}
	return acc, nil
}

// Coordinator is the explicitly owned registry of live jobs. Its lifetime is
// typically process-wide but construction and teardown are explicit; there
// is no ambient global registry.
type Coordinator struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewCoordinator creates an empty registry.
func NewCoordinator() *Coordinator {
	return &Coordinator{jobs: make(map[uuid.UUID]*Job)}
}

// Track registers a job and returns the function that removes it again.
// Callers untrack when the logical operation completes or is abandoned.
func (c *Coordinator) Track(j *Job) (untrack func()) {
	c.mu.Lock()
	c.jobs[j.id] = j
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.jobs, j.id)
		c.mu.Unlock()
	}
}

// Active returns the number of tracked jobs.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// CancelAll cancels every tracked job. Entries stay registered until their
// owners untrack them.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()
	for _, j := range jobs {
		j.Cancel()
	}
}
