// Package schedule re-runs pipelines on cron expressions or fixed intervals.
// Runs never overlap when the task forbids it, each run is bounded by a
// timeout and executes under a fresh background job.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SimonWaldherr/tabflow/internal/job"
)

// Task is one recurring pipeline run.
type Task struct {
	Name string
	// Spec is a cron expression with seconds ("0 */5 * * * *") or a
	// descriptor ("@hourly"). Leave empty to use Interval.
	Spec string
	// Interval re-runs at a fixed period when Spec is empty.
	Interval time.Duration
	// Timeout bounds one run; zero means 5 minutes.
	Timeout time.Duration
	// NoOverlap skips a trigger while the previous run is still going.
	NoOverlap bool
	// Run executes the pipeline under the supplied job.
	Run func(j *job.Job) error
}

const defaultTimeout = 5 * time.Minute

// Runner owns the cron loop, the interval tickers and the set of live runs.
type Runner struct {
	cron  *cron.Cron
	coord *job.Coordinator

	intervalTasks []Task
	stopCh        chan struct{}
	wg            sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner builds an idle runner; Add tasks, then Start.
func NewRunner() *Runner {
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		stopCh:  make(chan struct{}),
		coord:   job.NewCoordinator(),
		running: make(map[string]bool),
	}
}

// Add registers a task. Cron specs run through the cron loop; interval tasks
// through a dedicated ticker, which keeps sub-second periods exact. Add
// before Start.
func (r *Runner) Add(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("schedule: task %q has no run function", t.Name)
	}
	if t.Spec == "" {
		if t.Interval <= 0 {
			return fmt.Errorf("schedule: task %q needs a cron spec or a positive interval", t.Name)
		}
		r.intervalTasks = append(r.intervalTasks, t)
		return nil
	}
	_, err := r.cron.AddFunc(t.Spec, func() { r.execute(t) })
	if err != nil {
		return fmt.Errorf("schedule: task %q: invalid spec %q: %w", t.Name, t.Spec, err)
	}
	return nil
}

// Start begins triggering tasks.
func (r *Runner) Start() {
	r.cron.Start()
	for _, t := range r.intervalTasks {
		t := t
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(t.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-r.stopCh:
					return
				case <-ticker.C:
					r.execute(t)
				}
			}
		}()
	}
	log.Printf("schedule: runner started with %d interval tasks", len(r.intervalTasks))
}

// Stop halts triggering and cancels running jobs. Runs already started keep
// their goroutines until they observe cancellation.
func (r *Runner) Stop() {
	close(r.stopCh)
	ctx := r.cron.Stop()
	r.coord.CancelAll()
	r.wg.Wait()
	<-ctx.Done()
	log.Printf("schedule: runner stopped")
}

// Active reports the number of currently running task jobs.
func (r *Runner) Active() int {
	return r.coord.Active()
}

func (r *Runner) execute(t Task) {
	r.mu.Lock()
	if t.NoOverlap && r.running[t.Name] {
		r.mu.Unlock()
		log.Printf("schedule: task %q still running, skipping trigger", t.Name)
		return
	}
	r.running[t.Name] = true
	r.mu.Unlock()

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	j := job.WithContext(ctx, job.Background)
	untrack := r.coord.Track(j)

	go func() {
		defer func() {
			cancel()
			untrack()
			r.mu.Lock()
			delete(r.running, t.Name)
			r.mu.Unlock()
		}()
		start := time.Now()
		log.Printf("schedule: task %q starting", t.Name)
		if err := t.Run(j); err != nil {
			log.Printf("schedule: task %q failed after %s: %v", t.Name, time.Since(start).Round(time.Millisecond), err)
			return
		}
		log.Printf("schedule: task %q completed in %s", t.Name, time.Since(start).Round(time.Millisecond))
	}()
}
