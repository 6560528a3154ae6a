package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/SimonWaldherr/tabflow/internal/job"
)

func TestRunnerRejectsBadTasks(t *testing.T) {
	r := NewRunner()
	if err := r.Add(Task{Name: "norun", Spec: "@hourly"}); err == nil {
		t.Fatalf("task without run function accepted")
	}
	if err := r.Add(Task{Name: "nospec", Run: func(*job.Job) error { return nil }}); err == nil {
		t.Fatalf("task without spec or interval accepted")
	}
	if err := r.Add(Task{Name: "badspec", Spec: "not a cron line", Run: func(*job.Job) error { return nil }}); err == nil {
		t.Fatalf("invalid cron spec accepted")
	}
}

func TestRunnerTriggersInterval(t *testing.T) {
	r := NewRunner()
	var runs int32
	err := r.Add(Task{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(j *job.Job) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	defer r.Stop()
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runs) < 2 {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times, want at least 2", atomic.LoadInt32(&runs))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunnerNoOverlap(t *testing.T) {
	r := NewRunner()
	var concurrent, peak int32
	release := make(chan struct{})
	err := r.Add(Task{
		Name:      "slow",
		Interval:  10 * time.Millisecond,
		NoOverlap: true,
		Run: func(j *job.Job) error {
			n := atomic.AddInt32(&concurrent, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&concurrent, -1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	time.Sleep(100 * time.Millisecond)
	close(release)
	r.Stop()
	if atomic.LoadInt32(&peak) > 1 {
		t.Fatalf("overlapping runs observed: peak %d", peak)
	}
}

func TestRunnerTimeoutCancelsJob(t *testing.T) {
	r := NewRunner()
	cancelled := make(chan bool, 1)
	err := r.Add(Task{
		Name:     "stuck",
		Interval: 10 * time.Millisecond,
		Timeout:  20 * time.Millisecond,
		Run: func(j *job.Job) error {
			select {
			case <-j.Context().Done():
				cancelled <- true
			case <-time.After(2 * time.Second):
				cancelled <- false
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	defer r.Stop()
	select {
	case ok := <-cancelled:
		if !ok {
			t.Fatalf("run was not cancelled by its timeout")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run never observed cancellation")
	}
}
