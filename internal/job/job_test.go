package job

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCancelIsCooperative(t *testing.T) {
	j := New(Background)
	if j.Cancelled() {
		t.Fatalf("fresh job must not be cancelled")
	}
	j.Cancel()
	if !j.Cancelled() {
		t.Fatalf("Cancel must set the flag")
	}
	if j.Err() == nil {
		t.Fatalf("Err must report cancellation")
	}
	// Cancelling twice is harmless.
	j.Cancel()
}

func TestObserveAndUnsubscribe(t *testing.T) {
	j := New(Interactive)
	var got []float64
	var mu sync.Mutex
	unsub := j.Observe(func(p float64) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	j.ReportProgress(0.25)
	// Collapsed: inside the minimum interval and not final.
	j.ReportProgress(0.30)
	// Final event always arrives.
	j.ReportProgress(1.0)

	mu.Lock()
	n := len(got)
	last := got[n-1]
	mu.Unlock()
	if n != 2 {
		t.Fatalf("expected 2 delivered events, got %d (%v)", n, got)
	}
	if last != 1.0 {
		t.Fatalf("final event = %v, want 1.0", last)
	}

	unsub()
	j.ReportProgress(1.0)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Fatalf("unsubscribed observer still notified")
	}
}

func TestProgressThrottleDeliversAfterInterval(t *testing.T) {
	j := New(Background)
	var count atomic.Int32
	j.Observe(func(float64) { count.Add(1) })
	j.ReportProgress(0.1)
	time.Sleep(progressInterval + 20*time.Millisecond)
	j.ReportProgress(0.2)
	if count.Load() != 2 {
		t.Fatalf("expected events on both sides of the interval, got %d", count.Load())
	}
}

func TestMapReduceSums(t *testing.T) {
	j := New(Background)
	items := make([]int, 1000)
	for i := range items {
		items[i] = i + 1
	}
	sum, err := MapReduce(j, items, func(chunk []int) (int, error) {
		s := 0
		for _, v := range chunk {
			s += v
		}
		return s, nil
	}, func(a, b int) int { return a + b })
	if err != nil {
		t.Fatalf("MapReduce: %v", err)
	}
	if sum != 500500 {
		t.Fatalf("sum = %d, want 500500", sum)
	}
}

func TestMapReduceCancelled(t *testing.T) {
	j := New(Background)
	j.Cancel()
	_, err := MapReduce(j, []int{1, 2, 3}, func(chunk []int) (int, error) { return 0, nil }, func(a, b int) int { return a + b })
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestCoordinatorTracksAndCancels(t *testing.T) {
	c := NewCoordinator()
	a, b := New(Interactive), New(Background)
	ua := c.Track(a)
	c.Track(b)
	if c.Active() != 2 {
		t.Fatalf("Active = %d, want 2", c.Active())
	}
	ua()
	if c.Active() != 1 {
		t.Fatalf("Active after untrack = %d, want 1", c.Active())
	}
	c.CancelAll()
	if !b.Cancelled() {
		t.Fatalf("CancelAll must cancel tracked jobs")
	}
	if a.Cancelled() {
		t.Fatalf("untracked job must not be cancelled")
	}
}
