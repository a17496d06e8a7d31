package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsJob(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var calls atomic.Int32
	s.Every(20*time.Millisecond, "counter", func(ctx context.Context) {
		calls.Add(1)
	})

	time.Sleep(110 * time.Millisecond)

	if n := calls.Load(); n < 2 {
		t.Fatalf("calls = %d, want >= 2", n)
	}
}

func TestSharedIntervalRunsAllJobs(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var a, b atomic.Int32
	s.Every(20*time.Millisecond, "a", func(ctx context.Context) { a.Add(1) })
	s.Every(20*time.Millisecond, "b", func(ctx context.Context) { b.Add(1) })

	time.Sleep(110 * time.Millisecond)

	if a.Load() < 2 {
		t.Errorf("job a calls = %d, want >= 2", a.Load())
	}
	if b.Load() < 2 {
		t.Errorf("job b calls = %d, want >= 2", b.Load())
	}
}

func TestCancelStopsJob(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var calls atomic.Int32
	cancel := s.Every(20*time.Millisecond, "cancelled", func(ctx context.Context) {
		calls.Add(1)
	})
	cancel()

	time.Sleep(80 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Fatalf("calls after cancel = %d, want 0", n)
	}
}

func TestStopStopsAllJobs(t *testing.T) {
	s := NewScheduler(nil)

	var calls atomic.Int32
	s.Every(20*time.Millisecond, "stopped", func(ctx context.Context) {
		calls.Add(1)
	})
	s.Stop()

	before := calls.Load()
	time.Sleep(80 * time.Millisecond)

	if after := calls.Load(); after != before {
		t.Fatalf("calls grew after Stop: %d -> %d", before, after)
	}
}

func TestJobPanicRecovered(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var calls atomic.Int32
	s.Every(20*time.Millisecond, "panics", func(ctx context.Context) {
		calls.Add(1)
		panic("boom")
	})

	time.Sleep(110 * time.Millisecond)

	if n := calls.Load(); n < 2 {
		t.Fatalf("calls = %d, want >= 2 (scheduler must survive the panic)", n)
	}
}

func TestEveryAfterStopIsNoop(t *testing.T) {
	s := NewScheduler(nil)
	s.Stop()

	var calls atomic.Int32
	cancel := s.Every(20*time.Millisecond, "late", func(ctx context.Context) {
		calls.Add(1)
	})
	cancel()

	time.Sleep(60 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
}
