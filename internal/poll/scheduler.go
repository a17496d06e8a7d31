package poll

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// maxJitter caps the per-job start offset within a tick.
const maxJitter = 2 * time.Second

// Scheduler coalesces periodic work onto shared tickers. Every job
// registered with the same interval runs off a single ticker, with a
// small random offset per job so that jobs sharing a tick do not all
// hit the cloud API at the same instant.
type Scheduler struct {
	mu      sync.Mutex
	groups  map[time.Duration]*tickGroup
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type tickGroup struct {
	mu     sync.Mutex
	jobs   map[int]*job
	nextID int
	stop   chan struct{}
}

type job struct {
	name   string
	fn     func(ctx context.Context)
	jitter time.Duration
}

// NewScheduler creates a scheduler. Jobs run until their cancel func
// is called or the scheduler is stopped.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		groups: make(map[time.Duration]*tickGroup),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers fn to run once per interval. The returned func
// removes the job; the last removal for an interval stops its ticker.
func (s *Scheduler) Every(interval time.Duration, name string, fn func(ctx context.Context)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}

	g, ok := s.groups[interval]
	if !ok {
		g = &tickGroup{
			jobs: make(map[int]*job),
			stop: make(chan struct{}),
		}
		s.groups[interval] = g
		go s.run(g, interval)
	}

	jitter := time.Duration(0)
	if interval > time.Second {
		jitter = time.Duration(rand.Int63n(int64(interval / 10)))
		if jitter > maxJitter {
			jitter = maxJitter
		}
	}

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.jobs[id] = &job{name: name, fn: fn, jitter: jitter}
	g.mu.Unlock()

	s.logger.Debug("Poll job registered", "name", name, "interval", interval)

	return func() {
		g.mu.Lock()
		delete(g.jobs, id)
		empty := len(g.jobs) == 0
		g.mu.Unlock()

		if empty {
			s.mu.Lock()
			if s.groups[interval] == g {
				delete(s.groups, interval)
				close(g.stop)
			}
			s.mu.Unlock()
		}
	}
}

// Stop cancels all jobs and stops all tickers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.cancel()
	for interval, g := range s.groups {
		close(g.stop)
		delete(s.groups, interval)
	}
}

func (s *Scheduler) run(g *tickGroup, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.mu.Lock()
			jobs := make([]*job, 0, len(g.jobs))
			for _, j := range g.jobs {
				jobs = append(jobs, j)
			}
			g.mu.Unlock()

			for _, j := range jobs {
				go s.runJob(j)
			}
		case <-g.stop:
			return
		}
	}
}

func (s *Scheduler) runJob(j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Poll job panicked", "name", j.name, "panic", r)
		}
	}()

	if j.jitter > 0 {
		t := time.NewTimer(j.jitter)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.ctx.Done():
			return
		}
	}
	j.fn(s.ctx)
}
