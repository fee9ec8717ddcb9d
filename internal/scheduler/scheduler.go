// Package scheduler runs keyed one-shot callbacks at absolute wall-clock
// times. Jobs live only in process memory: they are a cache over the durable
// ends_at/expires_at/paid_until fields, and the reconcile sweep re-derives
// them after a restart. Callbacks for different keys run concurrently and must
// re-validate entity state before mutating anything.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/scooter-rentals/internal/metrics"
)

type Callback = func(ctx context.Context)

type job struct {
	timer *time.Timer
	at    time.Time
	fn    Callback
}

type Scheduler struct {
	ctx context.Context
	log *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	wg      sync.WaitGroup
}

// New builds a scheduler whose callbacks receive ctx. Stop cancels pending
// jobs and waits for running callbacks to finish.
func New(ctx context.Context, log *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:  ctx,
		log:  log,
		jobs: make(map[string]*job),
	}
}

// Schedule registers fn to fire once at the given time, replacing any pending
// job under the same key. A time in the past fires immediately.
func (s *Scheduler) Schedule(key string, at time.Time, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.jobs[key]; ok {
		old.timer.Stop()
		s.log.Debug("scheduler: replacing job", "key", key, "at", at)
	}
	j := &job{at: at, fn: fn}
	j.timer = time.AfterFunc(time.Until(at), func() { s.fire(key, j) })
	s.jobs[key] = j
}

// EnsureScheduled behaves like Schedule but is a no-op when a job for key is
// already pending. The periodic reconcile sweep uses it so it never disturbs
// an in-flight schedule. Reports whether a job was registered.
func (s *Scheduler) EnsureScheduled(key string, at time.Time, fn Callback) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.jobs[key]; ok {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	s.Schedule(key, at, fn)
	return true
}

// Cancel removes a pending job if present; unknown keys are a no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		j.timer.Stop()
		delete(s.jobs, key)
	}
}

// Reschedule moves an existing job's fire time. An unknown key indicates a
// lifecycle bug upstream and is returned as an error rather than retried.
func (s *Scheduler) Reschedule(key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}
	old, ok := s.jobs[key]
	if !ok {
		return fmt.Errorf("reschedule %q: no pending job", key)
	}
	old.timer.Stop()
	j := &job{at: at, fn: old.fn}
	j.timer = time.AfterFunc(time.Until(at), func() { s.fire(key, j) })
	s.jobs[key] = j
	return nil
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all pending jobs and waits for running callbacks to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for k, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, k)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(key string, j *job) {
	s.mu.Lock()
	if s.stopped || s.jobs[key] != j {
		// cancelled, replaced or rescheduled while the timer was firing
		s.mu.Unlock()
		return
	}
	delete(s.jobs, key)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	metrics.JobsFired.Inc()
	j.fn(s.ctx)
}
