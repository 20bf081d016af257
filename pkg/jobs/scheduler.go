package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Enqueuer accepts jobs for immediate processing.
type Enqueuer interface {
	Enqueue(job Job) error
}

// Scheduler defers jobs until a wall-clock instant, then hands them to a queue.
// Delivery is at-least-once within the process lifetime; pending jobs are lost on shutdown.
type Scheduler struct {
	target Enqueuer
	logger *zap.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	ctx     context.Context
	stopped bool
}

// NewScheduler builds a scheduler that delivers into target.
func NewScheduler(ctx context.Context, target Enqueuer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{target: target, logger: logger, timers: make(map[string]*time.Timer), ctx: ctx}
}

// Schedule registers job for delivery at when. Past instants are delivered immediately.
// Scheduling the same job ID again replaces the previous registration.
func (s *Scheduler) Schedule(job Job, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}
	if existing, ok := s.timers[job.ID]; ok {
		existing.Stop()
	}
	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}
	s.timers[job.ID] = time.AfterFunc(delay, func() { s.fire(job) })
	return nil
}

// Cancel drops a pending job. It reports whether a job was pending.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[jobID]
	if !ok {
		return false
	}
	delete(s.timers, jobID)
	return timer.Stop()
}

// Pending returns the number of registered jobs not yet delivered.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	delete(s.timers, job.ID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || s.ctx.Err() != nil {
		return
	}
	if err := s.target.Enqueue(job); err != nil {
		s.logger.Warn("scheduled job not delivered", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
	}
}
