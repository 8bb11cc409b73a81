package discovery

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is one step of a scheduled cycle.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its jobs every Interval. A tick that arrives while the previous
// cycle is still running is skipped. A cycle that returns an error is followed by
// Backoff before the next tick is honoured.
type Scheduler struct {
	Log      *zap.Logger
	Interval time.Duration
	Backoff  time.Duration
	Jobs     []Job

	OnSkip  func()
	OnCycle func(took time.Duration, err error)

	running atomic.Bool
}

// Start blocks until ctx is cancelled. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	done := make(chan error, 1)
	s.launch(ctx, done)

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler stopped")
			return

		case err := <-done:
			if err != nil && ctx.Err() == nil && s.Backoff > 0 {
				s.Log.Warn("cycle failed, backing off", zap.Error(err), zap.Duration("backoff", s.Backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.Backoff):
				}
			}

		case <-ticker.C:
			if !s.launch(ctx, done) {
				s.Log.Warn("previous cycle still running, tick skipped")
				if s.OnSkip != nil {
					s.OnSkip()
				}
			}
		}
	}
}

// launch starts a cycle unless one is in flight.
func (s *Scheduler) launch(ctx context.Context, done chan<- error) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.running.Store(false)
		done <- s.RunOnce(ctx)
	}()
	return true
}

// RunOnce executes every job in order. A failing job is logged and does not stop
// the following ones; the joined error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error

	for _, job := range s.Jobs {
		if ctx.Err() != nil {
			break
		}
		if err := s.safeRun(ctx, job); err != nil {
			s.Log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if s.OnCycle != nil {
		s.OnCycle(time.Since(start), err)
	}
	return err
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Job: job.Name, Value: r}
		}
	}()
	return job.Run(ctx)
}

// PanicError wraps a recovered panic from a job.
type PanicError struct {
	Job   string
	Value any
}

func (e *PanicError) Error() string {
	return "job " + e.Job + " panicked"
}
