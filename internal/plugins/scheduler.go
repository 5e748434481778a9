// ABOUTME: Scheduled continuations bound to a session context.
// ABOUTME: A task whose owning context ends before its delay elapses never runs.

package plugins

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a handle on a scheduled continuation.
type Task struct {
	name   string
	done   chan struct{}
	cancel context.CancelFunc
	ran    atomic.Bool
}

// Done is closed once the task has either run or been dropped.
func (t *Task) Done() <-chan struct{} { return t.done }

// Ran reports whether the continuation executed. Only meaningful after Done.
func (t *Task) Ran() bool { return t.ran.Load() }

// Cancel drops the task if it has not started yet.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task has run or been dropped.
func (t *Task) Wait() { <-t.done }

// Scheduler runs delayed continuations. Each task carries the context it was
// scheduled with; the context doubles as the owning session's liveness token.
type Scheduler struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// After runs fn once delay has elapsed, unless ctx is done first.
func (s *Scheduler) After(ctx context.Context, delay time.Duration, name string, fn func(ctx context.Context)) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-taskCtx.Done():
			s.logger.Debug("scheduled task dropped", "task", name, "reason", taskCtx.Err())
			return
		}

		// liveness check: the owner may have gone away while the timer fired
		if taskCtx.Err() != nil {
			s.logger.Debug("scheduled task dropped", "task", name, "reason", taskCtx.Err())
			return
		}

		t.ran.Store(true)
		fn(taskCtx)
	}()

	return t
}

// Sleep suspends the caller for delay as a scheduled continuation.
// Returns ctx.Err() if ctx ends first.
func (s *Scheduler) Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := s.After(ctx, delay, "sleep", func(context.Context) {})
	t.Wait()
	if !t.Ran() {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	return nil
}

// Wait blocks until every scheduled task has run or been dropped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
