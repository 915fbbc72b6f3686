package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// RunAtStart fires the task once when the scheduler starts instead of
	// waiting for the first interval.
	RunAtStart bool
	// Timeout bounds a single run; zero means no bound.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Observer is notified about every run and every skipped trigger.
type Observer interface {
	ObserveRun(task string, took time.Duration, err error)
	ObserveSkip(task string)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, time.Duration, error) {}
func (nopObserver) ObserveSkip(string)                      {}

// Scheduler runs independent periodic tasks.
//
// Triggers follow a fixed cadence: gocron computes each next run from the
// previous scheduled run and dispatches the job asynchronously, so run time
// never shifts the schedule. At most one instance of a task runs at a time; a
// trigger that arrives while the previous run is still going is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	tasks     []Task
	observer  Observer
	log       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // guards stopped and inflight.Add
	stopped  bool
	inflight sync.WaitGroup
}

// New creates a new Scheduler.
func New(tasks ...Task) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		tasks:     tasks,
		observer:  nopObserver{},
		log:       slog.Default().With("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetObserver registers o for run and skip notifications. Call before Start.
func (s *Scheduler) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// Start schedules every task and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.tasks) == 0 {
		s.log.Info("no tasks configured; nothing to schedule")
		return nil
	}

	for _, t := range s.tasks {
		if t.Interval <= 0 {
			return fmt.Errorf("task %s: interval must be positive, got %v", t.Name, t.Interval)
		}
		if t.Run == nil {
			return fmt.Errorf("task %s: no run function", t.Name)
		}

		job := s.scheduler.Every(t.Interval).Name(t.Name)
		if !t.RunAtStart {
			job = job.WaitForSchedule()
		}
		if _, err := job.Do(s.guard(t)); err != nil {
			return fmt.Errorf("schedule task %s: %w", t.Name, err)
		}
		s.log.Info("task scheduled", "task", t.Name, "interval", t.Interval, "run_at_start", t.RunAtStart)
	}

	s.scheduler.StartAsync()
	return nil
}

// guard wraps a task so that overlapping triggers are skipped, panics are
// contained, and every outcome is logged and observed.
func (s *Scheduler) guard(t Task) func() {
	var running atomic.Bool

	return func() {
		if !running.CompareAndSwap(false, true) {
			s.log.Warn("previous run still in progress; trigger skipped", "task", t.Name)
			s.observer.ObserveSkip(t.Name)
			return
		}
		defer running.Store(false)

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		defer s.inflight.Done()

		ctx := s.ctx
		if t.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}

		start := time.Now()
		err := runSafely(ctx, t.Run)
		took := time.Since(start)

		if err != nil {
			s.log.Warn("task run failed", "task", t.Name, "took", took, "error", err)
		} else {
			s.log.Debug("task run completed", "task", t.Name, "took", took)
		}
		s.observer.ObserveRun(t.Name, took, err)
	}
}

func runSafely(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(errTaskPanicked, fmt.Errorf("%v", r))
		}
	}()
	return run(ctx)
}

var errTaskPanicked = errors.New("task panicked")

// Stop cancels running tasks, stops future triggers and waits for in-flight
// runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.inflight.Wait()
}
