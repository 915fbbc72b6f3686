package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	runs    map[string]int
	errs    map[string]int
	skipped map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{runs: map[string]int{}, errs: map[string]int{}, skipped: map[string]int{}}
}

func (o *recordingObserver) ObserveRun(task string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[task]++
	if err != nil {
		o.errs[task]++
	}
}

func (o *recordingObserver) ObserveSkip(task string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[task]++
}

func (o *recordingObserver) counts(task string) (runs, errs, skipped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs[task], o.errs[task], o.skipped[task]
}

// TestScheduler_SkipsOverlappingRuns verifies that a trigger arriving while the
// previous run is still going is skipped and counted, never run concurrently.
func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	var active, maxActive atomic.Int32

	s := New(Task{
		Name:     "slow",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(70 * time.Millisecond)
			return nil
		},
	})
	obs := newRecordingObserver()
	s.SetObserver(obs)

	require.NoError(t, s.Start())
	time.Sleep(400 * time.Millisecond)
	s.Stop()

	runs, _, skipped := obs.counts("slow")
	assert.Equal(t, int32(1), maxActive.Load(), "task instances must never overlap")
	assert.GreaterOrEqual(t, runs, 2)
	assert.Greater(t, skipped, 0)
}

// TestScheduler_FailingTaskDoesNotStopOthers verifies that errors and panics in one
// task leave other tasks and its own later runs untouched.
func TestScheduler_FailingTaskDoesNotStopOthers(t *testing.T) {
	var healthy atomic.Int32

	s := New(
		Task{
			Name:     "panics",
			Interval: 15 * time.Millisecond,
			Run: func(ctx context.Context) error {
				panic("sensor bus exploded")
			},
		},
		Task{
			Name:     "errors",
			Interval: 15 * time.Millisecond,
			Run: func(ctx context.Context) error {
				return errors.New("feed down")
			},
		},
		Task{
			Name:     "healthy",
			Interval: 15 * time.Millisecond,
			Run: func(ctx context.Context) error {
				healthy.Add(1)
				return nil
			},
		},
	)
	obs := newRecordingObserver()
	s.SetObserver(obs)

	require.NoError(t, s.Start())
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, healthy.Load(), int32(3))

	runs, errs, _ := obs.counts("panics")
	assert.GreaterOrEqual(t, runs, 2, "a panicking task keeps being scheduled")
	assert.Equal(t, runs, errs)

	runs, errs, _ = obs.counts("errors")
	assert.GreaterOrEqual(t, runs, 2)
	assert.Equal(t, runs, errs)
}

// TestScheduler_RunAtStart verifies that RunAtStart fires immediately rather than
// after the first interval.
func TestScheduler_RunAtStart(t *testing.T) {
	var eager, lazy atomic.Int32

	s := New(
		Task{Name: "eager", Interval: time.Hour, RunAtStart: true, Run: func(context.Context) error {
			eager.Add(1)
			return nil
		}},
		Task{Name: "lazy", Interval: time.Hour, Run: func(context.Context) error {
			lazy.Add(1)
			return nil
		}},
	)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return eager.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), lazy.Load())
}

// TestScheduler_TimeoutBoundsRun verifies that a run sees its context cancelled once
// the task timeout elapses.
func TestScheduler_TimeoutBoundsRun(t *testing.T) {
	done := make(chan error, 1)

	s := New(Task{
		Name:       "blocking",
		Interval:   time.Hour,
		RunAtStart: true,
		Timeout:    30 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		},
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not cancelled by its timeout")
	}
}

// TestScheduler_StopCancelsInFlightRuns verifies that Stop cancels running tasks
// and waits for them to return.
func TestScheduler_StopCancelsInFlightRuns(t *testing.T) {
	started := make(chan struct{})

	s := New(Task{
		Name:       "forever",
		Interval:   time.Hour,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.NoError(t, s.Start())
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestScheduler_RejectsInvalidTasks(t *testing.T) {
	s := New(Task{Name: "zero", Interval: 0, Run: func(context.Context) error { return nil }})
	assert.Error(t, s.Start())

	s = New(Task{Name: "nil", Interval: time.Second})
	assert.Error(t, s.Start())
}

// TestScheduler_FixedCadenceDoesNotDrift verifies that fire times follow the
// interval, not interval plus run time, when each run takes a while.
func TestScheduler_FixedCadenceDoesNotDrift(t *testing.T) {
	const interval = 100 * time.Millisecond
	const work = 40 * time.Millisecond

	var mu sync.Mutex
	var fires []time.Time

	s := New(Task{
		Name:     "steady",
		Interval: interval,
		Run: func(ctx context.Context) error {
			mu.Lock()
			fires = append(fires, time.Now())
			mu.Unlock()
			time.Sleep(work)
			return nil
		},
	})
	require.NoError(t, s.Start())
	time.Sleep(1050 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(fires), 8)

	for i := 1; i < len(fires); i++ {
		gap := fires[i].Sub(fires[i-1])
		assert.Less(t, gap, interval+work-10*time.Millisecond, "gap %d", i)
	}
	mean := fires[len(fires)-1].Sub(fires[0]) / time.Duration(len(fires)-1)
	assert.InDelta(t, float64(interval), float64(mean), float64(10*time.Millisecond))
}
