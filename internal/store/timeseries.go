package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var (
	// ErrOutOfOrder is returned when a reading is older than the newest stored one.
	ErrOutOfOrder = errors.New("reading older than newest stored reading")
)

// Persister keeps a durable copy of the full reading sequence.
type Persister interface {
	// Load returns the persisted sequence oldest first, or an empty sequence
	// if nothing was persisted yet. Unreadable state is a *telemetry.CorruptStoreError.
	Load(ctx context.Context) ([]telemetry.SensorReading, error)
	// Save replaces the persisted sequence.
	Save(ctx context.Context, readings []telemetry.SensorReading) error
	Close() error
}

// TimeSeriesStore is a concurrency-safe, capacity-bounded sequence of readings
// ordered by timestamp, written through to a Persister on every append.
type TimeSeriesStore struct {
	// writeMu serializes appends including their durable write; mu guards
	// the ring and is held only while mutating or copying it.
	writeMu sync.Mutex
	mu      sync.RWMutex

	ring      *Ring[telemetry.SensorReading]
	persister Persister
	log       *slog.Logger

	// clockBehind is set after the first rejected out-of-order append and
	// cleared by the next accepted one. Guarded by writeMu.
	clockBehind bool
}

// Open creates a store of the given capacity and loads its initial state from
// persister. A nil persister keeps the store in memory only.
func Open(ctx context.Context, capacity int, persister Persister) (*TimeSeriesStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("store capacity must be positive, got %d", capacity)
	}

	s := &TimeSeriesStore{
		ring:      NewRing[telemetry.SensorReading](capacity),
		persister: persister,
		log:       slog.Default().With("component", "store"),
	}
	if persister == nil {
		return s, nil
	}

	readings, err := persister.Load(ctx)
	if err != nil {
		return nil, err
	}

	for i, r := range readings {
		if i > 0 && r.Timestamp.Before(readings[i-1].Timestamp) {
			return nil, &telemetry.CorruptStoreError{
				Err: fmt.Errorf("reading %d at %s precedes reading %d", i, r.Timestamp, i-1),
			}
		}
		s.ring.Push(r)
	}
	if len(readings) > capacity {
		s.log.Warn("persisted readings exceed capacity; oldest dropped",
			"persisted", len(readings),
			"capacity", capacity,
		)
	}
	s.log.Info("store loaded", "readings", s.ring.Len(), "capacity", capacity)

	return s, nil
}

// Append adds r at the tail, evicting the oldest reading when the store is
// full, then persists the whole sequence.
//
// A persistence failure is returned as *telemetry.PersistenceError; the reading
// stays in memory and the next successful append brings durable state back in
// line.
func (s *TimeSeriesStore) Append(ctx context.Context, r telemetry.SensorReading) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if last, ok := s.ring.Last(); ok && r.Timestamp.Before(last.Timestamp) {
		s.mu.Unlock()
		if !s.clockBehind {
			s.clockBehind = true
			s.log.Warn("clock is behind the newest stored reading; samples are dropped until it catches up",
				"reading", r.Timestamp,
				"tail", last.Timestamp,
			)
		}
		return fmt.Errorf("%w: %s < %s", ErrOutOfOrder, r.Timestamp, last.Timestamp)
	}
	s.ring.Push(r)
	s.clockBehind = false
	var snap []telemetry.SensorReading
	if s.persister != nil {
		snap = s.ring.AppendTo(make([]telemetry.SensorReading, 0, s.ring.Len()))
	}
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		var perr *telemetry.PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &telemetry.PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Snapshot returns a copy of the stored readings, oldest first.
func (s *TimeSeriesStore) Snapshot() []telemetry.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.AppendTo(make([]telemetry.SensorReading, 0, s.ring.Len()))
}

// Len returns the number of stored readings.
func (s *TimeSeriesStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.Len()
}

// Cap returns the maximum number of stored readings.
func (s *TimeSeriesStore) Cap() int {
	return s.ring.Cap()
}

// Close releases the persister.
func (s *TimeSeriesStore) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}
