package telemetry

import (
	"fmt"
)

// SensorUnavailableError reports a failed sensor read. The sample is still
// recorded, with the affected fields left unknown.
type SensorUnavailableError struct {
	Sensor string
	Err    error
}

func (e *SensorUnavailableError) Error() string {
	return fmt.Sprintf("sensor %s unavailable: %v", e.Sensor, e.Err)
}

func (e *SensorUnavailableError) Unwrap() error { return e.Err }

// ForecastUnavailableError reports a failed forecast refresh. The previous
// forecast stays in use.
type ForecastUnavailableError struct {
	Err error
}

func (e *ForecastUnavailableError) Error() string {
	return fmt.Sprintf("forecast unavailable: %v", e.Err)
}

func (e *ForecastUnavailableError) Unwrap() error { return e.Err }

// PersistenceError reports a failed durable write. In-memory state remains
// valid; durable state is stale until the next successful write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptStoreError reports durable state that exists but cannot be read.
// It is never resolved automatically.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store %q: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// InvalidReadingError reports a value outside the classifier's input contract.
type InvalidReadingError struct {
	Field string
	Value any
}

func (e *InvalidReadingError) Error() string {
	return fmt.Sprintf("invalid reading: %s=%v", e.Field, e.Value)
}
