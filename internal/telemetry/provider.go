package telemetry

import (
	"context"
	"time"
)

// TempHumiditySensor abstracts the indoor temperature/humidity sensor.
type TempHumiditySensor interface {
	ReadTempHumidity(ctx context.Context) (TempHumidity, error)
}

// AirQualitySensor abstracts the gas sensor. Compensation values are the
// ambient temperature in °C and relative humidity in %.
type AirQualitySensor interface {
	ReadAirQuality(ctx context.Context, tempC, humidityPct float64) (AirQuality, error)
}

// ForecastLookup resolves the outdoor reference nearest to an instant.
// ok is false when no forecast is available.
type ForecastLookup interface {
	Lookup(t time.Time) (entry ForecastEntry, ok bool)
}

// Store is the contract the bounded time-series store satisfies.
type Store interface {
	Append(ctx context.Context, r SensorReading) error
	Snapshot() []SensorReading
}

// Sink receives every reading after it has been stored. Delivery is best-effort.
type Sink interface {
	Publish(ctx context.Context, r SensorReading) error
}
