package telemetry

import (
	"time"
)

// SensorReading is one sample of the indoor sensors plus the outdoor reference
// looked up from the forecast at sampling time.
// A nil field means the value is unknown (sensor read failure or no forecast).
type SensorReading struct {
	Timestamp time.Time `json:"timestamp"`

	AQI  *int     `json:"aqi"`
	TVOC *float64 `json:"tvocPpb"`
	ECO2 *float64 `json:"eco2Ppm"`

	IndoorTemp     *float64 `json:"indoorTempF"`
	IndoorHumidity *float64 `json:"indoorHumidityPercent"`

	OutdoorTemp     *float64 `json:"outdoorTempF"`
	OutdoorHumidity *float64 `json:"outdoorHumidityPercent"`
}

// Equal reports whether two readings carry the same instant and the same
// known/unknown values field by field.
func (r SensorReading) Equal(o SensorReading) bool {
	return r.Timestamp.Equal(o.Timestamp) &&
		eqPtr(r.AQI, o.AQI) &&
		eqPtr(r.TVOC, o.TVOC) &&
		eqPtr(r.ECO2, o.ECO2) &&
		eqPtr(r.IndoorTemp, o.IndoorTemp) &&
		eqPtr(r.IndoorHumidity, o.IndoorHumidity) &&
		eqPtr(r.OutdoorTemp, o.OutdoorTemp) &&
		eqPtr(r.OutdoorHumidity, o.OutdoorHumidity)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ForecastEntry is one hourly period of the outdoor forecast feed.
type ForecastEntry struct {
	Time            time.Time `json:"time"`
	OutdoorTemp     float64   `json:"outdoorTempF"`
	OutdoorHumidity float64   `json:"outdoorHumidityPercent"`
}

// TempHumidity is a single read of the temperature/humidity sensor.
type TempHumidity struct {
	TempF       float64
	HumidityPct float64
}

// AirQuality is a single read of the gas sensor.
type AirQuality struct {
	AQI  int
	TVOC float64
	ECO2 float64
}
