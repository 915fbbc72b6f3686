package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/i474232898/airquality-monitor/internal/common"
)

const (
	// Gas sensor compensation used when the ambient read failed.
	defaultCompensationTempC       = 25.0
	defaultCompensationHumidityPct = 50.0

	SensorTempHumidity = "temp_humidity"
	SensorAirQuality   = "air_quality"
)

// Service samples the sensors, attaches the outdoor reference and stores the
// resulting reading.
type Service struct {
	store    Store
	th       TempHumiditySensor
	aq       AirQualitySensor
	forecast ForecastLookup
	sink     Sink
	now      func() time.Time
	log      *slog.Logger
}

// NewService creates a new Service.
func NewService(store Store, th TempHumiditySensor, aq AirQualitySensor, forecast ForecastLookup) *Service {
	return &Service{
		store:    store,
		th:       th,
		aq:       aq,
		forecast: forecast,
		now:      time.Now,
		log:      slog.Default().With("component", "sampler"),
	}
}

// SetSink registers a best-effort consumer of stored readings.
func (s *Service) SetSink(sink Sink) {
	s.sink = sink
}

// Sample reads both sensors, looks up the outdoor reference and appends the
// reading to the store.
//
// Sensor failures do not prevent the append: the affected fields stay unknown
// and the failures are returned joined, as *SensorUnavailableError values,
// alongside the stored reading. A store error is joined in front of them and
// skips publishing to the sink.
func (s *Service) Sample(ctx context.Context) (SensorReading, error) {
	var sensorErrs []error

	compTempC, compHum := defaultCompensationTempC, defaultCompensationHumidityPct

	th, err := s.th.ReadTempHumidity(ctx)
	thOK := err == nil
	if err != nil {
		sensorErrs = append(sensorErrs, &SensorUnavailableError{Sensor: SensorTempHumidity, Err: err})
	} else {
		compTempC = FahrenheitToCelsius(th.TempF)
		compHum = th.HumidityPct
	}

	aq, err := s.aq.ReadAirQuality(ctx, compTempC, compHum)
	aqOK := err == nil
	if err != nil {
		sensorErrs = append(sensorErrs, &SensorUnavailableError{Sensor: SensorAirQuality, Err: err})
	}

	r := SensorReading{Timestamp: s.now().UTC().Round(0)}
	if thOK {
		r.IndoorTemp = common.Ptr(th.TempF)
		r.IndoorHumidity = common.Ptr(th.HumidityPct)
	}
	if aqOK {
		r.AQI = common.Ptr(aq.AQI)
		r.TVOC = common.Ptr(aq.TVOC)
		r.ECO2 = common.Ptr(aq.ECO2)
	}

	if entry, ok := s.forecast.Lookup(r.Timestamp); ok {
		r.OutdoorTemp = common.Ptr(entry.OutdoorTemp)
		r.OutdoorHumidity = common.Ptr(entry.OutdoorHumidity)
	} else {
		s.log.Debug("no forecast available; outdoor values unknown")
	}

	if err := s.store.Append(ctx, r); err != nil {
		return r, errors.Join(append([]error{err}, sensorErrs...)...)
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, r); err != nil {
			s.log.Warn("publish reading failed", "error", err)
		}
	}

	return r, errors.Join(sensorErrs...)
}

// Latest returns the most recent stored reading.
func (s *Service) Latest() (SensorReading, bool) {
	snap := s.store.Snapshot()
	if len(snap) == 0 {
		return SensorReading{}, false
	}
	return snap[len(snap)-1], true
}

// Readings returns a copy of the stored sequence, oldest first.
func (s *Service) Readings() []SensorReading {
	return s.store.Snapshot()
}

// FahrenheitToCelsius converts °F to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
