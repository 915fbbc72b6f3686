package sensors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/i474232898/airquality-monitor/internal/common"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

type senser interface {
	Sense(e *physic.Env) error
}

// BME280 reads temperature and humidity, retrying failed reads.
type BME280 struct {
	dev     senser
	halt    func() error
	retries int
	delay   time.Duration
	log     *slog.Logger
}

// NewBME280 opens the sensor at addr on bus. Each read makes up to retries
// attempts, delay apart.
func NewBME280(bus i2c.Bus, addr uint16, retries int, delay time.Duration) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280 at %#x: %w", addr, err)
	}
	s := newBME280(dev, retries, delay)
	s.halt = dev.Halt
	return s, nil
}

func newBME280(dev senser, retries int, delay time.Duration) *BME280 {
	if retries < 1 {
		retries = 1
	}
	return &BME280{
		dev:     dev,
		retries: retries,
		delay:   delay,
		log:     slog.Default().With("component", "sensors", "sensor", "bme280"),
	}
}

// ReadTempHumidity returns °F and %RH, each rounded to one decimal.
func (s *BME280) ReadTempHumidity(ctx context.Context) (telemetry.TempHumidity, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		var env physic.Env
		err := s.dev.Sense(&env)
		if err == nil {
			return envToTempHumidity(env)
		}
		lastErr = err
		s.log.Debug("read failed", "attempt", attempt, "error", err)

		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return telemetry.TempHumidity{}, errors.Join(ctx.Err(), lastErr)
		case <-time.After(s.delay):
		}
	}
	return telemetry.TempHumidity{}, fmt.Errorf("after %d attempts: %w", s.retries, lastErr)
}

func envToTempHumidity(env physic.Env) (telemetry.TempHumidity, error) {
	tempF := common.Round(telemetry.CelsiusToFahrenheit(env.Temperature.Celsius()), 1)
	// Humidity is fixed point at 1e-5 %RH.
	hum := common.Round(float64(env.Humidity)/float64(physic.PercentRH), 1)
	if hum < 0 || hum > 100 {
		return telemetry.TempHumidity{}, fmt.Errorf("humidity %.1f%% out of range", hum)
	}
	return telemetry.TempHumidity{TempF: tempF, HumidityPct: hum}, nil
}

// Close halts the sensor.
func (s *BME280) Close() error {
	if s.halt == nil {
		return nil
	}
	return s.halt()
}
