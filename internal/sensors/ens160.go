package sensors

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// ENS160 register map.
const (
	ens160RegPartID  = 0x00
	ens160RegOpMode  = 0x10
	ens160RegTempIn  = 0x13 // followed by RH_IN at 0x15
	ens160RegStatus  = 0x20
	ens160RegDataAQI = 0x21 // followed by TVOC at 0x22 and ECO2 at 0x24

	ens160PartID       = 0x0160
	ens160ModeStandard = 0x02

	ens160StatusError    = 1 << 6
	ens160ValidityShift  = 2
	ens160ValidityMask   = 0x3
	ens160ValidityFailed = 3
)

var (
	errENS160Invalid = errors.New("ens160 reports invalid output")
	errENS160Fault   = errors.New("ens160 reports an error")
)

// ENS160 reads the eCO2, TVOC and AQI outputs of a ScioSense ENS160.
type ENS160 struct {
	dev *i2c.Dev
	mu  sync.Mutex
	log *slog.Logger
}

// NewENS160 verifies the part id at addr on bus and switches the sensor to
// standard gas sensing mode.
func NewENS160(bus i2c.Bus, addr uint16) (*ENS160, error) {
	s := &ENS160{
		dev: &i2c.Dev{Bus: bus, Addr: addr},
		log: slog.Default().With("component", "sensors", "sensor", "ens160"),
	}

	id := make([]byte, 2)
	if err := s.dev.Tx([]byte{ens160RegPartID}, id); err != nil {
		return nil, fmt.Errorf("ens160 at %#x: read part id: %w", addr, err)
	}
	if got := binary.LittleEndian.Uint16(id); got != ens160PartID {
		return nil, fmt.Errorf("ens160 at %#x: unexpected part id %#04x", addr, got)
	}
	if err := s.dev.Tx([]byte{ens160RegOpMode, ens160ModeStandard}, nil); err != nil {
		return nil, fmt.Errorf("ens160 at %#x: set standard mode: %w", addr, err)
	}
	return s, nil
}

// ReadAirQuality writes the ambient compensation values, then reads the
// current outputs.
func (s *ENS160) ReadAirQuality(ctx context.Context, tempC, humidityPct float64) (telemetry.AirQuality, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.AirQuality{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dev.Tx(compensationFrame(tempC, humidityPct), nil); err != nil {
		return telemetry.AirQuality{}, fmt.Errorf("write compensation: %w", err)
	}

	status := make([]byte, 1)
	if err := s.dev.Tx([]byte{ens160RegStatus}, status); err != nil {
		return telemetry.AirQuality{}, fmt.Errorf("read status: %w", err)
	}
	if status[0]&ens160StatusError != 0 {
		return telemetry.AirQuality{}, errENS160Fault
	}
	switch (status[0] >> ens160ValidityShift) & ens160ValidityMask {
	case ens160ValidityFailed:
		return telemetry.AirQuality{}, errENS160Invalid
	case 1, 2:
		s.log.Debug("sensor still warming up")
	}

	data := make([]byte, 5)
	if err := s.dev.Tx([]byte{ens160RegDataAQI}, data); err != nil {
		return telemetry.AirQuality{}, fmt.Errorf("read data: %w", err)
	}
	aqi := int(data[0] & 0x07)
	if aqi < 1 || aqi > 5 {
		return telemetry.AirQuality{}, fmt.Errorf("aqi %d out of range", aqi)
	}
	return telemetry.AirQuality{
		AQI:  aqi,
		TVOC: float64(binary.LittleEndian.Uint16(data[1:3])),
		ECO2: float64(binary.LittleEndian.Uint16(data[3:5])),
	}, nil
}

// compensationFrame encodes TEMP_IN as Kelvin×64 and RH_IN as %RH×512.
func compensationFrame(tempC, humidityPct float64) []byte {
	humidityPct = math.Max(0, math.Min(100, humidityPct))
	frame := make([]byte, 5)
	frame[0] = ens160RegTempIn
	binary.LittleEndian.PutUint16(frame[1:3], uint16(math.Round((tempC+273.15)*64)))
	binary.LittleEndian.PutUint16(frame[3:5], uint16(math.Round(humidityPct*512)))
	return frame
}
