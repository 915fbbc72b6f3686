// Package sensors drives the indoor sensors: a Bosch BME280 for temperature
// and humidity and a ScioSense ENS160 for air quality, both on one I²C bus.
package sensors

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Board owns the host I²C bus shared by both sensors.
type Board struct {
	bus i2c.BusCloser
	log *slog.Logger
}

// OpenBoard initialises the host drivers and opens the named bus. An empty
// name selects the default bus, usually /dev/i2c-1.
func OpenBoard(busName string) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	b := &Board{bus: bus, log: slog.Default().With("component", "sensors")}
	b.log.Info("i2c bus opened", "bus", bus.String())
	return b, nil
}

// Bus returns the opened bus.
func (b *Board) Bus() i2c.Bus {
	return b.bus
}

// Close releases the bus.
func (b *Board) Close() error {
	return b.bus.Close()
}
