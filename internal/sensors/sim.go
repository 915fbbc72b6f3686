package sensors

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/i474232898/airquality-monitor/internal/common"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// Simulated produces plausible indoor values for running without hardware.
// Values drift slowly on a daily cycle with a little noise.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulated creates a simulator; the same seed yields the same sequence.
func NewSimulated(seed uint64) *Simulated {
	return &Simulated{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

func (s *Simulated) ReadTempHumidity(ctx context.Context) (telemetry.TempHumidity, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.TempHumidity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := s.dayPhase()
	temp := 71 + 3*math.Sin(phase) + s.rng.NormFloat64()*0.3
	hum := 42 - 4*math.Sin(phase) + s.rng.NormFloat64()*0.8
	return telemetry.TempHumidity{
		TempF:       common.Round(temp, 1),
		HumidityPct: common.Round(math.Max(0, math.Min(100, hum)), 1),
	}, nil
}

func (s *Simulated) ReadAirQuality(ctx context.Context, _, _ float64) (telemetry.AirQuality, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.AirQuality{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	load := (1 + math.Sin(s.dayPhase())) / 2
	eco2 := math.Round(450 + 600*load + s.rng.NormFloat64()*25)
	tvoc := math.Round(math.Max(0, 150+900*load+s.rng.NormFloat64()*40))

	aqi := 1
	switch {
	case eco2 >= 1000:
		aqi = 4
	case eco2 >= 800:
		aqi = 3
	case eco2 >= 600:
		aqi = 2
	}
	return telemetry.AirQuality{AQI: aqi, TVOC: tvoc, ECO2: math.Max(400, eco2)}, nil
}

func (s *Simulated) dayPhase() float64 {
	t := s.now()
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return 2 * math.Pi * float64(secs) / 86400
}
