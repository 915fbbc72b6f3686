package telemetry

import "time"

// FieldStats summarizes the known values of one reading field.
// Count is zero and the other fields are nil when no value was known.
type FieldStats struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min"`
	Avg   *float64 `json:"avg"`
	Max   *float64 `json:"max"`
}

// Summary is the min/avg/max view over a sequence of readings.
type Summary struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Samples int       `json:"samples"`

	AQI             FieldStats `json:"aqi"`
	TVOC            FieldStats `json:"tvocPpb"`
	ECO2            FieldStats `json:"eco2Ppm"`
	IndoorTemp      FieldStats `json:"indoorTempF"`
	IndoorHumidity  FieldStats `json:"indoorHumidityPercent"`
	OutdoorTemp     FieldStats `json:"outdoorTempF"`
	OutdoorHumidity FieldStats `json:"outdoorHumidityPercent"`
}

type accumulator struct {
	n             int
	sum, min, max float64
}

func (a *accumulator) add(v *float64) {
	if v == nil {
		return
	}
	if a.n == 0 || *v < a.min {
		a.min = *v
	}
	if a.n == 0 || *v > a.max {
		a.max = *v
	}
	a.sum += *v
	a.n++
}

func (a *accumulator) stats() FieldStats {
	if a.n == 0 {
		return FieldStats{}
	}
	avg := a.sum / float64(a.n)
	lo, hi := a.min, a.max
	return FieldStats{Count: a.n, Min: &lo, Avg: &avg, Max: &hi}
}

// Summarize aggregates readings field by field. Unknown values are skipped,
// never counted as zero.
func Summarize(readings []SensorReading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}

	var aqi, tvoc, eco2, temp, hum, outTemp, outHum accumulator
	for _, r := range readings {
		if r.AQI != nil {
			v := float64(*r.AQI)
			aqi.add(&v)
		}
		tvoc.add(r.TVOC)
		eco2.add(r.ECO2)
		temp.add(r.IndoorTemp)
		hum.add(r.IndoorHumidity)
		outTemp.add(r.OutdoorTemp)
		outHum.add(r.OutdoorHumidity)
	}

	return Summary{
		From:            readings[0].Timestamp,
		To:              readings[len(readings)-1].Timestamp,
		Samples:         len(readings),
		AQI:             aqi.stats(),
		TVOC:            tvoc.stats(),
		ECO2:            eco2.stats(),
		IndoorTemp:      temp.stats(),
		IndoorHumidity:  hum.stats(),
		OutdoorTemp:     outTemp.stats(),
		OutdoorHumidity: outHum.stats(),
	}
}
