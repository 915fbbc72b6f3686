// Package classify maps a reading to human-readable quality bands.
//
// Every function is total: each finite input, and an unknown (nil) input,
// yields a defined label. Out-of-contract inputs (AQI outside 1..5, NaN or
// infinite values) are reported as *telemetry.InvalidReadingError.
package classify

import (
	"math"

	"github.com/i474232898/airquality-monitor/internal/common"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// Label is a human-readable band name.
type Label string

const Unknown Label = "Unknown"

// AQI bands.
const (
	AQIExcellent Label = "Excellent"
	AQIGood      Label = "Good"
	AQIModerate  Label = "Moderate"
	AQIPoor      Label = "Poor"
	AQIUnhealthy Label = "Unhealthy"
)

// TVOC advisories.
const (
	TVOCNormal    Label = "Normal"
	TVOCIdentify  Label = "Identify the sources of VOCs and eliminate them"
	TVOCAct       Label = "Take immediate action to improve air quality by increasing ventilation and removing products that emit gasses"
	TVOCHazardous Label = "Hazardous - immediate action required"
)

// eCO2 bands.
const (
	ECO2BelowRange Label = "Below sensor range"
	ECO2Excellent  Label = "Excellent"
	ECO2Good       Label = "Good"
	ECO2Fair       Label = "Fair"
	ECO2Poor       Label = "Poor"
	ECO2Bad        Label = "Bad"
)

// Temperature and humidity bands share one scale.
const (
	VeryLow  Label = "Very Low"
	Low      Label = "Low"
	Good     Label = "Good"
	Ok       Label = "Ok"
	High     Label = "High"
	VeryHigh Label = "Very High"

	NoRecommendation Label = "No recommendation"
)

// Threshold tables. A value belongs to the first band whose upper bound it is
// below.
var (
	tvocBands = []band{
		{400, TVOCNormal},
		{2200, TVOCIdentify},
		{3000, TVOCAct},
		{math.Inf(1), TVOCHazardous},
	}
	eco2Bands = []band{
		{400, ECO2BelowRange},
		{600, ECO2Excellent},
		{800, ECO2Good},
		{1000, ECO2Fair},
		{15000, ECO2Poor},
		{math.Inf(1), ECO2Bad},
	}
)

type band struct {
	below float64
	label Label
}

func lookup(bands []band, v float64) Label {
	for _, b := range bands {
		if v < b.below {
			return b.label
		}
	}
	return bands[len(bands)-1].label
}

// RecommendedHumidityFunc returns the indoor humidity target for an outdoor
// temperature in °F. ok is false when there is no recommendation.
type RecommendedHumidityFunc func(outdoorTempF *float64) (pct float64, ok bool)

// Classification is the label set for one reading.
type Classification struct {
	AQI         Label `json:"aqi"`
	TVOC        Label `json:"tvoc"`
	ECO2        Label `json:"eco2"`
	Temperature Label `json:"temperature"`
	Humidity    Label `json:"humidity"`

	// RecommendedHumidity is nil when no target applies.
	RecommendedHumidity *float64 `json:"recommendedHumidity"`
	// HumidityDifference is indoor minus recommended, nil when either is unknown.
	HumidityDifference *float64 `json:"humidityDifference"`
}

// Classify labels every field of r. A nil recommend uses RecommendedHumidity.
func Classify(r telemetry.SensorReading, recommend RecommendedHumidityFunc) (Classification, error) {
	if recommend == nil {
		recommend = RecommendedHumidity
	}

	var (
		c   Classification
		err error
	)
	if c.AQI, err = AQI(r.AQI); err != nil {
		return Classification{}, err
	}
	if c.TVOC, err = TVOC(r.TVOC); err != nil {
		return Classification{}, err
	}
	if c.ECO2, err = ECO2(r.ECO2); err != nil {
		return Classification{}, err
	}
	if c.Temperature, err = Temperature(r.IndoorTemp); err != nil {
		return Classification{}, err
	}
	if err := checkFinite("outdoor_temp", r.OutdoorTemp); err != nil {
		return Classification{}, err
	}
	if err := checkFinite("indoor_humidity", r.IndoorHumidity); err != nil {
		return Classification{}, err
	}

	target, ok := recommend(r.OutdoorTemp)
	if ok {
		c.RecommendedHumidity = common.Ptr(target)
	}
	switch {
	case r.IndoorHumidity == nil:
		c.Humidity = Unknown
	case !ok:
		c.Humidity = NoRecommendation
	default:
		diff := common.Round(*r.IndoorHumidity-target, 1)
		c.HumidityDifference = common.Ptr(diff)
		c.Humidity = HumidityDifference(diff)
	}

	return c, nil
}

// AQI maps the gas sensor index 1..5 to its band.
func AQI(v *int) (Label, error) {
	if v == nil {
		return Unknown, nil
	}
	switch *v {
	case 1:
		return AQIExcellent, nil
	case 2:
		return AQIGood, nil
	case 3:
		return AQIModerate, nil
	case 4:
		return AQIPoor, nil
	case 5:
		return AQIUnhealthy, nil
	}
	return "", &telemetry.InvalidReadingError{Field: "aqi", Value: *v}
}

// TVOC maps ppb to an advisory: <400, <2200, <3000, otherwise hazardous.
func TVOC(v *float64) (Label, error) {
	if v == nil {
		return Unknown, nil
	}
	if err := checkFinite("tvoc", v); err != nil {
		return "", err
	}
	return lookup(tvocBands, *v), nil
}

// ECO2 maps ppm to a band: <400, <600, <800, <1000, <15000, otherwise bad.
func ECO2(v *float64) (Label, error) {
	if v == nil {
		return Unknown, nil
	}
	if err := checkFinite("eco2", v); err != nil {
		return "", err
	}
	return lookup(eco2Bands, *v), nil
}

// Temperature maps indoor °F to a band:
// <60 very low, <68 low, 68..76 inclusive good, <80 high, otherwise very high.
func Temperature(v *float64) (Label, error) {
	if v == nil {
		return Unknown, nil
	}
	if err := checkFinite("indoor_temp", v); err != nil {
		return "", err
	}
	t := *v
	switch {
	case t < 60:
		return VeryLow, nil
	case t < 68:
		return Low, nil
	case t <= 76:
		return Good, nil
	case t < 80:
		return High, nil
	default:
		return VeryHigh, nil
	}
}

// RecommendedHumidity is the indoor humidity target for an outdoor
// temperature in °F, stepping down 5 points per 10 °F. Below -20 °F, and when
// the outdoor temperature is unknown, there is no recommendation.
func RecommendedHumidity(outdoorTempF *float64) (float64, bool) {
	if outdoorTempF == nil || !common.Finite(*outdoorTempF) {
		return 0, false
	}
	t := *outdoorTempF
	switch {
	case t >= 40:
		return 45, true
	case t >= 30:
		return 40, true
	case t >= 20:
		return 35, true
	case t >= 10:
		return 30, true
	case t >= 0:
		return 25, true
	case t >= -10:
		return 20, true
	case t >= -20:
		return 15, true
	}
	return 0, false
}

// HumidityDifference bands indoor minus recommended humidity, in points:
// |d| <= 3 ok, |d| <= 10 high or low, beyond that very high or very low.
func HumidityDifference(d float64) Label {
	abs := math.Abs(d)
	switch {
	case abs <= 3:
		return Ok
	case abs <= 10:
		if d > 0 {
			return High
		}
		return Low
	default:
		if d > 0 {
			return VeryHigh
		}
		return VeryLow
	}
}

func checkFinite(field string, v *float64) error {
	if v != nil && !common.Finite(*v) {
		return &telemetry.InvalidReadingError{Field: field, Value: *v}
	}
	return nil
}
