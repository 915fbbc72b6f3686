package dashboard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-monitor/internal/common"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var base = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type staticSource []telemetry.SensorReading

func (s staticSource) Readings() []telemetry.SensorReading { return s }

func tvocReading(i int, v *float64) telemetry.SensorReading {
	return telemetry.SensorReading{Timestamp: base.Add(time.Duration(i) * time.Minute), TVOC: v}
}

func TestSegments_BreakOnUnknown(t *testing.T) {
	readings := []telemetry.SensorReading{
		tvocReading(0, common.Ptr(100.0)),
		tvocReading(1, common.Ptr(120.0)),
		tvocReading(2, nil),
		tvocReading(3, common.Ptr(110.0)),
		tvocReading(4, common.Ptr(130.0)),
	}

	segs := segments(readings, series{value: tvocValue, color: "red"})
	require.Len(t, segs, 2)
	assert.Len(t, segs[0].points, 2)
	assert.Len(t, segs[1].points, 2)
	assert.True(t, segs[1].points[0].t.Equal(base.Add(3*time.Minute)))
}

func TestSegments_ColourByBand(t *testing.T) {
	readings := []telemetry.SensorReading{
		tvocReading(0, common.Ptr(100.0)),
		tvocReading(1, common.Ptr(300.0)),
		tvocReading(2, common.Ptr(500.0)),
		tvocReading(3, common.Ptr(3500.0)),
	}

	segs := segments(readings, series{value: tvocValue, bands: tvocThresholds, top: "white"})
	require.Len(t, segs, 3)
	assert.Equal(t, "green", segs[0].color)
	assert.Equal(t, "yellow", segs[1].color)
	assert.Equal(t, "white", segs[2].color)
	// A band change starts from the previous point.
	assert.Equal(t, 300.0, segs[1].points[0].v)
	assert.Equal(t, 500.0, segs[2].points[0].v)
}

func TestBandColor(t *testing.T) {
	assert.Equal(t, "green", bandColor(400, eco2Thresholds, "white"))
	assert.Equal(t, "blue", bandColor(401, eco2Thresholds, "white"))
	assert.Equal(t, "red", bandColor(1200, eco2Thresholds, "white"))
	assert.Equal(t, "white", bandColor(1600, eco2Thresholds, "white"))
}

func TestChart_FivePanels(t *testing.T) {
	svg := string(Chart([]telemetry.SensorReading{
		{Timestamp: base, AQI: common.Ptr(2), TVOC: common.Ptr(150.0), ECO2: common.Ptr(500.0), IndoorTemp: common.Ptr(70.0)},
		{Timestamp: base.Add(time.Minute), AQI: common.Ptr(3), TVOC: common.Ptr(160.0), ECO2: common.Ptr(700.0), IndoorTemp: common.Ptr(71.0)},
	}))

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Equal(t, 5, strings.Count(svg, `class="panel"`))
	for _, title := range []string{"AQI", "TVOC (ppb)", "eCO2 (ppm)", "Indoor Temperature (F)", "Humidity (%) &amp; Outside Temp"} {
		assert.Contains(t, svg, ">"+title+"</text>")
	}
	assert.Contains(t, svg, "<polyline")
}

func TestChart_Empty(t *testing.T) {
	svg := string(Chart(nil))
	assert.Contains(t, svg, "</svg>")
	assert.NotContains(t, svg, "<polyline")
}

func TestRenderer_RendersLatestConditions(t *testing.T) {
	src := staticSource{
		{Timestamp: base, AQI: common.Ptr(1)},
		{
			Timestamp: base.Add(time.Minute), AQI: common.Ptr(3), TVOC: common.Ptr(1500.0), ECO2: common.Ptr(700.0),
			IndoorTemp: common.Ptr(72.0), IndoorHumidity: common.Ptr(40.0), OutdoorTemp: common.Ptr(35.0),
		},
	}
	r := NewRenderer(src)
	_, ok := r.Current()
	assert.False(t, ok)

	require.NoError(t, r.Render(context.Background()))

	out, ok := r.Current()
	require.True(t, ok)
	page := string(out.Page)
	assert.Equal(t, 2, out.Readings)
	assert.Contains(t, page, "Temperature: 72.0°F (Good)")
	assert.Contains(t, page, "Humidity: 40.0% (Ok)")
	assert.Contains(t, page, "AQI: 3 (Moderate)")
	assert.Contains(t, page, "eCO2: 700 ppm (Good)")
	assert.Contains(t, page, `src="/chart.svg`)
	assert.NotEmpty(t, out.Chart)
}

func TestRenderer_UnknownAndInvalidValues(t *testing.T) {
	r := NewRenderer(staticSource{{Timestamp: base}})
	require.NoError(t, r.Render(context.Background()))
	out, _ := r.Current()
	assert.Contains(t, string(out.Page), "Temperature: n/a°F (Unknown)")

	r = NewRenderer(staticSource{{Timestamp: base, AQI: common.Ptr(9)}})
	require.NoError(t, r.Render(context.Background()))
	out, _ = r.Current()
	assert.Contains(t, string(out.Page), "AQI: 9 (Invalid)")
}

func TestRenderer_NoReadings(t *testing.T) {
	r := NewRenderer(staticSource{})
	require.NoError(t, r.Render(context.Background()))
	out, ok := r.Current()
	require.True(t, ok)
	assert.Contains(t, string(out.Page), "No readings yet")
}
