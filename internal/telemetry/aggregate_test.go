package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-monitor/internal/common"
)

func TestSummarize_SkipsUnknownValues(t *testing.T) {
	readings := []SensorReading{
		{Timestamp: base, AQI: common.Ptr(1), IndoorTemp: common.Ptr(70.0)},
		{Timestamp: base.Add(time.Minute), AQI: common.Ptr(3)},
		{Timestamp: base.Add(2 * time.Minute), IndoorTemp: common.Ptr(74.0)},
	}

	s := Summarize(readings)
	assert.Equal(t, 3, s.Samples)
	assert.True(t, s.From.Equal(base))
	assert.True(t, s.To.Equal(base.Add(2*time.Minute)))

	assert.Equal(t, 2, s.AQI.Count)
	assert.Equal(t, 2.0, *s.AQI.Avg)

	require.Equal(t, 2, s.IndoorTemp.Count)
	assert.Equal(t, 70.0, *s.IndoorTemp.Min)
	assert.Equal(t, 72.0, *s.IndoorTemp.Avg)
	assert.Equal(t, 74.0, *s.IndoorTemp.Max)

	assert.Zero(t, s.TVOC.Count)
	assert.Nil(t, s.TVOC.Avg, "no values means no average, not zero")
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}
