package forecast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

const nwsBody = `{
  "properties": {
    "periods": [
      {"startTime": "2024-01-15T13:00:00-05:00", "temperature": 35, "temperatureUnit": "F",
       "relativeHumidity": {"unitCode": "wmoUnit:percent", "value": 62}},
      {"startTime": "2024-01-15T14:00:00-05:00", "temperature": 37, "temperatureUnit": "F",
       "relativeHumidity": {"unitCode": "wmoUnit:percent", "value": 58}}
    ]
  }
}`

var fastBackoff = BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func newTestNWS(t *testing.T, h http.HandlerFunc) *NWSFeed {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	f := NewNWSFeed(srv.Client(), srv.URL, "airquality-monitor-test")
	f.httpCfg.Backoff = fastBackoff
	return f
}

// TestNWSFeed_ParsesPeriods verifies that hourly periods are parsed into UTC
// entries in °F and percent humidity.
func TestNWSFeed_ParsesPeriods(t *testing.T) {
	var ua atomic.Value
	f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(nwsBody))
	})

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "airquality-monitor-test", ua.Load())
	assert.True(t, entries[0].Time.Equal(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)), "offset must be honoured")
	assert.Equal(t, 35.0, entries[0].OutdoorTemp)
	assert.Equal(t, 62.0, entries[0].OutdoorHumidity)
	assert.Equal(t, 58.0, entries[1].OutdoorHumidity)
}

func TestNWSFeed_ConvertsCelsius(t *testing.T) {
	f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"properties":{"periods":[
			{"startTime":"2024-01-15T13:00:00Z","temperature":10,"temperatureUnit":"C","relativeHumidity":{"value":40}}]}}`))
	})

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, entries[0].OutdoorTemp, 1e-9)
}

func TestNWSFeed_MalformedPeriodFailsWholeFetch(t *testing.T) {
	tests := map[string]string{
		"bad time":         `{"properties":{"periods":[{"startTime":"yesterday","temperature":1,"relativeHumidity":{"value":1}}]}}`,
		"missing humidity": `{"properties":{"periods":[{"startTime":"2024-01-15T13:00:00Z","temperature":1,"relativeHumidity":{"value":null}}]}}`,
		"missing temp":     `{"properties":{"periods":[{"startTime":"2024-01-15T13:00:00Z","relativeHumidity":{"value":1}}]}}`,
		"not json":         `<html>maintenance</html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := f.FetchHourly(context.Background())
			assert.Error(t, err)
		})
	}
}

// TestNWSFeed_RetriesServerErrors verifies that 5xx responses are retried with
// backoff until one succeeds.
func TestNWSFeed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(nwsBody))
	})

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(2), calls.Load())
}

// TestNWSFeed_DoesNotRetryClientErrors verifies that a 4xx response fails the
// fetch on the first attempt.
func TestNWSFeed_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := f.FetchHourly(context.Background())
	assert.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_RefreshTimeoutIsUnavailable(t *testing.T) {
	f := newTestNWS(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	c := NewCache(f, 50*time.Millisecond)

	start := time.Now()
	err := c.Refresh(context.Background())

	var ferr *telemetry.ForecastUnavailableError
	require.ErrorAs(t, err, &ferr)
	assert.Less(t, time.Since(start), 2*time.Second)
	_, ok := c.Lookup(time.Now())
	assert.False(t, ok)
}

func TestOpenMeteoFeed_ParsesHourly(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"hourly":{
			"time":["2024-01-15T00:00","2024-01-15T01:00"],
			"temperature_2m":[28.4,27.9],
			"relative_humidity_2m":[71,73]}}`))
	}))
	defer srv.Close()

	f := NewOpenMeteoFeed(srv.Client(), srv.URL, 39.4858, -76.3076)
	f.httpCfg.Backoff = fastBackoff

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, query.Load(), "temperature_unit=fahrenheit")
	assert.True(t, entries[1].Time.Equal(time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 27.9, entries[1].OutdoorTemp)
	assert.Equal(t, 73.0, entries[1].OutdoorHumidity)
}

func TestOpenMeteoFeed_MismatchedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hourly":{"time":["2024-01-15T00:00"],"temperature_2m":[],"relative_humidity_2m":[1]}}`))
	}))
	defer srv.Close()

	f := NewOpenMeteoFeed(srv.Client(), srv.URL, 0, 0)
	f.httpCfg.Backoff = fastBackoff

	_, err := f.FetchHourly(context.Background())
	assert.Error(t, err)
}

// TestOpenWeatherFeed_ParsesSteps verifies the request parameters and the parsing
// of 3-hour forecast steps.
func TestOpenWeatherFeed_ParsesSteps(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		_, _ = w.Write([]byte(`{"list":[
			{"dt":1705320000,"main":{"temp":33.8,"humidity":80}},
			{"dt":1705330800,"main":{"temp":31.1,"humidity":84}}]}`))
	}))
	defer srv.Close()

	f := NewOpenWeatherFeed(srv.Client(), srv.URL, "secret", 39.4858, -76.3076)
	f.httpCfg.Backoff = fastBackoff

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	q := query.Load().(url.Values)
	assert.Equal(t, "secret", q.Get("appid"))
	assert.Equal(t, "imperial", q.Get("units"))
	assert.Equal(t, "39.4858", q.Get("lat"))
	assert.True(t, entries[1].Time.Equal(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, 31.1, entries[1].OutdoorTemp)
	assert.Equal(t, 84.0, entries[1].OutdoorHumidity)
}

func TestKeyedFeeds_RequireAPIKey(t *testing.T) {
	feeds := []Feed{
		NewOpenWeatherFeed(http.DefaultClient, "http://127.0.0.1:1", "", 0, 0),
		NewWeatherAPIFeed(http.DefaultClient, "http://127.0.0.1:1", "", 0, 0),
	}
	for _, f := range feeds {
		_, err := f.FetchHourly(context.Background())
		assert.ErrorIs(t, err, errMissingAPIKey, f.Name())
	}
}

// TestWeatherAPIFeed_FlattensDays verifies that hours from every forecast day end
// up in one time-ordered list.
func TestWeatherAPIFeed_FlattensDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"forecast":{"forecastday":[
			{"hour":[{"time_epoch":1705276800,"temp_f":30.2,"humidity":70},{"time_epoch":1705280400,"temp_f":29.5,"humidity":72}]},
			{"hour":[{"time_epoch":1705363200,"temp_f":35.0,"humidity":60}]}]}}`))
	}))
	defer srv.Close()

	f := NewWeatherAPIFeed(srv.Client(), srv.URL, "secret", 39.4858, -76.3076)
	f.httpCfg.Backoff = fastBackoff

	entries, err := f.FetchHourly(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[2].Time.Equal(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 35.0, entries[2].OutdoorTemp)
}

func TestWeatherAPIFeed_IncompleteHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"forecast":{"forecastday":[{"hour":[{"time_epoch":1705276800,"humidity":70}]}]}}`))
	}))
	defer srv.Close()

	f := NewWeatherAPIFeed(srv.Client(), srv.URL, "secret", 0, 0)
	f.httpCfg.Backoff = fastBackoff

	_, err := f.FetchHourly(context.Background())
	assert.Error(t, err)
}
