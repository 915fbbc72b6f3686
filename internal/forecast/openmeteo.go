package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoFeed reads the Open-Meteo hourly forecast. It needs no API key
// and covers locations outside the NWS grid.
type OpenMeteoFeed struct {
	name    string
	baseURL string
	lat     float64
	lon     float64
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoFeed(client *http.Client, baseURL string, lat, lon float64) *OpenMeteoFeed {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}
	return &OpenMeteoFeed{
		name:    "openmeteo",
		baseURL: baseURL,
		lat:     lat,
		lon:     lon,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (f *OpenMeteoFeed) Name() string {
	return f.name
}

func (f *OpenMeteoFeed) FetchHourly(ctx context.Context) ([]telemetry.ForecastEntry, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", f.lat))
		values.Set("longitude", fmt.Sprintf("%f", f.lon))
		values.Set("hourly", "temperature_2m,relative_humidity_2m")
		values.Set("temperature_unit", "fahrenheit")
		values.Set("timezone", "GMT")

		u := fmt.Sprintf("%s?%s", f.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time             []string   `json:"time"`
			Temperature      []*float64 `json:"temperature_2m"`
			RelativeHumidity []*float64 `json:"relative_humidity_2m"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode openmeteo payload: %w", err)
	}

	h := payload.Hourly
	if len(h.Temperature) != len(h.Time) || len(h.RelativeHumidity) != len(h.Time) {
		return nil, fmt.Errorf("openmeteo hourly arrays differ in length: time=%d temperature=%d humidity=%d",
			len(h.Time), len(h.Temperature), len(h.RelativeHumidity))
	}

	entries := make([]telemetry.ForecastEntry, 0, len(h.Time))
	for i, s := range h.Time {
		// Requested in GMT, so the offset-less timestamps are UTC.
		ts, err := time.ParseInLocation(openMeteoTimeLayout, s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("hour %d: time %q: %w", i, s, err)
		}
		if h.Temperature[i] == nil || h.RelativeHumidity[i] == nil {
			return nil, fmt.Errorf("hour %d: missing temperature or humidity", i)
		}
		entries = append(entries, telemetry.ForecastEntry{
			Time:            ts,
			OutdoorTemp:     *h.Temperature[i],
			OutdoorHumidity: *h.RelativeHumidity[i],
		})
	}

	return entries, nil
}
