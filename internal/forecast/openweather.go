package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var errMissingAPIKey = errors.New("api key is not configured")

// OpenWeatherFeed reads the OpenWeatherMap 5 day forecast, which comes in
// 3 hour steps. Lookups between steps resolve to the nearer one.
type OpenWeatherFeed struct {
	name    string
	apiKey  string
	baseURL string
	lat     float64
	lon     float64
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherFeed(client *http.Client, baseURL, apiKey string, lat, lon float64) *OpenWeatherFeed {
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org/data/2.5/forecast"
	}
	return &OpenWeatherFeed{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		lat:     lat,
		lon:     lon,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("openweather"),
	}
}

func (f *OpenWeatherFeed) Name() string {
	return f.name
}

func (f *OpenWeatherFeed) FetchHourly(ctx context.Context) ([]telemetry.ForecastEntry, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", f.apiKey)
		values.Set("units", "imperial")
		values.Set("lat", strconv.FormatFloat(f.lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(f.lon, 'f', -1, 64))

		u := fmt.Sprintf("%s?%s", f.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     *float64 `json:"temp"`
				Humidity *float64 `json:"humidity"`
			} `json:"main"`
		} `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode openweather payload: %w", err)
	}

	entries := make([]telemetry.ForecastEntry, 0, len(payload.List))
	for i, item := range payload.List {
		if item.Dt == 0 || item.Main.Temp == nil || item.Main.Humidity == nil {
			return nil, fmt.Errorf("item %d: incomplete forecast step", i)
		}
		entries = append(entries, telemetry.ForecastEntry{
			Time:            time.Unix(item.Dt, 0).UTC(),
			OutdoorTemp:     *item.Main.Temp,
			OutdoorHumidity: *item.Main.Humidity,
		})
	}
	return entries, nil
}
