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

// WeatherAPIFeed reads the hourly forecast of WeatherAPI.com.
type WeatherAPIFeed struct {
	name    string
	apiKey  string
	baseURL string
	lat     float64
	lon     float64
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIFeed(client *http.Client, baseURL, apiKey string, lat, lon float64) *WeatherAPIFeed {
	if baseURL == "" {
		baseURL = "https://api.weatherapi.com/v1/forecast.json"
	}
	return &WeatherAPIFeed{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		lat:     lat,
		lon:     lon,
		days:    3, // free plan limit
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (f *WeatherAPIFeed) Name() string {
	return f.name
}

func (f *WeatherAPIFeed) FetchHourly(ctx context.Context) ([]telemetry.ForecastEntry, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", f.apiKey)
		// WeatherAPI uses "q" for location; it accepts "lat,lon".
		values.Set("q", fmt.Sprintf("%f,%f", f.lat, f.lon))
		values.Set("days", fmt.Sprint(f.days))
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		u := fmt.Sprintf("%s?%s", f.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch int64    `json:"time_epoch"`
					TempF     *float64 `json:"temp_f"`
					Humidity  *float64 `json:"humidity"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode weatherapi payload: %w", err)
	}

	var entries []telemetry.ForecastEntry
	for d, day := range payload.Forecast.ForecastDay {
		for h, hour := range day.Hour {
			if hour.TimeEpoch == 0 || hour.TempF == nil || hour.Humidity == nil {
				return nil, fmt.Errorf("day %d hour %d: incomplete forecast hour", d, h)
			}
			entries = append(entries, telemetry.ForecastEntry{
				Time:            time.Unix(hour.TimeEpoch, 0).UTC(),
				OutdoorTemp:     *hour.TempF,
				OutdoorHumidity: *hour.Humidity,
			})
		}
	}
	return entries, nil
}
