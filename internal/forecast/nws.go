package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// DefaultNWSURL is the hourly forecast for the gridpoint the appliance was
// first deployed at. Use https://api.weather.gov/points/{lat},{lon} to find
// the gridpoint URL for another location.
const DefaultNWSURL = "https://api.weather.gov/gridpoints/LWX/118,101/forecast/hourly"

// NWSFeed reads the National Weather Service hourly forecast.
type NWSFeed struct {
	name      string
	url       string
	userAgent string
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
}

// NewNWSFeed creates a feed for an hourly forecast URL. api.weather.gov
// rejects requests without a User-Agent.
func NewNWSFeed(client *http.Client, url, userAgent string) *NWSFeed {
	return &NWSFeed{
		name:      "nws",
		url:       url,
		userAgent: userAgent,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("nws"),
	}
}

func (f *NWSFeed) Name() string {
	return f.name
}

type nwsPayload struct {
	Properties struct {
		Periods []struct {
			StartTime        string   `json:"startTime"`
			Temperature      *float64 `json:"temperature"`
			TemperatureUnit  string   `json:"temperatureUnit"`
			RelativeHumidity struct {
				Value *float64 `json:"value"`
			} `json:"relativeHumidity"`
		} `json:"periods"`
	} `json:"properties"`
}

// FetchHourly returns every period of the feed. A single malformed period
// fails the whole fetch.
func (f *NWSFeed) FetchHourly(ctx context.Context) ([]telemetry.ForecastEntry, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "application/geo+json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload nwsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode nws payload: %w", err)
	}

	entries := make([]telemetry.ForecastEntry, 0, len(payload.Properties.Periods))
	for i, p := range payload.Properties.Periods {
		// startTime carries its UTC offset; keep it instead of dropping it.
		ts, err := time.Parse(time.RFC3339, p.StartTime)
		if err != nil {
			return nil, fmt.Errorf("period %d: startTime %q: %w", i, p.StartTime, err)
		}
		if p.Temperature == nil {
			return nil, fmt.Errorf("period %d: missing temperature", i)
		}
		if p.RelativeHumidity.Value == nil {
			return nil, fmt.Errorf("period %d: missing relativeHumidity", i)
		}

		temp := *p.Temperature
		if strings.EqualFold(p.TemperatureUnit, "C") {
			temp = telemetry.CelsiusToFahrenheit(temp)
		}

		entries = append(entries, telemetry.ForecastEntry{
			Time:            ts.UTC(),
			OutdoorTemp:     temp,
			OutdoorHumidity: *p.RelativeHumidity.Value,
		})
	}

	return entries, nil
}
