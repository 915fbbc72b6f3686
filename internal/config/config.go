package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/airquality-monitor/internal/forecast"
)

const (
	ForecastNWS         = "nws"
	ForecastOpenMeteo   = "openmeteo"
	ForecastOpenWeather = "openweather"
	ForecastWeatherAPI  = "weatherapi"

	SensorDriverPeriph = "periph"
	SensorDriverSim    = "sim"
)

type AppConfig struct {
	AppEnv   string     `validate:"oneof=dev prod"`
	LogLevel slog.Level `validate:"-"`
	Port     string     `validate:"required,numeric"`

	// Durable store.
	StorePath     string `validate:"required"`
	StoreCapacity int    `validate:"gt=0"`

	// Task cadences. SampleInterval may not be shorter than SensorMinSettle:
	// the gas sensor needs that long between reads to produce stable values.
	SampleInterval   time.Duration `validate:"gt=0,gtefield=SensorMinSettle"`
	SensorMinSettle  time.Duration `validate:"gte=0"`
	RenderInterval   time.Duration `validate:"gt=0"`
	ForecastInterval time.Duration `validate:"gt=0"`

	ForecastProvider  string        `validate:"oneof=nws openmeteo openweather weatherapi"`
	ForecastURL       string        `validate:"omitempty,url"`
	ForecastAPIKey    string        `validate:"required_if=ForecastProvider openweather,required_if=ForecastProvider weatherapi"`
	ForecastLatitude  float64       `validate:"latitude"`
	ForecastLongitude float64       `validate:"longitude"`
	ForecastTimeout   time.Duration `validate:"gt=0"`
	ForecastUserAgent string        `validate:"required"`

	SensorDriver      string        `validate:"oneof=periph sim"`
	I2CBus            string
	BME280Address     uint16        `validate:"gt=0,lt=128"`
	ENS160Address     uint16        `validate:"gt=0,lt=128"`
	SensorReadRetries int           `validate:"gt=0"`
	SensorRetryDelay  time.Duration `validate:"gte=0"`

	// MQTTBroker empty disables publishing.
	MQTTBroker   string
	MQTTPort     int    `validate:"gt=0,lte=65535"`
	MQTTClientID string `validate:"required"`
	MQTTTopic    string `validate:"required"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	cfg.Port = getenvDefault("PORT", "9999")

	cfg.StorePath = getenvDefault("STORE_PATH", "aq_data.db")
	if cfg.StoreCapacity, err = getenvInt("STORE_CAPACITY", 1000); err != nil {
		return nil, err
	}

	if cfg.SampleInterval, err = getenvDuration("SAMPLE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SensorMinSettle, err = getenvDuration("SENSOR_MIN_SETTLE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RenderInterval, err = getenvDuration("RENDER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ForecastInterval, err = getenvDuration("FORECAST_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.ForecastProvider = strings.ToLower(getenvDefault("FORECAST_PROVIDER", ForecastNWS))
	cfg.ForecastURL = os.Getenv("FORECAST_URL")
	if cfg.ForecastURL == "" && cfg.ForecastProvider == ForecastNWS {
		cfg.ForecastURL = forecast.DefaultNWSURL
	}
	cfg.ForecastAPIKey = os.Getenv("FORECAST_API_KEY")
	if cfg.ForecastLatitude, err = getenvFloat("FORECAST_LATITUDE", 39.4858); err != nil {
		return nil, err
	}
	if cfg.ForecastLongitude, err = getenvFloat("FORECAST_LONGITUDE", -76.3076); err != nil {
		return nil, err
	}
	if cfg.ForecastTimeout, err = getenvDuration("FORECAST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.ForecastUserAgent = getenvDefault("FORECAST_USER_AGENT", "airquality-monitor")

	cfg.SensorDriver = strings.ToLower(getenvDefault("SENSOR_DRIVER", SensorDriverPeriph))
	cfg.I2CBus = os.Getenv("I2C_BUS")
	if cfg.BME280Address, err = getenvAddress("BME280_ADDRESS", 0x77); err != nil {
		return nil, err
	}
	if cfg.ENS160Address, err = getenvAddress("ENS160_ADDRESS", 0x53); err != nil {
		return nil, err
	}
	if cfg.SensorReadRetries, err = getenvInt("SENSOR_READ_RETRIES", 15); err != nil {
		return nil, err
	}
	if cfg.SensorRetryDelay, err = getenvDuration("SENSOR_RETRY_DELAY", 2*time.Second); err != nil {
		return nil, err
	}

	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if cfg.MQTTPort, err = getenvInt("MQTT_PORT", 1883); err != nil {
		return nil, err
	}
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "airquality-monitor")
	cfg.MQTTTopic = getenvDefault("MQTT_TOPIC", "home/airquality/readings")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// getenvAddress parses an I2C address; 0x-prefixed hex is accepted.
func getenvAddress(key string, def uint16) (uint16, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return uint16(n), nil
}
