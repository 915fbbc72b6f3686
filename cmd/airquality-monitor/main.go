package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/i474232898/airquality-monitor/internal/api/http"
	"github.com/i474232898/airquality-monitor/internal/config"
	"github.com/i474232898/airquality-monitor/internal/dashboard"
	"github.com/i474232898/airquality-monitor/internal/forecast"
	"github.com/i474232898/airquality-monitor/internal/logging"
	"github.com/i474232898/airquality-monitor/internal/metrics"
	"github.com/i474232898/airquality-monitor/internal/publish"
	"github.com/i474232898/airquality-monitor/internal/scheduler"
	"github.com/i474232898/airquality-monitor/internal/sensors"
	"github.com/i474232898/airquality-monitor/internal/store"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

const appName = "airquality-monitor"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		var corrupt *telemetry.CorruptStoreError
		if errors.As(err, &corrupt) {
			slog.Error("durable store is corrupt; move or repair the file and restart", "path", corrupt.Path, "error", err)
		} else {
			slog.Error("airquality-monitor stopped", "error", err)
		}
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable time series store.
	persister, err := store.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.StoreCapacity, persister)
	if err != nil {
		_ = persister.Close()
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	// Forecast feed with resilience (backoff + circuit breaker).
	httpClient := &http.Client{Timeout: cfg.ForecastTimeout}
	var feed forecast.Feed
	switch cfg.ForecastProvider {
	case config.ForecastOpenMeteo:
		feed = forecast.NewOpenMeteoFeed(httpClient, cfg.ForecastURL, cfg.ForecastLatitude, cfg.ForecastLongitude)
	case config.ForecastOpenWeather:
		feed = forecast.NewOpenWeatherFeed(httpClient, cfg.ForecastURL, cfg.ForecastAPIKey, cfg.ForecastLatitude, cfg.ForecastLongitude)
	case config.ForecastWeatherAPI:
		feed = forecast.NewWeatherAPIFeed(httpClient, cfg.ForecastURL, cfg.ForecastAPIKey, cfg.ForecastLatitude, cfg.ForecastLongitude)
	default:
		feed = forecast.NewNWSFeed(httpClient, cfg.ForecastURL, cfg.ForecastUserAgent)
	}
	cache := forecast.NewCache(feed, cfg.ForecastTimeout)

	th, aq, closeSensors, err := openSensors(cfg)
	if err != nil {
		return err
	}
	defer closeSensors()

	// Core service orchestrating sensors, forecast and store.
	service := telemetry.NewService(st, th, aq, cache)

	if cfg.MQTTBroker != "" {
		sink := publish.NewMQTTSink(publish.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		})
		go func() {
			if err := sink.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mqtt connect failed; readings will not be published", "error", err)
			}
		}()
		service.SetSink(sink)
		defer sink.Close()
	}

	renderer := dashboard.NewRenderer(service)
	if err := renderer.Render(ctx); err != nil {
		logger.Warn("initial dashboard render failed", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.TrackStore(st.Len)
	m.TrackForecast(func() int { return len(cache.Entries()) })

	// Scheduler that periodically samples, refreshes the forecast and renders.
	sched := scheduler.New(
		scheduler.Task{
			Name:     "sample",
			Interval: cfg.SampleInterval,
			Timeout:  cfg.SampleInterval,
			Run: func(ctx context.Context) error {
				_, err := service.Sample(ctx)
				m.ObserveSample(err)
				return err
			},
		},
		scheduler.Task{
			Name:       "forecast",
			Interval:   cfg.ForecastInterval,
			RunAtStart: true,
			Run: func(ctx context.Context) error {
				err := cache.Refresh(ctx)
				m.ObserveRefresh(err)
				return err
			},
		},
		scheduler.Task{
			Name:     "render",
			Interval: cfg.RenderInterval,
			Timeout:  cfg.RenderInterval,
			Run:      renderer.Render,
		},
	)
	sched.SetObserver(m)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(appName)
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Readings:  service,
		Forecast:  cache,
		Dashboard: renderer,
		Store:     st,
		Metrics:   m.Handler(),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	// Wait for termination signal
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	return nil
}

// openSensors returns the configured sensor pair and a function releasing
// them.
func openSensors(cfg *config.AppConfig) (telemetry.TempHumiditySensor, telemetry.AirQualitySensor, func(), error) {
	if cfg.SensorDriver == config.SensorDriverSim {
		slog.Warn("using simulated sensors")
		sim := sensors.NewSimulated(uint64(time.Now().UnixNano()))
		return sim, sim, func() {}, nil
	}

	board, err := sensors.OpenBoard(cfg.I2CBus)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sensors (set SENSOR_DRIVER=sim to run without hardware): %w", err)
	}
	bme, err := sensors.NewBME280(board.Bus(), cfg.BME280Address, cfg.SensorReadRetries, cfg.SensorRetryDelay)
	if err != nil {
		_ = board.Close()
		return nil, nil, nil, err
	}
	ens, err := sensors.NewENS160(board.Bus(), cfg.ENS160Address)
	if err != nil {
		_ = bme.Close()
		_ = board.Close()
		return nil, nil, nil, err
	}

	closeAll := func() {
		if err := bme.Close(); err != nil {
			slog.Warn("halt bme280", "error", err)
		}
		if err := board.Close(); err != nil {
			slog.Warn("close i2c bus", "error", err)
		}
	}
	return bme, ens, closeAll, nil
}
