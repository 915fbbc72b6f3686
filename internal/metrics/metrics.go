package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/airquality-monitor/internal/store"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// Metrics holds the appliance collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	readingsAppended prometheus.Counter
	persistErrors    prometheus.Counter
	sensorErrors     *prometheus.CounterVec
	forecastRefresh  *prometheus.CounterVec
	taskRuns         *prometheus.CounterVec
	taskSkipped      *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg:      reg,
		gatherer: reg,
		readingsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aq_readings_appended_total",
			Help: "Readings appended to the time series store.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aq_store_persist_errors_total",
			Help: "Appends whose durable snapshot failed.",
		}),
		sensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_sensor_read_errors_total",
			Help: "Failed sensor reads by sensor.",
		}, []string{"sensor"}),
		forecastRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_forecast_refresh_total",
			Help: "Forecast refresh attempts by result.",
		}, []string{"result"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_task_runs_total",
			Help: "Scheduled task runs by task and result.",
		}, []string{"task", "result"}),
		taskSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_task_skipped_total",
			Help: "Triggers skipped because the previous run was still in progress.",
		}, []string{"task"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aq_task_duration_seconds",
			Help:    "Histogram of scheduled task run durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}

	reg.MustRegister(
		m.readingsAppended,
		m.persistErrors,
		m.sensorErrors,
		m.forecastRefresh,
		m.taskRuns,
		m.taskSkipped,
		m.taskDuration,
	)

	for _, s := range []string{telemetry.SensorTempHumidity, telemetry.SensorAirQuality} {
		m.sensorErrors.WithLabelValues(s)
	}

	return m
}

// TrackStore exports the current store length as aq_store_size.
func (m *Metrics) TrackStore(size func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "aq_store_size",
		Help: "Readings currently held by the store.",
	}, func() float64 { return float64(size()) }))
}

// TrackForecast exports the cached forecast size as aq_forecast_entries.
func (m *Metrics) TrackForecast(entries func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "aq_forecast_entries",
		Help: "Entries in the cached hourly forecast.",
	}, func() float64 { return float64(entries()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSample records the outcome of one sample run.
func (m *Metrics) ObserveSample(err error) {
	if m == nil {
		return
	}
	if !errors.Is(err, store.ErrOutOfOrder) {
		m.readingsAppended.Inc()
	}
	for _, e := range flatten(err) {
		var serr *telemetry.SensorUnavailableError
		var perr *telemetry.PersistenceError
		switch {
		case errors.As(e, &serr):
			m.sensorErrors.WithLabelValues(serr.Sensor).Inc()
		case errors.As(e, &perr):
			m.persistErrors.Inc()
		}
	}
}

// ObserveRefresh records the outcome of one forecast refresh.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "unavailable"
	}
	m.forecastRefresh.WithLabelValues(result).Inc()
}

// ObserveRun implements scheduler.Observer.
func (m *Metrics) ObserveRun(task string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.taskRuns.WithLabelValues(task, result).Inc()
	m.taskDuration.WithLabelValues(task).Observe(took.Seconds())
}

// ObserveSkip implements scheduler.Observer.
func (m *Metrics) ObserveSkip(task string) {
	if m == nil {
		return
	}
	m.taskSkipped.WithLabelValues(task).Inc()
}

// flatten expands errors.Join trees one level at a time.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
