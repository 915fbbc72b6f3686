package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/airquality-monitor/internal/classify"
	"github.com/i474232898/airquality-monitor/internal/dashboard"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var validate = validator.New()

// ReadingSource exposes the stored readings.
type ReadingSource interface {
	Readings() []telemetry.SensorReading
	Latest() (telemetry.SensorReading, bool)
}

// ForecastSource exposes the cached hourly forecast.
type ForecastSource interface {
	Entries() []telemetry.ForecastEntry
	RefreshedAt() time.Time
	Lookup(t time.Time) (telemetry.ForecastEntry, bool)
}

// DashboardSource exposes the last rendered dashboard.
type DashboardSource interface {
	Current() (*dashboard.Rendered, bool)
}

// StoreStats reports store occupancy.
type StoreStats interface {
	Len() int
	Cap() int
}

// Deps are the components the HTTP layer reads from. Metrics may be nil.
type Deps struct {
	Readings  ReadingSource
	Forecast  ForecastSource
	Dashboard DashboardSource
	Store     StoreStats
	Metrics   http.Handler
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		forecast := fiber.Map{
			"entries":     len(d.Forecast.Entries()),
			"refreshedAt": nil,
		}
		if at := d.Forecast.RefreshedAt(); !at.IsZero() {
			forecast["refreshedAt"] = at.UTC()
			forecast["ageSeconds"] = int(time.Since(at).Seconds())
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "airquality-monitor",
			"store": fiber.Map{
				"len": d.Store.Len(),
				"cap": d.Store.Cap(),
			},
			"forecast": forecast,
		})
	})

	app.Get("/", func(c *fiber.Ctx) error {
		out, ok := d.Dashboard.Current()
		if !ok {
			return fiber.NewError(fiber.StatusServiceUnavailable, "dashboard not rendered yet")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(out.Page)
	})

	app.Get("/chart.svg", func(c *fiber.Ctx) error {
		out, ok := d.Dashboard.Current()
		if !ok {
			return fiber.NewError(fiber.StatusServiceUnavailable, "chart not rendered yet")
		}
		c.Set(fiber.HeaderContentType, "image/svg+xml")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		return c.Send(out.Chart)
	})

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/readings", func(c *fiber.Ctx) error {
		var q readingsQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings := d.Readings.Readings()
		if q.Limit > 0 && q.Limit < len(readings) {
			readings = readings[len(readings)-q.Limit:]
		}
		return c.JSON(fiber.Map{
			"count":    len(readings),
			"readings": readings,
		})
	})

	v1.Get("/readings/latest", func(c *fiber.Ctx) error {
		r, ok := d.Readings.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no readings yet")
		}

		resp := fiber.Map{"reading": r}
		cls, err := classify.Classify(r, nil)
		var ierr *telemetry.InvalidReadingError
		switch {
		case errors.As(err, &ierr):
			resp["classification"] = nil
			resp["classificationError"] = ierr.Error()
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to classify reading")
		default:
			resp["classification"] = cls
		}
		return c.JSON(resp)
	})

	v1.Get("/readings/summary", func(c *fiber.Ctx) error {
		return c.JSON(telemetry.Summarize(d.Readings.Readings()))
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		resp := fiber.Map{
			"refreshedAt": nil,
			"entries":     d.Forecast.Entries(),
		}
		if at := d.Forecast.RefreshedAt(); !at.IsZero() {
			resp["refreshedAt"] = at.UTC()
		}
		return c.JSON(resp)
	})

	v1.Get("/forecast/lookup", func(c *fiber.Ctx) error {
		var q lookupQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, ok := d.Forecast.Lookup(q.At)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no data")
		}
		return c.JSON(fiber.Map{
			"at":    q.At,
			"entry": entry,
		})
	})
}

// readingsQuery holds query parameters for the readings endpoint.
type readingsQuery struct {
	Limit int `validate:"gte=0"`
}

func (q *readingsQuery) bind(c *fiber.Ctx) error {
	s := c.Query("limit")
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("limit must be an integer")
	}
	q.Limit = n
	return nil
}

// lookupQuery holds query parameters for the forecast lookup endpoint.
type lookupQuery struct {
	At time.Time `validate:"required"`
}

func (q *lookupQuery) bind(c *fiber.Ctx) error {
	s := c.Query("at")
	if s == "" {
		return errors.New("at query parameter is required")
	}
	at, err := parseTime(s)
	if err != nil {
		return err
	}
	q.At = at
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
