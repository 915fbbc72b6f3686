// Package dashboard renders the HTML status page and the history chart.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/i474232898/airquality-monitor/internal/classify"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

// Source supplies the readings to draw, oldest first.
type Source interface {
	Readings() []telemetry.SensorReading
}

// Rendered is one complete dashboard.
type Rendered struct {
	Page       []byte
	Chart      []byte
	RenderedAt time.Time
	Readings   int
}

// Renderer builds the dashboard on demand and keeps the latest result.
type Renderer struct {
	source    Source
	recommend classify.RecommendedHumidityFunc
	current   atomic.Pointer[Rendered]
	now       func() time.Time
	log       *slog.Logger
}

func NewRenderer(source Source) *Renderer {
	return &Renderer{
		source:    source,
		recommend: classify.RecommendedHumidity,
		now:       time.Now,
		log:       slog.Default().With("component", "dashboard"),
	}
}

// Render redraws the dashboard from the current readings and swaps it in.
func (r *Renderer) Render(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	readings := r.source.Readings()
	at := r.now()

	var (
		latest telemetry.SensorReading
		c      classify.Classification
		cerr   error
	)
	ok := len(readings) > 0
	if ok {
		latest = readings[len(readings)-1]
		c, cerr = classify.Classify(latest, r.recommend)
		var ierr *telemetry.InvalidReadingError
		if errors.As(cerr, &ierr) {
			r.log.Warn("latest reading not classifiable", "field", ierr.Field, "value", ierr.Value)
		}
	}

	page, err := renderPage(newPageData(latest, ok, c, cerr, at))
	if err != nil {
		return err
	}
	out := &Rendered{
		Page:       page,
		Chart:      Chart(readings),
		RenderedAt: at,
		Readings:   len(readings),
	}
	r.current.Store(out)
	r.log.Debug("dashboard rendered", "readings", out.Readings, "chart_bytes", len(out.Chart))
	return nil
}

// Current returns the last rendered dashboard; ok is false before the first
// render.
func (r *Renderer) Current() (*Rendered, bool) {
	out := r.current.Load()
	return out, out != nil
}
