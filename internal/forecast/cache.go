package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var errEmptyFeed = errors.New("feed returned no periods")

// Feed fetches the complete hourly forecast.
type Feed interface {
	Name() string
	FetchHourly(ctx context.Context) ([]telemetry.ForecastEntry, error)
}

type snapshot struct {
	entries     []telemetry.ForecastEntry // sorted by Time, stable
	refreshedAt time.Time
}

// Cache holds the entries of the last successful refresh. Refresh swaps the
// whole set atomically; readers never see a partial update.
type Cache struct {
	feed    Feed
	timeout time.Duration
	state   atomic.Pointer[snapshot]
	now     func() time.Time
	log     *slog.Logger
}

// NewCache creates an empty cache over feed. timeout bounds one Refresh
// including retries; zero means no bound beyond the caller's context.
func NewCache(feed Feed, timeout time.Duration) *Cache {
	return &Cache{
		feed:    feed,
		timeout: timeout,
		now:     time.Now,
		log:     slog.Default().With("component", "forecast", "feed", feed.Name()),
	}
}

// Refresh fetches the feed and replaces the cached entries. On any failure,
// including timeout and an empty feed, it returns
// *telemetry.ForecastUnavailableError and keeps the previous entries.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	entries, err := c.feed.FetchHourly(ctx)
	if err == nil && len(entries) == 0 {
		err = errEmptyFeed
	}
	if err != nil {
		c.log.Warn("forecast refresh failed; keeping previous forecast",
			"error", err,
			"cached_entries", len(c.Entries()),
		)
		return &telemetry.ForecastUnavailableError{Err: err}
	}

	sorted := make([]telemetry.ForecastEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	c.state.Store(&snapshot{entries: sorted, refreshedAt: c.now()})
	c.log.Info("forecast refreshed",
		"entries", len(sorted),
		"first", sorted[0].Time,
		"last", sorted[len(sorted)-1].Time,
	)
	return nil
}

// Lookup returns the entry whose time is closest to t. On equal distance the
// earlier entry wins. ok is false when no refresh has succeeded yet.
func (c *Cache) Lookup(t time.Time) (telemetry.ForecastEntry, bool) {
	st := c.state.Load()
	if st == nil || len(st.entries) == 0 {
		return telemetry.ForecastEntry{}, false
	}
	return nearest(st.entries, t), true
}

// nearest expects es sorted by Time and non-empty.
func nearest(es []telemetry.ForecastEntry, t time.Time) telemetry.ForecastEntry {
	// i is the first entry at or after t.
	i := sort.Search(len(es), func(i int) bool { return !es[i].Time.Before(t) })
	switch {
	case i == 0:
		return es[0]
	case i == len(es):
		return es[firstWithTime(es, len(es)-1)]
	}

	before, after := es[i-1], es[i]
	if t.Sub(before.Time) <= after.Time.Sub(t) {
		return es[firstWithTime(es, i-1)]
	}
	return after
}

// firstWithTime walks back from i to the first entry sharing es[i].Time.
func firstWithTime(es []telemetry.ForecastEntry, i int) int {
	for i > 0 && es[i-1].Time.Equal(es[i].Time) {
		i--
	}
	return i
}

// Entries returns a copy of the cached entries, sorted by time.
func (c *Cache) Entries() []telemetry.ForecastEntry {
	st := c.state.Load()
	if st == nil {
		return nil
	}
	out := make([]telemetry.ForecastEntry, len(st.entries))
	copy(out, st.entries)
	return out
}

// RefreshedAt returns the time of the last successful refresh, or the zero
// time if none succeeded.
func (c *Cache) RefreshedAt() time.Time {
	st := c.state.Load()
	if st == nil {
		return time.Time{}
	}
	return st.refreshedAt
}
