package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/commute"
	"github.com/nugget/daybreak/internal/events"
	"github.com/nugget/daybreak/internal/metrics"
	"github.com/nugget/daybreak/internal/news"
	"github.com/nugget/daybreak/internal/weather"
)

// Source names used in logs, metrics and events.
const (
	SourceWeather  = "weather"
	SourceCalendar = "calendar"
	SourceNews     = "news"
	SourceCommute  = "commute"
)

// DefaultFetchTimeout bounds each source fetch.
const DefaultFetchTimeout = 15 * time.Second

// WeatherSource supplies weather reports. *weather.Client satisfies it.
type WeatherSource interface {
	Fetch(ctx context.Context) (*weather.Report, error)
}

// CalendarSource supplies agendas. *calendar.Client satisfies it.
type CalendarSource interface {
	Fetch(ctx context.Context, now time.Time) (*calendar.Agenda, error)
}

// NewsSource supplies headlines. *news.Client satisfies it.
type NewsSource interface {
	Fetch(ctx context.Context) (*news.Digest, error)
}

// CommuteSource supplies drive estimates. *commute.Client satisfies it.
type CommuteSource interface {
	Fetch(ctx context.Context) (*commute.Report, error)
}

// Sources are the collaborators the aggregator queries. A nil source
// is disabled and always yields an absent field.
type Sources struct {
	Weather  WeatherSource
	Calendar CalendarSource
	News     NewsSource
	Commute  CommuteSource
}

// Aggregator fans out to every enabled source and joins the results.
type Aggregator struct {
	sources Sources
	window  commute.Window
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *events.Bus
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithCommuteWindow sets when commute data is fetched unforced.
func WithCommuteWindow(w commute.Window) AggregatorOption {
	return func(a *Aggregator) { a.window = w }
}

// WithMetrics attaches fetch metrics.
func WithMetrics(m *metrics.Metrics) AggregatorOption {
	return func(a *Aggregator) { a.metrics = m }
}

// WithEvents attaches an event bus for fetch failures.
func WithEvents(b *events.Bus) AggregatorOption {
	return func(a *Aggregator) { a.events = b }
}

// NewAggregator creates an aggregator over sources.
func NewAggregator(sources Sources, logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		sources: sources,
		window:  commute.Window{StartHour: 6, EndHour: 10},
		timeout: DefaultFetchTimeout,
		logger:  logger.With("component", "aggregator"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// CommuteDue reports whether a commute fetch would be issued at now.
func (a *Aggregator) CommuteDue(now time.Time, force bool) bool {
	return a.sources.Commute != nil && (force || a.window.Contains(now))
}

// Aggregate fetches every enabled source concurrently and returns once
// all of them have settled. A failing or slow source only empties its
// own field. The fetches are detached from ctx cancellation so that a
// started summary always completes; each is bounded by the fetch
// timeout instead.
func (a *Aggregator) Aggregate(ctx context.Context, now time.Time, forceCommute bool) *ContextBundle {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	bundle := &ContextBundle{}

	// Each task writes only its own field and always returns nil, so
	// the group never cancels siblings.
	var g errgroup.Group

	if s := a.sources.Weather; s != nil {
		g.Go(func() error {
			bundle.Weather = fetch(ctx, a, SourceWeather, s.Fetch)
			return nil
		})
	}
	if s := a.sources.Calendar; s != nil {
		g.Go(func() error {
			bundle.Calendar = fetch(ctx, a, SourceCalendar, func(ctx context.Context) (*calendar.Agenda, error) {
				return s.Fetch(ctx, now)
			})
			return nil
		})
	}
	if s := a.sources.News; s != nil {
		g.Go(func() error {
			bundle.News = fetch(ctx, a, SourceNews, s.Fetch)
			return nil
		})
	}
	if a.CommuteDue(now, forceCommute) {
		s := a.sources.Commute
		g.Go(func() error {
			bundle.Commute = fetch(ctx, a, SourceCommute, s.Fetch)
			return nil
		})
	}

	_ = g.Wait()

	elapsed := time.Since(start)
	a.logger.Debug("context aggregated",
		"weather", bundle.Weather != nil,
		"calendar", bundle.Calendar != nil,
		"news", bundle.News != nil,
		"commute", bundle.Commute != nil,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	a.events.Emit(events.SourceAggregator, events.KindAggregated, map[string]any{
		"weather":    bundle.Weather != nil,
		"calendar":   bundle.Calendar != nil,
		"news":       bundle.News != nil,
		"commute":    bundle.Commute != nil,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return bundle
}

// fetch runs one source under the fetch timeout and converts every
// failure, including a panic, into a nil result.
func fetch[T any](ctx context.Context, a *Aggregator, source string, fn func(context.Context) (*T, error)) (result *T) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			result = nil
		}
		elapsed := time.Since(start)
		a.metrics.ObserveFetch(source, elapsed, err)
		if err != nil {
			a.logger.Warn("context source unavailable", "source", source, "error", err, "elapsed", elapsed.Round(time.Millisecond))
			a.events.Emit(events.SourceAggregator, events.KindFetchFailed, map[string]any{
				"provider":    source,
				"error":       err.Error(),
				"duration_ms": elapsed.Milliseconds(),
			})
		}
	}()

	result, err = fn(ctx)
	if err == nil && result == nil {
		err = fmt.Errorf("%s returned no data", source)
	}
	if err != nil {
		return nil
	}
	return result
}
