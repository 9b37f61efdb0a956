package briefing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/commute"
	"github.com/nugget/daybreak/internal/llm"
	"github.com/nugget/daybreak/internal/news"
	"github.com/nugget/daybreak/internal/usage"
	"github.com/nugget/daybreak/internal/weather"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errProvider = errors.New("provider exploded")

type weatherFunc func(ctx context.Context) (*weather.Report, error)

func (f weatherFunc) Fetch(ctx context.Context) (*weather.Report, error) { return f(ctx) }

type calendarFunc func(ctx context.Context, now time.Time) (*calendar.Agenda, error)

func (f calendarFunc) Fetch(ctx context.Context, now time.Time) (*calendar.Agenda, error) {
	return f(ctx, now)
}

type newsFunc func(ctx context.Context) (*news.Digest, error)

func (f newsFunc) Fetch(ctx context.Context) (*news.Digest, error) { return f(ctx) }

type commuteSource struct {
	calls  atomic.Int32
	report *commute.Report
}

func (c *commuteSource) Fetch(context.Context) (*commute.Report, error) {
	c.calls.Add(1)
	return c.report, nil
}

func sampleWeather(temp float64, code, precip int) *weather.Report {
	return &weather.Report{
		Current: weather.Current{Temperature: temp, FeelsLike: temp, WindSpeed: 5, WeatherCode: code, IsDay: true},
		Daily: []weather.Day{
			{Date: "2026-03-02", TempHigh: temp + 6, TempLow: temp - 10, WeatherCode: code, PrecipitationProbability: precip},
		},
	}
}

func agendaWith(titles ...string) *calendar.Agenda {
	a := &calendar.Agenda{TodayEvents: []calendar.Event{}, TomorrowEvents: []calendar.Event{}, UpcomingEvents: []calendar.Event{}}
	for i, t := range titles {
		start := time.Date(2026, 3, 2, 9+i, 0, 0, 0, time.UTC)
		a.TodayEvents = append(a.TodayEvents, calendar.Event{ID: t, Title: t, Start: start, End: start.Add(time.Hour)})
	}
	return a
}

func digestWith(titles ...string) *news.Digest {
	d := &news.Digest{}
	for _, t := range titles {
		d.Articles = append(d.Articles, news.Article{ID: t, Title: t, Source: "Wire"})
	}
	return d
}

type staticSettings struct{ s behavior.Settings }

func (s staticSettings) Get(context.Context, bool) behavior.Settings { return s.s }

func settingsWith(mutate func(*behavior.Settings)) behavior.Settings {
	s := behavior.Defaults("anthropic/claude-3-haiku")
	if mutate != nil {
		mutate(&s)
	}
	return s
}

type fakeLLM struct {
	mu    sync.Mutex
	reqs  []*llm.ChatRequest
	resp  *llm.ChatResponse
	err   error
	panic bool
}

func (f *fakeLLM) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.panic {
		panic("backend bug")
	}
	return f.resp, f.err
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type memUsage struct {
	mu   sync.Mutex
	recs []usage.Record
}

func (m *memUsage) Record(_ context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}
