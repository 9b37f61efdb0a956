package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/briefing"
	"github.com/nugget/daybreak/internal/events"
	"github.com/nugget/daybreak/internal/metrics"
	"github.com/nugget/daybreak/internal/opstate"
	"github.com/nugget/daybreak/internal/usage"
	"github.com/nugget/daybreak/internal/weather"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSummarizer struct {
	mu   sync.Mutex
	opts []briefing.Options
	now  []time.Time
}

func (f *fakeSummarizer) Generate(_ context.Context, now time.Time, opts briefing.Options) briefing.SummaryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	f.now = append(f.now, now)
	return briefing.SummaryResult{Greeting: "Good morning", Summary: "Good morning! It's 72° and partly cloudy.", LastUpdated: now}
}

var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, gen Summarizer) *Server {
	t.Helper()
	s := NewServer("", 0, gen, discardLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func serve(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestSummary_ReturnsContract(t *testing.T) {
	gen := &fakeSummarizer{}
	s := newTestServer(t, gen)
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/summary")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["greeting"] != "Good morning" || body["summary"] == "" {
		t.Errorf("body = %v", body)
	}
	updated, err := time.Parse(time.RFC3339, body["lastUpdated"])
	if err != nil {
		t.Fatalf("lastUpdated %q is not ISO-8601: %v", body["lastUpdated"], err)
	}
	if !updated.Equal(fixedNow) {
		t.Errorf("lastUpdated = %v, want %v", updated, fixedNow)
	}
}

func TestSummary_CommuteQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", false},
		{"?commute=1", true},
		{"?commute=true", true},
		{"?commute=0", false},
		{"?commute=maybe", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			gen := &fakeSummarizer{}
			s := newTestServer(t, gen)
			ts := serve(t, s)

			resp, err := http.Get(ts.URL + "/summary" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if len(gen.opts) != 1 || gen.opts[0].ForceCommute != tt.want {
				t.Errorf("opts = %+v, want ForceCommute=%v", gen.opts, tt.want)
			}
		})
	}
}

func TestSummary_AllUpstreamsFailing(t *testing.T) {
	failing := weatherFail{}
	gen := briefing.NewGenerator(briefing.GeneratorConfig{
		Settings:   staticSettings{behavior.Defaults("anthropic/claude-3-haiku")},
		Aggregator: briefing.NewAggregator(briefing.Sources{Weather: failing}, discardLogger()),
		Location:   time.UTC,
		Logger:     discardLogger(),
	})
	s := newTestServer(t, gen)
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/summary")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body briefing.SummaryResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Summary != "Good morning!" {
		t.Errorf("summary = %q, want greeting only", body.Summary)
	}
}

type weatherFail struct{}

func (weatherFail) Fetch(context.Context) (*weather.Report, error) {
	return nil, errors.New("upstream down")
}

type staticSettings struct{ s behavior.Settings }

func (s staticSettings) Get(context.Context, bool) behavior.Settings { return s.s }

func TestHealthAndVersion(t *testing.T) {
	s := newTestServer(t, &fakeSummarizer{})
	ts := serve(t, s)

	for _, path := range []string{"/health", "/v1/version", "/"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

// settingsFixture wires the real store, cache and updater.
func settingsFixture(t *testing.T) (*Server, *httptest.Server, <-chan events.Event) {
	t.Helper()
	store, err := opstate.NewStoreDB(openMemDB(t))
	if err != nil {
		t.Fatalf("NewStoreDB: %v", err)
	}
	cache := behavior.NewCache(store, "anthropic/claude-3-haiku", time.Hour, discardLogger())
	bus := events.New()
	ch := bus.Subscribe(8)
	t.Cleanup(func() { bus.Unsubscribe(ch) })

	s := newTestServer(t, &fakeSummarizer{})
	s.SetSettings(cache, behavior.NewUpdater(store, cache))
	s.SetEventBus(bus)
	return s, serve(t, s), ch
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSettings_GetDefaults(t *testing.T) {
	_, ts, _ := settingsFixture(t)

	resp, err := http.Get(ts.URL + "/v1/settings/behavior")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got behavior.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Model != "anthropic/claude-3-haiku" || got.Tone != behavior.DefaultTone {
		t.Errorf("settings = %+v", got)
	}
}

func TestSettings_PutThenGetSeesUpdate(t *testing.T) {
	_, ts, ch := settingsFixture(t)

	// Prime the cache so the update has something to invalidate.
	if resp, err := http.Get(ts.URL + "/v1/settings/behavior"); err == nil {
		resp.Body.Close()
	}

	resp := put(t, ts.URL+"/v1/settings/behavior", `{"tone":"formal","user_names":["Alex","Sam"]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}

	var got behavior.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Tone != "formal" || len(got.UserNames) != 2 || got.UserNames[1] != "Sam" {
		t.Errorf("settings after update = %+v", got)
	}

	select {
	case e := <-ch:
		if e.Kind != events.KindInvalidated || e.Source != events.SourceSettings {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("no invalidation event")
	}
}

func TestSettings_PutRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `{"volume":11}`},
		{"malformed json", `{"tone":`},
		{"not an object", `["tone"]`},
		{"unsupported value", `{"tone":{"nested":true}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts, ch := settingsFixture(t)

			resp := put(t, ts.URL+"/v1/settings/behavior", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if len(ch) != 0 {
				t.Error("rejected update emitted an event")
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Apply(context.Context, map[string]any) error {
	return errors.New("disk full")
}

func TestSettings_PutStoreFailure(t *testing.T) {
	s := newTestServer(t, &fakeSummarizer{})
	s.SetSettings(staticSettings{behavior.Defaults("m")}, failingWriter{})
	ts := serve(t, s)

	resp := put(t, ts.URL+"/v1/settings/behavior", `{"tone":"formal"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestSettings_NotConfigured(t *testing.T) {
	s := newTestServer(t, &fakeSummarizer{})
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/v1/settings/behavior")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestUsage_Window(t *testing.T) {
	store, err := usage.NewStoreDB(openMemDB(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	recs := []usage.Record{
		{Timestamp: fixedNow.Add(-time.Hour), Model: "anthropic/claude-3-haiku", Family: "anthropic", Strategy: "ai", Outcome: "ok", InputTokens: 100, OutputTokens: 20},
		{Timestamp: fixedNow.Add(-2 * time.Hour), Strategy: "template", Outcome: "status"},
		{Timestamp: fixedNow.Add(-48 * time.Hour), Strategy: "template", Outcome: "disabled"},
	}
	for _, r := range recs {
		if err := store.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	s := newTestServer(t, &fakeSummarizer{})
	s.SetUsageStore(store)
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/v1/usage")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		WindowHours int                      `json:"window_hours"`
		Total       usage.Summary            `json:"total"`
		ByStrategy  map[string]usage.Summary `json:"by_strategy"`
		ByOutcome   map[string]usage.Summary `json:"by_outcome"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.WindowHours != 24 {
		t.Errorf("window_hours = %d", body.WindowHours)
	}
	if body.Total.TotalRecords != 2 || body.Total.TotalInputTokens != 100 {
		t.Errorf("total = %+v", body.Total)
	}
	if body.ByStrategy["ai"].TotalRecords != 1 || body.ByStrategy["template"].TotalRecords != 1 {
		t.Errorf("by_strategy = %+v", body.ByStrategy)
	}
	if _, ok := body.ByOutcome["disabled"]; ok {
		t.Error("record outside the window was counted")
	}
}

func TestUsage_HoursClamped(t *testing.T) {
	store, err := usage.NewStoreDB(openMemDB(t))
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, &fakeSummarizer{})
	s.SetUsageStore(store)
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/v1/usage?hours=9223372036854775807")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		WindowHours int       `json:"window_hours"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.WindowHours != maxUsageHours {
		t.Errorf("window_hours = %d, want %d", body.WindowHours, maxUsageHours)
	}
	if !body.Start.Before(body.End) {
		t.Errorf("start %v not before end %v", body.Start, body.End)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	m.ObserveGeneration("template")

	s := newTestServer(t, &fakeSummarizer{})
	s.SetMetricsGatherer(reg)
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(b, []byte(`daybreak_summary_generations_total{strategy="template"} 1`)) {
		t.Errorf("metrics output missing generation counter:\n%s", b)
	}
}

func TestMetricsEndpoint_AbsentWithoutGatherer(t *testing.T) {
	s := newTestServer(t, &fakeSummarizer{})
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSummaryStream_ForwardsGenerated(t *testing.T) {
	bus := events.New()
	s := newTestServer(t, &fakeSummarizer{})
	s.SetEventBus(bus)
	ts := serve(t, s)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/summary/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Emit(events.SourceAggregator, events.KindAggregated, map[string]any{"weather": true})
	bus.Emit(events.SourceSummary, events.KindGenerated, map[string]any{
		"greeting":     "Good evening",
		"summary":      "Good evening! Your calendar is clear today.",
		"last_updated": "2026-03-02T18:00:00Z",
		"strategy":     "template",
	})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var msg map[string]string
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := map[string]string{
		"greeting":    "Good evening",
		"summary":     "Good evening! Your calendar is clear today.",
		"lastUpdated": "2026-03-02T18:00:00Z",
	}
	for k, v := range want {
		if msg[k] != v {
			t.Errorf("%s = %q, want %q", k, msg[k], v)
		}
	}
}

func TestSummaryStream_NotConfigured(t *testing.T) {
	s := newTestServer(t, &fakeSummarizer{})
	ts := serve(t, s)

	resp, err := http.Get(ts.URL + "/v1/summary/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
