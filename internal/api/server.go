// Package api implements the Daybreak HTTP API consumed by ambient
// displays and the admin tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/briefing"
	"github.com/nugget/daybreak/internal/buildinfo"
	"github.com/nugget/daybreak/internal/events"
	"github.com/nugget/daybreak/internal/usage"
)

// maxSettingsBody bounds the PUT /v1/settings/behavior payload.
const maxSettingsBody = 64 << 10

const wsWriteTimeout = 10 * time.Second

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Summarizer produces briefings. *briefing.Generator satisfies it.
type Summarizer interface {
	Generate(ctx context.Context, now time.Time, opts briefing.Options) briefing.SummaryResult
}

// SettingsReader returns the effective behavior settings.
// *behavior.Cache satisfies it.
type SettingsReader interface {
	Get(ctx context.Context, bypass bool) behavior.Settings
}

// SettingsWriter persists a behavior update. *behavior.Updater
// satisfies it.
type SettingsWriter interface {
	Apply(ctx context.Context, update map[string]any) error
}

// UsageReporter aggregates the generation log. *usage.Store satisfies it.
type UsageReporter interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByStrategy(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
	SummaryByOutcome(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	summarizer Summarizer
	settings   SettingsReader
	updater    SettingsWriter
	usage      UsageReporter
	events     *events.Bus
	gatherer   prometheus.Gatherer
	upgrader   websocket.Upgrader
	now        func() time.Time
	logger     *slog.Logger
	server     *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, summarizer Summarizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:    address,
		port:       port,
		summarizer: summarizer,
		now:        time.Now,
		logger:     logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Displays are served from their own origin on the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetSettings configures the behavior settings endpoints.
func (s *Server) SetSettings(reader SettingsReader, writer SettingsWriter) {
	s.settings = reader
	s.updater = writer
}

// SetUsageStore configures the usage reporting endpoint.
func (s *Server) SetUsageStore(u UsageReporter) {
	s.usage = u
}

// SetEventBus configures the bus that feeds the summary stream and
// receives settings invalidation events.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.events = bus
}

// SetMetricsGatherer exposes g on /metrics.
func (s *Server) SetMetricsGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Display endpoints
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /v1/summary/stream", s.handleSummaryStream)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Admin endpoints
	mux.HandleFunc("GET /v1/settings/behavior", s.handleSettingsGet)
	mux.HandleFunc("PUT /v1/settings/behavior", s.handleSettingsPut)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // generation may wait on slow sources and the backend
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Daybreak",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// handleSummary always answers 200: every upstream failure has already
// been absorbed by the generator.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("commute"))
	result := s.summarizer.Generate(r.Context(), s.now(), briefing.Options{ForceCommute: force})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, result, s.logger)
}

// summaryMessage is one frame of the summary stream.
type summaryMessage struct {
	Greeting    string `json:"greeting"`
	Summary     string `json:"summary"`
	LastUpdated string `json:"lastUpdated"`
}

func summaryFromEvent(e events.Event) summaryMessage {
	str := func(k string) string {
		v, _ := e.Data[k].(string)
		return v
	}
	return summaryMessage{
		Greeting:    str("greeting"),
		Summary:     str("summary"),
		LastUpdated: str("last_updated"),
	}
}

// handleSummaryStream upgrades to a WebSocket and forwards every
// generated summary until the client goes away.
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "summary stream not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.events.Subscribe(16)
	defer s.events.Unsubscribe(ch)

	// The client never sends anything meaningful; reading detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("summary stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-gone:
			s.logger.Debug("summary stream closed", "remote", r.RemoteAddr)
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Kind != events.KindGenerated {
				continue
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(summaryFromEvent(e)); err != nil {
				s.logger.Debug("summary stream write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "settings not configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.settings.Get(r.Context(), true), s.logger)
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil || s.updater == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "settings not configured")
		return
	}

	var update map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&update); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.updater.Apply(r.Context(), update); err != nil {
		if errors.Is(err, behavior.ErrInvalidUpdate) {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("settings update failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to store settings")
		return
	}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.logger.Info("behavior settings updated", "keys", keys)
	s.events.Emit(events.SourceSettings, events.KindInvalidated, map[string]any{"keys": keys})

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.settings.Get(r.Context(), true), s.logger)
}

// maxUsageHours bounds the ?hours window of /v1/usage to about a year.
const maxUsageHours = 24 * 366

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}

	hours := parseIntParam(r, "hours", 24)
	if hours == 0 {
		hours = 24
	}
	hours = min(hours, maxUsageHours)
	end := s.now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	ctx := r.Context()

	total, err := s.usage.Summary(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}
	byStrategy, err := s.usage.SummaryByStrategy(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}
	byModel, err := s.usage.SummaryByModel(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}
	byOutcome, err := s.usage.SummaryByOutcome(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"window_hours": hours,
		"start":        start.UTC().Format(time.RFC3339),
		"end":          end.UTC().Format(time.RFC3339),
		"total":        total,
		"by_strategy":  byStrategy,
		"by_model":     byModel,
		"by_outcome":   byOutcome,
	}, s.logger)
}

func (s *Server) usageError(w http.ResponseWriter, err error) {
	s.logger.Error("usage query failed", "error", err)
	s.errorResponse(w, http.StatusInternalServerError, "usage query failed")
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
