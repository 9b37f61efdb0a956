package briefing

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/events"
	"github.com/nugget/daybreak/internal/llm"
	"github.com/nugget/daybreak/internal/metrics"
	"github.com/nugget/daybreak/internal/usage"
)

// SettingsSource returns the current behavior settings. *behavior.Cache
// satisfies it.
type SettingsSource interface {
	Get(ctx context.Context, bypass bool) behavior.Settings
}

// UsageRecorder persists generation records. *usage.Store satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Options adjusts a single generation.
type Options struct {
	// ForceCommute fetches commute data outside the morning window.
	ForceCommute bool
}

// Generator sequences a summary: settings, aggregation, modes, then
// the AI strategy with the template as an unconditional fallback.
type Generator struct {
	settings   SettingsSource
	aggregator *Aggregator
	ai         SummaryStrategy
	template   TemplateStrategy
	thresholds Thresholds
	location   *time.Location

	usage   UsageRecorder
	metrics *metrics.Metrics
	events  *events.Bus
	logger  *slog.Logger
}

// GeneratorConfig wires a Generator. Settings and Aggregator are
// required; a nil AI strategy means the template is always used.
type GeneratorConfig struct {
	Settings   SettingsSource
	Aggregator *Aggregator
	AI         SummaryStrategy
	Thresholds Thresholds
	Location   *time.Location
	Usage      UsageRecorder
	Metrics    *metrics.Metrics
	Events     *events.Bus
	Logger     *slog.Logger
}

// NewGenerator creates a Generator. Zero thresholds select the defaults.
func NewGenerator(cfg GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	th := cfg.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return &Generator{
		settings:   cfg.Settings,
		aggregator: cfg.Aggregator,
		ai:         cfg.AI,
		thresholds: th,
		location:   loc,
		usage:      cfg.Usage,
		metrics:    cfg.Metrics,
		events:     cfg.Events,
		logger:     logger.With("component", "generator"),
	}
}

// Generate produces a summary for now. It has no failure mode: with
// every source absent and the backend unavailable it still returns a
// greeting. LastUpdated is now in the configured location.
func (g *Generator) Generate(ctx context.Context, now time.Time, opts Options) SummaryResult {
	ctx = context.WithoutCancel(ctx)
	local := now.In(g.location)
	start := time.Now()

	settings := g.settings.Get(ctx, false)
	bundle := g.aggregator.Aggregate(ctx, local, opts.ForceCommute)
	modes := Evaluate(bundle, settings, local, g.thresholds)
	in := Input{Bundle: bundle, Modes: modes, Settings: settings}

	draft, outcome := g.tryAI(ctx, in)
	if draft == nil {
		// TemplateStrategy cannot fail.
		draft, _ = g.template.Summarize(ctx, in)
	}

	result := SummaryResult{
		Greeting:    GreetingText(modes, settings),
		Summary:     draft.Text,
		LastUpdated: local,
	}

	g.metrics.ObserveGeneration(draft.Strategy)
	g.record(ctx, settings, draft, outcome, time.Since(start), now)
	g.events.Emit(events.SourceSummary, events.KindGenerated, map[string]any{
		"greeting":      result.Greeting,
		"summary":       result.Summary,
		"last_updated":  result.LastUpdated.Format(time.RFC3339),
		"strategy":      draft.Strategy,
		"input_tokens":  draft.InputTokens,
		"output_tokens": draft.OutputTokens,
	})
	g.logger.Info("summary generated",
		"strategy", draft.Strategy,
		"outcome", outcome,
		"greeting", modes.Greeting,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result
}

// tryAI runs the AI strategy when it is enabled. It returns the draft
// (nil on fallback) and an outcome label: "ok", "disabled" or the
// unavailability reason.
func (g *Generator) tryAI(ctx context.Context, in Input) (*Draft, string) {
	if g.ai == nil {
		return nil, llm.ReasonNoCredential
	}
	if !in.Settings.AIEnabled || in.Settings.Model == "" {
		return nil, "disabled"
	}

	draft, err := g.ai.Summarize(ctx, in)
	if err == nil && draft != nil && draft.Text != "" {
		return draft, "ok"
	}

	reason := llm.Reason(err)
	if reason == "" {
		reason = llm.ReasonEmpty
	}
	g.metrics.ObserveAIUnavailable(reason)
	g.logger.Warn("AI summary unavailable, using template",
		"model", in.Settings.Model,
		"reason", reason,
		"error", err,
	)
	g.events.Emit(events.SourceSummary, events.KindAIUnavailable, map[string]any{
		"model":  in.Settings.Model,
		"family": llm.ClassifyModel(in.Settings.Model).String(),
		"reason": reason,
	})
	return nil, reason
}

func (g *Generator) record(ctx context.Context, settings behavior.Settings, d *Draft, outcome string, elapsed time.Duration, now time.Time) {
	if g.usage == nil {
		return
	}
	rec := usage.Record{
		Timestamp:    now,
		Strategy:     d.Strategy,
		Outcome:      outcome,
		InputTokens:  d.InputTokens,
		OutputTokens: d.OutputTokens,
		Duration:     elapsed,
	}
	if outcome != "disabled" && outcome != llm.ReasonNoCredential {
		rec.Model = settings.Model
		rec.Family = llm.ClassifyModel(settings.Model).String()
	}
	if err := g.usage.Record(ctx, rec); err != nil {
		g.logger.Warn("failed to record generation", "error", err)
	}
}
