package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/briefing"
	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/commute"
	"github.com/nugget/daybreak/internal/config"
	"github.com/nugget/daybreak/internal/events"
	"github.com/nugget/daybreak/internal/llm"
	"github.com/nugget/daybreak/internal/metrics"
	"github.com/nugget/daybreak/internal/news"
	"github.com/nugget/daybreak/internal/opstate"
	"github.com/nugget/daybreak/internal/usage"
	"github.com/nugget/daybreak/internal/weather"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// app holds the wired briefing pipeline shared by serve and brief.
type app struct {
	state     *opstate.Store
	usage     *usage.Store
	bus       *events.Bus
	settings  *behavior.Cache
	updater   *behavior.Updater
	generator *briefing.Generator
}

// newApp opens the stores under cfg.DataDir and wires every configured
// source into a generator. Metrics are registered with reg.
func newApp(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	state, err := opstate.NewStore(filepath.Join(cfg.DataDir, "opstate.db"))
	if err != nil {
		return nil, fmt.Errorf("open operational state store: %w", err)
	}
	usageStore, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}

	m := metrics.MustNewMetrics(reg)
	bus := events.New()

	cache := behavior.NewCache(state, cfg.AI.DefaultModel, cfg.Briefing.SettingsTTL(), logger)
	cache.SetMetrics(m)

	sources, err := buildSources(cfg, logger)
	if err != nil {
		usageStore.Close()
		state.Close()
		return nil, err
	}

	aggregator := briefing.NewAggregator(sources, logger,
		briefing.WithFetchTimeout(cfg.Briefing.ProviderTimeout()),
		briefing.WithCommuteWindow(commute.Window{
			StartHour: cfg.Commute.MorningStartHour,
			EndHour:   cfg.Commute.MorningEndHour,
		}),
		briefing.WithMetrics(m),
		briefing.WithEvents(bus),
	)

	genCfg := briefing.GeneratorConfig{
		Settings:   cache,
		Aggregator: aggregator,
		Thresholds: briefing.Thresholds{
			PrecipitationPercent: cfg.Briefing.PrecipitationThreshold,
			FreezingBelowF:       cfg.Briefing.FreezingCutoffF,
			HotAtF:               cfg.Briefing.HotCutoffF,
			WindyAtMPH:           cfg.Briefing.WindyCutoffMPH,
		},
		Location: cfg.TimeLocation(),
		Usage:    usageStore,
		Metrics:  m,
		Events:   bus,
		Logger:   logger,
	}
	// Without a credential the AI path is never attempted.
	if cfg.AI.Configured() {
		client := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:   cfg.AI.APIKey,
			BaseURL:  cfg.AI.BaseURL,
			SiteURL:  cfg.AI.SiteURL,
			SiteName: cfg.AI.SiteName,
			Timeout:  time.Duration(cfg.AI.TimeoutSec) * time.Second,
		}, logger)
		genCfg.AI = briefing.NewAIStrategy(client, logger)
		logger.Info("generative backend configured", "base_url", cfg.AI.BaseURL, "default_model", cfg.AI.DefaultModel)
	} else {
		logger.Info("generative backend not configured, using template summaries")
	}

	return &app{
		state:     state,
		usage:     usageStore,
		bus:       bus,
		settings:  cache,
		updater:   behavior.NewUpdater(state, cache),
		generator: briefing.NewGenerator(genCfg),
	}, nil
}

// buildSources constructs a client for every enabled context source.
// Disabled sources stay nil and always come back absent.
func buildSources(cfg *config.Config, logger *slog.Logger) (briefing.Sources, error) {
	var src briefing.Sources

	if cfg.Weather.Enabled {
		src.Weather = weather.NewClient(cfg.Weather.BaseURL, cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.Name, logger)
		logger.Info("weather source enabled", "location", cfg.Location.Name)
	}

	if cfg.Calendar.Configured() {
		cal, err := calendar.NewClient(calendar.Config{
			URL:          cfg.Calendar.URL,
			Username:     cfg.Calendar.Username,
			Password:     cfg.Calendar.Password,
			CalendarPath: cfg.Calendar.CalendarPath,
		}, cfg.TimeLocation(), logger)
		if err != nil {
			return src, fmt.Errorf("calendar client: %w", err)
		}
		src.Calendar = cal
		logger.Info("calendar source enabled", "url", cfg.Calendar.URL)
	}

	if len(cfg.News.Feeds) > 0 {
		feeds := make([]news.Feed, len(cfg.News.Feeds))
		for i, f := range cfg.News.Feeds {
			feeds[i] = news.Feed{Name: f.Name, URL: f.URL}
		}
		src.News = news.NewClient(feeds, cfg.News.MaxArticles, logger)
		logger.Info("news source enabled", "feeds", len(feeds))
	}

	if cfg.Commute.Enabled {
		routes := make([]commute.Route, len(cfg.Commute.Routes))
		for i, r := range cfg.Commute.Routes {
			routes[i] = commute.Route{Name: r.Name, Origin: r.Origin, Destination: r.Destination}
		}
		src.Commute = commute.NewClient(cfg.Commute.APIKey, cfg.Commute.BaseURL, routes, logger)
		logger.Info("commute source enabled", "routes", len(routes), "demo", cfg.Commute.APIKey == "")
	}

	return src, nil
}

// Close releases the stores.
func (a *app) Close() error {
	return errors.Join(a.usage.Close(), a.state.Close())
}
