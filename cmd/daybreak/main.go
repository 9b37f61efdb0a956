// Daybreak composes short daily briefings for ambient displays.
//
// It aggregates weather, calendar, news and commute context, asks a
// generative backend to write the briefing, and falls back to a
// deterministic template whenever the backend is unavailable.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	daybreak serve           Start the API server
//	daybreak brief           Generate one briefing and print it
//	daybreak init [dir]      Initialize a working directory with defaults
//	daybreak version         Print version and build information
//	daybreak -o json brief   Output the briefing as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // location.timezone must resolve on minimal images

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nugget/daybreak/internal/api"
	"github.com/nugget/daybreak/internal/briefing"
	"github.com/nugget/daybreak/internal/buildinfo"
	"github.com/nugget/daybreak/internal/config"
	"github.com/nugget/daybreak/internal/mqtt"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run], keeping os.Exit and os.Args out of
// the application logic so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the daybreak command. Structured
// logs go to stdout; fatal error messages are returned to main. args is
// os.Args[1:], parsed by hand so that run has no package-level state
// and can be called concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var forceCommute bool
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-commute" || args[i] == "--commute":
			forceCommute = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "brief":
		return runBrief(ctx, stdout, stderr, configPath, outputFmt, forceCommute)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Daybreak - daily briefings for ambient displays")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: daybreak [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  brief        Generate one briefing and print it")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w, "  -commute          brief: include commute outside the morning window")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/daybreak/config.yaml, /etc/daybreak/config.yaml")
	return nil
}

// runBrief generates a single briefing and prints it. Metrics go to a
// private registry; the stores on disk are shared with serve so the
// same behavior settings apply.
func runBrief(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, outputFmt string, forceCommute bool) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the briefing.
	logger := config.NewLogger(stderr, configuredLevel(cfg), cfg.LogFormat)

	app, err := newApp(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.Close()

	result := app.generator.Generate(ctx, time.Now(), briefing.Options{ForceCommute: forceCommute})

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(stdout, result.Summary)
	return nil
}

// runServe handles the "daybreak serve" subcommand: it wires the
// pipeline, starts the API server and the optional MQTT publisher, and
// blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The MQTT publisher announces "offline" and disconnects
//  3. The HTTP server drains in-flight requests
//  4. Stores are closed via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Daybreak", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Everything after the banner uses the configured level and format.
	logger = config.NewLogger(stdout, configuredLevel(cfg), cfg.LogFormat)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"timezone", cfg.TimeLocation().String(),
		"ai_configured", cfg.AI.Configured(),
		"default_model", cfg.AI.DefaultModel,
	)

	app, err := newApp(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, app.generator, logger)
	server.SetSettings(app.settings, app.updater)
	server.SetUsageStore(app.usage)
	server.SetEventBus(app.bus)
	server.SetMetricsGatherer(prometheus.DefaultGatherer)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		mqttPub = mqtt.New(cfg.MQTT, instanceID, app.generator, app.bus, mqtt.NewDailyTally(cfg.TimeLocation()), logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
			"interval", cfg.MQTT.PublishIntervalSec,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if mqttPub != nil {
			if err := mqttPub.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Daybreak stopped")
	return nil
}

// configuredLevel returns the log level from cfg. config.Validate has
// already rejected unknown names.
func configuredLevel(cfg *config.Config) slog.Level {
	if cfg.LogLevel == "" {
		return slog.LevelInfo
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return level
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
