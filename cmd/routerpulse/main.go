// Command routerpulse runs the telemetry relay and the dashboard backend.
//
// Configuration comes from an optional YAML file, .env, the environment and
// finally the flags below, each layer overriding the previous one. It runs
// until interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	routerpulse [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vpbank/routerpulse/pkg/routerpulse/app"
	"github.com/vpbank/routerpulse/pkg/routerpulse/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "routerpulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		cfgPath  string
		logLevel string
		logFmt   string
		listen   string
		pollURL  string
		interval time.Duration
		relayOn  bool
		capacity int
	)

	flag.StringVar(&cfgPath, "config", "", "YAML config file (default: $ROUTERPULSE_CONFIG)")
	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&listen, "http.listen", "", "HTTP listen address, e.g. :3000")
	flag.StringVar(&pollURL, "poll.url", "", "Remote relay data URL (default: the in-process relay)")
	flag.DurationVar(&interval, "poll.interval", 0, "Dashboard refresh period")
	flag.BoolVar(&relayOn, "relay.enabled", true, "Serve the relay endpoints")
	flag.IntVar(&capacity, "series.capacity", 0, "Points kept per chart")
	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	// ── Config ───────────────────────────────────────────────────────────
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if cfgPath == "" {
		cfgPath = config.PathFromEnv("")
	}
	settings, err := config.Load(cfgPath, logger)
	if err != nil {
		return err
	}

	// Only flags given explicitly override the loaded settings.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http.listen":
			settings.HTTP.Listen = listen
		case "poll.url":
			settings.Poll.URL = pollURL
		case "poll.interval":
			settings.Poll.Interval = interval
		case "relay.enabled":
			settings.Relay.Enabled = &relayOn
		case "series.capacity":
			settings.Series.Capacity = capacity
		}
	})
	if err := settings.Validate(); err != nil {
		return err
	}

	// ── Build App ────────────────────────────────────────────────────────
	application, err := app.New(app.Config{Settings: settings}, logger)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	// ── Start ────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("routerpulse: received shutdown signal")
	case <-application.Done():
		logger.Warn("routerpulse: server exited")
	}

	return application.Stop()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
}
