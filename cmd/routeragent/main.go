// Command routeragent runs on or next to the router. Every interval it reads
// uptime, load, memory, WAN counters and the ARP table over SNMP and POSTs
// the snapshot to the relay.
//
// Usage:
//
//	routeragent [flags]
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

	"github.com/vpbank/routerpulse/pkg/routerpulse/agent"
	"github.com/vpbank/routerpulse/pkg/routerpulse/config"
	"github.com/vpbank/routerpulse/pkg/routerpulse/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "routeragent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		cfgPath   string
		logLevel  string
		logFmt    string
		relayURL  string
		target    string
		community string
		interval  time.Duration
		ifIndex   int
		dryRun    bool
	)

	flag.StringVar(&cfgPath, "config", "", "YAML config file (default: $ROUTERPULSE_CONFIG)")
	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&relayURL, "relay.url", "", "Relay update endpoint")
	flag.StringVar(&target, "snmp.target", "", "Router management address")
	flag.StringVar(&community, "snmp.community", "", "SNMP v1/v2c community")
	flag.DurationVar(&interval, "interval", 0, "Collection period")
	flag.IntVar(&ifIndex, "wan.ifindex", 0, "ifIndex of the WAN interface")
	flag.BoolVar(&dryRun, "dry-run", false, "Print snapshots to stdout instead of pushing them")
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

	ac := &settings.Agent
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "relay.url":
			ac.RelayURL = relayURL
		case "snmp.target":
			ac.Target.IP = target
		case "snmp.community":
			ac.Target.Communities = []string{community}
		case "interval":
			ac.Interval = interval
		case "wan.ifindex":
			ac.WANIfIndex = ifIndex
		}
	})
	if err := settings.Validate(); err != nil {
		return err
	}

	// ── Build pipeline ───────────────────────────────────────────────────
	collector, err := agent.NewCollector(agent.CollectorConfig{
		Target:     ac.Target,
		WANIfIndex: ac.WANIfIndex,
	}, logger)
	if err != nil {
		return err
	}
	defer collector.Close()

	var out agent.Output
	if dryRun {
		out = agent.NewWriterOutput(os.Stdout, logger)
	} else {
		out = agent.NewHTTPPusher(ac.RelayURL, ac.PushTimeout, nil, logger)
	}
	a := agent.New(collector, out, logger)
	sched := scheduler.New(scheduler.Config{Interval: ac.Interval}, a.Tick, logger)

	// ── Run ──────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("routeragent: running",
		"target", ac.Target.IP,
		"relay", ac.RelayURL,
		"interval", ac.Interval.String(),
		"dry_run", dryRun,
	)
	sched.Start(ctx)

	logger.Info("routeragent: stopped", "pushed", a.Pushed(), "failed", a.Failed())
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
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
