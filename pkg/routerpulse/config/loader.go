// Package config loads the relay, dashboard and agent configuration.
//
// Sources, lowest precedence first:
//
//	built-in defaults
//	YAML file        (-config flag / ROUTERPULSE_CONFIG)
//	.env files       (loaded into the environment, never overriding it)
//	environment      (ROUTERPULSE_*, plus PORT for the listen address)
//
// Command-line flags are applied on top by the binaries in cmd/.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully resolved configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Relay   RelayConfig   `yaml:"relay"`
	Poll    PollConfig    `yaml:"poll"`
	Series  SeriesConfig  `yaml:"series"`
	Persist PersistConfig `yaml:"persist"`
	CORS    CORSConfig    `yaml:"cors"`
	Agent   AgentConfig   `yaml:"agent"`
}

// HTTPConfig controls the HTTP listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown (default 5s).
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// RelayConfig controls the ingress endpoints.
type RelayConfig struct {
	// Enabled mounts POST /api/update and GET /api/data (default true).
	Enabled *bool `yaml:"enabled"`

	// MaxBodyBytes bounds an ingress payload (default 1 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`
}

// On reports whether the relay endpoints are mounted.
func (r RelayConfig) On() bool { return r.Enabled == nil || *r.Enabled }

// PollConfig controls the dashboard poller.
type PollConfig struct {
	// URL of the relay's GET endpoint. Empty means read the in-process relay.
	URL string `yaml:"url" validate:"omitempty,url"`

	Interval time.Duration `yaml:"interval" validate:"gt=0"`

	// Timeout bounds each fetch (default: Interval).
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// SeriesConfig controls the chart windows.
type SeriesConfig struct {
	Capacity int `yaml:"capacity" validate:"gt=0,lte=10000"`
}

// PersistConfig names the best-effort durable copies of the latest payload.
// Empty strings disable the corresponding backend.
type PersistConfig struct {
	File   string `yaml:"file"`
	SQLite string `yaml:"sqlite"`
}

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
}

// AgentConfig controls cmd/routeragent.
type AgentConfig struct {
	// RelayURL is the relay's POST endpoint.
	RelayURL string `yaml:"relay_url" validate:"required,url"`

	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	PushTimeout time.Duration `yaml:"push_timeout" validate:"gt=0"`

	// WANIfIndex is the ifIndex of the WAN interface.
	WANIfIndex int `yaml:"wan_if_index" validate:"gte=0"`

	Target DeviceConfig `yaml:"target"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:          ":3000",
			ShutdownTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{MaxBodyBytes: 1 << 20},
		Poll: PollConfig{
			Interval: 3 * time.Second,
		},
		Series:  SeriesConfig{Capacity: 20},
		Persist: PersistConfig{File: "data.json"},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
		Agent: AgentConfig{
			RelayURL:    "http://localhost:3000/api/update",
			Interval:    5 * time.Second,
			PushTimeout: 5 * time.Second,
			WANIfIndex:  1,
		},
	}
}

// withDefaults fills values derived from other fields.
func (c *Config) withDefaults() {
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = c.Poll.Interval
	}
	c.Agent.Target = c.Agent.Target.withDefaults()
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	cfg := Defaults()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load %q: %w", path, err)
		}
		logger.Debug("config: loaded file", "file", path)
	}

	if err := applyEnv(cfg, logger); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every struct tag and reports all violations at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, messageFor(e))
	}
	return fmt.Errorf("config: %d error(s):\n  %s", len(msgs), strings.Join(msgs, "\n  "))
}

func messageFor(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Namespace())
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", e.Namespace(), e.Tag(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", e.Namespace(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", e.Namespace(), e.Tag())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// .env and environment
// ─────────────────────────────────────────────────────────────────────────────

// LoadDotEnv loads each file into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// PathFromEnv returns the YAML config path from ROUTERPULSE_CONFIG, or def.
func PathFromEnv(def string) string {
	return envOr("ROUTERPULSE_CONFIG", def)
}

func applyEnv(cfg *Config, logger *slog.Logger) error {
	var errs []string

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Listen = ":" + port
	}
	cfg.HTTP.Listen = envOr("ROUTERPULSE_LISTEN", cfg.HTTP.Listen)

	if v := os.Getenv("ROUTERPULSE_RELAY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ROUTERPULSE_RELAY_ENABLED: %v", err))
		} else {
			cfg.Relay.Enabled = &b
		}
	}

	cfg.Poll.URL = envOr("ROUTERPULSE_POLL_URL", cfg.Poll.URL)
	envDuration("ROUTERPULSE_POLL_INTERVAL", &cfg.Poll.Interval, &errs)
	envDuration("ROUTERPULSE_POLL_TIMEOUT", &cfg.Poll.Timeout, &errs)
	envInt("ROUTERPULSE_SERIES_CAPACITY", &cfg.Series.Capacity, &errs)

	cfg.Persist.File = envOr("ROUTERPULSE_PERSIST_FILE", cfg.Persist.File)
	cfg.Persist.SQLite = envOr("ROUTERPULSE_PERSIST_SQLITE", cfg.Persist.SQLite)

	if v := os.Getenv("ROUTERPULSE_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	cfg.Agent.RelayURL = envOr("ROUTERPULSE_AGENT_RELAY_URL", cfg.Agent.RelayURL)
	envDuration("ROUTERPULSE_AGENT_INTERVAL", &cfg.Agent.Interval, &errs)
	envInt("ROUTERPULSE_AGENT_WAN_IF_INDEX", &cfg.Agent.WANIfIndex, &errs)
	cfg.Agent.Target.IP = envOr("ROUTERPULSE_AGENT_TARGET_IP", cfg.Agent.Target.IP)
	cfg.Agent.Target.Version = envOr("ROUTERPULSE_AGENT_TARGET_VERSION", cfg.Agent.Target.Version)
	if v := os.Getenv("ROUTERPULSE_AGENT_COMMUNITY"); v != "" {
		cfg.Agent.Target.Communities = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment: %s", strings.Join(errs, "; "))
	}
	logger.Debug("config: environment applied", "listen", cfg.HTTP.Listen)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, dst *time.Duration, errs *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = d
}

func envInt(key string, dst *int, errs *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // extra keys are ignored
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
