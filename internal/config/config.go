// Package config provides configuration loading for agentkanban.
//
// Configuration is read from a YAML file, overridden by AGENTKANBAN_*
// environment variables, completed with defaults and validated. Both
// binaries share one Config; each reads the sections it needs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Sink modes.
const (
	SinkHTTP   = "http"
	SinkNATS   = "nats"
	SinkDirect = "direct"
)

// Config holds the complete agentkanban configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Sink          SinkConfig          `koanf:"sink"`
	Tracker       TrackerConfig       `koanf:"tracker"`
	Reattribution ReattributionConfig `koanf:"reattribution"`
	Sessions      SessionsConfig      `koanf:"sessions"`
	Watcher       WatcherConfig       `koanf:"watcher"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds the ingest server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second, 0 disables
	Burst           int           `koanf:"burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// SinkConfig selects where hook events are delivered.
type SinkConfig struct {
	Mode      string   `koanf:"mode"`
	URL       string   `koanf:"url"`
	Timeout   Duration `koanf:"timeout"`
	QueueSize int      `koanf:"queue_size"`
	NATSURL   string   `koanf:"nats_url"`
	Subject   string   `koanf:"subject"`
}

// TrackerConfig tunes the real-time tracker.
type TrackerConfig struct {
	MaxRetries  int    `koanf:"max_retries"`
	SkipMarker  string `koanf:"skip_marker"`
	SourceAgent string `koanf:"source_agent"`
}

// ReattributionConfig holds defaults for the offline job.
type ReattributionConfig struct {
	MinScore         int    `koanf:"min_score"`
	CatchAll         string `koanf:"catch_all"`
	PerFeatureWindow bool   `koanf:"per_feature_window"`
}

// SessionsConfig controls stale-session cleanup.
type SessionsConfig struct {
	StaleAfter      Duration `koanf:"stale_after"`
	CleanupSchedule string   `koanf:"cleanup_schedule"`
}

// WatcherConfig toggles the feature list watcher.
type WatcherConfig struct {
	Enabled *bool `koanf:"enabled"`
}

// IsEnabled defaults to true when unset.
func (w WatcherConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// SecretsConfig controls redaction of payload previews.
type SecretsConfig struct {
	Enabled   *bool  `koanf:"enabled"`
	Allowlist string `koanf:"allowlist"`
}

// IsEnabled defaults to true when unset.
func (s SecretsConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"` // stdout | stderr
	Caller bool   `koanf:"caller"`
	OTEL   bool   `koanf:"otel"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"` // grpc | http/protobuf
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
	ServiceName     string `koanf:"service_name"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit cannot be negative"))
	}

	switch c.Sink.Mode {
	case SinkHTTP:
		if u, err := url.Parse(c.Sink.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("sink.url must be an absolute URL, got %q", c.Sink.URL))
		}
	case SinkNATS:
		if c.Sink.NATSURL == "" {
			errs = append(errs, fmt.Errorf("sink.nats_url is required in nats mode"))
		}
	case SinkDirect:
	default:
		errs = append(errs, fmt.Errorf("sink.mode must be http, nats or direct, got %q", c.Sink.Mode))
	}
	if c.Sink.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("sink.queue_size must be positive"))
	}

	if c.Tracker.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("tracker.max_retries cannot be negative"))
	}
	if strings.TrimSpace(c.Tracker.SkipMarker) == "" {
		errs = append(errs, fmt.Errorf("tracker.skip_marker is required"))
	}
	if c.Reattribution.MinScore < 1 {
		errs = append(errs, fmt.Errorf("reattribution.min_score must be at least 1, got %d", c.Reattribution.MinScore))
	}

	if c.Sessions.StaleAfter.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("sessions.stale_after must be positive"))
	}
	if _, err := cron.ParseStandard(c.Sessions.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sessions.cleanup_schedule %q: %w", c.Sessions.CleanupSchedule, err))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Logging.Output != "stdout" && c.Logging.Output != "stderr" {
		errs = append(errs, fmt.Errorf("logging.output must be 'stdout' or 'stderr', got %q", c.Logging.Output))
	}
	switch c.Observability.OTLPProtocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("observability.otlp_protocol must be grpc or http/protobuf, got %q", c.Observability.OTLPProtocol))
	}

	return errors.Join(errs...)
}
