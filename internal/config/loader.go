package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AGENTKANBAN_"

	// legacyServerEnv is the older single-variable sink URL override.
	legacyServerEnv = EnvPrefix + "SERVER"
)

// DefaultPath returns ~/.config/agentkanban/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agentkanban", "config.yaml"), nil
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. AGENTKANBAN_* environment variables
//  2. YAML config file (~/.config/agentkanban/config.yaml)
//  3. Defaults
//
// The file must live in ~/.config/agentkanban/ or /etc/agentkanban/, must
// not be group or world writable and must be under 1MB. A missing file is
// not an error.
//
// Environment variables split on the first underscore after the prefix:
//
//	AGENTKANBAN_SINK_URL           -> sink.url
//	AGENTKANBAN_SESSIONS_STALE_AFTER -> sessions.stale_after
//	AGENTKANBAN_SERVER             -> sink.url (legacy)
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps AGENTKANBAN_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	if s == legacyServerEnv {
		return "sink.url"
	}
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates through the descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks the path is in an allowed directory. It runs
// even if the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowedDirs := []string{
		filepath.Join(home, ".config", "agentkanban"),
		"/etc/agentkanban",
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/agentkanban/ or /etc/agentkanban/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 200
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 400
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.agentkanban/agentkanban.db"
	}

	if cfg.Sink.Mode == "" {
		cfg.Sink.Mode = SinkHTTP
	}
	if cfg.Sink.URL == "" {
		cfg.Sink.URL = "http://127.0.0.1:4000"
	}
	if cfg.Sink.Timeout == 0 {
		cfg.Sink.Timeout = Duration(2 * time.Second)
	}
	if cfg.Sink.QueueSize == 0 {
		cfg.Sink.QueueSize = 64
	}
	if cfg.Sink.Subject == "" {
		cfg.Sink.Subject = "agentkanban.events"
	}

	if cfg.Tracker.MaxRetries == 0 {
		cfg.Tracker.MaxRetries = 5
	}
	if cfg.Tracker.SkipMarker == "" {
		cfg.Tracker.SkipMarker = "kanban hook"
	}
	if cfg.Tracker.SourceAgent == "" {
		cfg.Tracker.SourceAgent = "claude-code"
	}

	if cfg.Reattribution.MinScore == 0 {
		cfg.Reattribution.MinScore = 3
	}

	if cfg.Sessions.StaleAfter == 0 {
		cfg.Sessions.StaleAfter = Duration(15 * time.Minute)
	}
	if cfg.Sessions.CleanupSchedule == "" {
		cfg.Sessions.CleanupSchedule = "@every 2m"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "agentkanban"
	}
}
