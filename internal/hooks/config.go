package hooks

import (
	"fmt"
	"strings"
)

// Defaults for hook processing.
const (
	DefaultSkipMarker    = "kanban hook"
	DefaultMaxInputBytes = 1 << 20
)

// Config holds hook configuration
type Config struct {
	// SkipMarker excludes tool calls whose input contains it, so the hook
	// binary never tracks its own invocations.
	SkipMarker string `json:"skip_marker"`

	// MaxInputBytes caps the stdin document. Larger input is treated as
	// malformed.
	MaxInputBytes int64 `json:"max_input_bytes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		SkipMarker:    DefaultSkipMarker,
		MaxInputBytes: DefaultMaxInputBytes,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxInputBytes <= 0 {
		return fmt.Errorf("max_input_bytes must be positive, got %d", c.MaxInputBytes)
	}
	if strings.TrimSpace(c.SkipMarker) == "" {
		return fmt.Errorf("skip_marker is required")
	}
	return nil
}
