package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentkanban/internal/config"
)

func bufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	l, err := newLogger(cfg, zapcore.AddSync(&buf), nil)
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"stderr", func(c *Config) { c.Output.Stream = StreamStderr }, ""},
		{"otel only", func(c *Config) { c.Output.Stream = ""; c.Output.OTEL = true }, ""},
		{"no output", func(c *Config) { c.Output.Stream = "" }, "at least one output"},
		{"bad stream", func(c *Config) { c.Output.Stream = "file" }, "output stream"},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"negative skip", func(c *Config) { c.Caller.Skip = -1 }, "caller skip"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"(["} }, "invalid redaction pattern"},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} }, "too long"},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console", Output: "stderr", Caller: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, StreamStderr, cfg.Output.Stream)
	assert.True(t, cfg.Caller.Enabled)

	cfg, err = FromSettings(config.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, StreamStdout, cfg.Output.Stream)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_WritesJSONWithServiceAndContext(t *testing.T) {
	l, buf := bufferLogger(t, nil)

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithProjectDir(ctx, "/work/app")
	ctx = WithFeatureID(ctx, "feat-9")
	l.Info(ctx, "event recorded", zap.String("event.id", "e1"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "event recorded", lines[0]["msg"])
	assert.Equal(t, "agentkanban", lines[0]["service"])
	assert.Equal(t, "sess-1", lines[0]["session.id"])
	assert.Equal(t, "/work/app", lines[0]["project.dir"])
	assert.Equal(t, "feat-9", lines[0]["feature.id"])
	assert.Equal(t, "e1", lines[0]["event.id"])
	assert.Contains(t, lines[0]["caller"], "logging_test.go")
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := bufferLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Info(ctx, "hidden too")
	l.Warn(ctx, "shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.False(t, l.Enabled(zapcore.InfoLevel))
	assert.True(t, l.Enabled(zapcore.ErrorLevel))
}

func TestLogger_TraceLevelName(t *testing.T) {
	l, buf := bufferLogger(t, func(c *Config) { c.Level = TraceLevel })
	l.Trace(context.Background(), "keywords", zap.Strings("set", []string{"billing"}))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestLogger_Redaction(t *testing.T) {
	l, buf := bufferLogger(t, nil)
	l.Info(context.Background(), "sink configured",
		zap.String("token", "abc123"),
		zap.String("header", "Authorization: Bearer eyJhbGciOi tail"),
		zap.String("url", "http://127.0.0.1:4000"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "Authorization: [REDACTED:pattern] tail", lines[0]["header"])
	assert.Equal(t, "http://127.0.0.1:4000", lines[0]["url"])
}

func TestLogger_WithAndNamed(t *testing.T) {
	l, buf := bufferLogger(t, nil)
	child := l.Named("tracker").With(zap.String("component", "router"))
	child.Info(context.Background(), "feature completed")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "tracker", lines[0]["logger"])
	assert.Equal(t, "router", lines[0]["component"])
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tl := NewTestLogger()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tl.Info(ctx, "ingested")
	tl.AssertTraceCorrelation(t, "ingested")
	tl.AssertField(t, "ingested", "trace_id", sc.TraceID().String())
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	l, buf := bufferLogger(t, func(c *Config) {
		c.Sampling.Enabled = true
		c.Sampling.Levels = map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
		}
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Info(ctx, "repeated")
		l.Error(ctx, "failure")
	}

	var infos, errs int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "repeated":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 2, infos)
	assert.Equal(t, 10, errs)
}

func TestSampling_UnconfiguredLevelPassesThrough(t *testing.T) {
	l, buf := bufferLogger(t, func(c *Config) {
		c.Sampling.Enabled = true
		c.Sampling.Levels = map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
		}
	})
	for i := 0; i < 5; i++ {
		l.Warn(context.Background(), "slow sink")
	}
	assert.Len(t, decodeLines(t, buf), 5)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))
	assert.Equal(t, "", SessionIDFromContext(ctx))

	long := strings.Repeat("s", 300)
	ctx = WithSessionID(ctx, long)
	assert.Len(t, SessionIDFromContext(ctx), maxIDLen)

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	assert.Equal(t, ctx, WithSessionID(ctx, ""))
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Warn(ctx, "sink queue full", zap.Int("dropped", 3))
	tl.AssertLogged(t, zapcore.WarnLevel, "queue full")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "queue full")
	tl.AssertField(t, "sink queue full", "dropped", int64(3))

	tl.Info(ctx, "credentials", RedactedString("token", "abcdef"))
	tl.AssertNoSecrets(t)
	tl.AssertField(t, "credentials", "token", "[REDACTED:6]")

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestSync_IgnoresTerminalErrors(t *testing.T) {
	assert.NoError(t, Nop().Sync())
}
