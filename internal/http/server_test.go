package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/logging"
	"github.com/fyrsmithlabs/agentkanban/internal/sink"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []event.Envelope
	err  error
}

func (r *recordingSink) Send(_ context.Context, env event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return r.err
}

func (r *recordingSink) sent() []event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Envelope(nil), r.envs...)
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, event.Envelope) (*event.Event, error) {
	return nil, errors.New("disk full")
}

type testServer struct {
	*Server
	mem     *store.Memory
	publish *recordingSink
}

func setupTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	mem := store.NewMemory()
	pub := &recordingSink{}
	srv, err := NewServer(Deps{
		Ingest:   sink.NewStore(mem.Events(), mem.Sessions(), zap.NewNop()),
		Features: mem.Features(),
		Sessions: mem.Sessions(),
		Publish:  pub,
	}, zap.NewNop(), cfg)
	require.NoError(t, err)
	return &testServer{Server: srv, mem: mem, publish: pub}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func toolEnvelope() string {
	env := event.Envelope{
		EventType:   event.TypeToolCall,
		SourceAgent: "claude-code",
		SessionID:   "sess-1",
		ProjectDir:  "/work/app",
		ToolName:    "Edit",
		FeatureID:   "/work/app:0",
		Payload:     map[string]any{"inputSummary": "Edit: billing.go"},
	}
	data, _ := json.Marshal(env)
	return string(data)
}

func TestNewServer(t *testing.T) {
	mem := store.NewMemory()
	ingest := sink.NewStore(mem.Events(), mem.Sessions(), nil)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv, err := NewServer(Deps{Ingest: ingest, Features: mem.Features(), Sessions: mem.Sessions()}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 4000, srv.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Ingest: ingest, Features: mem.Features(), Sessions: mem.Sessions()}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error without ingester", func(t *testing.T) {
		_, err := NewServer(Deps{Features: mem.Features(), Sessions: mem.Sessions()}, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ingester")
	})

	t.Run("returns error without repositories", func(t *testing.T) {
		_, err := NewServer(Deps{Ingest: ingest}, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t, nil)
	rec := srv.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleEvent(t *testing.T) {
	t.Run("stores, links and republishes", func(t *testing.T) {
		srv := setupTestServer(t, nil)
		rec := srv.do(http.MethodPost, "/events", toolEnvelope())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp IngestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		require.NotEmpty(t, resp.ID)

		stored, err := srv.mem.Events().Get(context.Background(), resp.ID)
		require.NoError(t, err)
		assert.Equal(t, event.TypeToolCall, stored.Type)
		assert.Equal(t, "Edit: billing.go", stored.Summary)
		assert.Equal(t, "/work/app:0", stored.FeatureID)
		assert.WithinDuration(t, time.Now(), stored.Timestamp, time.Minute)

		sent := srv.publish.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, event.TypeToolCall, sent[0].EventType)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		srv := setupTestServer(t, nil)
		rec := srv.do(http.MethodPost, "/events", `{"eventType":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, srv.publish.sent())
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		srv := setupTestServer(t, nil)
		rec := srv.do(http.MethodPost, "/events", `{"eventType":"ToolCall","payload":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "session id is required")
	})

	t.Run("publish failure still acknowledges", func(t *testing.T) {
		mem := store.NewMemory()
		tl := logging.NewTestLogger()
		pub := &recordingSink{err: errors.New("broker down")}
		srv, err := NewServer(Deps{
			Ingest:   sink.NewStore(mem.Events(), mem.Sessions(), zap.NewNop()),
			Features: mem.Features(),
			Sessions: mem.Sessions(),
			Publish:  pub,
		}, tl.Underlying(), nil)
		require.NoError(t, err)
		ts := &testServer{Server: srv, mem: mem, publish: pub}

		rec := ts.do(http.MethodPost, "/events", toolEnvelope())
		assert.Equal(t, http.StatusOK, rec.Code)

		tl.AssertLogged(t, zap.WarnLevel, "re-publishing event failed")
		tl.AssertField(t, "re-publishing event failed", "session.id", "sess-1")
		tl.AssertField(t, "re-publishing event failed", "project.dir", "/work/app")
		tl.AssertField(t, "re-publishing event failed", "feature.id", "/work/app:0")
	})

	t.Run("store failure is a server error", func(t *testing.T) {
		mem := store.NewMemory()
		srv, err := NewServer(Deps{Ingest: failingIngester{}, Features: mem.Features(), Sessions: mem.Sessions()}, zap.NewNop(), nil)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(toolEnvelope()))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	srv := setupTestServer(t, nil)
	ctx := context.Background()
	body := `{"sessionId":"sess-9","sourceAgent":"claude-code","projectDir":"/work/app"}`

	rec := srv.do(http.MethodPost, "/sessions/start", body)
	require.Equal(t, http.StatusOK, rec.Code)

	active, err := srv.mem.Sessions().CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	rec = srv.do(http.MethodPost, "/sessions/end", body)
	require.Equal(t, http.StatusOK, rec.Code)

	active, err = srv.mem.Sessions().CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, active)

	sent := srv.publish.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, event.TypeSessionStart, sent[0].EventType)
	assert.Equal(t, "session_started", sent[0].Payload["action"])
	assert.Equal(t, event.TypeSessionEnd, sent[1].EventType)
	assert.Equal(t, "session_ended", sent[1].Payload["action"])
}

func seedFeatures(t *testing.T, srv *testServer) {
	t.Helper()
	now := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	items := []feature.ListItem{
		{Description: "Add CSV export", Passes: true},
		{Description: "Billing queue", InProgress: true},
		{Description: "Audit log"},
	}
	features := feature.FromList("/work/app", items, now)
	require.NoError(t, srv.mem.Features().ReplaceProject(context.Background(), "/work/app", features))
}

func TestHandleFeatures(t *testing.T) {
	srv := setupTestServer(t, nil)
	seedFeatures(t, srv)

	rec := srv.do(http.MethodGet, "/features", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/features?project_dir=/work/app", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FeaturesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Features, 3)
	assert.Equal(t, feature.StatusComplete, resp.Features[0].Status)
	assert.Equal(t, feature.StatusInProgress, resp.Features[1].Status)
	assert.Equal(t, 3, resp.Stats.Total)
	assert.Equal(t, 1, resp.Stats.Completed)

	rec = srv.do(http.MethodGet, "/features?project_dir=/elsewhere", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"features":[]`)

	for _, dir := range []string{"relative/app", "/work/../etc"} {
		rec = srv.do(http.MethodGet, "/features?project_dir="+dir, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, dir)
	}

	rec = srv.do(http.MethodGet, "/api/v1/stats?project_dir=relative", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	srv := setupTestServer(t, nil)
	seedFeatures(t, srv)
	srv.do(http.MethodPost, "/sessions/start", `{"sessionId":"s1","projectDir":"/work/app"}`)

	rec := srv.do(http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats feature.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.InProgress)
	assert.InDelta(t, 33.33, stats.Percentage, 0.01)
	assert.Equal(t, 1, stats.ActiveSessions)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t, nil)
	srv.do(http.MethodPost, "/events", toolEnvelope())
	srv.do(http.MethodPost, "/events", `not json`)

	rec := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `agentkanban_events_ingested_total{type="ToolCall"} 1`)
	assert.Contains(t, body, `agentkanban_events_rejected_total{reason="malformed"} 1`)
	assert.Contains(t, body, `agentkanban_events_published_total{result="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRateLimit(t *testing.T) {
	srv := setupTestServer(t, &Config{Host: "127.0.0.1", Port: 4000, RateLimit: 0.001, Burst: 1})

	first := srv.do(http.MethodPost, "/events", toolEnvelope())
	assert.Equal(t, http.StatusOK, first.Code)

	second := srv.do(http.MethodPost, "/events", toolEnvelope())
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Health and metrics are not limited.
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health", "").Code)
	rec := srv.do(http.MethodGet, "/metrics", "")
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("agentkanban_http_rate_limited_total 1")))
}
