package http

import (
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// IngestResponse is returned for every accepted event.
type IngestResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// SessionRequest is the body of POST /sessions/start and /sessions/end.
type SessionRequest struct {
	SessionID   string `json:"sessionId"`
	SourceAgent string `json:"sourceAgent"`
	ProjectDir  string `json:"projectDir"`
}

// FeaturesResponse is the body of GET /features.
type FeaturesResponse struct {
	ProjectDir string             `json:"projectDir"`
	Features   []*feature.Feature `json:"features"`
	Stats      feature.Stats      `json:"stats"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a client-facing error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
