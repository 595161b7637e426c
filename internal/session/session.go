// Package session tracks agent sessions and ends the ones that went quiet.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Status of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is one agent session within a project.
type Session struct {
	ID           string    `json:"sessionId"`
	SourceAgent  string    `json:"sourceAgent"`
	ProjectDir   string    `json:"projectDir"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
	Status       Status    `json:"status"`
}

// Repository persists sessions.
type Repository interface {
	// Start upserts an active session, resetting its activity time.
	Start(ctx context.Context, s *Session) error

	// Touch records activity for a session. Unknown sessions are ignored.
	Touch(ctx context.Context, id string, at time.Time) error

	// End marks a session ended.
	End(ctx context.Context, id string, at time.Time) error

	// EndStale ends active sessions whose last activity is before cutoff and
	// returns how many were ended.
	EndStale(ctx context.Context, cutoff time.Time) (int, error)

	// Sessions lists sessions, most recently active first.
	Sessions(ctx context.Context) ([]*Session, error)

	// CountActive returns the number of active sessions.
	CountActive(ctx context.Context) (int, error)

	// ReassignProject moves sessions recorded under one project dir to another.
	ReassignProject(ctx context.Context, from, to string) (int, error)
}
