package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

// Store writes events directly into the repositories. The ingest server
// uses it for every accepted event; the hook CLI uses it when no server
// runs.
type Store struct {
	events   event.Repository
	sessions session.Repository
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewStore creates a store sink.
func NewStore(events event.Repository, sessions session.Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		events:   events,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Send implements Sink.
func (s *Store) Send(ctx context.Context, env event.Envelope) error {
	_, err := s.Ingest(ctx, env)
	return err
}

// Ingest stores env with a fresh ID and timestamp, links its feature when
// set and updates the owning session.
func (s *Store) Ingest(ctx context.Context, env event.Envelope) (*event.Event, error) {
	at := s.now().UTC()
	e := event.FromEnvelope(env, s.newID(), at)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.events.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("storing event: %w", err)
	}

	if err := s.trackSession(ctx, e); err != nil {
		// The event is stored; session bookkeeping is secondary.
		s.logger.Warn("session bookkeeping failed",
			zap.String("session_id", e.SessionID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
	}
	return e, nil
}

func (s *Store) trackSession(ctx context.Context, e *event.Event) error {
	if s.sessions == nil {
		return nil
	}
	switch e.Type {
	case event.TypeSessionStart:
		return s.sessions.Start(ctx, &session.Session{
			ID:           e.SessionID,
			SourceAgent:  e.SourceAgent,
			ProjectDir:   e.ProjectDir,
			StartedAt:    e.Timestamp,
			LastActivity: e.Timestamp,
			Status:       session.StatusActive,
		})
	case event.TypeSessionEnd:
		err := s.sessions.End(ctx, e.SessionID, e.Timestamp)
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	default:
		return s.sessions.Touch(ctx, e.SessionID, e.Timestamp)
	}
}
