package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
)

// DefaultSubject prefixes the subjects events are published on.
const DefaultSubject = "agentkanban.events"

// NATS publishes events to <subject>.<eventType>.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS creates a NATS sink on an established connection.
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: nc, subject: subject}
}

// Subject returns the subject an event type is published on.
func (n *NATS) Subject(t event.Type) string {
	return n.subject + "." + string(t)
}

// Send implements Sink.
func (n *NATS) Send(_ context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(env.EventType), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
