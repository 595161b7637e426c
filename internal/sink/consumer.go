package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
)

const (
	// IngestedToken is the subject token ingested events are re-published
	// under, so consumers of hook events never see their own output.
	IngestedToken = "ingested"

	// ConsumerQueue is the queue group daemons share.
	ConsumerQueue = "agentkanban-ingest"

	consumerTimeout = 5 * time.Second
)

// IngestedSubject returns the prefix ingested events are re-published on.
func IngestedSubject(subject string) string {
	if subject == "" {
		subject = DefaultSubject
	}
	return subject + "." + IngestedToken
}

// Ingester stores an envelope.
type Ingester interface {
	Ingest(ctx context.Context, env event.Envelope) (*event.Event, error)
}

// Consumer ingests envelopes that hooks published to NATS and forwards the
// stored events to publish.
type Consumer struct {
	conn    *nats.Conn
	subject string
	ingest  Ingester
	publish Sink
	logger  *zap.Logger
	sub     *nats.Subscription
}

// NewConsumer creates a consumer for <subject>.<eventType>. publish may be nil.
func NewConsumer(nc *nats.Conn, subject string, ingest Ingester, publish Sink, logger *zap.Logger) *Consumer {
	if subject == "" {
		subject = DefaultSubject
	}
	if publish == nil {
		publish = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{conn: nc, subject: subject, ingest: ingest, publish: publish, logger: logger}
}

// Start subscribes in the shared queue group.
func (c *Consumer) Start() error {
	sub, err := c.conn.QueueSubscribe(c.subject+".*", ConsumerQueue, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	c.logger.Info("consuming hook events", zap.String("subject", c.subject+".*"))
	return nil
}

// Stop drains the subscription.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

func (c *Consumer) handle(msg *nats.Msg) {
	var env event.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		c.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	e, err := c.ingest.Ingest(ctx, env)
	if err != nil {
		c.logger.Warn("ingesting event failed", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := c.publish.Send(ctx, e.Envelope()); err != nil {
		c.logger.Warn("re-publishing event failed", zap.String("event_id", e.ID), zap.Error(err))
	}
}
