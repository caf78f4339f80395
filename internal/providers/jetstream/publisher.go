package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/chainsave/circle-engine/internal/adapter"
	"github.com/chainsave/circle-engine/internal/logger"
	"github.com/chainsave/circle-engine/internal/messaging"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// PublishTimeout bounds one publish attempt including retries
	PublishTimeout time.Duration
}

type publisher struct {
	nc             adapter.NatsConn
	js             adapter.JetStream
	streamName     string
	publishTimeout time.Duration
}

// NewPublisher connects to NATS, provisions the circle event stream and
// returns a publisher bound to it
func NewPublisher(cfg Config, natsJS adapter.NatsJetStream) (messaging.Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{subjectPrefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	timeout := cfg.PublishTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &publisher{
		nc:             nc,
		js:             js,
		streamName:     cfg.StreamName,
		publishTimeout: timeout,
	}, nil
}

const subjectPrefix = "circles"

// PublishCircleEvent publishes a circle event to NATS JetStream. Publishing
// retries with exponential backoff; the event is already committed, so a
// failed publish is logged and surfaced but never rolled back.
func (p *publisher) PublishCircleEvent(ctx context.Context, event *messaging.CircleEvent) error {
	logger.Debug("Publishing Nats event", zap.Any("event", event))

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.buildSubject(event)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.publishTimeout

	operation := func() error {
		_, err := p.js.Publish(ctx, subject, data)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// buildSubject constructs the NATS subject based on the event.
// Format: circles.{event_type}, e.g. circles.payout_processed
func (p *publisher) buildSubject(event *messaging.CircleEvent) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, event.EventType)
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
