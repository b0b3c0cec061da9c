package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/metrics"
)

const publishTimeout = 5 * time.Second

// JetStream is the slice of nats.JetStreamContext the publisher uses.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher wraps a NATS connection and publishes JSON events over JetStream.
type Publisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	js      JetStream
	service string
}

// Connect dials url and enables JetStream.
func Connect(url, service string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(service),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &Publisher{logger: logger, nc: nc, js: js, service: service}, nil
}

// New builds a Publisher on an existing JetStream context.
func New(js JetStream, service string, logger *zap.Logger) *Publisher {
	return &Publisher{logger: logger, js: js, service: service}
}

// EnsureStream creates stream over subjects unless it already exists.
func (p *Publisher) EnsureStream(stream string, subjects ...string) error {
	if stream == "" {
		return nil
	}
	_, err := p.js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", stream, err)
	}
	if _, err := p.js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	}); err != nil {
		return fmt.Errorf("add stream %s: %w", stream, err)
	}
	p.logger.Info("publisher.stream_created", zap.String("stream", stream), zap.Strings("subjects", subjects))
	return nil
}

// Publish marshals payload as JSON and publishes it to subject.
func (p *Publisher) Publish(ctx context.Context, subject string, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.String("subject", subject), zap.Error(err))
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{eventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", eventType),
			zap.Error(err))
		metrics.IncNATSPublishError(subject)
		return err
	}

	p.logger.Info("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", eventType))
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
