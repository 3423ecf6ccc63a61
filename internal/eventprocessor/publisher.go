// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package eventprocessor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
)

// Publisher wraps a Watermill publisher with circuit breaker protection.
// The same type fronts both the in-process transport and NATS JetStream;
// only the wrapped message.Publisher differs.
type Publisher struct {
	publisher      message.Publisher
	serializer     *Serializer
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	mu             sync.RWMutex
	closed         bool
	logger         watermill.LoggerAdapter
}

// NewPublisher wraps an existing Watermill publisher.
func NewPublisher(pub message.Publisher, logger watermill.LoggerAdapter) (*Publisher, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	return &Publisher{
		publisher:  pub,
		serializer: NewSerializer(),
		logger:     logger,
	}, nil
}

// SetCircuitBreaker configures the circuit breaker for publish operations.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// Publish sends a message to the specified topic with circuit breaker
// protection. The message UUID is used as Nats-Msg-Id for JetStream
// deduplication if not already set; the in-process transport ignores it.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	var err error

	if p.circuitBreaker != nil {
		_, err = p.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, p.publisher.Publish(topic, msg)
		})
		metrics.RecordCircuitBreakerResult("event_publisher", cbResult(err))
	} else {
		err = p.publisher.Publish(topic, msg)
	}

	return err
}

// NotifyPlayRecorded serializes and publishes a notification for an accepted
// raw play. It satisfies the ingest service's Notifier interface.
func (p *Publisher) NotifyPlayRecorded(ctx context.Context, raw *models.RawPlayEvent) error {
	event := NewPlayRecordedEvent(raw)

	data, err := p.serializer.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set("partition_key", event.PartitionKey)

	return p.Publish(ctx, TopicPlayRecorded, msg)
}

// WatermillPublisher returns the underlying Watermill publisher. The poison
// queue middleware requires the native message.Publisher interface.
func (p *Publisher) WatermillPublisher() message.Publisher {
	return p.publisher
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

func cbResult(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
