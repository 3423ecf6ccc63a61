// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/metrics"
)

// MaterializeHandlerName identifies the materialization consumer in router
// logs and handler registration.
const MaterializeHandlerName = "play-materializer"

// PoisonHandlerName identifies the poison topic consumer.
const PoisonHandlerName = "poison-logger"

// Materializer turns an accepted raw play into its canonical form. Errors
// are treated as transient and retried by the router; a play the
// materializer decides is terminally bad is marked failed in the store and
// returns nil here.
type Materializer interface {
	Materialize(ctx context.Context, partitionKey, eventID string) error
}

// MaterializeHandler consumes play notifications and drives the
// materializer. Database access runs through a circuit breaker so a
// struggling store trips fast instead of piling up in-flight handlers.
type MaterializeHandler struct {
	materializer   Materializer
	serializer     *Serializer
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	logger         watermill.LoggerAdapter
}

// NewMaterializeHandler creates a handler around the given materializer.
func NewMaterializeHandler(m Materializer, logger watermill.LoggerAdapter) (*MaterializeHandler, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: materializer required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "materializer_store",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &MaterializeHandler{
		materializer:   m,
		serializer:     NewSerializer(),
		circuitBreaker: cb,
		logger:         logger,
	}, nil
}

// Handle processes one notification. A returned error triggers router
// retries and, eventually, the poison queue.
func (h *MaterializeHandler) Handle(msg *message.Message) error {
	event, err := h.serializer.Unmarshal(msg.Payload)
	if err != nil {
		// Malformed payloads never deserialize on retry either; the
		// poison queue is where they belong.
		return fmt.Errorf("decode notification %s: %w", msg.UUID, err)
	}

	if err := event.Validate(); err != nil {
		return fmt.Errorf("notification %s: %w", msg.UUID, err)
	}

	ctx := msg.Context()

	_, err = h.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, h.materializer.Materialize(ctx, event.PartitionKey, event.EventID)
	})
	metrics.RecordCircuitBreakerResult("materializer_store", cbResult(err))
	if err != nil {
		return fmt.Errorf("materialize play %s/%s: %w", event.PartitionKey, event.EventID, err)
	}

	metrics.EventsConsumed.Inc()
	return nil
}

// Register attaches the handler to the router on the play topic.
func (h *MaterializeHandler) Register(r *Router, subscriber message.Subscriber) {
	r.AddConsumerHandler(MaterializeHandlerName, TopicPlayRecorded, subscriber, h.Handle)
}

// RegisterPoisonLogger attaches a consumer that records and acks poisoned
// messages so they are visible in logs and metrics instead of silently
// accumulating.
func RegisterPoisonLogger(r *Router, subscriber message.Subscriber, topic string) {
	r.AddConsumerHandler(PoisonHandlerName, topic, subscriber, func(msg *message.Message) error {
		metrics.EventsPoisoned.Inc()
		logging.Error().
			Str("message_uuid", msg.UUID).
			Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)).
			Msg("message moved to poison queue")
		return nil
	})
}
