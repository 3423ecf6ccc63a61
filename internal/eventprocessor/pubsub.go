// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package eventprocessor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/logging"
)

// PubSub bundles the publisher and subscriber for one transport, plus the
// embedded NATS server when one was started. Transport selection happens at
// startup from configuration, not at build time.
type PubSub struct {
	Publisher  *Publisher
	Subscriber message.Subscriber

	embedded *EmbeddedServer
}

// NewPubSub builds the transport described by cfg. With NATS disabled it
// returns an in-process Go channel pub/sub, which keeps single-binary
// deployments free of broker dependencies at the cost of losing
// notifications on restart (recoverable: pending raw plays are re-driven
// from the database on startup).
func NewPubSub(ctx context.Context, cfg *config.NATSConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	if !cfg.Enabled {
		return newInProcessPubSub(logger)
	}

	url := cfg.URL

	var embedded *EmbeddedServer
	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		embedded = srv
		url = srv.ClientURL()
	}

	if err := EnsureStream(ctx, url, cfg); err != nil {
		shutdownEmbedded(embedded)
		return nil, err
	}

	natsPub, err := NewNATSPublisher(url, cfg, logger)
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, err
	}

	natsSub, err := NewNATSSubscriber(url, cfg, logger)
	if err != nil {
		_ = natsPub.Close()
		shutdownEmbedded(embedded)
		return nil, err
	}

	pub, err := NewPublisher(natsPub, logger)
	if err != nil {
		_ = natsSub.Close()
		_ = natsPub.Close()
		shutdownEmbedded(embedded)
		return nil, err
	}

	logging.Info().
		Str("url", url).
		Str("stream", cfg.StreamName).
		Bool("embedded", embedded != nil).
		Msg("NATS transport ready")

	return &PubSub{
		Publisher:  pub,
		Subscriber: natsSub,
		embedded:   embedded,
	}, nil
}

func newInProcessPubSub(logger watermill.LoggerAdapter) (*PubSub, error) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		// Buffer absorbs ingest bursts while the materializer catches up.
		OutputChannelBuffer: 256,
		Persistent:          false,
	}, logger)

	pub, err := NewPublisher(ch, logger)
	if err != nil {
		return nil, err
	}

	logging.Info().Msg("in-process event transport ready")

	return &PubSub{
		Publisher:  pub,
		Subscriber: ch,
	}, nil
}

// Close shuts down the transport. The subscriber closes before the
// publisher; the embedded server, if any, goes last.
func (p *PubSub) Close(ctx context.Context) error {
	var firstErr error

	if p.Subscriber != nil {
		if err := p.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close subscriber: %w", err)
		}
	}

	if p.Publisher != nil {
		if err := p.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close publisher: %w", err)
		}
	}

	if p.embedded != nil {
		if err := p.embedded.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown embedded server: %w", err)
		}
	}

	return firstErr
}

func shutdownEmbedded(srv *EmbeddedServer) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("embedded NATS shutdown failed")
	}
}
