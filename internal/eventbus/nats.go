/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/gjallar/internal/events"
)

// NATSBus is a NATS-backed event bus. Subjects follow the pattern
// gjallar.events.{event_type}; reconnection is handled by the client, and
// delivery degrades to the in-memory bus while the connection is down.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu            sync.RWMutex
	subs          map[events.EventType][]events.Subscriber
	subscriptions map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed event bus. If the server is unreachable
// at startup the bus comes up in fallback mode; the fallback carries all
// traffic until a connection is established.
func NewNATSBus(cfg NATSConfig, instanceID string, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()

	nb := &NATSBus{
		logger:        logger,
		fallback:      events.NewBus(),
		nodeID:        generateNodeID(instanceID),
		subs:          make(map[events.EventType][]events.Subscriber),
		subscriptions: make(map[events.EventType]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name("gjallar-" + nb.nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected, buffering through in-memory fallback")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, using in-memory fallback")
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", cfg.URL).Msg("NATS event bus initialized")
	return nb, nil
}

func subjectName(eventType events.EventType) string {
	return "gjallar.events." + string(eventType)
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.conn == nil {
		return nb.fallback.Subscribe(eventType)
	}

	sub := make(events.Subscriber, 100)
	nb.subs[eventType] = append(nb.subs[eventType], sub)

	// One NATS subscription per event type, fanned out to local
	// subscribers.
	if _, exists := nb.subscriptions[eventType]; !exists {
		natsSub, err := nb.conn.Subscribe(subjectName(eventType), func(msg *nats.Msg) {
			nb.deliver(eventType, msg.Data)
		})
		if err != nil {
			nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed")
		} else {
			nb.subscriptions[eventType] = natsSub
		}
	}

	return sub
}

func (nb *NATSBus) deliver(eventType events.EventType, data []byte) {
	busMsg, err := unmarshalMessage(data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
		return
	}
	if busMsg.NodeID == nb.nodeID {
		return
	}

	nb.mu.RLock()
	subs := append([]events.Subscriber(nil), nb.subs[eventType]...)
	nb.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- busMsg.Payload:
		default:
			nb.logger.Warn().Str("event_type", string(eventType)).Msg("subscriber channel full, dropping event")
		}
	}
}

// Publish sends an event payload to all subscribers, local and remote.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	if nb.conn == nil || !nb.conn.IsConnected() {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(subjectName(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	subs := nb.subs[eventType]
	found := false
	for i, s := range subs {
		if s == sub {
			nb.subs[eventType] = append(subs[:i], subs[i+1:]...)
			found = true
			break
		}
	}

	if !found {
		nb.fallback.Unsubscribe(eventType, sub)
		return
	}
	close(sub)

	if len(nb.subs[eventType]) == 0 {
		if natsSub, exists := nb.subscriptions[eventType]; exists {
			if err := natsSub.Unsubscribe(); err != nil {
				nb.logger.Warn().Err(err).Msg("NATS unsubscribe failed")
			}
			delete(nb.subscriptions, eventType)
		}
	}
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
