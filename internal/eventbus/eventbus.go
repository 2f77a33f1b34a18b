/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides distributed backends for the in-process event
// bus, so roll lifecycle events reach dashboards in other processes. Every
// backend keeps an in-memory bus for same-node delivery and degrades to it
// when the broker is unreachable.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/gjallar/internal/events"
)

// Bus is the publishing surface shared by all backends.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Publish(eventType events.EventType, payload events.Payload)
	Close() error
}

// memoryBus wraps the in-process bus to satisfy Bus.
type memoryBus struct {
	*events.Bus
}

// NewMemoryBus returns the in-process-only backend.
func NewMemoryBus() Bus {
	return memoryBus{events.NewBus()}
}

func (memoryBus) Close() error { return nil }

// message is the wire format shared by the Redis and NATS backends.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}

// generateNodeID builds a unique per-process node identity for echo
// suppression.
func generateNodeID(instanceID string) string {
	if instanceID != "" {
		return instanceID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "gjallar"
	}
	return host + "-" + uuid.NewString()[:8]
}
