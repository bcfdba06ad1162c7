// Package pubsub carries change notifications from the stores to whoever
// renders them. Listeners run synchronously inside Publish; subscriptions
// receive a buffered channel suited for streaming over SSE.
package pubsub

import (
	"context"
	"encoding/json"
)

const (
	// TopicInvestigations announces changes to the project/investigation tree
	TopicInvestigations = "investigations"
	// TopicTraffic announces changes to the traffic simulation state
	TopicTraffic = "traffic"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // e.g. "investigations", "traffic"
	Type    string          `json:"type"`    // e.g. "switched", "edges_changed", "restored"
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Per-topic sequence number
}

// Listener is called synchronously for every event on its topic
type Listener func(Event)

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new channel subscription to a topic.
	// Context cancellation will close the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Listen registers a synchronous listener and returns a function removing it
	Listen(topic string, fn Listener) (cancel func())

	// Publish sends an event to all listeners and subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// InvestigationsChanged is the payload of TopicInvestigations events
type InvestigationsChanged struct {
	ActiveID       string `json:"active_id,omitempty"`
	Projects       int    `json:"projects"`
	Investigations int    `json:"investigations"`
}

// TrafficChanged is the payload of TopicTraffic events
type TrafficChanged struct {
	Mode         string `json:"mode"`
	RemovedEdges int    `json:"removed_edges"` // consolidated count, two-way closures count once
	HasResults   bool   `json:"has_results"`
	Restoring    bool   `json:"restoring"`
}
