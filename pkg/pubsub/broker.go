package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ritzau/bluecity/pkg/logging"
)

// TopicConfig configures buffering behavior for a topic
type TopicConfig struct {
	BufferSize int  // Number of events to buffer (0 = no buffering)
	ReplayAll  bool // If true, replay all buffered events; if false, only replay last event
}

// Broker implements Publisher in memory
type Broker struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*subscription]bool // topic -> set of subscriptions
	listeners     map[string][]*listenerEntry
	version       map[string]int
	eventBuffer   map[string][]Event
	topicConfig   map[string]TopicConfig
	closed        bool
}

type listenerEntry struct {
	fn Listener
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		subscriptions: make(map[string]map[*subscription]bool),
		listeners:     make(map[string][]*listenerEntry),
		version:       make(map[string]int),
		eventBuffer:   make(map[string][]Event),
		topicConfig:   make(map[string]TopicConfig),
	}
}

// ConfigureTopic sets buffering configuration for a topic
func (b *Broker) ConfigureTopic(topic string, config TopicConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicConfig[topic] = config
}

// Version returns the number of events published on a topic so far
func (b *Broker) Version(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version[topic]
}

// Listen registers a synchronous listener
func (b *Broker) Listen(topic string, fn Listener) func() {
	entry := &listenerEntry{fn: fn}

	b.mu.Lock()
	b.listeners[topic] = append(b.listeners[topic], entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.listeners[topic]
		for i, e := range entries {
			if e == entry {
				b.listeners[topic] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Subscribe creates a new subscription to a topic
func (b *Broker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker is closed")
	}

	sub := &subscription{
		topic:  topic,
		events: make(chan Event, 100), // Buffered to prevent blocking publishers
		broker: b,
	}

	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[*subscription]bool)
	}
	b.subscriptions[topic][sub] = true

	// Copy the replay set while holding the lock
	config := b.topicConfig[topic]
	replay := b.eventBuffer[topic]
	if !config.ReplayAll && len(replay) > 0 {
		replay = replay[len(replay)-1:]
	}
	replay = append([]Event(nil), replay...)

	b.mu.Unlock()

	for _, event := range replay {
		select {
		case sub.events <- event:
		default:
			logging.Warn("could not replay event to new subscriber", "topic", topic)
		}
	}
	if len(replay) > 0 {
		logging.Trace("replayed events to new subscriber", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish sends an event to listeners and subscribers of a topic
func (b *Broker) Publish(topic string, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}

	b.version[topic]++
	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    jsonData,
		Version: b.version[topic],
	}

	if config := b.topicConfig[topic]; config.BufferSize > 0 {
		buffer := append(b.eventBuffer[topic], event)
		if len(buffer) > config.BufferSize {
			buffer = buffer[len(buffer)-config.BufferSize:]
		}
		b.eventBuffer[topic] = buffer
	}

	for sub := range b.subscriptions[topic] {
		select {
		case sub.events <- event:
		default:
			logging.Warn("subscription channel full, dropping event", "topic", topic)
		}
	}

	listeners := append([]*listenerEntry(nil), b.listeners[topic]...)
	b.mu.Unlock()

	// Listeners may publish in turn, so they run outside the lock
	for _, l := range listeners {
		l.fn(event)
	}
	return nil
}

// Close shuts down the broker and all subscriptions
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for sub := range subs {
			sub.closeEvents()
		}
	}
	b.subscriptions = make(map[string]map[*subscription]bool)
	b.listeners = make(map[string][]*listenerEntry)

	return nil
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs := b.subscriptions[sub.topic]; subs != nil && subs[sub] {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscriptions, sub.topic)
		}
		sub.closeEvents()
	}
}

type subscription struct {
	topic  string
	events chan Event
	broker *Broker
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Events() <-chan Event {
	return s.events
}

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.broker.unsubscribe(s)
	return nil
}

func (s *subscription) closeEvents() {
	s.once.Do(func() { close(s.events) })
}
