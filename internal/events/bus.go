// Package events provides a publish/subscribe event bus for briefing
// activity. Components (aggregator, summary generator, settings writer,
// MQTT publisher) publish; the WebSocket stream handler subscribes. The
// bus is nil-safe: calling Publish on a nil *Bus is a no-op, so
// components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAggregator identifies events from the context fan-out.
	SourceAggregator = "aggregator"
	// SourceSummary identifies events from the summary generator.
	SourceSummary = "summary"
	// SourceSettings identifies events from the behavior settings writer.
	SourceSettings = "settings"
	// SourceMQTT identifies events from the MQTT publisher.
	SourceMQTT = "mqtt"
)

// Kind constants describe the type of event within a source.
const (
	// KindFetchFailed signals a context source that was treated as absent.
	// Data: provider, error, duration_ms.
	KindFetchFailed = "fetch_failed"
	// KindAggregated signals that every launched fetch has settled.
	// Data: weather, calendar, news, commute (bool presence), elapsed_ms.
	KindAggregated = "aggregated"

	// KindAIUnavailable signals a fallback from the generative backend.
	// Data: model, family, reason.
	KindAIUnavailable = "ai_unavailable"
	// KindGenerated signals a finished summary.
	// Data: greeting, summary, last_updated, strategy, input_tokens,
	// output_tokens.
	KindGenerated = "generated"

	// KindInvalidated signals the settings cache was cleared after a write.
	// Data: keys.
	KindInvalidated = "invalidated"

	// KindPublished signals summary sensors were pushed to the broker.
	// Data: strategy.
	KindPublished = "published"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
