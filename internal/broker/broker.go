// Package broker is an in-process pub/sub for map view events, keyed by view ID.
package broker

import (
	"encoding/json"
	"sync"
)

// subscriberBuffer is the number of undelivered events a subscriber may hold
// before new events are dropped for it.
const subscriberBuffer = 32

// Event is the payload published to view subscribers.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Broker fans events out to subscribers of a topic.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for topic.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan []byte]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch from the topic's subscribers.
func (b *Broker) Unsubscribe(topic string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[topic], ch)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()
}

// Publish encodes data under eventType and sends it to every subscriber of topic.
func (b *Broker) Publish(topic, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: eventType, Data: raw})
	if err != nil {
		return err
	}

	b.mu.RLock()
	for ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
	return nil
}
