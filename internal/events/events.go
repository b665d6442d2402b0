// Package events publishes domain events for push gateways and other
// consumers outside this process.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	StockMoved         = "stock.moved"
	CashbackGranted    = "cashback.granted"
	DayClosed          = "day.closed"
)

type Event struct {
	Type       string            `json:"type"`
	Key        string            `json:"key"`
	CustomerID string            `json:"customer_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    any               `json:"payload,omitempty"`
	At         time.Time         `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
