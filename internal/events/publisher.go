// Package events fans console events out to in-process observers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/pocketbench/internal/models"
)

// EventHandler is invoked when an event matches a subscription.
type EventHandler func(event *models.Event)

// Filter defines criteria for matching events.
type Filter struct {
	// EventTypes filters by event type (nil = all types).
	EventTypes []models.EventType

	// RunID filters to a single run (empty = all).
	RunID string
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}
	if len(f.EventTypes) > 0 {
		matched := false
		for _, t := range f.EventTypes {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.RunID != "" && event.RunID != f.RunID {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler EventHandler
}

// Publisher defines event publishing and subscription.
type Publisher interface {
	Publish(ctx context.Context, event *models.Event)
	Subscribe(filter Filter, handler EventHandler) (string, error)
	Unsubscribe(id string) error
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher with in-process pub/sub. Handlers run
// synchronously on the publishing goroutine, so events from one publisher
// reach each handler in publish order.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	order         []string
	now           func() time.Time
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.now = now
	}
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stamps the event with an ID and timestamp when missing and sends it
// to every matching subscriber in subscription order.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	p.mu.RLock()
	var handlers []EventHandler
	for _, id := range p.order {
		sub := p.subscriptions[id]
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Handlers run outside the lock so they may publish or unsubscribe.
	for _, handler := range handlers {
		if ctx.Err() != nil {
			return
		}
		handler(event)
	}
}

// Subscribe registers a handler and returns its subscription ID.
func (p *InMemoryPublisher) Subscribe(filter Filter, handler EventHandler) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	p.order = append(p.order, id)
	return id, nil
}

// SubscribeChannel delivers matching events on a buffered channel. Events are
// dropped when the channel is full; consumers treat events as change signals
// and re-read state. The channel is never closed.
func (p *InMemoryPublisher) SubscribeChannel(filter Filter, size int) (string, <-chan models.Event, error) {
	if size <= 0 {
		size = 1
	}
	ch := make(chan models.Event, size)
	id, err := p.Subscribe(filter, func(event *models.Event) {
		select {
		case ch <- *event:
		default:
		}
	})
	if err != nil {
		return "", nil, err
	}
	return id, ch, nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(p.subscriptions, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
	p.order = nil
}

// Errors for publisher operations.
var (
	ErrNilHandler           = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionNotFound = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}

// Notify publishes a notification event.
func Notify(ctx context.Context, p Publisher, severity models.Severity, text string) {
	if p == nil {
		return
	}
	p.Publish(ctx, &models.Event{
		Type:     models.EventTypeNotification,
		Severity: severity,
		Text:     text,
	})
}
