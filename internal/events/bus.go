// Package events implements the in-process event bus the core
// subsystems publish to, and the Server-Sent Events endpoint a local UI
// subscribes to.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfsyncapp/shelfsync-agent/internal/id"
)

// Well-known event names published by the core subsystems.
const (
	// EventSyncProgress carries a domain.TransferProgress payload, one
	// per transfer state transition.
	EventSyncProgress = "sync-progress"
	// EventDiscoveryUpdate carries the full []domain.DiscoveredHost
	// list, republished on every change.
	EventDiscoveryUpdate = "discovery-update"
	// EventLibraryUpdated carries the book count after a snapshot
	// refresh.
	EventLibraryUpdated = "library-updated"
	// EventHeartbeat is a connection keepalive.
	EventHeartbeat = "heartbeat"
)

// Event is a named payload delivered to subscribers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Data      any       `json:"data"`
}

// Publisher is the interface the core subsystems use to emit named
// payloads without depending on the delivery mechanism.
type Publisher interface {
	Publish(name string, data any)
}

// NoopPublisher is a no-op implementation of Publisher for testing.
type NoopPublisher struct{}

// Publish implements Publisher as a no-op.
func (NoopPublisher) Publish(string, any) {}

// Subscriber is one connected SSE client.
type Subscriber struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
}

// Bus fan-outs published events to all subscribers.
type Bus struct {
	subscribers map[string]*Subscriber
	events      chan Event
	logger      *slog.Logger
	wg          sync.WaitGroup
	mu          sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		events:      make(chan Event, 256),
		logger:      logger,
	}
}

// Start begins the broadcast loop. Call once, in a goroutine; returns
// when ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-b.events:
			if !ok {
				// Shutdown closed the queue; the drain goroutine owns
				// the remainder.
				return
			}
			b.broadcast(event)

		case <-heartbeat.C:
			b.broadcast(Event{Timestamp: time.Now(), Name: EventHeartbeat})

		case <-ctx.Done():
			b.logger.Info("event bus stopping")
			b.closeAllSubscribers()
			return
		}
	}
}

// Publish queues a named payload for broadcasting. Implements
// Publisher. Never blocks: if the queue is full the event is dropped
// and logged.
func (b *Bus) Publish(name string, data any) {
	// Hold the read lock through the send so Shutdown cannot close the
	// channel mid-send.
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if b.shutdown {
		return
	}

	event := Event{Timestamp: time.Now(), Name: name, Data: data}
	select {
	case b.events <- event:
	default:
		b.logger.Error("event queue full, dropping event", "event", name)
	}
}

// broadcast delivers an event to every subscriber, dropping it for
// subscribers whose buffers are full.
func (b *Bus) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.EventChan <- event:
		default:
			b.logger.Warn("dropped event for slow subscriber",
				"subscriber_id", sub.ID,
				"event", event.Name)
		}
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:          subID,
		EventChan:   make(chan Event, 64),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	total := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Info("event subscriber connected",
		"subscriber_id", subID,
		"total", total)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, subID)
	total := len(b.subscribers)
	b.mu.Unlock()

	close(sub.Done)
	close(sub.EventChan)

	b.logger.Info("event subscriber disconnected",
		"subscriber_id", subID,
		"duration", time.Since(sub.ConnectedAt),
		"total", total)
}

// SubscriberCount returns the number of connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Shutdown stops accepting new events, drains the queue, and closes all
// subscribers.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.shutdownMu.Lock()
	b.shutdown = true
	close(b.events)
	b.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range b.events {
			b.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("event drain timeout, some events may be lost")
	}

	b.wg.Wait()
	b.closeAllSubscribers()
	return nil
}

// closeAllSubscribers closes all subscriber connections (used during
// shutdown).
func (b *Bus) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.Done)
		close(sub.EventChan)
	}
	b.subscribers = make(map[string]*Subscriber)
}
