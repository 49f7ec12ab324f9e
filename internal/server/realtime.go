package server

import (
	"context"
	"sync"
	"time"
)

const (
	realtimeEventClick     = "click"
	realtimeEventHeartbeat = "heartbeat"
)

// ClickEvent is broadcast to connected admin dashboards whenever a click
// lands in the ledger.
type ClickEvent struct {
	SiteID       string    `json:"site_id"`
	SiteName     string    `json:"site_name"`
	GlobalClicks int64     `json:"global_clicks"`
	UniqueUsers  int64     `json:"unique_users"`
	Timestamp    time.Time `json:"timestamp"`
}

// ClickEventDispatcher fans click events out to every subscribed stream.
// Sends never block; a subscriber that cannot keep up misses events rather
// than stalling the click path.
type ClickEventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*clickEventSubscriber
	nextID      int64
	bufferSize  int
}

type clickEventSubscriber struct {
	id     int64
	stream chan ClickEvent
}

// NewClickEventDispatcher constructs an empty dispatcher.
func NewClickEventDispatcher() *ClickEventDispatcher {
	return &ClickEventDispatcher{
		subscribers: make(map[int64]*clickEventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that receives future click events until the
// context is cancelled or the returned cleanup runs.
func (d *ClickEventDispatcher) Subscribe(ctx context.Context) (<-chan ClickEvent, func()) {
	subscriber := &clickEventSubscriber{
		stream: make(chan ClickEvent, d.bufferSize),
	}

	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, subscriber.id)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event to every subscriber with room in its buffer.
func (d *ClickEventDispatcher) Publish(event ClickEvent) {
	if event.SiteID == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*clickEventSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}
