package server

import (
	"context"
	"sync"
	"time"
)

const (
	sseEventArchive   = "archive-event"
	sseEventHeartbeat = "heartbeat"
)

// ArchiveEvent describes a change to shared ambient state (temperature or
// broadcast) pushed to every connected session.
type ArchiveEvent struct {
	Kind      string
	Text      string
	Timestamp time.Time
}

// EventDispatcher fans archive events out to subscribers. The ambient state
// is shared by all sessions, so every subscriber receives every event; a
// subscriber that falls behind its buffer silently misses events rather
// than blocking the publisher.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan ArchiveEvent
}

// NewEventDispatcher constructs a dispatcher with a small per-subscriber
// buffer.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that receives all future events until the
// context is done or the cleanup function runs.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan ArchiveEvent, func()) {
	subscriber := &eventSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ArchiveEvent, d.bufferSize),
	}

	d.mu.Lock()
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

// Publish delivers the event to every current subscriber without blocking.
func (d *EventDispatcher) Publish(event ArchiveEvent) {
	if event.Kind == "" {
		return
	}

	d.mu.RLock()
	copies := make([]*eventSubscriber, 0, len(d.subscribers))
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

func (d *EventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}
