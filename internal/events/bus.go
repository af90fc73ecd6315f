// Package events implements the process-wide bus that announces entity
// lifecycle changes and fetch activity to subscribers.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"linkstash/internal/domain"
)

// Name identifies an event kind.
type Name string

const (
	LinkAdded       Name = "LinkAdded"
	LinkUpdated     Name = "LinkUpdated"
	LinkDeleted     Name = "LinkDeleted"
	TagAdded        Name = "TagAdded"
	TagUpdated      Name = "TagUpdated"
	TagDeleted      Name = "TagDeleted"
	GroupAdded      Name = "GroupAdded"
	GroupUpdated    Name = "GroupUpdated"
	GroupDeleted    Name = "GroupDeleted"
	FetchingStarted Name = "FetchingStarted"
	FetchingEnded   Name = "FetchingEnded"
)

// Names lists every event kind.
var Names = []Name{
	LinkAdded, LinkUpdated, LinkDeleted,
	TagAdded, TagUpdated, TagDeleted,
	GroupAdded, GroupUpdated, GroupDeleted,
	FetchingStarted, FetchingEnded,
}

// Payload carries the affected entity. Only the field matching the event
// kind is set. OriginalURL is set on LinkAdded to the URL as submitted.
type Payload struct {
	Link        *domain.Link
	Tag         *domain.Tag
	Group       *domain.Group
	OriginalURL string
}

// Event is what subscribers receive.
type Event struct {
	Name    Name
	Payload Payload
}

// Handler receives published events.
type Handler func(Event)

// Publisher is the publishing half of the bus.
type Publisher interface {
	Publish(name Name, payload Payload)
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous named-event bus. Handlers run on the publishing
// goroutine in subscription order, so a subscriber observes events in
// publish order. There is no backpressure.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Name][]subscriber
	nextID uint64
	log    logrus.FieldLogger
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger logrus.FieldLogger) *Bus {
	return &Bus{
		subs: make(map[Name][]subscriber),
		log:  logger.WithField("component", "event_bus"),
	}
}

// Subscription is returned by Subscribe and detaches the handler.
type Subscription struct {
	bus  *Bus
	name Name
	id   uint64
	once sync.Once
}

// Subscribe registers handler for events named name.
func (b *Bus) Subscribe(name Name, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscriber{id: id, handler: handler})
	b.log.WithFields(logrus.Fields{"event": name, "subscription_id": id}).Debug("Subscribed")

	return &Subscription{bus: b, name: name, id: id}
}

// Unsubscribe detaches the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.name, s.id)
	})
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub.id == id {
			// Copy so that an in-flight Publish keeps its snapshot intact.
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[name] = next
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Publish delivers the event to every current subscriber of name. A
// panicking handler is logged and does not affect the other handlers.
func (b *Bus) Publish(name Name, payload Payload) {
	b.mu.RLock()
	subs := b.subs[name]
	b.mu.RUnlock()

	event := Event{Name: name, Payload: payload}
	for _, sub := range subs {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"event":           event.Name,
				"subscription_id": sub.id,
				"panic":           r,
			}).Error("Event handler panicked")
		}
	}()
	sub.handler(event)
}
