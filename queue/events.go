package queue

import (
	"slices"
	"sync"
	"time"
)

// EventType names a queue lifecycle event.
type EventType string

const (
	EventTaskQueued    EventType = "task:queued"
	EventTaskStarted   EventType = "task:started"
	EventTaskProgress  EventType = "task:progress"
	EventTaskCompleted EventType = "task:completed"
	EventTaskFailed    EventType = "task:failed"
	EventTaskCancelled EventType = "task:cancelled"
	EventQueueDrained  EventType = "queue:drained"
)

// Event is a lifecycle notification. Task is a snapshot without payload
// data; it is the zero Task for EventQueueDrained.
type Event struct {
	Type EventType
	Task Task
	Time time.Time
}

// Subscription receives events in publication order. Events are buffered
// without limit, so a slow reader never blocks the queue.
type Subscription struct {
	broker *broker
	types  []EventType
	ch     chan Event

	mu      sync.Mutex
	buf     []Event
	closing bool
	notify  chan struct{}

	stop chan struct{}
	once sync.Once
}

// Events returns the channel events are delivered on. It is closed after
// Unsubscribe, or once buffered events are delivered after the queue closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe stops delivery. Events still buffered are discarded. It is
// safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.stop)
		s.broker.remove(s)
	})
}

// Close stops delivery of new events. Events already buffered are still
// delivered before the channel closes, so the reader must keep receiving.
func (s *Subscription) Close() {
	s.broker.remove(s)
	s.finish()
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.buf = append(s.buf, ev)
	s.mu.Unlock()
	s.wake()
}

// finish delivers what is buffered, then closes the channel.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) forward() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch, closing := s.buf, s.closing
		s.buf = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.ch <- ev:
			case <-s.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}

		select {
		case <-s.notify:
		case <-s.stop:
			return
		}
	}
}

type broker struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

func (b *broker) subscribe(types []EventType) *Subscription {
	s := &Subscription{
		broker: b,
		types:  slices.Clone(types),
		ch:     make(chan Event),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go s.forward()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.finish()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

func (b *broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(other *Subscription) bool { return other == s })
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.wants(ev.Type) {
			s.push(ev)
		}
	}
}

// close lets every subscription drain and then closes its channel.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.finish()
	}
	b.subs = nil
}
