package progress

import (
	"slices"
	"sync"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Events are dropped if a subscriber falls this far behind.
	subscriberBufferSize = 256
	// backlogSize is how many recent events a late subscriber is replayed.
	backlogSize = 128
	// DefaultClosedTopics is how many finished jobs keep their backlog.
	DefaultClosedTopics = 64
)

// Broker fans job events out to stream subscribers. It is safe for concurrent use.
//
// Closed topics are kept as markers so a subscriber arriving after the job
// finished gets its backlog and then a closed channel instead of blocking.
// Only the most recently closed topics are kept; older ones are evicted.
type Broker struct {
	mu        sync.Mutex
	topics    map[string]*topic
	closed    []string // closed job ids, oldest first
	maxClosed int
}

type topic struct {
	subs    map[int]chan Event
	nextID  int
	closed  bool
	backlog []Event
}

func NewBroker() *Broker {
	return NewBrokerWithLimit(DefaultClosedTopics)
}

// NewBrokerWithLimit returns a broker that retains at most maxClosed finished
// topics. A non-positive limit uses DefaultClosedTopics.
func NewBrokerWithLimit(maxClosed int) *Broker {
	if maxClosed <= 0 {
		maxClosed = DefaultClosedTopics
	}
	return &Broker{topics: make(map[string]*topic), maxClosed: maxClosed}
}

func (b *Broker) topic(jobID string) *topic {
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[jobID] = t
	}
	return t
}

// Subscribe returns a channel of events for the job, primed with the recent
// backlog, and an unsubscribe function.
func (b *Broker) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	ch := make(chan Event, subscriberBufferSize+backlogSize)
	for _, e := range t.backlog {
		ch <- e
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}

// Publish delivers an event to every subscriber of the job. Events are dropped
// for subscribers whose buffers are full.
func (b *Broker) Publish(jobID string, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	if t.closed {
		return
	}
	t.backlog = append(t.backlog, e)
	if len(t.backlog) > backlogSize {
		t.backlog = t.backlog[len(t.backlog)-backlogSize:]
	}
	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close ends the job's stream. Subscriber channels are closed.
func (b *Broker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	if t.closed {
		return
	}
	t.closed = true
	b.closed = append(b.closed, jobID)
	for len(b.closed) > b.maxClosed {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}

// Forget drops a topic and its backlog.
func (b *Broker) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[jobID]; ok {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, jobID)
	}
	b.closed = slices.DeleteFunc(b.closed, func(id string) bool { return id == jobID })
}

// Sink returns a Sink that publishes to the job's topic and closes it after
// the terminal event.
func (b *Broker) Sink(jobID string) Sink {
	return SinkFunc(func(e Event) {
		b.Publish(jobID, e)
		if e.Terminal() {
			b.Close(jobID)
		}
	})
}

// Has reports whether the broker holds a topic for the job.
func (b *Broker) Has(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.topics[jobID]
	return ok
}
