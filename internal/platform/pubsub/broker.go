package pubsub

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

const defaultSubscriberBuffer = 16

// Broker fans events out to subscribers without letting a slow consumer
// block the publisher: deliveries run on a shared worker pool and are
// dropped when a subscriber's buffer is full.
type Broker[T any] struct {
	mu          sync.Mutex
	subscribers map[int]chan T
	nextID      int
	pool        *ants.Pool
	closed      bool
}

func NewBroker[T any](workerCount int) (*Broker[T], error) {
	if workerCount < 1 {
		workerCount = 1
	}

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, fmt.Errorf("create broker worker pool: %w", err)
	}

	return &Broker[T]{
		subscribers: make(map[int]chan T),
		pool:        pool,
	}, nil
}

// Subscribe registers a buffered channel for future events. The returned
// cancel func is idempotent and closes the channel.
func (b *Broker[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, defaultSubscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	subID := b.nextID
	b.nextID++
	b.subscribers[subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if existing, ok := b.subscribers[subID]; ok {
				delete(b.subscribers, subID)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// Publish schedules delivery of event to every current subscriber. It never
// blocks; if the pool rejects the task the event is delivered inline.
func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]chan T, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		ch := ch
		if err := b.pool.Submit(func() { trySend(ch, event) }); err != nil {
			trySend(ch, event)
		}
	}
}

// Close drops all subscribers and releases the pool. Publishing after Close
// is a no-op.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for subID, ch := range b.subscribers {
		delete(b.subscribers, subID)
		close(ch)
	}
	b.mu.Unlock()

	b.pool.Release()
}

func trySend[T any](ch chan T, event T) {
	defer func() {
		// Subscriber may have been cancelled between snapshot and delivery.
		_ = recover()
	}()
	select {
	case ch <- event:
	default:
	}
}
