package memdispatch

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// topicBus is a per-topic fan-out bus. Delivery is non-blocking: a full subscriber drops the event.
type topicBus[T any] struct {
	mu   sync.RWMutex
	subs map[string][]chan T
}

func newTopicBus[T any]() *topicBus[T] {
	return &topicBus[T]{subs: make(map[string][]chan T)}
}

func (b *topicBus[T]) Publish(topic string, e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber that is removed and closed when ctx ends.
func (b *topicBus[T]) Subscribe(ctx context.Context, topic string) <-chan T {
	ch := make(chan T, subscriberBuffer)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(topic, ch)
	}()
	return ch
}

func (b *topicBus[T]) unsubscribe(topic string, sub chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, ch := range subs {
		if ch == sub {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

func (b *topicBus[T]) subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
