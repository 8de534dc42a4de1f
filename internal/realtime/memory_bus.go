package realtime

import (
	"context"
	"sync"
)

const defaultMemoryBuffer = 64

// MemoryBus es un bus en proceso. Cada suscripcion tiene su propia cola y
// goroutine, de modo que un handler lento no bloquea a los demas.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
}

type memorySubscription struct {
	*subscription
	queue chan Notification
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: defaultMemoryBuffer,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, n Notification) error {
	if err := n.validate(); err != nil {
		return err
	}

	b.mu.RLock()
	targets := make([]*memorySubscription, 0, len(b.subs[n.ConversationID]))
	for sub := range b.subs[n.ConversationID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.queue <- n:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, conversationID string, h Handler) (Subscription, error) {
	if err := validateSubscribe(conversationID, h); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		subscription: newSubscription(conversationID, cancel),
		queue:        make(chan Notification, b.buffer),
	}

	b.mu.Lock()
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[*memorySubscription]struct{})
	}
	b.subs[conversationID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer b.remove(sub)
		for {
			select {
			case <-subCtx.Done():
				return
			case n := <-sub.queue:
				h(subCtx, n)
			}
		}
	}()

	return sub, nil
}

// Subscribers devuelve cuantas suscripciones vivas tiene una conversacion.
func (b *MemoryBus) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.conversationID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.conversationID)
	}
}
