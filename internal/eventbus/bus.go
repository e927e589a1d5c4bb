package eventbus

import "sync"

// Bus is a type-safe in-process publish/subscribe bus. Channel subscribers
// receive events non-blocking and may miss events when slow; handler
// subscribers run synchronously on Publish and never miss one. Lifecycle
// side effects that must not be dropped (vehicle lock release) use handler
// subscriptions, outward fan-out (webhooks, notifications) uses channels.
type Bus[T any] struct {
	mu       sync.RWMutex
	subs     []chan T
	handlers map[int]func(T)
	nextID   int
	closed   bool
}

// New creates a Bus.
func New[T any]() *Bus[T] { return &Bus[T]{handlers: make(map[int]func(T))} }

// Publish delivers the event to all subscribers. Handler subscribers run
// inline; channel delivery is non-blocking.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, fn := range b.handlers {
		fn(e)
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a channel subscriber.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, 16)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// SubscribeFunc registers a synchronous handler and returns its remover.
func (b *Bus[T]) SubscribeFunc(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if !b.closed {
		b.handlers[id] = fn
	}
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Unsubscribe removes a channel subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and drops handlers.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.handlers = map[int]func(T){}
	b.mu.Unlock()
}
