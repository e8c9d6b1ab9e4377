package pubsub

import "context"

// Listener wraps a subscription for pull-style consumers such as the CLI
// watch loop.
type Listener[T any] struct {
	ch <-chan Event[T]
}

// NewListener subscribes to broker. The subscription ends when ctx is
// cancelled.
func NewListener[T any](ctx context.Context, broker Subscriber[T], types ...EventType) *Listener[T] {
	return &Listener[T]{ch: broker.Subscribe(ctx, types...)}
}

// Next blocks until an event arrives. It returns false once ctx is done or the
// subscription is closed.
func (l *Listener[T]) Next(ctx context.Context) (Event[T], bool) {
	select {
	case <-ctx.Done():
		return Event[T]{}, false
	case event, ok := <-l.ch:
		return event, ok
	}
}

// C exposes the underlying channel for use in select statements.
func (l *Listener[T]) C() <-chan Event[T] {
	return l.ch
}
