package event

import "context"

// Publisher receives progress events from the orchestrator.
type Publisher interface {
	// Publish delivers events in order.
	Publish(ctx context.Context, events ...Event) error

	// Close releases any resources held by the publisher.
	Close() error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, events ...Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, events ...Event) error {
	return f(ctx, events...)
}

// Close is a no-op.
func (f PublisherFunc) Close() error {
	return nil
}
