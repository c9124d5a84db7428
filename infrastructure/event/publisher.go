// Package event provides progress event publishing infrastructure.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/omni/domain/event"
)

// Publisher writes events to an optional store and fans them out to sinks.
// Events are delivered in publish order.
type Publisher struct {
	store   event.Store
	sinks   []event.Publisher
	buffer  []event.Event
	bufSize int
	mu      sync.Mutex
}

// PublisherOption configures the publisher.
type PublisherOption func(*Publisher)

// WithStore persists every event to store.
func WithStore(store event.Store) PublisherOption {
	return func(p *Publisher) {
		p.store = store
	}
}

// WithSink adds a downstream publisher (renderer, metrics, recorder).
func WithSink(sink event.Publisher) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithBufferSize batches store writes. Sinks are never buffered.
func WithBufferSize(size int) PublisherOption {
	return func(p *Publisher) {
		p.bufSize = size
	}
}

// NewPublisher creates a new event publisher.
func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize > 0 {
		p.buffer = make([]event.Event, 0, p.bufSize)
	}
	return p
}

// Publish delivers events to every sink, then to the store. All targets are
// attempted; their errors are joined.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}

	if p.store != nil {
		if p.bufSize == 0 {
			errs = append(errs, p.store.Append(ctx, events...))
		} else {
			p.buffer = append(p.buffer, events...)
			if len(p.buffer) >= p.bufSize {
				errs = append(errs, p.flush(ctx))
			}
		}
	}
	return errors.Join(errs...)
}

// Flush writes all buffered events to the store.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(ctx)
}

// flush writes buffered events to the store (must hold lock).
func (p *Publisher) flush(ctx context.Context) error {
	if p.store == nil || len(p.buffer) == 0 {
		return nil
	}
	if err := p.store.Append(ctx, p.buffer...); err != nil {
		return err
	}
	p.buffer = p.buffer[:0]
	return nil
}

// Close flushes remaining events and closes every sink.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := []error{p.flush(context.Background())}
	for _, sink := range p.sinks {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

// Ensure Publisher implements event.Publisher
var _ event.Publisher = (*Publisher)(nil)

// Recorder is an in-memory sink that keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records events.
func (r *Recorder) Publish(_ context.Context, events ...event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error {
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Categories returns the recorded categories in order, with self-correction
// failures reported as "self-correction".
func (r *Recorder) Categories() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		if e.SelfCorrection {
			out[i] = "self-correction"
		} else {
			out[i] = string(e.Category)
		}
	}
	return out
}

var _ event.Publisher = (*Recorder)(nil)
