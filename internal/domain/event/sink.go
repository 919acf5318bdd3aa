package event

import (
	"context"
	"errors"
	"sync"
)

// Sink receives transitions after the operation that produced them commits.
type Sink interface {
	Publish(ctx context.Context, transitions []Transition) error
}

// MultiSink fans transitions out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, transitions []Transition) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, transitions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffer is an in-memory Sink that keeps every published transition.
type Buffer struct {
	mu          sync.Mutex
	transitions []Transition
}

func (b *Buffer) Publish(_ context.Context, transitions []Transition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, transitions...)
	return nil
}

// Transitions returns a copy of everything published so far.
func (b *Buffer) Transitions() []Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transition(nil), b.transitions...)
}

// Ops returns the operation names in publish order.
func (b *Buffer) Ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]string, len(b.transitions))
	for i, t := range b.transitions {
		ops[i] = t.Op
	}
	return ops
}
