package events

import (
	"context"
	"errors"
	"sync"
)

// ErrBrokerClosed is returned by operations on a closed broker
var ErrBrokerClosed = errors.New("event broker is closed")

type subscription struct {
	checklistID string
	ch          chan ChecklistEvent
}

// LocalBroker is an in-process broker. It also does the final fan-out for
// the redis and postgres brokers.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewLocalBroker creates an empty in-process broker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[*subscription]struct{})}
}

// Publish delivers ev without blocking; full subscriber queues drop it
func (b *LocalBroker) Publish(_ context.Context, ev ChecklistEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for sub := range b.subs {
		if sub.checklistID != "" && sub.checklistID != ev.ChecklistID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done
func (b *LocalBroker) Subscribe(ctx context.Context, checklistID string) (<-chan ChecklistEvent, error) {
	sub := &subscription{
		checklistID: checklistID,
		ch:          make(chan ChecklistEvent, subscriberBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.remove(sub) })

	return sub.ch, nil
}

func (b *LocalBroker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Ping reports whether the broker accepts events
func (b *LocalBroker) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return nil
}

// Close closes every subscriber channel
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
	return nil
}
