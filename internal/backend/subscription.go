package backend

import (
	"context"
	"sync"
	"sync/atomic"
)

type Subscription struct {
	path    string
	ch      chan Snapshot
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	broker  *broker
}

func (s *Subscription) Path() string { return s.path }

// C yields snapshots until the subscription is closed.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Dropped counts snapshots lost because the consumer fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

// broker fans snapshots out to subscribers without blocking publishers.
type broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func newBroker(buffer int) *broker {
	if buffer <= 0 {
		buffer = 1
	}
	return &broker{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// add registers a subscriber and queues its initial snapshots first, so no
// later change can overtake them.
func (b *broker) add(ctx context.Context, path string, initial []Snapshot) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{
		path:   path,
		ch:     make(chan Snapshot, b.buffer+len(initial)),
		done:   make(chan struct{}),
		broker: b,
	}
	for _, snap := range initial {
		sub.ch <- snap
	}
	b.subs[sub] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (b *broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

func (b *broker) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !under(snap.Path, sub.path) {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.closed = true
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
