// Package stream fans one producer out to independent subscribers. A slow
// subscriber loses its oldest queued values; the producer never blocks.
package stream

import (
	"errors"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("broadcaster closed")

type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

type Subscription[T any] struct {
	b       *Broadcaster[T]
	ch      chan T
	dropped atomic.Uint64
	once    sync.Once
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a subscriber queueing up to depth values.
func (b *Broadcaster[T]) Subscribe(depth int) (*Subscription[T], error) {
	if depth < 1 {
		depth = 1
	}
	s := &Subscription[T]{b: b, ch: make(chan T, depth)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Publish hands v to every subscriber without blocking. Ordering is only
// kept for values from the same goroutine.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.push(v)
	}
}

// Flush discards values queued but not yet received by subscribers.
func (b *Broadcaster[T]) Flush() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.drain()
	}
}

func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriber channels. Later Subscribe calls fail.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

func (s *Subscription[T]) push(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription[T]) drain() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}

// C is closed when the subscription is closed or the broadcaster closes.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped counts values evicted by newer ones.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
