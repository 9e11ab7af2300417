// Package utils holds small lifecycle and channel helpers shared across
// services.
package utils

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// StartStopOnce contains a StartStopOnceState integer.
// Services embed it to guard their Start/Close methods against double calls.
type StartStopOnce struct {
	state atomic.Int32
}

type startStopOnceState int32

const (
	startStopOnceUnstarted startStopOnceState = iota
	startStopOnceStarted
	startStopOnceStopped
)

// StartOnce runs fn only on the first Start call.
func (once *StartStopOnce) StartOnce(name string, fn func() error) error {
	success := once.state.CAS(int32(startStopOnceUnstarted), int32(startStopOnceStarted))
	if !success {
		return errors.Errorf("%v has already started once", name)
	}
	return fn()
}

// StopOnce runs fn only on the first Close call after a successful Start.
func (once *StartStopOnce) StopOnce(name string, fn func() error) error {
	success := once.state.CAS(int32(startStopOnceStarted), int32(startStopOnceStopped))
	if !success {
		return errors.Errorf("%v has already stopped once", name)
	}
	return fn()
}

// Started reports whether Start has been called.
func (once *StartStopOnce) Started() bool {
	return once.state.Load() == int32(startStopOnceStarted)
}

// Mailbox contains a notify channel, a mutual exclusive lock, a queue of
// items, and a queue capacity. Deliver never blocks: when the queue is at
// capacity the oldest item is dropped.
type Mailbox[T any] struct {
	mu       sync.Mutex
	chNotify chan struct{}
	queue    []T
	capacity uint64
}

// NewMailbox creates a new mailbox instance. A capacity of 0 means unbounded.
func NewMailbox[T any](capacity uint64) *Mailbox[T] {
	return &Mailbox[T]{
		chNotify: make(chan struct{}, 1),
		capacity: capacity,
	}
}

// Notify returns the contents of the notify channel.
func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.chNotify
}

// Deliver appends to the queue and returns true if the queue was over
// capacity and the oldest unprocessed item was dropped.
func (m *Mailbox[T]) Deliver(x T) (wasOverCapacity bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append([]T{x}, m.queue...)
	if uint64(len(m.queue)) > m.capacity && m.capacity > 0 {
		m.queue = m.queue[:len(m.queue)-1]
		wasOverCapacity = true
	}

	select {
	case m.chNotify <- struct{}{}:
	default:
	}
	return
}

// Retrieve fetches the oldest item still in the queue.
func (m *Mailbox[T]) Retrieve() (t T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return
	}
	t = m.queue[len(m.queue)-1]
	m.queue = m.queue[:len(m.queue)-1]
	ok = true
	return
}

// RetrieveLatestAndClear returns the newest item and drops everything else.
func (m *Mailbox[T]) RetrieveLatestAndClear() (t T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return
	}
	t = m.queue[0]
	m.queue = nil
	ok = true
	return
}
