// Package queue provides a thread-safe double-ended queue with blocking wait.
//
// A Deque is used once per connection for outbound messages and once per peer
// for the inbound messages shared by all of its connections.
package queue

import (
	"context"
	"sync"
)

// Deque is a mutex-protected double-ended queue.
//
// Every operation is atomic with respect to the others. Wait blocks until the
// deque is non-empty or closed; pushes wake exactly one waiter.
type Deque[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

// New creates an empty Deque.
func New[T any]() *Deque[T] {
	d := &Deque[T]{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// PushBack appends item and wakes one waiter.
func (d *Deque[T]) PushBack(item T) {
	d.mu.Lock()
	d.items = append(d.items, item)
	d.cond.Signal()
	d.mu.Unlock()
}

// PushFront prepends item and wakes one waiter.
func (d *Deque[T]) PushFront(item T) {
	d.mu.Lock()
	if d.head > 0 {
		d.head--
		d.items[d.head] = item
	} else {
		d.items = append(d.items, item)
		copy(d.items[1:], d.items[:len(d.items)-1])
		d.items[0] = item
	}
	d.cond.Signal()
	d.mu.Unlock()
}

// PopFront removes and returns the first item.
// ok is false when the deque is empty.
func (d *Deque[T]) PopFront() (item T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.head == len(d.items) {
		return item, false
	}
	var zero T
	item = d.items[d.head]
	d.items[d.head] = zero
	d.head++
	d.compact()
	return item, true
}

// PopBack removes and returns the last item.
// ok is false when the deque is empty.
func (d *Deque[T]) PopBack() (item T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.head == len(d.items) {
		return item, false
	}
	var zero T
	last := len(d.items) - 1
	item = d.items[last]
	d.items[last] = zero
	d.items = d.items[:last]
	d.compact()
	return item, true
}

// Front returns the first item without removing it.
func (d *Deque[T]) Front() (item T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.head == len(d.items) {
		return item, false
	}
	return d.items[d.head], true
}

// Back returns the last item without removing it.
func (d *Deque[T]) Back() (item T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.head == len(d.items) {
		return item, false
	}
	return d.items[len(d.items)-1], true
}

// Empty reports whether the deque holds no items.
func (d *Deque[T]) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head == len(d.items)
}

// Len returns the number of queued items.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items) - d.head
}

// Clear drops every queued item.
func (d *Deque[T]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = nil
	d.head = 0
}

// Wait blocks until the deque is non-empty or closed.
func (d *Deque[T]) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.head == len(d.items) && !d.closed {
		d.cond.Wait()
	}
}

// WaitContext is Wait with cancellation. It returns ctx.Err() if ctx ends
// before an item arrives.
func (d *Deque[T]) WaitContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for d.head == len(d.items) && !d.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.cond.Wait()
	}
	return nil
}

// Close wakes every waiter. Pushes and pops keep working after Close; only
// Wait stops blocking.
func (d *Deque[T]) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// compact reclaims the consumed prefix once it dominates the backing array.
// Must be called with mu held.
func (d *Deque[T]) compact() {
	if d.head == len(d.items) {
		d.items = d.items[:0]
		d.head = 0
		return
	}
	if d.head > 32 && d.head*2 > len(d.items) {
		n := copy(d.items, d.items[d.head:])
		clear(d.items[n:])
		d.items = d.items[:n]
		d.head = 0
	}
}
