// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue implements the bounded FIFO queue engine (C4): a
// thread-safe queue of wire.Item values with put/get blocking semantics and
// task-accounting (task_done/join), as described by spec.md §4.4.
package queue

import (
	"errors"
	"sync"
	"time"

	"code.hybscloud.com/wukong/wire"
)

var (
	// ErrFull is returned by a non-blocking or timed-out Put that finds no
	// space.
	ErrFull = errors.New("queue: full")

	// ErrEmpty is returned by a non-blocking or timed-out Get that finds
	// nothing.
	ErrEmpty = errors.New("queue: empty")

	// ErrInvalidState is returned by TaskDone when there is no unfinished
	// put to acknowledge.
	ErrInvalidState = errors.New("queue: task_done called more times than put")

	// ErrClosed is returned to any blocked Put/Get/Join when Close is
	// called, so that callers (server workers) can unwind instead of
	// hanging on a queue instance that will never make progress again.
	ErrClosed = errors.New("queue: closed")
)

// Engine is a bounded, thread-safe FIFO queue of wire.Item values, plus a
// task-accounting counter for task_done/join.
//
// Blocking waits are built on sync.Cond rather than buffered channels
// because task accounting and Reset need to wake every waiter at once
// (Cond.Broadcast) and because a bounded Put must block on a *different*
// predicate (not full) than a bounded Get (not empty) while sharing one
// lock — exactly the two-condition-variable design spec.md §4.4 calls out
// as one of the two acceptable shapes.
type Engine struct {
	mu sync.Mutex

	notFull  *sync.Cond
	notEmpty *sync.Cond
	joinCond *sync.Cond

	items      []wire.Item
	capacity   uint64 // 0 = unbounded
	unfinished int64
	closed     bool
}

// NewEngine creates a queue with the given capacity (0 = unbounded).
func NewEngine(capacity uint64) *Engine {
	e := &Engine{capacity: capacity}
	e.notFull = sync.NewCond(&e.mu)
	e.notEmpty = sync.NewCond(&e.mu)
	e.joinCond = sync.NewCond(&e.mu)
	return e
}

func (e *Engine) isFullLocked() bool {
	return e.capacity > 0 && uint64(len(e.items)) >= e.capacity
}

// waitTimeout waits on cond, honoring an optional deadline by racing the
// cond's wakeup against a timer that broadcasts once it fires. The caller
// must hold e.mu, which Cond.Wait releases while parked and reacquires
// before returning.
func (e *Engine) waitTimeout(cond *sync.Cond, deadline time.Time) {
	if deadline.IsZero() {
		cond.Wait()
		return
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}
	timer := time.AfterFunc(remaining, func() {
		e.mu.Lock()
		cond.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// Put inserts item. If block is false, a full queue fails immediately with
// ErrFull. If block is true, it waits up to timeout (nil = forever) for
// space.
func (e *Engine) Put(item wire.Item, block bool, timeout *time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var deadline time.Time
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}

	for e.isFullLocked() {
		if e.closed {
			return ErrClosed
		}
		if !block {
			return ErrFull
		}
		if timeout != nil && !time.Now().Before(deadline) {
			return ErrFull
		}
		e.waitTimeout(e.notFull, deadline)
	}
	if e.closed {
		return ErrClosed
	}

	e.items = append(e.items, item)
	e.unfinished++
	e.notEmpty.Signal()
	return nil
}

// Get removes and returns the oldest item. If block is false, an empty
// queue fails immediately with ErrEmpty. If block is true, it waits up to
// timeout (nil = forever) for an item.
func (e *Engine) Get(block bool, timeout *time.Duration) (wire.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var deadline time.Time
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}

	for len(e.items) == 0 {
		if e.closed {
			return wire.Item{}, ErrClosed
		}
		if !block {
			return wire.Item{}, ErrEmpty
		}
		if timeout != nil && !time.Now().Before(deadline) {
			return wire.Item{}, ErrEmpty
		}
		e.waitTimeout(e.notEmpty, deadline)
	}
	if e.closed {
		return wire.Item{}, ErrClosed
	}

	item := e.items[0]
	e.items = e.items[1:]
	e.notFull.Signal()
	return item, nil
}

// QSize returns the current length.
func (e *Engine) QSize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.items))
}

// Capacity returns the configured capacity (0 = unbounded).
func (e *Engine) Capacity() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capacity
}

// Full reports whether the queue is at capacity.
func (e *Engine) Full() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isFullLocked()
}

// Empty reports whether the queue has no items.
func (e *Engine) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items) == 0
}

// Reset atomically drops current items and resets unfinished to 0. If
// newCapacity is non-nil, it becomes the new capacity.
//
// All current waiters are woken; a waiter blocked in Put simply re-checks
// its predicate against whatever items/capacity are current after the
// reset completes, i.e. Reset reclassifies blocked puts rather than
// failing them (the open question in spec.md §9, resolved in DESIGN.md).
func (e *Engine) Reset(newCapacity *uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = nil
	e.unfinished = 0
	if newCapacity != nil {
		e.capacity = *newCapacity
	}
	e.notFull.Broadcast()
	e.notEmpty.Broadcast()
	e.joinCond.Broadcast()
}

// TaskDone decrements the unfinished counter, waking Join waiters if it
// reaches zero. It fails with ErrInvalidState if unfinished is already 0.
func (e *Engine) TaskDone() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unfinished == 0 {
		return ErrInvalidState
	}
	e.unfinished--
	if e.unfinished == 0 {
		e.joinCond.Broadcast()
	}
	return nil
}

// Join blocks until every put has been matched by a task_done, or the
// engine is closed.
func (e *Engine) Join() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.unfinished > 0 {
		if e.closed {
			return ErrClosed
		}
		e.joinCond.Wait()
	}
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the engine closed and wakes every blocked Put/Get/Join so
// they unwind with ErrClosed instead of hanging forever. It never blocks on
// queue operations.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.notFull.Broadcast()
	e.notEmpty.Broadcast()
	e.joinCond.Broadcast()
}
