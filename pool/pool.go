// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements a bounded pool of connections to a wukong server
// (C7): Acquire hands out an idle connection or dials a fresh one up to a
// configured capacity, Release returns it for reuse, as described by
// spec.md §4.7 and §6.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"code.hybscloud.com/wukong/internal/authhash"
	"code.hybscloud.com/wukong/transport"
	"code.hybscloud.com/wukong/wire"
)

// ErrAtCapacity is returned by Acquire when MaxConnections connections are
// already open and none is idle.
var ErrAtCapacity = errors.New("pool: at capacity")

// ErrPoolClosed is returned by Acquire/AcquireWait once the pool has been
// closed.
var ErrPoolClosed = errors.New("pool: closed")

// ErrAuthFailed is returned when the server rejects the pool's auth key.
var ErrAuthFailed = errors.New("pool: auth failed")

// Pool hands out bounded, reusable connections to one host:port.
type Pool struct {
	host string
	port int
	opts Options
	log  *logrus.Entry

	sem *semaphore.Weighted // nil when unbounded

	mu     sync.Mutex
	idle   []*Conn
	inUse  int
	closed bool
}

// Conn is one pooled connection, checked out via Acquire and returned via
// Release.
type Conn struct {
	ID   uuid.UUID
	conn *transport.Conn
}

// ReadFrame and WriteFrame let callers use the checked-out connection
// directly, without re-exposing the raw transport.Conn.
func (c *Conn) ReadFrame(deadline time.Time) ([]byte, error)  { return c.conn.ReadFrame(deadline) }
func (c *Conn) WriteFrame(p []byte, deadline time.Time) error { return c.conn.WriteFrame(p, deadline) }

// New constructs a Pool. No connections are dialed until Acquire is called.
func New(host string, port int, opts ...Option) *Pool {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if o.LogLevel != nil {
		logger.SetLevel(*o.LogLevel)
	}

	var sem *semaphore.Weighted
	if o.MaxConnections > 0 {
		sem = semaphore.NewWeighted(int64(o.MaxConnections))
	}

	return &Pool{
		host: host,
		port: port,
		opts: o,
		log:  logger.WithField("pool", fmt.Sprintf("%s:%d", host, port)),
		sem:  sem,
	}
}

// Acquire returns an idle connection, or dials a new one if capacity
// allows, or fails immediately with ErrAtCapacity. It never blocks waiting
// for capacity; use AcquireWait for that.
func (p *Pool) Acquire() (*Conn, error) {
	if c, ok := p.takeIdle(); ok {
		return c, nil
	}
	if p.sem != nil && !p.sem.TryAcquire(1) {
		return nil, ErrAtCapacity
	}
	return p.dialChecked()
}

// AcquireWait behaves like Acquire but, when at capacity, waits up to ctx's
// deadline for a connection to be returned by Release or for a slot to be
// freed, instead of failing immediately.
func (p *Pool) AcquireWait(ctx context.Context) (*Conn, error) {
	if c, ok := p.takeIdle(); ok {
		return c, nil
	}
	for p.sem != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		err := p.sem.Acquire(waitCtx, 1)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c, ok := p.takeIdle(); ok {
			return c, nil
		}
	}
	return p.dialChecked()
}

func (p *Pool) takeIdle() (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		return c, true
	}
	return nil, false
}

func (p *Pool) dialChecked() (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, ErrPoolClosed
	}

	c, err := p.dial()
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, err
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	return c, nil
}

func (p *Pool) dial() (*Conn, error) {
	nc, err := transport.Dial(p.host, p.port, p.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if p.opts.ConnectTimeout > 0 {
		deadline = time.Now().Add(p.opts.ConnectTimeout)
	}

	hi, err := nc.ReadFrame(deadline)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	env, err := wire.Decode(hi)
	if err != nil || env.Command != wire.CmdHI {
		_ = nc.Close()
		return nil, fmt.Errorf("pool: unexpected handshake reply")
	}

	if p.opts.AuthKey != "" {
		authEnv := wire.Envelope{
			Command: wire.CmdAuthKey,
			Args:    wire.EncodeAuthArgs(wire.AuthArgs{KeyDigest: authhash.Digest(p.opts.AuthKey)}),
			Payload: wire.Null,
			Err:     wire.Null,
		}
		if err := nc.WriteFrame(wire.Encode(authEnv), deadline); err != nil {
			_ = nc.Close()
			return nil, err
		}
		data, err := nc.ReadFrame(deadline)
		if err != nil {
			_ = nc.Close()
			return nil, err
		}
		reply, err := wire.Decode(data)
		if err != nil || reply.Command != wire.CmdOK {
			_ = nc.Close()
			return nil, ErrAuthFailed
		}
	}

	return &Conn{ID: uuid.New(), conn: nc}, nil
}

// Release returns c to the idle set for reuse. If the pool has since been
// closed, c is closed instead and its capacity slot freed.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.conn.Close()
		if p.sem != nil {
			p.sem.Release(1)
		}
		return
	}
	p.inUse--
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Discard closes c without returning it to the idle set (for a connection
// found to be broken) and frees its capacity slot so a later Acquire may
// dial a replacement.
func (p *Pool) Discard(c *Conn) {
	_ = c.conn.Close()
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// Stats reports the current idle and in-use connection counts.
func (p *Pool) Stats() (idle, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.inUse
}

// Close closes every idle connection and marks the pool closed; in-use
// connections are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, c := range idle {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if p.sem != nil {
			p.sem.Release(1)
		}
	}
	return firstErr
}
