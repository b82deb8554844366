// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client implements the TCP client (C6): a single-connection
// handle that speaks the wire protocol to a server.Server, as described by
// spec.md §4.6 and §6.
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"code.hybscloud.com/wukong/internal/authhash"
	"code.hybscloud.com/wukong/internal/scoped"
	"code.hybscloud.com/wukong/pool"
	"code.hybscloud.com/wukong/queue"
	"code.hybscloud.com/wukong/transport"
	"code.hybscloud.com/wukong/wire"
)

// frameConn is the minimal surface a Client needs from either a
// transport.Conn it dialed directly or a *pool.Conn borrowed from a Pool.
type frameConn interface {
	ReadFrame(deadline time.Time) ([]byte, error)
	WriteFrame(payload []byte, deadline time.Time) error
}

// ErrConcurrentUse is returned when a second goroutine tries to use a
// Client while another call is in flight. A Client wraps exactly one TCP
// connection; the source's single-connection discipline is preserved by
// refusing concurrent use rather than serializing it silently, so callers
// notice and fix the misuse instead of paying for hidden contention.
var ErrConcurrentUse = errors.New("client: concurrent use refused")

// ErrAuthFailed is returned when the server rejects the configured auth key.
var ErrAuthFailed = errors.New("client: auth failed")

// ErrNotConnected is returned when an operation needs a live connection and
// none is available (initial connect failed, or auto-reconnect is disabled
// or throttled by the health-check interval).
var ErrNotConnected = errors.New("client: not connected")

// Client is a single-connection handle to a wukong server. A Client dials
// directly (New) or borrows connections from a Pool (NewFromPool); either
// way, exactly one connection is in its care at a time.
type Client struct {
	opts Options
	log  *logrus.Entry

	mu sync.Mutex // enforces single in-flight call (ConcurrentUseRefused)

	dial     func() (frameConn, error) // obtains and hands off a fresh, ready connection
	onBroken func(frameConn)           // a connection errored mid-use; drop it
	onClose  func(frameConn)           // Close was called on a healthy connection

	conn             frameConn
	nextReconnectTry time.Time
}

// New dials host:port, performs the HI/AUTH_KEY handshake, and returns a
// ready Client. If the initial dial fails and PreConnect is not set, an
// unconnected Client is returned alongside the error. If PreConnect is set,
// the error is swallowed instead (construction never fails on a down
// server) and the connection is left deferred, to be established by
// auto-reconnect on a later call.
func New(host string, port int, opts ...Option) (*Client, error) {
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

	c := &Client{
		opts: o,
		log:  logger.WithField("client", fmt.Sprintf("%s:%d", host, port)),
		dial: func() (frameConn, error) { return dialAndHandshake(host, port, o) },
		onBroken: func(fc frameConn) {
			if closer, ok := fc.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		},
	}
	c.onClose = c.onBroken

	if err := c.connectLocked(); err != nil {
		if o.PreConnect {
			return c, nil
		}
		return c, err
	}
	return c, nil
}

// NewFromPool builds a Client whose connections are borrowed from p rather
// than dialed directly: Acquire on (re)connect, Release on Close, Discard
// when a connection errors mid-use. p's own ConnectTimeout/AuthKey govern
// the underlying dial; only the client-facing options (PreConnect,
// AutoReconnect, SilenceErr, HealthCheckEvery, Logger, LogLevel) apply here.
func NewFromPool(p *pool.Pool, opts ...Option) (*Client, error) {
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

	c := &Client{
		opts: o,
		log:  logger.WithField("client", "pooled"),
		dial: func() (frameConn, error) { return p.Acquire() },
		onBroken: func(fc frameConn) {
			if pc, ok := fc.(*pool.Conn); ok {
				p.Discard(pc)
			}
		},
		onClose: func(fc frameConn) {
			if pc, ok := fc.(*pool.Conn); ok {
				p.Release(pc)
			}
		},
	}

	if err := c.connectLocked(); err != nil {
		if o.PreConnect {
			return c, nil
		}
		return c, err
	}
	return c, nil
}

// dialAndHandshake dials host:port and performs the HI/AUTH_KEY handshake
// for direct (non-pooled) clients.
func dialAndHandshake(host string, port int, o Options) (frameConn, error) {
	conn, err := transport.Dial(host, port, o.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	hi, err := conn.ReadFrame(deadlineFrom(o.ConnectTimeout))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	env, err := wire.Decode(hi)
	if err != nil || env.Command != wire.CmdHI {
		_ = conn.Close()
		return nil, fmt.Errorf("client: unexpected handshake reply")
	}

	if o.AuthKey != "" {
		authEnv := wire.Envelope{
			Command: wire.CmdAuthKey,
			Args:    wire.EncodeAuthArgs(wire.AuthArgs{KeyDigest: authhash.Digest(o.AuthKey)}),
			Payload: wire.Null,
			Err:     wire.Null,
		}
		if err := conn.WriteFrame(wire.Encode(authEnv), deadlineFrom(o.ConnectTimeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		data, err := conn.ReadFrame(deadlineFrom(o.ConnectTimeout))
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		reply, err := wire.Decode(data)
		if err != nil || reply.Command != wire.CmdOK {
			_ = conn.Close()
			return nil, ErrAuthFailed
		}
	}

	return conn, nil
}

// connectLocked dials (or acquires) a fresh connection. The caller must
// hold c.mu and must have already dealt with any previous c.conn.
func (c *Client) connectLocked() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// ensureConnectedLocked reconnects if needed, throttled by
// HealthCheckEvery so a downed server doesn't get hammered with dials on
// every call (evaluated lazily here, not by a background poller). The
// caller must hold c.mu.
func (c *Client) ensureConnectedLocked() error {
	if c.conn != nil {
		return nil
	}
	if !c.opts.AutoReconnect {
		return ErrNotConnected
	}
	if time.Now().Before(c.nextReconnectTry) {
		return ErrNotConnected
	}
	c.nextReconnectTry = time.Now().Add(c.opts.HealthCheckEvery)
	return c.connectLocked()
}

// roundTrip sends env and returns the decoded reply, retrying once by
// reconnecting if the write or read fails with a connection-level error.
// The caller must hold c.mu.
func (c *Client) roundTrip(env wire.Envelope, deadline time.Time) (wire.Envelope, error) {
	if err := c.ensureConnectedLocked(); err != nil {
		return wire.Envelope{}, err
	}

	reply, err := c.send(env, deadline)
	if err == nil {
		return reply, nil
	}
	if !c.opts.AutoReconnect {
		return wire.Envelope{}, err
	}

	if err := c.ensureConnectedLocked(); err != nil {
		return wire.Envelope{}, err
	}
	return c.send(env, deadline)
}

func (c *Client) send(env wire.Envelope, deadline time.Time) (wire.Envelope, error) {
	if err := c.conn.WriteFrame(wire.Encode(env), deadline); err != nil {
		c.onBroken(c.conn)
		c.conn = nil
		return wire.Envelope{}, err
	}
	data, err := c.conn.ReadFrame(deadline)
	if err != nil {
		c.onBroken(c.conn)
		c.conn = nil
		return wire.Envelope{}, err
	}
	return wire.Decode(data)
}

// lock acquires exclusive use of the connection or returns
// ErrConcurrentUse.
func (c *Client) lock() error {
	if !c.mu.TryLock() {
		return ErrConcurrentUse
	}
	return nil
}

// --- public API (spec.md §6) ---

// Put enqueues item, blocking (subject to timeout, nil meaning forever) if
// block is true and the queue is full.
func (c *Client) Put(item wire.Item, block bool, timeout *time.Duration) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{
		Command: wire.CmdPut,
		Args:    wire.EncodePutArgs(wire.PutArgs{Block: block, Timeout: timeout}),
		Payload: item,
		Err:     wire.Null,
	}, requestDeadline(timeout))
	if err != nil {
		return err
	}
	switch reply.Command {
	case wire.CmdOK:
		return nil
	case wire.CmdFull:
		return fmt.Errorf("client: put: %w", queue.ErrFull)
	default:
		return fmt.Errorf("client: put: unexpected reply %s", reply.Command)
	}
}

// Get dequeues and returns the oldest item, blocking (subject to timeout)
// if block is true and the queue is empty.
func (c *Client) Get(block bool, timeout *time.Duration) (wire.Item, error) {
	if err := c.lock(); err != nil {
		return wire.Item{}, err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{
		Command: wire.CmdGet,
		Args:    wire.EncodeGetArgs(wire.GetArgs{Block: block, Timeout: timeout}),
		Payload: wire.Null,
		Err:     wire.Null,
	}, requestDeadline(timeout))
	if err != nil {
		return wire.Item{}, err
	}
	switch reply.Command {
	case wire.CmdData:
		return reply.Payload, nil
	case wire.CmdEmpty:
		return wire.Item{}, fmt.Errorf("client: get: %w", queue.ErrEmpty)
	default:
		return wire.Item{}, fmt.Errorf("client: get: unexpected reply %s", reply.Command)
	}
}

func requestDeadline(timeout *time.Duration) time.Time {
	if timeout == nil {
		return time.Time{}
	}
	// Allow a grace window over the caller's blocking timeout for network
	// round-trip and server-side bookkeeping around the same deadline.
	return time.Now().Add(*timeout + time.Second)
}

// status issues a bare-command request and reports whether it succeeded,
// honoring SilenceErr: on failure it either returns the error or, if
// SilenceErr is set, returns (zero, nil).
func (c *Client) status(cmd wire.Command) (wire.Envelope, error) {
	if err := c.lock(); err != nil {
		if c.opts.SilenceErr {
			return wire.Envelope{}, nil
		}
		return wire.Envelope{}, err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{Command: cmd, Args: wire.NewMap(), Payload: wire.Null, Err: wire.Null}, time.Time{})
	if err != nil {
		if c.opts.SilenceErr {
			return wire.Envelope{}, nil
		}
		return wire.Envelope{}, err
	}
	return reply, nil
}

// Full reports whether the server-side queue is at capacity.
func (c *Client) Full() bool {
	reply, _ := c.status(wire.CmdStatus)
	return reply.Command == wire.CmdFull
}

// Empty reports whether the server-side queue has no items.
func (c *Client) Empty() bool {
	reply, _ := c.status(wire.CmdStatus)
	return reply.Command == wire.CmdEmpty
}

// Connected reports whether the client currently holds a live connection,
// issuing a PING if one is open to detect a half-dead socket.
func (c *Client) Connected() bool {
	reply, err := c.status(wire.CmdPing)
	return err == nil && reply.Command == wire.CmdPong
}

// RealtimeQSize asks the server for its current queue length.
func (c *Client) RealtimeQSize() (uint64, error) {
	reply, err := c.status(wire.CmdSize)
	if err != nil {
		return 0, err
	}
	if reply.Command == "" {
		return 0, nil // silenced
	}
	return uint64(reply.Payload.Int), nil
}

// RealtimeMaxSize asks the server for its configured capacity.
func (c *Client) RealtimeMaxSize() (uint64, error) {
	reply, err := c.status(wire.CmdMaxSize)
	if err != nil {
		return 0, err
	}
	if reply.Command == "" {
		return 0, nil
	}
	return uint64(reply.Payload.Int), nil
}

// ConnectedClients asks the server how many sessions are currently open.
func (c *Client) ConnectedClients() (int, error) {
	reply, err := c.status(wire.CmdClients)
	if err != nil {
		return 0, err
	}
	if reply.Command == "" {
		return 0, nil
	}
	return int(reply.Payload.Int), nil
}

// Reset clears the server-side queue and, if newCapacity is non-nil,
// changes its capacity. Unlike the status queries, Reset always surfaces
// its error (SilenceErr does not apply).
func (c *Client) Reset(newCapacity *uint64) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{
		Command: wire.CmdReset,
		Args:    wire.EncodeResetArgs(wire.ResetArgs{NewCapacity: newCapacity}),
		Payload: wire.Null,
		Err:     wire.Null,
	}, time.Time{})
	if err != nil {
		return err
	}
	if reply.Command != wire.CmdOK {
		return fmt.Errorf("client: reset: unexpected reply %s", reply.Command)
	}
	return nil
}

// TaskDone acknowledges completion of one previously gotten item.
func (c *Client) TaskDone() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{Command: wire.CmdTaskDone, Args: wire.NewMap(), Payload: wire.Null, Err: wire.Null}, time.Time{})
	if err != nil {
		return err
	}
	if reply.Command != wire.CmdOK {
		return fmt.Errorf("client: task_done: unexpected reply %s", reply.Command)
	}
	return nil
}

// Join blocks until every put on the server has been matched by a
// task_done.
func (c *Client) Join() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	reply, err := c.roundTrip(wire.Envelope{Command: wire.CmdJoin, Args: wire.NewMap(), Payload: wire.Null, Err: wire.Null}, time.Time{})
	if err != nil {
		return err
	}
	if reply.Command != wire.CmdOK {
		return fmt.Errorf("client: join: unexpected reply %s", reply.Command)
	}
	return nil
}

// Close releases the underlying connection. Later calls fail with
// ErrNotConnected unless AutoReconnect is set, in which case they connect
// again.
func (c *Client) Close() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	c.onClose(c.conn)
	c.conn = nil
	return nil
}

// Helper returns a scoped.Resource so callers can write
// defer client.Helper().Use(...)-style guaranteed close.
func (c *Client) Helper() scoped.Resource[*Client] { return scoped.New(c) }
