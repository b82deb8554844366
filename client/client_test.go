// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"code.hybscloud.com/wukong/pool"
	"code.hybscloud.com/wukong/queue"
	"code.hybscloud.com/wukong/server"
	"code.hybscloud.com/wukong/wire"
)

func startServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	srv, err := server.New("127.0.0.1", 0, opts...)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	srv.Run()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	return host, port
}

// TestPutGetRoundTrip exercises scenario 1 from the client's side.
func TestPutGetRoundTrip(t *testing.T) {
	srv := startServer(t, server.WithCapacity(2))
	host, port := splitHostPort(t, srv.Addr())

	c, err := New(host, port)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Put(wire.NewText("x"), true, nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := c.Get(true, nil)
	if err != nil || got.Text != "x" {
		t.Fatalf("get = %+v, %v", got, err)
	}
}

// TestPutFullGetEmptyErrorsAreMatchable checks that a caller can distinguish
// a FULL/EMPTY server reply from any other failure with errors.Is, per
// SPEC_FULL.md §7's errors.Is-compatible %w chains.
func TestPutFullGetEmptyErrorsAreMatchable(t *testing.T) {
	srv := startServer(t, server.WithCapacity(1))
	host, port := splitHostPort(t, srv.Addr())

	c, err := New(host, port)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Put(wire.NewText("x"), true, nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(wire.NewText("y"), false, nil); !errors.Is(err, queue.ErrFull) {
		t.Fatalf("put on full queue = %v, want errors.Is(err, queue.ErrFull)", err)
	}

	if _, err := c.Get(true, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.Get(false, nil); !errors.Is(err, queue.ErrEmpty) {
		t.Fatalf("get on empty queue = %v, want errors.Is(err, queue.ErrEmpty)", err)
	}
}

// TestConcurrentUseRefused mirrors the single-connection discipline law:
// a second caller using the same Client while one call is in flight is
// refused rather than queued.
func TestConcurrentUseRefused(t *testing.T) {
	srv := startServer(t)
	host, port := splitHostPort(t, srv.Addr())

	c, err := New(host, port)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.mu.Lock() // simulate a call already in flight
	defer c.mu.Unlock()

	if err := c.Put(wire.NewText("x"), false, nil); err != ErrConcurrentUse {
		t.Fatalf("put during concurrent use = %v, want ErrConcurrentUse", err)
	}
	if _, err := c.Get(false, nil); err != ErrConcurrentUse {
		t.Fatalf("get during concurrent use = %v, want ErrConcurrentUse", err)
	}
}

// TestAuthHandshake mirrors scenario 3 from the client's side: a wrong key
// fails the initial connect, a correct key succeeds and the connection
// stays usable afterward.
func TestAuthHandshake(t *testing.T) {
	srv := startServer(t, server.WithAuthKey("secret"))
	host, port := splitHostPort(t, srv.Addr())

	if _, err := New(host, port, WithAuthKey("wrong")); err != ErrAuthFailed {
		t.Fatalf("bad key = %v, want ErrAuthFailed", err)
	}

	c, err := New(host, port, WithAuthKey("secret"))
	if err != nil {
		t.Fatalf("New with correct key: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Fatalf("Connected() = false after successful auth")
	}
}

// TestAutoReconnect mirrors the retry-once-on-disconnect law: after the
// client's connection is dropped on the client side, the next call dials
// the still-running server again and succeeds.
func TestAutoReconnect(t *testing.T) {
	srv := startServer(t, server.WithCapacity(1))
	host, port := splitHostPort(t, srv.Addr())

	c, err := New(host, port, WithAutoReconnect(true), WithHealthCheckEvery(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	// Force the client to believe its connection is dead.
	c.mu.Lock()
	c.onBroken(c.conn)
	c.conn = nil
	c.mu.Unlock()

	if err := c.Put(wire.NewText("after-reconnect"), true, nil); err != nil {
		t.Fatalf("put after forced disconnect: %v", err)
	}
}

// TestPreConnect mirrors spec.md §4.6's "pre_connect" construction
// parameter: New must not fail even when the initial dial does, and the
// deferred connection must still come up lazily on a later call once a
// server is reachable.
func TestPreConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port := splitHostPort(t, ln.Addr().String())
	ln.Close() // free the port; nothing is listening on it yet

	c, err := New(host, port, WithPreConnect(true), WithAutoReconnect(true), WithHealthCheckEvery(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New with PreConnect against a dead port returned an error: %v", err)
	}
	defer c.Close()

	if err := c.Put(wire.NewText("x"), false, nil); err == nil {
		t.Fatalf("put against a still-dead server unexpectedly succeeded")
	}

	// Rebind the freed port with a real server and let the health-check
	// gate's next reconnect attempt pick it up.
	srv, err := server.New(host, port)
	if err != nil {
		t.Fatalf("server.New on the freed port: %v", err)
	}
	srv.Run()
	defer srv.Close()

	deadline := time.Now().Add(time.Second)
	var putErr error
	for time.Now().Before(deadline) {
		if putErr = c.Put(wire.NewText("x"), false, nil); putErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if putErr != nil {
		t.Fatalf("put never succeeded once the server came up: %v", putErr)
	}
}

// TestClientWithLogLevel mirrors spec.md §6's log_level constructor
// parameter on the client side.
func TestClientWithLogLevel(t *testing.T) {
	srv := startServer(t)
	host, port := splitHostPort(t, srv.Addr())

	logger := logrus.New()
	c, err := New(host, port, WithLogger(logger), WithLogLevel(logrus.ErrorLevel))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if logger.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("logger level = %v, want ErrorLevel", logger.GetLevel())
	}
}

// TestSilenceErr mirrors the silence_err law: it silences status queries
// but never Put/Get/Reset/TaskDone/Join.
func TestSilenceErr(t *testing.T) {
	c := &Client{
		opts: Options{SilenceErr: true, AutoReconnect: false, HealthCheckEvery: time.Hour},
	}

	if full := c.Full(); full {
		t.Fatalf("Full() on a dead client = true, want false (silenced)")
	}
	if err := c.Put(wire.NewText("x"), false, nil); err == nil {
		t.Fatalf("Put on a dead client returned nil error, want an error (SilenceErr must not apply)")
	}
}

// TestNewFromPool checks that a pooled Client borrows its connection from
// a Pool and releases it back on Close rather than closing the socket.
func TestNewFromPool(t *testing.T) {
	srv := startServer(t, server.WithCapacity(1))
	host, port := splitHostPort(t, srv.Addr())

	p := pool.New(host, port, pool.WithMaxConnections(1))
	defer p.Close()

	c, err := NewFromPool(p)
	if err != nil {
		t.Fatalf("NewFromPool: %v", err)
	}
	if idle, inUse := p.Stats(); idle != 0 || inUse != 1 {
		t.Fatalf("pool stats while client holds conn = idle %d inUse %d", idle, inUse)
	}

	if err := c.Put(wire.NewText("pooled"), true, nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if idle, inUse := p.Stats(); idle != 1 || inUse != 0 {
		t.Fatalf("pool stats after close = idle %d inUse %d, want connection released not closed", idle, inUse)
	}
}
