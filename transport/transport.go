// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport provides the thin listening/dialing endpoints (C3)
// that wrap a net.Conn with the wire package's frame codec.
package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"code.hybscloud.com/wukong/wire"
)

// ErrAddrInUse is returned by Bind when the address is already in use.
var ErrAddrInUse = errors.New("transport: address in use")

// ErrUnreachable is returned by Dial when the remote could not be reached
// within the configured timeout.
var ErrUnreachable = errors.New("transport: unreachable")

// Conn is one accepted or dialed TCP connection, framed per wire.
type Conn struct {
	netConn net.Conn
	fr      *wire.FrameReader
	fw      *wire.FrameWriter
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		netConn: nc,
		fr:      wire.NewFrameReader(nc),
		fw:      wire.NewFrameWriter(nc),
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }

// ReadFrame reads one frame, blocking until deadline (zero means forever).
func (c *Conn) ReadFrame(deadline time.Time) ([]byte, error) {
	return c.fr.ReadFrame(deadline)
}

// WriteFrame writes one frame, blocking until deadline (zero means
// forever).
func (c *Conn) WriteFrame(payload []byte, deadline time.Time) error {
	return c.fw.WriteFrame(payload, deadline)
}

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.netConn.Close() }

// Listener is a small listening endpoint. Its accept backlog is the Go
// runtime default (no large accept queue is needed for this protocol).
type Listener struct {
	ln net.Listener
}

// Bind opens a TCP listener at host:port.
func Bind(host string, port int) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAddrInUse
		}
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(nc), nil
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error { return l.ln.Close() }

// Dial connects to host:port, failing with ErrUnreachable if connectTimeout
// elapses first (zero means use the OS default).
func Dial(host string, port int, connectTimeout time.Duration) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	nc, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}
	return newConn(nc), nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
