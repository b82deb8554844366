// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the TCP dispatcher (C5): it binds a listener,
// accepts one session per connection, and dispatches the wire protocol
// against a queue.Engine, as described by spec.md §4.5 and §6.
package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"code.hybscloud.com/wukong/internal/authhash"
	"code.hybscloud.com/wukong/internal/scoped"
	"code.hybscloud.com/wukong/internal/worker"
	"code.hybscloud.com/wukong/queue"
	"code.hybscloud.com/wukong/transport"
	"code.hybscloud.com/wukong/wire"
)

// ErrClientsFull names the max_clients admission refusal. The server does
// not return it: when a new connection arrives with max_clients already
// reached, the accept loop logs the refusal and closes the connection before
// the HI handshake, so the peer sees a plain disconnect.
var ErrClientsFull = errors.New("server: max_clients reached")

// Server accepts connections on a single TCP listener and dispatches the
// wire protocol against one queue.Engine shared by every session.
type Server struct {
	name       string
	authDigest string // empty = no auth required
	log        *logrus.Entry

	engine *queue.Engine
	ln     *transport.Listener

	admission *semaphore.Weighted // nil when max_clients == 0 (unbounded)

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	closed   bool
}

type session struct {
	id            uuid.UUID
	conn          *transport.Conn
	authenticated bool
}

// Close closes the session's connection. It satisfies io.Closer so a
// session can be driven through internal/scoped, mirroring the source's
// per-connection context manager.
func (s *session) Close() error { return s.conn.Close() }

// New binds a listener at host:port and constructs a Server around a fresh
// queue.Engine. It does not start accepting connections; call Run for that.
func New(host string, port int, opts ...Option) (*Server, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	ln, err := transport.Bind(host, port)
	if err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if o.LogLevel != nil {
		logger.SetLevel(*o.LogLevel)
	}
	name := o.Name
	if name == "" {
		name = "wukong"
	}

	var admission *semaphore.Weighted
	if o.MaxClients > 0 {
		admission = semaphore.NewWeighted(int64(o.MaxClients))
	}

	digest := ""
	if o.AuthKey != "" {
		digest = authhash.Digest(o.AuthKey)
	}

	return &Server{
		name:       name,
		authDigest: digest,
		log:        logger.WithField("server", name),
		engine:     queue.NewEngine(o.Capacity),
		ln:         ln,
		admission:  admission,
		sessions:   make(map[uuid.UUID]*session),
	}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Run launches the accept loop in the background and returns immediately.
func (s *Server) Run() {
	worker.Spawn(s.log, "accept", s.acceptLoop)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}

		if s.admission != nil && !s.admission.TryAcquire(1) {
			s.log.WithField("remote", conn.RemoteAddr()).Warn("rejecting connection: max_clients reached")
			_ = conn.Close()
			continue
		}

		sess := &session{id: uuid.New(), conn: conn}
		if !s.register(sess) {
			// Close raced us; drop the connection we just admitted.
			if s.admission != nil {
				s.admission.Release(1)
			}
			_ = conn.Close()
			continue
		}

		if err := conn.WriteFrame(wire.Encode(wire.Reply(wire.CmdHI)), time.Time{}); err != nil {
			s.deregister(sess)
			continue
		}

		worker.Spawn(s.log, sess.id.String(), func() { s.serve(sess) })
	}
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) deregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if s.admission != nil {
		s.admission.Release(1)
	}
	_ = sess.conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// serve runs one session's request loop until the peer disconnects, the
// protocol is violated, or Close shuts the server down.
func (s *Server) serve(sess *session) {
	log := s.log.WithField("session", sess.id.String()).WithField("remote", sess.conn.RemoteAddr())
	_ = scoped.New(sess).Use(func(sess *session) error {
		for {
			data, err := sess.conn.ReadFrame(time.Time{})
			if err != nil {
				return err
			}
			env, err := wire.Decode(data)
			if err != nil {
				log.WithError(err).Warn("malformed envelope, closing session")
				return err
			}

			if s.authDigest != "" && !sess.authenticated {
				if env.Command != wire.CmdAuthKey {
					_ = sess.conn.WriteFrame(wire.Encode(wire.Reply(wire.CmdNeedAuth)), time.Time{})
					return errors.New("server: command before auth")
				}
				reply := wire.Reply(wire.CmdFail)
				if wire.ParseAuthArgs(env.Args).KeyDigest == s.authDigest {
					sess.authenticated = true
					reply = wire.Reply(wire.CmdOK)
				}
				if err := sess.conn.WriteFrame(wire.Encode(reply), time.Time{}); err != nil {
					return err
				}
				continue // corrected: keep serving the session after auth
			}

			reply, fatal := s.dispatch(env)
			if err := sess.conn.WriteFrame(wire.Encode(reply), time.Time{}); err != nil {
				return err
			}
			if fatal {
				return nil
			}
		}
	})
	s.deregister(sess)
}

// dispatch executes one request and returns the reply envelope. fatal is
// true when the session must end after sending the reply (e.g. the engine
// was closed underneath the session).
func (s *Server) dispatch(env wire.Envelope) (reply wire.Envelope, fatal bool) {
	switch env.Command {
	case wire.CmdPut:
		args := wire.ParsePutArgs(env.Args)
		err := s.engine.Put(env.Payload, args.Block, args.Timeout)
		switch {
		case err == nil:
			return wire.Reply(wire.CmdOK), false
		case errors.Is(err, queue.ErrFull):
			return wire.Reply(wire.CmdFull), false
		default:
			return wire.Reply(wire.CmdFail), true
		}

	case wire.CmdGet:
		args := wire.ParseGetArgs(env.Args)
		item, err := s.engine.Get(args.Block, args.Timeout)
		switch {
		case err == nil:
			return wire.DataReply(item), false
		case errors.Is(err, queue.ErrEmpty):
			return wire.Reply(wire.CmdEmpty), false
		default:
			return wire.Reply(wire.CmdFail), true
		}

	case wire.CmdStatus:
		switch {
		case s.engine.Full():
			return wire.Reply(wire.CmdFull), false
		case s.engine.Empty():
			return wire.Reply(wire.CmdEmpty), false
		default:
			return wire.Reply(wire.CmdNormal), false
		}

	case wire.CmdPing:
		return wire.Reply(wire.CmdPong), false

	case wire.CmdSize:
		return wire.DataReply(wire.NewInt(int64(s.engine.QSize()))), false

	case wire.CmdMaxSize:
		return wire.DataReply(wire.NewInt(int64(s.engine.Capacity()))), false

	case wire.CmdReset:
		args := wire.ParseResetArgs(env.Args)
		s.engine.Reset(args.NewCapacity)
		return wire.Reply(wire.CmdOK), false

	case wire.CmdClients:
		return wire.DataReply(wire.NewInt(int64(s.clientCount()))), false

	case wire.CmdTaskDone:
		if err := s.engine.TaskDone(); err != nil {
			return wire.Reply(wire.CmdFail), false
		}
		return wire.Reply(wire.CmdOK), false

	case wire.CmdJoin:
		if err := s.engine.Join(); err != nil {
			return wire.Reply(wire.CmdFail), true
		}
		return wire.Reply(wire.CmdOK), false

	default:
		return wire.Reply(wire.CmdFail), true
	}
}

// Close stops accepting new connections, disconnects every session, and
// shuts down the underlying engine. It never blocks on a queue operation:
// blocked sessions unwind on their own once the engine broadcasts closed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	err := s.ln.Close()
	for _, sess := range sessions {
		_ = sess.conn.Close()
	}
	s.engine.Close()
	return err
}

// Helper returns a scoped.Resource so callers can write
// defer server.Helper().Use(...)-style guaranteed shutdown.
func (s *Server) Helper() scoped.Resource[*Server] { return scoped.New(s) }

// --- convenience API mirroring spec.md §6's direct (in-process) surface ---

func (s *Server) Put(item wire.Item, block bool, timeout *time.Duration) error {
	return s.engine.Put(item, block, timeout)
}

func (s *Server) Get(block bool, timeout *time.Duration) (wire.Item, error) {
	return s.engine.Get(block, timeout)
}

func (s *Server) PutNowait(item wire.Item) error { return s.engine.Put(item, false, nil) }

func (s *Server) GetNowait() (wire.Item, error) { return s.engine.Get(false, nil) }

func (s *Server) QSize() uint64 { return s.engine.QSize() }

func (s *Server) Capacity() uint64 { return s.engine.Capacity() }

func (s *Server) Full() bool { return s.engine.Full() }

func (s *Server) Empty() bool { return s.engine.Empty() }

func (s *Server) Reset(newCapacity *uint64) { s.engine.Reset(newCapacity) }

func (s *Server) TaskDone() error { return s.engine.TaskDone() }

func (s *Server) Join() error { return s.engine.Join() }

func (s *Server) ClientCount() int { return s.clientCount() }

func (s *Server) String() string {
	return fmt.Sprintf("server(%s @ %s)", s.name, s.Addr())
}
