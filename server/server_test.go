// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"code.hybscloud.com/wukong/internal/authhash"
	"code.hybscloud.com/wukong/wire"
)

// TestWithLogLevel mirrors spec.md §6's log_level constructor parameter: it
// must apply to whichever logger the Server ends up writing to.
func TestWithLogLevel(t *testing.T) {
	logger := logrus.New()
	srv, err := New("127.0.0.1", 0, WithLogger(logger), WithLogLevel(logrus.WarnLevel))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("logger level = %v, want WarnLevel", logger.GetLevel())
	}
}

func dialRaw(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn net.Conn) wire.Envelope {
	t.Helper()
	fr := wire.NewFrameReader(conn)
	data, err := fr.ReadFrame(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeEnvelope(t *testing.T, conn net.Conn, env wire.Envelope) {
	t.Helper()
	fw := wire.NewFrameWriter(conn)
	if err := fw.WriteFrame(wire.Encode(env), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// TestHandshakeAndPutGet mirrors spec scenario 1 end to end over a real
// socket: connect, receive HI, PUT, GET, see the same item back.
func TestHandshakeAndPutGet(t *testing.T) {
	srv, err := New("127.0.0.1", 0, WithCapacity(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Run()
	defer srv.Close()

	conn := dialRaw(t, srv.Addr())
	defer conn.Close()

	hi := readEnvelope(t, conn)
	if hi.Command != wire.CmdHI {
		t.Fatalf("got %v, want HI", hi.Command)
	}

	writeEnvelope(t, conn, wire.Envelope{
		Command: wire.CmdPut,
		Args:    wire.EncodePutArgs(wire.PutArgs{Block: true}),
		Payload: wire.NewText("hello"),
		Err:     wire.Null,
	})
	if reply := readEnvelope(t, conn); reply.Command != wire.CmdOK {
		t.Fatalf("put reply = %v, want OK", reply.Command)
	}

	writeEnvelope(t, conn, wire.Envelope{
		Command: wire.CmdGet,
		Args:    wire.EncodeGetArgs(wire.GetArgs{Block: true}),
		Payload: wire.Null,
		Err:     wire.Null,
	})
	reply := readEnvelope(t, conn)
	if reply.Command != wire.CmdData || reply.Payload.Text != "hello" {
		t.Fatalf("get reply = %+v, want DATA(hello)", reply)
	}
}

// TestAuthGating mirrors spec scenario 3: commands before AUTH_KEY are
// refused, and the session survives successful auth (the corrected
// continue-after-auth behavior).
func TestAuthGating(t *testing.T) {
	srv, err := New("127.0.0.1", 0, WithAuthKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Run()
	defer srv.Close()

	conn := dialRaw(t, srv.Addr())
	defer conn.Close()
	readEnvelope(t, conn) // HI

	writeEnvelope(t, conn, wire.Envelope{Command: wire.CmdPing, Args: wire.NewMap(), Payload: wire.Null, Err: wire.Null})
	if reply := readEnvelope(t, conn); reply.Command != wire.CmdNeedAuth {
		t.Fatalf("pre-auth ping = %v, want NEED_AUTH", reply.Command)
	}

	// Session is now closed by the server after the protocol violation;
	// reconnect to try again with the correct key.
	conn2 := dialRaw(t, srv.Addr())
	defer conn2.Close()
	readEnvelope(t, conn2) // HI

	writeEnvelope(t, conn2, wire.Envelope{
		Command: wire.CmdAuthKey,
		Args:    wire.EncodeAuthArgs(wire.AuthArgs{KeyDigest: authhash.Digest("wrong")}),
		Payload: wire.Null, Err: wire.Null,
	})
	if reply := readEnvelope(t, conn2); reply.Command != wire.CmdFail {
		t.Fatalf("bad auth = %v, want FAIL", reply.Command)
	}

	conn3 := dialRaw(t, srv.Addr())
	defer conn3.Close()
	readEnvelope(t, conn3) // HI
	writeEnvelope(t, conn3, wire.Envelope{
		Command: wire.CmdAuthKey,
		Args:    wire.EncodeAuthArgs(wire.AuthArgs{KeyDigest: authhash.Digest("secret")}),
		Payload: wire.Null, Err: wire.Null,
	})
	if reply := readEnvelope(t, conn3); reply.Command != wire.CmdOK {
		t.Fatalf("good auth = %v, want OK", reply.Command)
	}

	// Session must still be alive after a successful auth (no forced close).
	writeEnvelope(t, conn3, wire.Envelope{Command: wire.CmdPing, Args: wire.NewMap(), Payload: wire.Null, Err: wire.Null})
	if reply := readEnvelope(t, conn3); reply.Command != wire.CmdPong {
		t.Fatalf("post-auth ping = %v, want PONG", reply.Command)
	}
}

// TestMaxClientsAdmission mirrors spec scenario 2: with max_clients 1, a
// second connection is refused while the first is outstanding, and a new
// connection succeeds once the first disconnects.
func TestMaxClientsAdmission(t *testing.T) {
	srv, err := New("127.0.0.1", 0, WithMaxClients(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Run()
	defer srv.Close()

	conn1 := dialRaw(t, srv.Addr())
	readEnvelope(t, conn1) // HI
	if got := pollClientCount(t, srv, 1); got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	conn2 := dialRaw(t, srv.Addr())
	defer conn2.Close()
	buf := make([]byte, 1)
	conn2.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := conn2.Read(buf); err == nil {
		t.Fatalf("second connection should have been refused before HI")
	}

	conn1.Close()
	if got := pollClientCount(t, srv, 0); got != 0 {
		t.Fatalf("client count after disconnect = %d, want 0", got)
	}

	conn3 := dialRaw(t, srv.Addr())
	defer conn3.Close()
	if hi := readEnvelope(t, conn3); hi.Command != wire.CmdHI {
		t.Fatalf("got %v, want HI after slot freed", hi.Command)
	}
}

func pollClientCount(t *testing.T, srv *Server, want int) int {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := srv.ClientCount(); got == want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv.ClientCount()
}
