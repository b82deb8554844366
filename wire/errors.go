// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrPeerClosed reports that the remote side closed the stream
	// (observed as a zero-byte read) before a full frame arrived.
	ErrPeerClosed = errors.New("wire: peer closed connection")

	// ErrIO reports a read or write failure on the underlying stream that
	// is not a clean peer close.
	ErrIO = errors.New("wire: i/o error")

	// ErrProtocol names a protocol violation. No function in this module
	// returns it; a malformed envelope is reported as ErrDecode.
	ErrProtocol = errors.New("wire: protocol error")
)

// ErrWouldBlock and ErrMore are re-exported so callers that bound a frame
// read with a deadline can distinguish "no progress before the deadline,
// try again" from a hard ErrPeerClosed/ErrIO, the same way the teacher
// package re-exports them for its own non-blocking callers.
var (
	ErrWouldBlock = iox.ErrWouldBlock
	ErrMore       = iox.ErrMore
)
