// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the length-delimited-by-escape framing layer and
// the request/response envelope codec used by the queue's TCP protocol.
//
// Framing is stream-oriented: a frame is payload bytes followed by a fixed
// multi-byte delimiter. Any occurrence of the delimiter inside the payload
// is escaped at send time by substituting an alternate marker of the same
// length; the reader reverses that substitution after stripping the
// trailing delimiter. Unlike the source this protocol was distilled from,
// the carry of bytes read past a delimiter lives on the *FrameReader
// instance, never in a package-level variable — a process with more than
// one connection open at a time would otherwise interleave unrelated
// streams' trailing bytes.
package wire

import (
	"bytes"
	"io"
	"time"
)

// delimiter marks the end of a frame on the wire. delimiterEscape is the
// same length and is substituted for any literal occurrence of delimiter
// found inside a payload.
var (
	delimiter       = []byte("bye:)")
	delimiterEscape = []byte("bye:]")
)

// DefaultMaxChunk is the largest single read performed per recv() call.
// Frames may be arbitrarily larger than this; they are assembled across
// repeated reads.
const DefaultMaxChunk = 1 << 12 // 4KiB

// deadlineConn is satisfied by net.Conn and by anything else (e.g. a test
// double) that wants to support deadline-bounded frame reads/writes. A
// plain io.Reader/io.Writer without this interface simply never has a
// deadline applied.
type deadlineConn interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// FrameReader reads delimited frames off a stream, carrying unconsumed
// bytes between calls on behalf of exactly one connection.
type FrameReader struct {
	r        io.Reader
	dc       deadlineConn
	maxChunk int
	carry    []byte
}

// ReaderOption configures a FrameReader.
type ReaderOption func(*FrameReader)

// WithMaxChunk overrides the per-recv chunk size (default DefaultMaxChunk).
func WithMaxChunk(n int) ReaderOption {
	return func(fr *FrameReader) {
		if n > 0 {
			fr.maxChunk = n
		}
	}
}

// NewFrameReader returns a FrameReader over r. If r also implements
// SetReadDeadline (as net.Conn does), ReadFrame's deadline argument is
// honored; otherwise deadlines are silently ignored.
func NewFrameReader(r io.Reader, opts ...ReaderOption) *FrameReader {
	fr := &FrameReader{r: r, maxChunk: DefaultMaxChunk}
	if dc, ok := r.(deadlineConn); ok {
		fr.dc = dc
	}
	for _, opt := range opts {
		opt(fr)
	}
	return fr
}

// ReadFrame blocks until one full frame has been read, the peer closes the
// stream, a read error occurs, or deadline (if non-zero) elapses first.
//
// On success it returns the de-escaped payload bytes. Any bytes read past
// the delimiter are retained on the FrameReader and prepended to the next
// call's data.
func (fr *FrameReader) ReadFrame(deadline time.Time) ([]byte, error) {
	if fr.dc != nil {
		_ = fr.dc.SetReadDeadline(deadline)
	}

	var buf bytes.Buffer
	buf.Write(fr.carry)
	fr.carry = nil

	for {
		if idx := bytes.Index(buf.Bytes(), delimiter); idx >= 0 {
			payload := make([]byte, idx)
			copy(payload, buf.Bytes()[:idx])
			rest := buf.Bytes()[idx+len(delimiter):]
			if len(rest) > 0 {
				fr.carry = append([]byte(nil), rest...)
			}
			return bytes.ReplaceAll(payload, delimiterEscape, delimiter), nil
		}

		chunk := make([]byte, fr.maxChunk)
		n, err := fr.r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if isTimeout(err) {
				return nil, ErrWouldBlock
			}
			if err == io.EOF {
				return nil, ErrPeerClosed
			}
			return nil, ErrIO
		}
		if n == 0 {
			return nil, ErrPeerClosed
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// FrameWriter writes delimited frames to a stream.
type FrameWriter struct {
	w        io.Writer
	dc       deadlineConn
	maxChunk int
}

// NewFrameWriter returns a FrameWriter over w.
func NewFrameWriter(w io.Writer, opts ...ReaderOption) *FrameWriter {
	fw := &FrameWriter{w: w, maxChunk: DefaultMaxChunk}
	if dc, ok := w.(deadlineConn); ok {
		fw.dc = dc
	}
	return fw
}

// WriteFrame appends the delimiter to payload (escaping any literal
// delimiter occurrences first) and writes it in maxChunk-sized pieces. An
// empty payload is legal and produces a frame of exactly the delimiter on
// the wire.
func (fw *FrameWriter) WriteFrame(payload []byte, deadline time.Time) error {
	if fw.dc != nil {
		_ = fw.dc.SetWriteDeadline(deadline)
	}

	escaped := bytes.ReplaceAll(payload, delimiter, delimiterEscape)
	framed := append(escaped, delimiter...)

	for off := 0; off < len(framed); {
		end := off + fw.maxChunk
		if end > len(framed) {
			end = len(framed)
		}
		n, err := fw.w.Write(framed[off:end])
		if err != nil {
			if isTimeout(err) {
				return ErrWouldBlock
			}
			return ErrIO
		}
		off += n
	}
	return nil
}
