// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"testing"
	"time"
)

// rwPair adapts an io.Reader/io.Writer pair without deadline support. The
// tests below use bytes.Buffer and io.Pipe, which have no deadline support
// either, so they exercise the non-deadline path.
type rwPair struct {
	r io.Reader
	w io.Writer
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		[]byte(""),
		[]byte("hello"),
		bytes.Repeat([]byte("x"), 10_000), // spans multiple maxChunk reads
		delimiter,                         // payload equal to the delimiter itself
		append(append([]byte("a"), delimiter...), []byte("b")...),
	}

	for _, payload := range cases {
		var buf bytes.Buffer
		fw := NewFrameWriter(&buf)
		if err := fw.WriteFrame(payload, time.Time{}); err != nil {
			t.Fatalf("WriteFrame(%q): %v", payload, err)
		}

		fr := NewFrameReader(&buf, WithMaxChunk(3))
		got, err := fr.ReadFrame(time.Time{})
		if err != nil {
			t.Fatalf("ReadFrame(%q): %v", payload, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch: got %q want %q", got, payload)
		}
	}
}

func TestFrameReaderCarriesPerStream(t *testing.T) {
	t.Parallel()

	var bufA, bufB bytes.Buffer
	NewFrameWriter(&bufA).WriteFrame([]byte("A1"), time.Time{})
	NewFrameWriter(&bufA).WriteFrame([]byte("A2"), time.Time{})
	NewFrameWriter(&bufB).WriteFrame([]byte("B1"), time.Time{})

	frA := NewFrameReader(&bufA)
	frB := NewFrameReader(&bufB)

	a1, err := frA.ReadFrame(time.Time{})
	if err != nil || string(a1) != "A1" {
		t.Fatalf("frA first read = %q, %v", a1, err)
	}
	b1, err := frB.ReadFrame(time.Time{})
	if err != nil || string(b1) != "B1" {
		t.Fatalf("frB read = %q, %v; a stream-global carry buffer would have leaked A's tail into B", b1, err)
	}
	a2, err := frA.ReadFrame(time.Time{})
	if err != nil || string(a2) != "A2" {
		t.Fatalf("frA second read = %q, %v", a2, err)
	}
}

func TestFrameReaderPeerClosed(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	go w.Close()

	fr := NewFrameReader(r)
	_, err := fr.ReadFrame(time.Time{})
	if err != ErrPeerClosed {
		t.Fatalf("got %v, want ErrPeerClosed", err)
	}
}
