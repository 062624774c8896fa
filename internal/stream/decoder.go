// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"errors"
	"io"
)

// =============================================================================
// FRAME DECODER
// =============================================================================

const (
	// MaxFrameSize caps a single buffered line (1MB).
	MaxFrameSize = 1024 * 1024

	// DoneSentinel is the SSE payload that ends an OpenAI-style stream.
	DoneSentinel = "[DONE]"

	readChunkSize = 4 * 1024
)

var dataPrefix = []byte("data:")

// Frame is one decoded payload. Done marks the [DONE] sentinel, in which
// case Data is empty.
type Frame struct {
	Data []byte
	Done bool
}

// Format selects how lines become frames.
type Format int

const (
	// FormatSSE keeps only "data:" lines.
	FormatSSE Format = iota
	// FormatNDJSON treats every non-blank line as a frame.
	FormatNDJSON
)

// Decoder splits arbitrarily chunked bytes into frames. A partial trailing
// line is held until the next Feed or Flush, so the frames produced do not
// depend on where chunk boundaries fall.
type Decoder struct {
	format Format
	buf    []byte
	off    int // start of the unconsumed bytes in buf
}

// NewDecoder creates a decoder for the given format.
func NewDecoder(format Format) *Decoder {
	return &Decoder{format: format}
}

// Feed consumes a chunk and returns every frame it completes. A line longer
// than MaxFrameSize, complete or not, yields ErrFrameTooLarge and discards
// the buffered input.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	// Compact once the consumed prefix is at least as large as the rest.
	if d.off > 0 && d.off >= len(d.buf)-d.off {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}

	// The held remainder has no newline, so only new bytes are scanned.
	scan := len(d.buf)
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(d.buf[scan:], '\n')
		if i < 0 {
			break
		}
		end := scan + i
		if end-d.off > MaxFrameSize {
			d.reset()
			return frames, ErrFrameTooLarge
		}
		if f, ok := d.parseLine(d.buf[d.off:end]); ok {
			frames = append(frames, f)
		}
		d.off = end + 1
		scan = d.off
	}

	if len(d.buf)-d.off > MaxFrameSize {
		d.reset()
		return frames, ErrFrameTooLarge
	}
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	return frames, nil
}

// Flush returns a frame for any unterminated trailing line.
func (d *Decoder) Flush() []Frame {
	line := d.buf[d.off:]
	defer d.reset()
	if len(line) == 0 {
		return nil
	}
	if f, ok := d.parseLine(line); ok {
		return []Frame{f}
	}
	return nil
}

func (d *Decoder) reset() {
	d.buf = nil
	d.off = 0
}

// parseLine extracts a frame from one line without its newline.
func (d *Decoder) parseLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")

	if d.format == FormatNDJSON {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return Frame{}, false
		}
		return Frame{Data: copyBytes(line)}, true
	}

	if !bytes.HasPrefix(line, dataPrefix) {
		// blank separators, event:, id:, retry:, and ": comments"
		return Frame{}, false
	}
	payload := line[len(dataPrefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	if string(bytes.TrimSpace(payload)) == DoneSentinel {
		return Frame{Done: true}, true
	}
	return Frame{Data: copyBytes(payload)}, true
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

// =============================================================================
// FRAME READER
// =============================================================================

// FrameReader pulls frames from an io.Reader through a Decoder.
type FrameReader struct {
	r       io.Reader
	dec     *Decoder
	pending []Frame
	chunk   []byte
	eof     bool
}

// NewFrameReader wraps r with a decoder for the given format.
func NewFrameReader(r io.Reader, format Format) *FrameReader {
	return &FrameReader{
		r:     r,
		dec:   NewDecoder(format),
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next frame, or io.EOF once the reader is drained.
func (fr *FrameReader) Next() (Frame, error) {
	for len(fr.pending) == 0 {
		if fr.eof {
			return Frame{}, io.EOF
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			frames, ferr := fr.dec.Feed(fr.chunk[:n])
			fr.pending = append(fr.pending, frames...)
			if ferr != nil {
				return Frame{}, ferr
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Frame{}, err
			}
			fr.eof = true
			fr.pending = append(fr.pending, fr.dec.Flush()...)
		}
	}

	f := fr.pending[0]
	fr.pending = fr.pending[1:]
	return f, nil
}
