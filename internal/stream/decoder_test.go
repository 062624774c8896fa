// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSSE = ": keep-alive\n" +
	"event: message\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"id: 7\r\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo ✓\"}}]}\r\n\r\n" +
	"data:{\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: [DONE]\n\n"

// decodeAll feeds the input split at the given cut points.
func decodeAll(t *testing.T, format Format, input []byte, cuts []int) []Frame {
	t.Helper()
	d := NewDecoder(format)
	var frames []Frame
	prev := 0
	for _, c := range append(cuts, len(input)) {
		got, err := d.Feed(input[prev:c])
		require.NoError(t, err)
		frames = append(frames, got...)
		prev = c
	}
	return append(frames, d.Flush()...)
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_SSE(t *testing.T) {
	frames := decodeAll(t, FormatSSE, []byte(sampleSSE), nil)

	require.Len(t, frames, 4)
	assert.Equal(t, `{"choices":[{"delta":{"content":"Hel"}}]}`, string(frames[0].Data))
	assert.Equal(t, `{"choices":[{"delta":{"content":"lo ✓"}}]}`, string(frames[1].Data))
	assert.Equal(t, `{"choices":[{"delta":{},"finish_reason":"stop"}]}`, string(frames[2].Data))
	assert.True(t, frames[3].Done)
	assert.Empty(t, frames[3].Data)
}

func TestDecoder_SplitInvariance(t *testing.T) {
	input := []byte(sampleSSE)
	want := decodeAll(t, FormatSSE, input, nil)

	// Every single split point, including ones inside multi-byte runes.
	for i := 0; i <= len(input); i++ {
		got := decodeAll(t, FormatSSE, input, []int{i})
		require.Equal(t, want, got, "split at %d", i)
	}

	// Random multi-way splits.
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 200; n++ {
		var cuts []int
		pos := 0
		for pos < len(input) {
			pos += 1 + rng.Intn(8)
			if pos < len(input) {
				cuts = append(cuts, pos)
			}
		}
		require.Equal(t, want, decodeAll(t, FormatSSE, input, cuts))
	}
}

func TestDecoder_FlushesTrailingLine(t *testing.T) {
	frames := decodeAll(t, FormatSSE, []byte(`data: {"content":"tail"}`), nil)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"content":"tail"}`, string(frames[0].Data))
}

func TestDecoder_NDJSON(t *testing.T) {
	input := []byte("{\"a\":1}\n\n  \n{\"b\":2}\r\n{\"c\":3}")
	frames := decodeAll(t, FormatNDJSON, input, []int{3, 9})

	require.Len(t, frames, 3)
	assert.Equal(t, `{"a":1}`, string(frames[0].Data))
	assert.Equal(t, `{"b":2}`, string(frames[1].Data))
	assert.Equal(t, `{"c":3}`, string(frames[2].Data))
}

func TestDecoder_DoneIsNotSpecialInNDJSON(t *testing.T) {
	frames := decodeAll(t, FormatNDJSON, []byte("data: [DONE]\n"), nil)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Done)
}

func TestDecoder_FrameTooLarge(t *testing.T) {
	d := NewDecoder(FormatSSE)
	_, err := d.Feed(bytes.Repeat([]byte("x"), MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoder_CompleteLineTooLarge(t *testing.T) {
	d := NewDecoder(FormatNDJSON)
	chunk := append([]byte("{\"a\":1}\n"), bytes.Repeat([]byte("x"), MaxFrameSize+1)...)
	chunk = append(chunk, "\n{\"b\":2}\n"...)

	frames, err := d.Feed(chunk)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0].Data))
}

func TestDecoder_LongLineAcrossManyChunks(t *testing.T) {
	d := NewDecoder(FormatNDJSON)
	part := bytes.Repeat([]byte("x"), readChunkSize)
	chunks := MaxFrameSize / readChunkSize

	for i := 0; i < chunks; i++ {
		frames, err := d.Feed(part)
		require.NoError(t, err)
		require.Empty(t, frames)
	}
	frames, err := d.Feed([]byte("\nnext"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Data, MaxFrameSize)

	frames, err = d.Feed([]byte("\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "next", string(frames[0].Data))
	assert.LessOrEqual(t, cap(d.buf), 2*MaxFrameSize+readChunkSize)
}

// =============================================================================
// FRAME READER TESTS
// =============================================================================

// trickleReader returns at most n bytes per Read.
type trickleReader struct {
	r io.Reader
	n int
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if len(p) > t.n {
		p = p[:t.n]
	}
	return t.r.Read(p)
}

func TestFrameReader(t *testing.T) {
	fr := NewFrameReader(&trickleReader{r: strings.NewReader(sampleSSE), n: 3}, FormatSSE)

	var frames []Frame
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	assert.Equal(t, decodeAll(t, FormatSSE, []byte(sampleSSE), nil), frames)
}

func TestFrameReader_PropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	fr := NewFrameReader(io.MultiReader(strings.NewReader("data: {}\n"), &errReader{err: boom}), FormatSSE)

	f, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(f.Data))

	_, err = fr.Next()
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }
