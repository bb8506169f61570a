// Copyright 2025 Magnus Pierre
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lineindex records the byte offsets of every line terminator in an
// append-only byte stream, so that any line can be addressed without
// rescanning the stream.
//
// An Index is built by a full scan when it is created and can be brought up
// to date cheaply with [Index.Update] while the underlying file keeps
// growing. Only complete lines are indexed: a trailing fragment without a
// terminator is consumed but only becomes a line once its '\n' arrives.
//
// An Index is not safe for concurrent use; callers sharing one must
// serialize access themselves.
package lineindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrLineOutOfRange is returned when a line number is not indexed (yet).
var ErrLineOutOfRange = errors.New("line out of range")

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Position describes where a line begins. Record is always 0: record
// numbering belongs to whatever parses the line, not to the index.
type Position struct {
	Line   uint64
	Byte   int64
	Record uint64
}

// Index records the locations of all newlines in a stream.
type Index struct {
	offset   int64
	newlines []int64

	src      io.Reader
	r        *bufio.Reader
	watching bool
	upToDate bool

	maxLines int
	maxBytes int64
	bufSize  int
	logger   *slog.Logger
}

// Open opens the file at path and indexes it.
//
// If the initial scan fails, Open returns both the partially built index and
// the error; lines scanned before the failure remain queryable.
func Open(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lineindex: %w", err)
	}
	return New(f, opts...)
}

// New indexes r. The index takes ownership of r and closes it on Close when
// it implements io.Closer. r is only ever read sequentially.
func New(r io.Reader, opts ...Option) (*Index, error) {
	idx := &Index{
		src:      r,
		watching: true,
		maxLines: DefaultMaxLinesPerUpdate,
		bufSize:  DefaultBufferSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.r = bufio.NewReaderSize(r, idx.bufSize)
	if err := idx.Update(); err != nil {
		return idx, err
	}
	return idx, nil
}

// StopWatching makes every later Update a no-op, even if the stream keeps
// growing. There is no way to resume watching. UpToDate reports true from
// then on, since no Update has work left.
func (idx *Index) StopWatching() {
	idx.watching = false
	idx.upToDate = true
}

// Watching reports whether Update still scans for new data.
func (idx *Index) Watching() bool {
	return idx.watching
}

// Update reads the stream from where the previous call stopped up to the
// current end of the stream, recording every newline found.
//
// A single call indexes at most the configured number of lines and bytes.
// When a cap stops the scan early Update still returns nil, UpToDate reports
// false, and the next call resumes exactly where this one stopped.
// Read errors are returned as is; progress made before the error is kept.
func (idx *Index) Update() error {
	if !idx.watching {
		return nil
	}
	startLines := len(idx.newlines)
	startOffset := idx.offset
	for {
		if idx.capped(startLines, startOffset) {
			idx.upToDate = false
			idx.logger.Debug("lineindex: scan capped",
				"lines", len(idx.newlines)-startLines,
				"bytes", idx.offset-startOffset,
				"offset", idx.offset)
			return nil
		}
		chunk, err := idx.r.ReadSlice('\n')
		if n := len(chunk); n > 0 {
			if chunk[n-1] == '\n' {
				idx.newlines = append(idx.newlines, idx.offset+int64(n-1))
			}
			idx.offset += int64(n)
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			// Line longer than the buffer; the rest arrives in the next chunk.
		case errors.Is(err, io.EOF):
			idx.upToDate = true
			return nil
		default:
			idx.upToDate = false
			return fmt.Errorf("lineindex: read at offset %d: %w", idx.offset, err)
		}
	}
}

func (idx *Index) capped(startLines int, startOffset int64) bool {
	if idx.maxLines > 0 && len(idx.newlines)-startLines >= idx.maxLines {
		return true
	}
	return idx.maxBytes > 0 && idx.offset-startOffset >= idx.maxBytes
}

// UpToDate reports whether the last Update reached the end of the stream.
// It is false after an Update cut short by a cap, meaning more data may be
// waiting.
func (idx *Index) UpToDate() bool {
	return idx.upToDate
}

// Line2Range gives the byte range of a line, excluding its newline.
func (idx *Index) Line2Range(line int) (Range, error) {
	if line < 0 || line >= len(idx.newlines) {
		return Range{}, fmt.Errorf("%w: line %d of %d", ErrLineOutOfRange, line, len(idx.newlines))
	}
	var start int64
	if line > 0 {
		start = idx.newlines[line-1] + 1
	}
	return Range{Start: start, End: idx.newlines[line]}, nil
}

// Line2Pos returns the position of the start of a line. Line numbers in the
// returned Position are 1-based.
func (idx *Index) Line2Pos(line int) (Position, error) {
	r, err := idx.Line2Range(line)
	if err != nil {
		return Position{}, err
	}
	return Position{Line: uint64(line) + 1, Byte: r.Start}, nil
}

// Len returns the number of complete lines indexed so far.
func (idx *Index) Len() int {
	return len(idx.newlines)
}

// Offset returns the number of bytes consumed so far, including any
// unterminated trailing fragment.
func (idx *Index) Offset() int64 {
	return idx.offset
}

// Close stops watching and closes the underlying stream if it is closable.
func (idx *Index) Close() error {
	idx.StopWatching()
	if c, ok := idx.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
