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

// Package csv implements datatable.Source over a delimited text file, one
// row per line, using a lineindex.Index to map rows to byte ranges.
//
// Only the lines of the requested window are read and decoded. The file may
// keep growing: call Update (directly or through a follower) to pick up
// appended rows. A field may therefore not contain a newline, even quoted.
package csv

import (
	"bytes"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/magpierre/rowwindow/datatable"
	"github.com/magpierre/rowwindow/lineindex"
)

// Source is a row-addressable view of a delimited text file.
// It is safe for concurrent use; Update excludes concurrent fetches.
type Source struct {
	mu     sync.RWMutex
	path   string
	idx    *lineindex.Index
	f      *os.File
	closed bool

	schema     *arrow.Schema
	comma      rune
	lazyQuotes bool
	header     int

	mem    memory.Allocator
	logger *slog.Logger
}

var (
	_ datatable.Source = (*Source)(nil)
	_ datatable.Tailer = (*Source)(nil)
)

// Open indexes the file at path and derives its schema from the first line.
// The first line must be complete; otherwise an error wrapping
// datatable.ErrEmptyData is returned.
func Open(path string, cfg Config) (*Source, error) {
	s := &Source{
		path:       path,
		comma:      cfg.Delimiter,
		lazyQuotes: cfg.LazyQuotes,
		mem:        cfg.Allocator,
		logger:     cfg.Logger,
	}
	if s.mem == nil {
		s.mem = memory.DefaultAllocator
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	opts := append([]lineindex.Option{lineindex.WithLogger(s.logger)}, cfg.Index...)
	idx, err := lineindex.Open(path, opts...)
	if err != nil {
		if idx != nil {
			_ = idx.Close()
		}
		return nil, fmt.Errorf("failed to index %s: %w", path, err)
	}
	s.idx = idx

	s.f, err = os.Open(path)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if err := s.init(cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Debug("csv: opened",
		"path", path,
		"rows", s.rowCount(),
		"columns", s.schema.NumFields(),
		"delimiter", DelimiterName(s.comma))
	return s, nil
}

// init reads the first line to settle the delimiter and the schema.
func (s *Source) init(cfg Config) error {
	if s.idx.Len() == 0 {
		return fmt.Errorf("%w: %s has no complete line", datatable.ErrEmptyData, s.path)
	}
	lines, err := s.readLines(0, 1)
	if err != nil {
		return err
	}
	if s.comma == 0 {
		s.comma = DetectDelimiter(lines[0])
	}
	fields, err := s.parseLine(0, lines[0])
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s: first line is blank", datatable.ErrFormat, s.path)
	}

	schemaFields := make([]arrow.Field, len(fields))
	for i, name := range fields {
		if cfg.TrimSpace {
			name = strings.TrimSpace(name)
		}
		if !cfg.HasHeaders || name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		schemaFields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	s.schema = arrow.NewSchema(schemaFields, nil)
	if cfg.HasHeaders {
		s.header = 1
	}
	return nil
}

// Schema returns the schema of fetched batches: one nullable string column
// per field of the first line.
func (s *Source) Schema() *arrow.Schema {
	return s.schema
}

// Delimiter returns the field delimiter in use.
func (s *Source) Delimiter() rune {
	return s.comma
}

// RowCount returns the number of complete data rows indexed so far.
func (s *Source) RowCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowCount(), nil
}

func (s *Source) rowCount() int {
	return max(s.idx.Len()-s.header, 0)
}

// Position returns where data row row starts in the file.
func (s *Source) Position(row int) (lineindex.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := datatable.CheckWindow(row, 1, s.rowCount()); err != nil {
		return lineindex.Position{}, err
	}
	return s.idx.Line2Pos(row + s.header)
}

// FetchBatch decodes data rows [offset, offset+n). Row i is always line i
// of the data: a blank line yields a row of nulls, missing trailing fields
// are null and extra fields are dropped.
func (s *Source) FetchBatch(offset, n int) (arrow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, datatable.ErrClosed
	}
	if err := datatable.CheckWindow(offset, n, s.rowCount()); err != nil {
		return nil, err
	}
	if n == 0 {
		return datatable.EmptyRecord(s.schema, s.mem), nil
	}

	first := offset + s.header
	lines, err := s.readLines(first, n)
	if err != nil {
		return nil, err
	}

	b := array.NewRecordBuilder(s.mem, s.schema)
	defer b.Release()
	cols := make([]*array.StringBuilder, s.schema.NumFields())
	for i := range cols {
		cols[i] = b.Field(i).(*array.StringBuilder)
		cols[i].Reserve(n)
	}
	for i, line := range lines {
		fields, err := s.parseLine(first+i, line)
		if err != nil {
			return nil, err
		}
		for c, col := range cols {
			if c < len(fields) {
				col.Append(fields[c])
			} else {
				col.AppendNull()
			}
		}
	}
	return b.NewRecord(), nil
}

// readLines returns the content of n lines starting at line first, read
// with a single ReadAt. Trailing carriage returns are stripped.
func (s *Source) readLines(first, n int) ([][]byte, error) {
	head, err := s.idx.Line2Range(first)
	if err != nil {
		return nil, err
	}
	tail, err := s.idx.Line2Range(first + n - 1)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, tail.End-head.Start)
	if read, err := s.f.ReadAt(buf, head.Start); read < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read lines %d-%d of %s: %w", first, first+n-1, s.path, err)
	}

	lines := make([][]byte, n)
	for i := range lines {
		r, err := s.idx.Line2Range(first + i)
		if err != nil {
			return nil, err
		}
		lines[i] = bytes.TrimSuffix(buf[r.Start-head.Start:r.End-head.Start], []byte{'\r'})
	}
	return lines, nil
}

// parseLine splits one line into fields. A blank line has no fields.
func (s *Source) parseLine(line int, data []byte) ([]string, error) {
	r := stdcsv.NewReader(bytes.NewReader(data))
	r.Comma = s.comma
	r.LazyQuotes = s.lazyQuotes
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	switch {
	case errors.Is(err, io.EOF):
		return nil, nil
	case err != nil:
		pos, _ := s.idx.Line2Pos(line)
		return nil, fmt.Errorf("%w: %s line %d (byte %d): %w", datatable.ErrFormat, s.path, pos.Line, pos.Byte, err)
	}
	return fields, nil
}

// Update indexes rows appended to the file since the last call.
func (s *Source) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return datatable.ErrClosed
	}
	return s.idx.Update()
}

// UpToDate reports whether the last Update reached the end of the file.
func (s *Source) UpToDate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.UpToDate()
}

// StopWatching freezes the row count: later Update calls do nothing.
func (s *Source) StopWatching() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.StopWatching()
}

// Close releases both file handles.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.f != nil {
		errs = append(errs, s.f.Close())
	}
	errs = append(errs, s.idx.Close())
	return errors.Join(errs...)
}
