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

// Package parquet implements datatable.Source over a Parquet file.
//
// The row count and row-group layout are read from the footer once, when the
// file is opened. FetchBatch uses the stored per-row-group row counts to skip
// every row group outside the requested window without reading it, so the
// cost of a fetch depends on the window length and the row groups it
// touches, not on its offset.
//
// Files are treated as immutable: growth after Open is not observed.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	pq "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/magpierre/rowwindow/datatable"
)

// File is a read-only, row-addressable view of a Parquet file.
// It is safe for concurrent use.
type File struct {
	path string
	f    *os.File
	size int64

	meta      *metadata.FileMetaData
	schema    *arrow.Schema
	nRows     int
	groupRows []int64

	mem       memory.Allocator
	batchSize int64
	logger    *slog.Logger
	closed    atomic.Bool
}

var _ datatable.Source = (*File)(nil)

// Open opens the Parquet file at path and caches its row count.
// Returns an error wrapping datatable.ErrFormat if the footer cannot be read.
func Open(path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	pf, err := newFile(path, f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return pf, nil
}

func newFile(path string, f *os.File, opts ...Option) (*File, error) {
	pf := &File{
		path:      path,
		f:         f,
		mem:       memory.DefaultAllocator,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(pf)
	}

	fileInfo, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	pf.size = fileInfo.Size()

	start := time.Now()
	rdr, err := file.NewParquetReader(io.NewSectionReader(f, 0, pf.size), file.WithReadProps(pq.NewReaderProperties(pf.mem)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create parquet reader for %s: %w", datatable.ErrFormat, path, err)
	}
	arrowReader, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, pf.mem)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create arrow reader for %s: %w", datatable.ErrFormat, path, err)
	}
	pf.schema, err = arrowReader.Schema()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to convert schema of %s: %w", datatable.ErrFormat, path, err)
	}

	pf.meta = rdr.MetaData()
	var total int64
	pf.groupRows = make([]int64, pf.meta.NumRowGroups())
	for i := range pf.groupRows {
		pf.groupRows[i] = pf.meta.RowGroup(i).NumRows()
		total += pf.groupRows[i]
	}
	if total != rdr.NumRows() {
		return nil, fmt.Errorf("%w: %s: row groups hold %d rows, footer says %d", datatable.ErrFormat, path, total, rdr.NumRows())
	}
	pf.nRows = int(total)

	pf.logger.Debug("parquet: counted rows",
		"path", path,
		"rows", pf.nRows,
		"row_groups", len(pf.groupRows),
		"took", time.Since(start))
	return pf, nil
}

// Schema returns the arrow schema of the file.
func (pf *File) Schema() *arrow.Schema {
	return pf.schema
}

// RowCount returns the number of rows recorded in the footer at Open.
func (pf *File) RowCount() (int, error) {
	return pf.nRows, nil
}

// RowGroups returns the number of rows in each row group.
func (pf *File) RowGroups() []int64 {
	return append([]int64(nil), pf.groupRows...)
}

// FetchBatch decodes rows [offset, offset+n). Row groups outside that range
// are skipped using their stored row counts; only the leading part of the
// first touched group is decoded and discarded.
//
// Every call reads through its own cursor over the file, so concurrent calls
// do not interfere.
func (pf *File) FetchBatch(offset, n int) (arrow.Record, error) {
	if pf.closed.Load() {
		return nil, datatable.ErrClosed
	}
	if err := datatable.CheckWindow(offset, n, pf.nRows); err != nil {
		return nil, err
	}
	if n == 0 {
		return datatable.EmptyRecord(pf.schema, pf.mem), nil
	}

	plan := planRowGroups(datatable.SkipTake(offset, n), pf.groupRows)
	pf.logger.Debug("parquet: fetch",
		"offset", offset,
		"rows", n,
		"row_groups", plan.RowGroups,
		"decoded_skip", plan.Skip)

	rdr, err := file.NewParquetReader(io.NewSectionReader(pf.f, 0, pf.size),
		file.WithMetadata(pf.meta),
		file.WithReadProps(pq.NewReaderProperties(pf.mem)))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer func() {
		_ = rdr.Close()
	}()

	props := pqarrow.ArrowReadProperties{BatchSize: min(plan.Skip+plan.Take, pf.batchSize)}
	arrowReader, err := pqarrow.NewFileReader(rdr, props, pf.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	rr, err := arrowReader.GetRecordReader(context.Background(), nil, plan.RowGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to read row groups %v: %w", plan.RowGroups, err)
	}
	defer rr.Release()

	var parts []arrow.Record
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()
	skip, remaining := plan.Skip, plan.Take
	for remaining > 0 && rr.Next() {
		rec := rr.Record()
		rows := rec.NumRows()
		if skip >= rows {
			skip -= rows
			continue
		}
		end := min(rows, skip+remaining)
		parts = append(parts, rec.NewSlice(skip, end))
		remaining -= end - skip
		skip = 0
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: %s: rows [%d, %d) missing from row groups %v",
			datatable.ErrFormat, pf.path, int64(offset+n)-remaining, offset+n, plan.RowGroups)
	}
	return concatRecords(rr.Schema(), parts, pf.mem)
}

// Close releases the file handle. Fetches already in flight must complete
// before Close is called.
func (pf *File) Close() error {
	if pf.closed.Swap(true) {
		return nil
	}
	return pf.f.Close()
}

// concatRecords joins record slices sharing one schema into a single record.
func concatRecords(schema *arrow.Schema, parts []arrow.Record, mem memory.Allocator) (arrow.Record, error) {
	if len(parts) == 1 {
		parts[0].Retain()
		return parts[0], nil
	}
	var rows int64
	for _, p := range parts {
		rows += p.NumRows()
	}
	cols := make([]arrow.Array, 0, schema.NumFields())
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	chunks := make([]arrow.Array, len(parts))
	for i := range schema.NumFields() {
		for j, p := range parts {
			chunks[j] = p.Column(i)
		}
		col, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, fmt.Errorf("failed to concatenate column %q: %w", schema.Field(i).Name, err)
		}
		cols = append(cols, col)
	}
	return array.NewRecord(schema, cols, rows), nil
}
