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

package datatable

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Source provides windowed, read-only access to rows of tabular data,
// independent of the physical format backing it.
// All methods return errors rather than panic.
type Source interface {
	// Schema returns the arrow schema of the batches returned by FetchBatch.
	Schema() *arrow.Schema

	// RowCount returns the total number of rows known to the source.
	RowCount() (int, error)

	// FetchBatch returns exactly n consecutive rows starting at the 0-based
	// offset, in original row order. The caller must Release the record.
	// Returns ErrInvalidRow if offset+n exceeds RowCount.
	FetchBatch(offset, n int) (arrow.Record, error)

	// Close releases the resources held by the source.
	Close() error
}

// Tailer is implemented by sources backed by a growing byte stream.
// Sources that do not implement it are static for their whole lifetime.
type Tailer interface {
	// Update indexes the bytes appended since the previous call.
	Update() error

	// UpToDate reports whether the last Update reached the end of the stream.
	// It is false when Update stopped early because of its per-call cap.
	UpToDate() bool

	// StopWatching turns subsequent Update calls into no-ops.
	StopWatching()
}

// CheckWindow validates a fetch window against the number of rows of a
// source. It returns an error wrapping ErrInvalidRow when the window does
// not lie within [0, rowCount).
func CheckWindow(offset, n, rowCount int) error {
	switch {
	case offset < 0:
		return fmt.Errorf("%w: negative offset %d", ErrInvalidRow, offset)
	case n < 0:
		return fmt.Errorf("%w: negative length %d", ErrInvalidRow, n)
	case offset > rowCount || n > rowCount-offset:
		return fmt.Errorf("%w: rows [%d, %d) outside [0, %d)", ErrInvalidRow, offset, offset+n, rowCount)
	}
	return nil
}

// EmptyRecord returns a zero-row record with the given schema.
func EmptyRecord(schema *arrow.Schema, mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	return b.NewRecord()
}
