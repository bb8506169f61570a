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

// Package export writes fetched row batches in the supported output formats.
package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Format represents the supported export formats
type Format int

const (
	FormatTable Format = iota
	FormatCSV
	FormatJSON
	FormatParquet
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatTable:
		return "table"
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "table", "":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return FormatTable, fmt.Errorf("unknown output format %q", name)
	}
}

// Write writes rec to w in the given format. FormatParquet needs a file and
// is rejected here; use WriteParquet.
func Write(w io.Writer, rec arrow.Record, format Format) error {
	switch format {
	case FormatTable:
		return WriteTable(w, rec)
	case FormatCSV:
		return WriteCSV(w, rec, ',')
	case FormatJSON:
		return WriteJSON(w, rec)
	default:
		return fmt.Errorf("format %s cannot be written to a stream", format)
	}
}

// WriteParquet exports the record to a Parquet file
func WriteParquet(filePath string, rec arrow.Record) error {
	// Create the output file
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	// Create Parquet writer properties
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(rec.Schema(), file, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write record to parquet: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// WriteCSV writes the record with a header line.
func WriteCSV(w io.Writer, rec arrow.Record, comma rune) error {
	return writeCSV(w, rec, comma, true)
}

// WriteCSVRows writes the record without a header line, for appending to
// output that already has one.
func WriteCSVRows(w io.Writer, rec arrow.Record, comma rune) error {
	return writeCSV(w, rec, comma, false)
}

func writeCSV(w io.Writer, rec arrow.Record, comma rune, header bool) error {
	writer := arrowcsv.NewWriter(w, rec.Schema(),
		arrowcsv.WithComma(comma),
		arrowcsv.WithHeader(header),
		arrowcsv.WithNullWriter(""))
	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteJSON writes one JSON object per row.
func WriteJSON(w io.Writer, rec arrow.Record) error {
	if err := array.RecordToJSON(rec, w); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteTable writes the record as aligned text columns with a header.
func WriteTable(w io.Writer, rec arrow.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	schema := rec.Schema()
	headers := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		headers[i] = field.Name
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	row := make([]string, rec.NumCols())
	for rowIdx := 0; rowIdx < int(rec.NumRows()); rowIdx++ {
		for colIdx, col := range rec.Columns() {
			row[colIdx] = escapeCell(FormatValue(col, rowIdx))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func escapeCell(s string) string {
	return strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`).Replace(s)
}

// FormatValue converts an Arrow column value at a specific position to a string
func FormatValue(col arrow.Array, pos int) string {
	if col.IsNull(pos) {
		return ""
	}

	switch col.DataType().ID() {
	case arrow.STRING:
		return col.(*array.String).Value(pos)

	case arrow.LARGE_STRING:
		return col.(*array.LargeString).Value(pos)

	case arrow.BINARY:
		return string(col.(*array.Binary).Value(pos))

	case arrow.BOOL:
		return fmt.Sprintf("%v", col.(*array.Boolean).Value(pos))

	case arrow.DATE32:
		return col.(*array.Date32).Value(pos).ToTime().Format("2006-01-02")

	case arrow.DATE64:
		return col.(*array.Date64).Value(pos).ToTime().Format("2006-01-02")

	case arrow.DECIMAL128:
		d := col.(*array.Decimal128)
		scale := d.DataType().(*arrow.Decimal128Type).Scale
		return d.Value(pos).ToString(scale)

	case arrow.INT8:
		return fmt.Sprintf("%d", col.(*array.Int8).Value(pos))

	case arrow.INT16:
		return fmt.Sprintf("%d", col.(*array.Int16).Value(pos))

	case arrow.INT32:
		return fmt.Sprintf("%d", col.(*array.Int32).Value(pos))

	case arrow.INT64:
		return fmt.Sprintf("%d", col.(*array.Int64).Value(pos))

	case arrow.UINT8:
		return fmt.Sprintf("%d", col.(*array.Uint8).Value(pos))

	case arrow.UINT16:
		return fmt.Sprintf("%d", col.(*array.Uint16).Value(pos))

	case arrow.UINT32:
		return fmt.Sprintf("%d", col.(*array.Uint32).Value(pos))

	case arrow.UINT64:
		return fmt.Sprintf("%d", col.(*array.Uint64).Value(pos))

	case arrow.FLOAT16:
		return col.(*array.Float16).Value(pos).String()

	case arrow.FLOAT32:
		return fmt.Sprintf("%.6f", col.(*array.Float32).Value(pos))

	case arrow.FLOAT64:
		return fmt.Sprintf("%.6f", col.(*array.Float64).Value(pos))

	case arrow.TIMESTAMP:
		ts := col.(*array.Timestamp)
		unit := ts.DataType().(*arrow.TimestampType).Unit
		return ts.Value(pos).ToTime(unit).Format("2006-01-02 15:04:05.999999999")

	default:
		// Nested and less common types render through their own formatter.
		return col.ValueStr(pos)
	}
}
