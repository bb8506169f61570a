package csv

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/magpierre/rowwindow/lineindex"
)

// Config controls how a delimited file is decoded.
type Config struct {
	// HasHeaders treats the first line as column names rather than data.
	HasHeaders bool

	// Delimiter separates fields. Zero means detect it from the first line.
	Delimiter rune

	// TrimSpace trims leading and trailing white space from header names.
	TrimSpace bool

	// LazyQuotes allows quotes in unquoted fields and non-doubled quotes in
	// quoted fields.
	LazyQuotes bool

	// Index holds options for the underlying line index, e.g. the per-update
	// scan caps used while tailing.
	Index []lineindex.Option

	// Allocator is used for decoded arrow data. Nil means the default.
	Allocator memory.Allocator

	// Logger is used for diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration: a header line, an
// auto-detected delimiter and trimmed header names.
func DefaultConfig() Config {
	return Config{
		HasHeaders: true,
		TrimSpace:  true,
	}
}
