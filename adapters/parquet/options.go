package parquet

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultBatchSize is the default maximum number of rows decoded per batch.
const DefaultBatchSize = 64 << 10

// Option configures a File.
type Option func(*File)

// WithAllocator sets the allocator used for decoded arrow data.
func WithAllocator(mem memory.Allocator) Option {
	return func(f *File) {
		if mem != nil {
			f.mem = mem
		}
	}
}

// WithBatchSize caps the number of rows decoded per internal batch.
// Values <= 0 restore DefaultBatchSize.
func WithBatchSize(n int64) Option {
	return func(f *File) {
		if n <= 0 {
			n = DefaultBatchSize
		}
		f.batchSize = n
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}
