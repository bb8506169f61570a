package lineindex

import "log/slog"

const (
	// DefaultMaxLinesPerUpdate is the default number of new lines a single
	// Update call indexes before returning.
	DefaultMaxLinesPerUpdate = 1_000_000

	// DefaultBufferSize is the default size of the read buffer. Lines longer
	// than the buffer are consumed in several chunks.
	DefaultBufferSize = 64 << 10

	minBufferSize = 16
)

// Option configures an Index.
type Option func(*Index)

// WithMaxLinesPerUpdate caps how many new lines one Update call indexes.
// Set to 0 to disable the limit.
func WithMaxLinesPerUpdate(n int) Option {
	return func(idx *Index) {
		if n < 0 {
			n = 0
		}
		idx.maxLines = n
	}
}

// WithMaxBytesPerUpdate caps how many bytes one Update call consumes.
// The cap is checked between chunks, so a call may overshoot it by at most
// one buffer. Set to 0 to disable the limit (default).
func WithMaxBytesPerUpdate(n int64) Option {
	return func(idx *Index) {
		if n < 0 {
			n = 0
		}
		idx.maxBytes = n
	}
}

// WithBufferSize sets the size of the read buffer.
func WithBufferSize(n int) Option {
	return func(idx *Index) {
		idx.bufSize = max(n, minBufferSize)
	}
}

// WithLogger sets the logger used for scan diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(idx *Index) {
		if l != nil {
			idx.logger = l
		}
	}
}
