package datatable

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/errgroup"
)

// Window is a contiguous run of rows.
type Window struct {
	Offset int
	Len    int
}

// End returns one past the last row of the window.
func (w Window) End() int {
	return w.Offset + w.Len
}

// SpreadWindows returns up to count windows of n rows each, spaced evenly over
// rowCount rows. The last window always ends at rowCount. Windows shorter
// than n are produced when rowCount < n.
func SpreadWindows(rowCount, count, n int) []Window {
	if rowCount <= 0 || count <= 0 || n <= 0 {
		return nil
	}
	n = min(n, rowCount)
	last := rowCount - n
	if count == 1 || last == 0 {
		return []Window{{Offset: 0, Len: n}}
	}
	windows := make([]Window, 0, count)
	prev := -1
	for i := range count {
		off := i * last / (count - 1)
		if off == prev {
			continue
		}
		prev = off
		windows = append(windows, Window{Offset: off, Len: n})
	}
	return windows
}

// FetchWindows fetches several windows from src concurrently, using at most
// workers goroutines. Results are returned in the order of windows. On error
// every record already fetched is released.
//
// src must be safe for concurrent FetchBatch calls.
func FetchWindows(ctx context.Context, src Source, windows []Window, workers int) ([]arrow.Record, error) {
	if src == nil {
		return nil, ErrNoDataSource
	}
	if workers < 1 {
		workers = 1
	}
	rowCount, err := src.RowCount()
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if err := CheckWindow(w.Offset, w.Len, rowCount); err != nil {
			return nil, err
		}
	}

	out := make([]arrow.Record, len(windows))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, w := range windows {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := src.FetchBatch(w.Offset, w.Len)
			if err != nil {
				return fmt.Errorf("fetch rows [%d, %d): %w", w.Offset, w.End(), err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, rec := range out {
			if rec != nil {
				rec.Release()
			}
		}
		return nil, err
	}
	return out, nil
}
