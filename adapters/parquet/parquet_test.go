package parquet

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	pq "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpierre/rowwindow/datatable"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64},
}, nil)

func nameOf(i int) string {
	return fmt.Sprintf("row-%03d", i)
}

// writeTestFile writes rows rows to a Parquet file with at most groupLen rows
// per row group. Every 7th name is null.
func writeTestFile(t *testing.T, rows int, groupLen int64) string {
	t.Helper()
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, testSchema)
	defer b.Release()
	ids := b.Field(0).(*array.Int64Builder)
	names := b.Field(1).(*array.StringBuilder)
	scores := b.Field(2).(*array.Float64Builder)
	for i := range rows {
		ids.Append(int64(i))
		if i%7 == 0 {
			names.AppendNull()
		} else {
			names.Append(nameOf(i))
		}
		scores.Append(float64(i) / 2)
	}
	rec := b.NewRecord()
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "data.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	props := pq.NewWriterProperties(
		pq.WithMaxRowGroupLength(groupLen),
		pq.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(testSchema, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	_ = f.Close()
	return path
}

func openTestFile(t *testing.T, path string, opts ...Option) *File {
	t.Helper()
	pf, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pf.Close() })
	return pf
}

// assertRows checks that rec holds exactly rows [offset, offset+n).
func assertRows(t *testing.T, rec arrow.Record, offset, n int) {
	t.Helper()
	require.Equal(t, int64(n), rec.NumRows())
	require.Equal(t, int64(3), rec.NumCols())
	ids := rec.Column(0).(*array.Int64)
	names := rec.Column(1).(*array.String)
	scores := rec.Column(2).(*array.Float64)
	for i := range n {
		row := offset + i
		require.Equal(t, int64(row), ids.Value(i), "id at %d", i)
		if row%7 == 0 {
			assert.True(t, names.IsNull(i), "name at %d", i)
		} else {
			assert.Equal(t, nameOf(row), names.Value(i), "name at %d", i)
		}
		assert.Equal(t, float64(row)/2, scores.Value(i), "score at %d", i)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	pf := openTestFile(t, writeTestFile(t, 95, 10))

	n, err := pf.RowCount()
	require.NoError(t, err)
	assert.Equal(t, 95, n)

	groups := pf.RowGroups()
	require.Len(t, groups, 10)
	var total int64
	for _, g := range groups {
		assert.LessOrEqual(t, g, int64(10))
		total += g
	}
	assert.Equal(t, int64(95), total)

	sc := pf.Schema()
	require.Equal(t, 3, sc.NumFields())
	assert.Equal(t, "id", sc.Field(0).Name)
	assert.Equal(t, arrow.BinaryTypes.String, sc.Field(1).Type)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Open(filepath.Join(t.TempDir(), "missing.parquet"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("not parquet", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bogus.parquet")
		require.NoError(t, os.WriteFile(path, []byte("id,name\n1,alice\n"), 0o644))
		_, err := Open(path)
		assert.ErrorIs(t, err, datatable.ErrFormat)
	})
}

func TestFetchBatch(t *testing.T) {
	t.Parallel()

	pf := openTestFile(t, writeTestFile(t, 95, 10), WithBatchSize(8))

	t.Run("all rows", func(t *testing.T) {
		t.Parallel()
		rec, err := pf.FetchBatch(0, 95)
		require.NoError(t, err)
		defer rec.Release()
		assertRows(t, rec, 0, 95)
	})

	windows := []struct{ offset, n int }{
		{0, 1}, {9, 2}, {10, 10}, {37, 41}, {94, 1}, {60, 35}, {3, 90},
	}
	for _, w := range windows {
		t.Run(fmt.Sprintf("rows %d+%d", w.offset, w.n), func(t *testing.T) {
			t.Parallel()
			rec, err := pf.FetchBatch(w.offset, w.n)
			require.NoError(t, err)
			defer rec.Release()
			assertRows(t, rec, w.offset, w.n)
		})
	}

	t.Run("empty window", func(t *testing.T) {
		t.Parallel()
		rec, err := pf.FetchBatch(95, 0)
		require.NoError(t, err)
		defer rec.Release()
		assert.Equal(t, int64(0), rec.NumRows())
		assert.True(t, rec.Schema().Equal(pf.Schema()))
	})
}

func TestFetchBatchOutOfRange(t *testing.T) {
	t.Parallel()

	pf := openTestFile(t, writeTestFile(t, 20, 10))
	for _, w := range []struct{ offset, n int }{{15, 6}, {21, 0}, {-1, 2}, {0, -1}} {
		rec, err := pf.FetchBatch(w.offset, w.n)
		assert.ErrorIs(t, err, datatable.ErrInvalidRow, "window %+v", w)
		assert.Nil(t, rec)
	}
}

func TestRowCountIgnoresGrowth(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, 30, 10)
	pf := openTestFile(t, path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("appended bytes that are not parquet"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	for range 3 {
		n, err := pf.RowCount()
		require.NoError(t, err)
		assert.Equal(t, 30, n)
	}
	rec, err := pf.FetchBatch(25, 5)
	require.NoError(t, err)
	defer rec.Release()
	assertRows(t, rec, 25, 5)
}

func TestConcurrentFetch(t *testing.T) {
	t.Parallel()

	pf := openTestFile(t, writeTestFile(t, 500, 32))
	windows := datatable.SpreadWindows(500, 16, 25)
	recs, err := datatable.FetchWindows(context.Background(), pf, windows, 8)
	require.NoError(t, err)
	require.Len(t, recs, len(windows))
	for i, w := range windows {
		assertRows(t, recs[i], w.Offset, w.Len)
		recs[i].Release()
	}
}

func TestClosed(t *testing.T) {
	t.Parallel()

	pf, err := Open(writeTestFile(t, 5, 10))
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, pf.Close())

	_, err = pf.FetchBatch(0, 1)
	assert.ErrorIs(t, err, datatable.ErrClosed)
}
