package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpierre/rowwindow/datatable"
	"github.com/magpierre/rowwindow/internal/export"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeParquet(t *testing.T, rows int) string {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i := range rows {
		b.Field(0).(*array.Int64Builder).Append(int64(i))
	}
	rec := b.NewRecord()
	defer rec.Release()
	path := filepath.Join(t.TempDir(), "data.parquet")
	require.NoError(t, export.WriteParquet(path, rec))
	return path
}

const people = "id,name\n1,alice\n2,bob\n3,carol\n"

func TestCount(t *testing.T) {
	out, err := run(t, "count", writeFile(t, "p.csv", people))
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = run(t, "count", writeParquet(t, 42))
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestSchema(t *testing.T) {
	out, err := run(t, "schema", writeFile(t, "p.csv", people))
	require.NoError(t, err)
	assert.Contains(t, out, "type: csv\n")
	assert.Contains(t, out, "rows: 3\n")
	assert.Contains(t, out, "delimiter: comma\n")
	assert.Contains(t, out, "name")

	out, err = run(t, "schema", writeParquet(t, 5))
	require.NoError(t, err)
	assert.Contains(t, out, "row groups: 1\n")
	assert.Equal(t, []string{"0", "v", "Int", "int64", "false"}, strings.Fields(lastLine(out)))
}

func TestRows(t *testing.T) {
	path := writeFile(t, "p.csv", people)

	out, err := run(t, "rows", path, "--offset", "1", "--limit", "5", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name\n2,bob\n3,carol\n", out, "window clamped to the end")

	_, err = run(t, "rows", path, "--offset", "4")
	assert.ErrorIs(t, err, datatable.ErrInvalidRow)

	_, err = run(t, "rows", path, "--format", "parquet")
	assert.Error(t, err, "parquet needs --out")

	dst := filepath.Join(t.TempDir(), "out.parquet")
	_, err = run(t, "rows", path, "--limit", "2", "--format", "parquet", "--out", dst)
	require.NoError(t, err)
	out, err = run(t, "count", dst)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestRowsConfigFormat(t *testing.T) {
	cfg := writeFile(t, "rowwin.yaml", "output:\n  format: json\n")
	out, err := run(t, "--config", cfg, "rows", writeFile(t, "p.csv", people), "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"name":"alice"`)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "count", writeFile(t, "p.csv", people))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTypeOverride(t *testing.T) {
	path := writeFile(t, "p.dat", "a;b\n1;2\n")
	_, err := run(t, "count", path)
	assert.Error(t, err)

	out, err := run(t, "--type", "csv", "count", path)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestSample(t *testing.T) {
	out, err := run(t, "sample", writeParquet(t, 100), "--windows", "3", "--limit", "2", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "# rows 0-1\nv\n0\n1\n"+
		"# rows 49-50\nv\n49\n50\n"+
		"# rows 98-99\nv\n98\n99\n", out)
}

func TestLines(t *testing.T) {
	out, err := run(t, "lines", writeFile(t, "f.log", "h\nfoo\nbar\npartial"), "--from", "1", "--count", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"2", "2", "5", `"foo"`}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"3", "6", "9", `"bar"`}, strings.Fields(lines[2]))

	_, err = run(t, "lines", writeFile(t, "f.log", "a\n"), "--from", "3")
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTail(t *testing.T) {
	cfg := writeFile(t, "rowwin.yaml", "follow:\n  poll_interval: 10ms\n  max_updates_per_second: 0\n")
	path := writeFile(t, "p.csv", people)

	var out syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "tail", path, "--lines", "1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return out.String() == "id,name\n3,carol\n" }, 5*time.Second, 5*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("4,dave\n5,er")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return out.String() == "id,name\n3,carol\n4,dave\n" }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, "id,name\n3,carol\n4,dave\n", out.String(), "partial line held back")
}

func TestCappedIndexCatchesUp(t *testing.T) {
	cfg := writeFile(t, "rowwin.yaml", "index:\n  max_lines_per_update: 2\n")
	path := writeFile(t, "n.csv", "id\n1\n2\n3\n4\n5\n")

	out, err := run(t, "--config", cfg, "count", path)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, err = run(t, "--config", cfg, "schema", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rows: 5\n")

	out, err = run(t, "--config", cfg, "rows", path, "--offset", "3", "--limit", "1", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "id\n4\n", out)

	out, err = run(t, "--config", cfg, "sample", path, "--windows", "2", "--limit", "1", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "# rows 0-0\nid\n1\n# rows 4-4\nid\n5\n", out)
}

func TestTailCappedIndex(t *testing.T) {
	cfg := writeFile(t, "rowwin.yaml", "index:\n  max_lines_per_update: 2\nfollow:\n  poll_interval: 10ms\n  max_updates_per_second: 0\n")
	path := writeFile(t, "n.csv", "id\n1\n2\n3\n4\n5\n")

	var out syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "tail", path, "--lines", "2"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return out.String() == "id\n4\n5\n" }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, "id\n4\n5\n", out.String(), "only the last rows are printed")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
