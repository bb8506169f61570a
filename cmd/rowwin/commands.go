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

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/magpierre/rowwindow/adapters/csv"
	"github.com/magpierre/rowwindow/adapters/parquet"
	"github.com/magpierre/rowwindow/datatable"
	"github.com/magpierre/rowwindow/internal/export"
	"github.com/magpierre/rowwindow/lineindex"
)

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count FILE",
		Short: "Print the number of rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			n, err := src.RowCount()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema FILE",
		Short: "Print the columns and their types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, ft, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			rows, err := src.RowCount()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type: %s\nrows: %d\n", ft, rows)
			switch s := src.(type) {
			case *csv.Source:
				fmt.Fprintf(out, "delimiter: %s\n", csv.DelimiterName(s.Delimiter()))
			case *parquet.File:
				fmt.Fprintf(out, "row groups: %d\n", len(s.RowGroups()))
			}
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tTYPE\tARROW\tNULLABLE")
			for i, field := range src.Schema().Fields() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", i, field.Name, datatable.TypeOf(field.Type), field.Type, field.Nullable)
			}
			return tw.Flush()
		},
	}
}

// outputFlags are shared by commands that print records.
type outputFlags struct {
	format string
	out    string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "Output format (table, csv, json, parquet); defaults to the config file")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Write to this file instead of stdout (required for parquet)")
}

func (a *app) outputFormat(name string) (export.Format, error) {
	if name == "" {
		return a.cfg.OutputFormat(), nil
	}
	return export.ParseFormat(name)
}

// emit writes rec as requested by o.
func (a *app) emit(w io.Writer, rec arrow.Record, o outputFlags) error {
	format, err := a.outputFormat(o.format)
	if err != nil {
		return err
	}
	if format == export.FormatParquet {
		if o.out == "" {
			return fmt.Errorf("--out is required for parquet output")
		}
		return export.WriteParquet(o.out, rec)
	}
	if o.out == "" {
		return export.Write(w, rec, format)
	}
	f, err := os.Create(o.out)
	if err != nil {
		return err
	}
	if err := export.Write(f, rec, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (a *app) rowsCmd() *cobra.Command {
	var (
		offset, limit int
		o             outputFlags
	)
	cmd := &cobra.Command{
		Use:   "rows FILE",
		Short: "Print a window of rows",
		Long: `Print limit rows starting at row offset. Row numbers start at 0 and do
not count the header line. The window is clamped to the end of the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative: %w", datatable.ErrInvalidRow)
			}
			src, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			total, err := src.RowCount()
			if err != nil {
				return err
			}
			if offset < 0 || offset > total {
				return fmt.Errorf("offset %d outside [0, %d]: %w", offset, total, datatable.ErrInvalidRow)
			}
			n := min(limit, total-offset)

			rec, err := src.FetchBatch(offset, n)
			if err != nil {
				return err
			}
			defer rec.Release()
			a.logger.DebugContext(cmd.Context(), "rows: fetched", "offset", offset, "rows", rec.NumRows())
			return a.emit(cmd.OutOrStdout(), rec, o)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "First row")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows")
	o.register(cmd)
	return cmd
}

func (a *app) sampleCmd() *cobra.Command {
	var (
		windows, limit, workers int
		format                  string
	)
	cmd := &cobra.Command{
		Use:   "sample FILE",
		Short: "Print windows spread evenly over the file",
		Long: `Fetch several windows of rows spread evenly from the first to the last
row, concurrently. Each window is preceded by a "# rows A-B" line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.outputFormat(format)
			if err != nil {
				return err
			}
			if f == export.FormatParquet {
				return fmt.Errorf("sample cannot write %s", f)
			}
			src, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			total, err := src.RowCount()
			if err != nil {
				return err
			}

			spread := datatable.SpreadWindows(total, windows, limit)
			recs, err := datatable.FetchWindows(cmd.Context(), src, spread, workers)
			if err != nil {
				return err
			}
			defer func() {
				for _, rec := range recs {
					rec.Release()
				}
			}()

			out := cmd.OutOrStdout()
			for i, w := range spread {
				fmt.Fprintf(out, "# rows %d-%d\n", w.Offset, w.End()-1)
				if err := export.Write(out, recs[i], f); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&windows, "windows", "w", 5, "Number of windows")
	cmd.Flags().IntVarP(&limit, "limit", "n", 3, "Rows per window")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent fetches")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (table, csv, json)")
	return cmd
}

func (a *app) linesCmd() *cobra.Command {
	var from, count int
	cmd := &cobra.Command{
		Use:   "lines FILE",
		Short: "Print byte ranges of lines from the newline index",
		Long: `Index FILE by newline and print, for each requested line, its 1-based
line number, byte offset, end offset and content. Line numbers given with
--from start at 0 and include any header line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := lineindex.Open(args[0], a.cfg.IndexOptions(a.logger)...)
			if err != nil {
				if idx != nil {
					_ = idx.Close()
				}
				return err
			}
			defer idx.Close()
			for !idx.UpToDate() {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if err := idx.Update(); err != nil {
					return err
				}
			}
			if from < 0 || from > idx.Len() {
				return fmt.Errorf("line %d outside [0, %d]: %w", from, idx.Len(), lineindex.ErrLineOutOfRange)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LINE\tBYTE\tEND\tTEXT")
			for line := from; line < min(from+count, idx.Len()); line++ {
				pos, err := idx.Line2Pos(line)
				if err != nil {
					return err
				}
				r, err := idx.Line2Range(line)
				if err != nil {
					return err
				}
				buf := make([]byte, r.Len())
				if _, err := f.ReadAt(buf, r.Start); err != nil {
					return fmt.Errorf("read line %d: %w", pos.Line, err)
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", pos.Line, pos.Byte, r.End, strconv.Quote(string(buf)))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "First line")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of lines")
	return cmd
}
