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

	"github.com/spf13/cobra"

	"github.com/magpierre/rowwindow/datatable"
	"github.com/magpierre/rowwindow/internal/export"
	"github.com/magpierre/rowwindow/internal/follow"
)

func (a *app) tailCmd() *cobra.Command {
	var (
		last   int
		format string
	)
	cmd := &cobra.Command{
		Use:   "tail FILE",
		Short: "Print the last rows of a CSV file and follow it as it grows",
		Long: `Print the last rows of FILE, then print new rows as complete lines are
appended. A trailing line without a newline is held back until it is
finished. Stops on interrupt or when FILE is removed or renamed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = export.FormatCSV.String()
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == export.FormatParquet {
				return fmt.Errorf("tail cannot write %s", f)
			}
			src, _, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			tailer, ok := src.(datatable.Tailer)
			if !ok {
				return fmt.Errorf("%s cannot be followed", args[0])
			}

			total, err := src.RowCount()
			if err != nil {
				return err
			}
			p := &rowPrinter{src: src, w: cmd.OutOrStdout(), format: f, next: max(total-last, 0)}
			fl := follow.New(args[0], tailer, a.cfg.FollowOptions(a.logger)...)
			return fl.Run(cmd.Context(), p.flush)
		},
	}
	cmd.Flags().IntVarP(&last, "lines", "n", 10, "Number of existing rows to print first")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (csv, json, table); defaults to csv")
	return cmd
}

// rowPrinter prints rows it has not printed yet.
type rowPrinter struct {
	src           datatable.Source
	w             io.Writer
	format        export.Format
	next          int
	printedHeader bool
}

func (p *rowPrinter) flush() error {
	total, err := p.src.RowCount()
	if err != nil {
		return err
	}
	if total <= p.next {
		return nil
	}
	rec, err := p.src.FetchBatch(p.next, total-p.next)
	if err != nil {
		return err
	}
	defer rec.Release()
	if p.format == export.FormatCSV && p.printedHeader {
		err = export.WriteCSVRows(p.w, rec, ',')
	} else {
		err = export.Write(p.w, rec, p.format)
	}
	if err != nil {
		return err
	}
	p.next = total
	p.printedHeader = true
	return nil
}
