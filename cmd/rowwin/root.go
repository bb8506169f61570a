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
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/magpierre/rowwindow/datatable"
	"github.com/magpierre/rowwindow/internal/config"
	"github.com/magpierre/rowwindow/internal/loader"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	fileType   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "rowwin",
		Short: "Read row windows from CSV and Parquet files",
		Long: `rowwin reads arbitrary row ranges from CSV and Parquet files without
loading them whole. CSV files are indexed by line so that row i is line i,
and can be followed while they grow.

Examples:
  rowwin count data.parquet
  rowwin rows data.csv --offset 1000 --limit 20
  rowwin sample data.parquet --windows 8 --limit 5 --format json
  rowwin lines app.log --from 10 --count 3
  rowwin tail app.csv`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().StringVarP(&a.fileType, "type", "t", "auto", "File type (auto, csv, parquet)")

	root.AddCommand(
		a.countCmd(),
		a.schemaCmd(),
		a.rowsCmd(),
		a.sampleCmd(),
		a.linesCmd(),
		a.tailCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ll := &slog.LevelVar{}
	ll.Set(level)
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), ll)
	slog.SetDefault(a.logger)
	return nil
}

// newLogger returns a tint logger, coloured only when w is a terminal.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

// open opens path as a Source using the configuration and --type. Sources
// backed by a line index are scanned to the current end of file, so callers
// see every complete row regardless of the per-update cap.
func (a *app) open(ctx context.Context, path string) (datatable.Source, loader.FileType, error) {
	ft, err := loader.ParseFileType(a.fileType)
	if err != nil {
		return nil, loader.FileTypeUnknown, err
	}
	opts := a.cfg.LoaderOptions(a.logger)
	opts.Type = ft
	src, ft, err := loader.Open(path, opts)
	if err != nil {
		return nil, ft, err
	}
	if t, ok := src.(datatable.Tailer); ok {
		if err := catchUp(ctx, t); err != nil {
			_ = src.Close()
			return nil, ft, err
		}
	}
	return src, ft, nil
}

// catchUp calls Update until t reports nothing is left to scan.
func catchUp(ctx context.Context, t datatable.Tailer) error {
	for !t.UpToDate() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Update(); err != nil {
			return err
		}
	}
	return nil
}
