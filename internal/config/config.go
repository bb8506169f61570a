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

// Package config loads the rowwin YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/magpierre/rowwindow/adapters/csv"
	"github.com/magpierre/rowwindow/internal/export"
	"github.com/magpierre/rowwindow/internal/follow"
	"github.com/magpierre/rowwindow/internal/loader"
	"github.com/magpierre/rowwindow/lineindex"
)

// Config is the top-level configuration file.
type Config struct {
	LogLevel string       `yaml:"log_level,omitempty"`
	Index    IndexConfig  `yaml:"index"`
	CSV      CSVConfig    `yaml:"csv"`
	Parquet  ParquetConf  `yaml:"parquet"`
	Follow   FollowConfig `yaml:"follow"`
	Output   OutputConfig `yaml:"output"`
}

// IndexConfig bounds the work of one newline index update.
type IndexConfig struct {
	MaxLinesPerUpdate int   `yaml:"max_lines_per_update"`           // 0 means unlimited
	MaxBytesPerUpdate int64 `yaml:"max_bytes_per_update,omitempty"` // 0 means unlimited
	BufferSize        int   `yaml:"buffer_size,omitempty"`
}

// CSVConfig mirrors csv.Config.
type CSVConfig struct {
	HasHeaders bool   `yaml:"has_headers"`
	Delimiter  string `yaml:"delimiter,omitempty"` // "auto", a single character, or "tab"
	TrimSpace  bool   `yaml:"trim_space"`
	LazyQuotes bool   `yaml:"lazy_quotes,omitempty"`
}

// ParquetConf holds Parquet read settings.
type ParquetConf struct {
	BatchSize int64 `yaml:"batch_size,omitempty"`
}

// FollowConfig controls tailing.
type FollowConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	MaxUpdatesPerSecond float64       `yaml:"max_updates_per_second"`
}

// OutputConfig selects the default output format.
type OutputConfig struct {
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	csvDefaults := csv.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Index: IndexConfig{
			MaxLinesPerUpdate: lineindex.DefaultMaxLinesPerUpdate,
		},
		CSV: CSVConfig{
			HasHeaders: csvDefaults.HasHeaders,
			Delimiter:  "auto",
			TrimSpace:  csvDefaults.TrimSpace,
		},
		Follow: FollowConfig{
			PollInterval:        follow.DefaultPollInterval,
			MaxUpdatesPerSecond: follow.DefaultUpdatesPerSecond,
		},
		Output: OutputConfig{Format: export.FormatTable.String()},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Index.MaxLinesPerUpdate < 0 {
		return fmt.Errorf("index.max_lines_per_update must not be negative, got %d", c.Index.MaxLinesPerUpdate)
	}
	if c.Index.MaxBytesPerUpdate < 0 {
		return fmt.Errorf("index.max_bytes_per_update must not be negative, got %d", c.Index.MaxBytesPerUpdate)
	}
	if c.Index.BufferSize < 0 {
		return fmt.Errorf("index.buffer_size must not be negative, got %d", c.Index.BufferSize)
	}
	if _, err := c.Delimiter(); err != nil {
		return err
	}
	if c.Parquet.BatchSize < 0 {
		return fmt.Errorf("parquet.batch_size must not be negative, got %d", c.Parquet.BatchSize)
	}
	if c.Follow.PollInterval < 0 {
		return fmt.Errorf("follow.poll_interval must not be negative, got %s", c.Follow.PollInterval)
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Delimiter returns the configured CSV delimiter, 0 meaning auto-detect.
func (c *Config) Delimiter() (rune, error) {
	switch d := c.CSV.Delimiter; strings.ToLower(d) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	default:
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == utf8.RuneError || r == '"' || r == '\n' || r == '\r' {
			return 0, fmt.Errorf("csv.delimiter must be a single character, got %q", d)
		}
		return r, nil
	}
}

// IndexOptions converts the index section to lineindex options.
func (c *Config) IndexOptions(logger *slog.Logger) []lineindex.Option {
	opts := []lineindex.Option{
		lineindex.WithMaxLinesPerUpdate(c.Index.MaxLinesPerUpdate),
		lineindex.WithMaxBytesPerUpdate(c.Index.MaxBytesPerUpdate),
		lineindex.WithLogger(logger),
	}
	if c.Index.BufferSize > 0 {
		opts = append(opts, lineindex.WithBufferSize(c.Index.BufferSize))
	}
	return opts
}

// LoaderOptions converts the configuration to loader options.
func (c *Config) LoaderOptions(logger *slog.Logger) loader.Options {
	opts := loader.DefaultOptions()
	opts.Logger = logger
	opts.BatchSize = c.Parquet.BatchSize
	opts.CSV.HasHeaders = c.CSV.HasHeaders
	opts.CSV.TrimSpace = c.CSV.TrimSpace
	opts.CSV.LazyQuotes = c.CSV.LazyQuotes
	opts.CSV.Delimiter, _ = c.Delimiter()
	opts.CSV.Index = c.IndexOptions(logger)
	opts.CSV.Logger = logger
	return opts
}

// FollowOptions converts the follow section to follower options.
func (c *Config) FollowOptions(logger *slog.Logger) []follow.Option {
	return []follow.Option{
		follow.WithPollInterval(c.Follow.PollInterval),
		follow.WithUpdatesPerSecond(c.Follow.MaxUpdatesPerSecond),
		follow.WithLogger(logger),
	}
}

// OutputFormat returns the parsed default output format.
func (c *Config) OutputFormat() export.Format {
	f, _ := export.ParseFormat(c.Output.Format)
	return f
}
