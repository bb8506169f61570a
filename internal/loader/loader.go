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

// Package loader opens the right datatable.Source for a file path.
package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/magpierre/rowwindow/adapters/csv"
	"github.com/magpierre/rowwindow/adapters/parquet"
	"github.com/magpierre/rowwindow/datatable"
)

// FileType represents the type of data file
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeCSV
	FileTypeParquet
)

// String returns the name of the file type.
func (ft FileType) String() string {
	switch ft {
	case FileTypeCSV:
		return "csv"
	case FileTypeParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// DetectFileType determines the type of file based on its extension
func DetectFileType(filePath string) FileType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".csv", ".tsv", ".psv", ".txt", ".log":
		return FileTypeCSV
	case ".parquet", ".pq":
		return FileTypeParquet
	default:
		return FileTypeUnknown
	}
}

// Options selects how a file is opened.
type Options struct {
	// Type overrides extension-based detection when not FileTypeUnknown.
	Type FileType

	// CSV configures line-oriented files.
	CSV csv.Config

	// BatchSize caps the rows decoded per internal Parquet batch.
	BatchSize int64

	Logger *slog.Logger
}

// DefaultOptions returns options using extension detection and
// csv.DefaultConfig.
func DefaultOptions() Options {
	return Options{CSV: csv.DefaultConfig()}
}

// Open opens filePath with the adapter matching its type.
func Open(filePath string, opts Options) (datatable.Source, FileType, error) {
	fileType := opts.Type
	if fileType == FileTypeUnknown {
		fileType = DetectFileType(filePath)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("loader: opening", "path", filePath, "type", fileType)

	switch fileType {
	case FileTypeCSV:
		cfg := opts.CSV
		if cfg.Logger == nil {
			cfg.Logger = logger
		}
		src, err := csv.Open(filePath, cfg)
		if err != nil {
			return nil, fileType, fmt.Errorf("failed to load CSV file: %w", err)
		}
		return src, fileType, nil
	case FileTypeParquet:
		src, err := parquet.Open(filePath, parquet.WithBatchSize(opts.BatchSize), parquet.WithLogger(logger))
		if err != nil {
			return nil, fileType, fmt.Errorf("failed to load Parquet file: %w", err)
		}
		return src, fileType, nil
	default:
		return nil, fileType, fmt.Errorf("unsupported file type: %s", filepath.Base(filePath))
	}
}

// ParseFileType parses a file type name as accepted on the command line.
// The empty string and "auto" map to FileTypeUnknown.
func ParseFileType(name string) (FileType, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return FileTypeUnknown, nil
	case "csv":
		return FileTypeCSV, nil
	case "parquet":
		return FileTypeParquet, nil
	default:
		return FileTypeUnknown, fmt.Errorf("unknown file type %q", name)
	}
}
