package datatable

import "errors"

// Common errors returned by the datatable package and its adapters.
var (
	// ErrInvalidRow is returned when a requested row or line lies outside the
	// currently known bounds.
	ErrInvalidRow = errors.New("invalid row index")

	// ErrFormat is returned when file-level metadata is missing, malformed or
	// inconsistent with the data it describes.
	ErrFormat = errors.New("invalid file format")

	// ErrNoDataSource is returned when a required data source is nil.
	ErrNoDataSource = errors.New("data source is nil")

	// ErrEmptyData is returned when data is empty where it shouldn't be.
	ErrEmptyData = errors.New("data is empty")

	// ErrClosed is returned when a closed source is used.
	ErrClosed = errors.New("data source is closed")
)
