package format

import "errors"

var (
	// ErrInvalidArgument is returned for nil references, malformed regions,
	// and zero-sized requests
	ErrInvalidArgument = errors.New("bioimage: invalid argument")

	// ErrOutOfRange is returned when a series or plane index lies beyond the
	// bounds the bound metadata defines
	ErrOutOfRange = errors.New("bioimage: index out of range")

	// ErrUnsupportedCompression is returned when a compression identifier is
	// absent from the backend capability table
	ErrUnsupportedCompression = errors.New("bioimage: unsupported compression")

	// ErrUnsupportedPixelType is returned when a pixel type is not writable,
	// either at all or under the effective compression
	ErrUnsupportedPixelType = errors.New("bioimage: unsupported pixel type")

	// ErrFormat is returned for buffer shape mismatches, encode failures, and
	// I/O errors while producing output
	ErrFormat = errors.New("bioimage: format error")

	// ErrState is returned when an operation is issued in a lifecycle state
	// that does not permit it
	ErrState = errors.New("bioimage: invalid writer state")
)
