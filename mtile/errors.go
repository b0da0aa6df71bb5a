package mtile

import "errors"

var (
	// ErrInvalidMagic is returned when the data does not start with the
	// MTile signature
	ErrInvalidMagic = errors.New("mtile: invalid magic")

	// ErrUnsupportedVersion is returned for container versions this
	// package does not read
	ErrUnsupportedVersion = errors.New("mtile: unsupported version")

	// ErrTruncated is returned when the container ends before its
	// structure completes, including containers that were never finalized
	ErrTruncated = errors.New("mtile: truncated container")

	// ErrCorrupt is returned when the container structure is internally
	// inconsistent
	ErrCorrupt = errors.New("mtile: corrupt container")

	// ErrNotFound is returned when no chunk matches a lookup
	ErrNotFound = errors.New("mtile: no matching chunk")
)
