package dcmstack

import "errors"

var (
	// ErrInvalidMagic is returned when the data does not start with the
	// DCS signature
	ErrInvalidMagic = errors.New("dcmstack: invalid magic")

	// ErrUnsupportedVersion is returned for container versions this
	// package does not read
	ErrUnsupportedVersion = errors.New("dcmstack: unsupported version")

	// ErrTruncated is returned when the container ends mid-structure
	ErrTruncated = errors.New("dcmstack: truncated container")

	// ErrCorrupt is returned when the container structure is internally
	// inconsistent
	ErrCorrupt = errors.New("dcmstack: corrupt container")

	// ErrNotFound is returned when no frame matches a lookup
	ErrNotFound = errors.New("dcmstack: no matching frame")
)
