package codec

import "errors"

var (
	// ErrCodecNotFound is returned when no codec is registered under a
	// requested identifier or tag
	ErrCodecNotFound = errors.New("codec: codec not found")

	// ErrCorrupt is returned when a payload does not decode to its
	// recorded uncompressed size
	ErrCorrupt = errors.New("codec: corrupt payload")
)
