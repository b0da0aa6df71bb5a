// Package codec defines the compression codec contract used by container
// backends and a registry keyed by both identifier and wire tag. Scheme
// packages register themselves on import:
//
//	import (
//		_ "github.com/bioimago/go-bioimage-writer/codec/brotli"
//		_ "github.com/bioimago/go-bioimage-writer/codec/deflate"
//		_ "github.com/bioimago/go-bioimage-writer/codec/lz4"
//		_ "github.com/bioimago/go-bioimage-writer/codec/zstd"
//	)
//
// The identity codec ("none") is always registered.
package codec

// Codec is the universal interface for chunk payload compression
type Codec interface {
	// Name returns the compression identifier sessions select
	Name() string

	// Tag returns the stable wire code recorded in chunk headers
	Tag() uint16

	// Encode compresses src into a fresh payload
	Encode(src []byte) ([]byte, error)

	// Decode recovers the original payload from src. rawLen is the known
	// uncompressed size; output of any other size is corrupt, and
	// implementations must not expand beyond it.
	Decode(src []byte, rawLen int) ([]byte, error)
}

// Wire tags. Values are part of the container format and never reassigned.
const (
	TagNone    uint16 = 0
	TagDeflate uint16 = 1
	TagZstd    uint16 = 2
	TagLZ4     uint16 = 3
	TagBrotli  uint16 = 4
)
