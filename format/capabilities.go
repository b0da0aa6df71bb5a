package format

import (
	"sort"

	"github.com/bioimago/go-bioimage-writer/pixel"
)

// CompressionNone identifies the identity scheme: payloads are stored as
// given. Every backend accepts it as a session setting.
const CompressionNone = "none"

// Capabilities is the static capability table a backend publishes. The
// writer core consults it during negotiation and validation and never
// mutates it.
type Capabilities struct {
	// Format is the human-readable backend name
	Format string

	// Suffixes lists the output filename suffixes the backend claims
	Suffixes []string

	// PixelTypes maps each supported compression identifier to the pixel
	// types writable under it
	PixelTypes map[string][]pixel.Type

	// LUTTypes lists the lookup-table sample types the backend stores.
	// Empty means lookup tables are unsupported.
	LUTTypes []pixel.Type

	// TileWidths and TileHeights are the ordered candidate tile extents
	// offered during negotiation. Empty means the backend does not tile and
	// planes are written at full extent.
	TileWidths  []int
	TileHeights []int

	// OversizeTiles permits negotiated tile extents larger than the plane
	OversizeTiles bool

	// Stacks reports whether one output file may hold multiple planes
	Stacks bool
}

// Normalize returns a copy of the table that carries the implicit identity
// scheme: when PixelTypes lacks CompressionNone, an entry is added mapping
// it to every pixel type the table names anywhere. NewBase normalizes the
// table it is given, so backends may omit the entry.
func (c Capabilities) Normalize() Capabilities {
	if _, ok := c.PixelTypes[CompressionNone]; ok {
		return c
	}
	types := make(map[string][]pixel.Type, len(c.PixelTypes)+1)
	for id, ts := range c.PixelTypes {
		types[id] = ts
	}
	types[CompressionNone] = c.AllPixelTypes()
	c.PixelTypes = types
	return c
}

// AllPixelTypes returns the union of writable pixel types across all
// compression identifiers, in canonical order
func (c Capabilities) AllPixelTypes() []pixel.Type {
	seen := make(map[pixel.Type]bool)
	for _, types := range c.PixelTypes {
		for _, t := range types {
			seen[t] = true
		}
	}
	out := make([]pixel.Type, 0, len(seen))
	for _, t := range pixel.Types() {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}

// PixelTypesFor returns the pixel types writable under the given
// compression identifier. Unknown identifiers yield an empty result,
// never an error.
func (c Capabilities) PixelTypesFor(compression string) []pixel.Type {
	types, ok := c.PixelTypes[compression]
	if !ok {
		return nil
	}
	out := make([]pixel.Type, len(types))
	copy(out, types)
	return out
}

// SupportsType reports whether t is writable under any compression
func (c Capabilities) SupportsType(t pixel.Type) bool {
	for _, types := range c.PixelTypes {
		for _, have := range types {
			if have == t {
				return true
			}
		}
	}
	return false
}

// SupportsTypeFor reports whether t is writable under the given compression
func (c Capabilities) SupportsTypeFor(t pixel.Type, compression string) bool {
	for _, have := range c.PixelTypes[compression] {
		if have == t {
			return true
		}
	}
	return false
}

// Compressions returns all supported compression identifiers, sorted
func (c Capabilities) Compressions() []string {
	out := make([]string, 0, len(c.PixelTypes))
	for id := range c.PixelTypes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CompressionsFor returns the compression identifiers under which t is
// writable, sorted
func (c Capabilities) CompressionsFor(t pixel.Type) []string {
	out := make([]string, 0, len(c.PixelTypes))
	for id, types := range c.PixelTypes {
		for _, have := range types {
			if have == t {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// SupportsCompression reports whether the identifier is a valid session
// setting. CompressionNone always is.
func (c Capabilities) SupportsCompression(compression string) bool {
	if compression == CompressionNone {
		return true
	}
	_, ok := c.PixelTypes[compression]
	return ok
}

// SupportsLUTType reports whether lookup tables of the given sample type
// can be stored
func (c Capabilities) SupportsLUTType(t pixel.Type) bool {
	for _, have := range c.LUTTypes {
		if have == t {
			return true
		}
	}
	return false
}
