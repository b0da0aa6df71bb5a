package format

import (
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// State is the lifecycle position of a writer session
type State int

const (
	// Unbound means no metadata provider is bound; only capability queries
	// are available
	Unbound State = iota

	// Bound means a metadata provider is bound; cursor, configuration and
	// output operations are available
	Bound

	// Configured means at least one setting has been explicitly chosen
	Configured

	// Writing means plane data has been written; settings are fixed for
	// the rest of the session
	Writing

	// Closed is terminal; only queries remain
	Closed
)

// String returns the lifecycle state name
func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Configured:
		return "configured"
	case Writing:
		return "writing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Writer is the contract every image container backend satisfies: static
// capability queries, metadata binding, stateful series/plane addressing,
// tile negotiation, session configuration, and validated plane writes.
//
// A Writer is owned by a single goroutine.
type Writer interface {
	// Format returns the human-readable backend name
	Format() string

	// Suffixes returns the output filename suffixes the backend claims
	Suffixes() []string

	// PixelTypes returns every pixel type writable under some compression
	PixelTypes() []pixel.Type

	// PixelTypesFor returns the pixel types writable under the given
	// compression identifier; unknown identifiers yield an empty result
	PixelTypesFor(compression string) []pixel.Type

	// IsSupportedType reports whether t is writable under any compression
	IsSupportedType(t pixel.Type) bool

	// IsSupportedTypeFor reports whether t is writable under the given
	// compression identifier
	IsSupportedTypeFor(t pixel.Type, compression string) bool

	// CompressionTypes returns all supported compression identifiers
	CompressionTypes() []string

	// CompressionTypesFor returns the compression identifiers under which
	// t is writable
	CompressionTypesFor(t pixel.Type) []string

	// CanDoStacks reports whether one output file may hold multiple planes
	CanDoStacks() bool

	// SetMetadataRetrieve binds the metadata provider describing the
	// dataset. The provider must be non-nil and structurally valid.
	// Binding resets the cursor to series 0, plane 0 and clears any
	// negotiated tile sizes. Rebinding stays legal until the session
	// closes; while an output is open the backend must accept the new
	// provider first, and a refused provider leaves the previous binding
	// in place.
	SetMetadataRetrieve(r meta.Retrieve) error

	// MetadataRetrieve returns the bound provider, or nil before binding
	MetadataRetrieve() meta.Retrieve

	// Open creates the output identified by id and prepares the backend
	// for plane data. It requires bound metadata and no open output.
	Open(id string) error

	// ChangeOutputFile finalizes the current output and continues the
	// session into a fresh output identified by id. If the backend refuses
	// the bound metadata or the new output cannot be opened, the current
	// output is left untouched.
	ChangeOutputFile(id string) error

	// Close finalizes and releases the output. Closing a closed writer is
	// a no-op.
	Close() error

	// State returns the lifecycle position of the session
	State() State

	// SetSeries positions the cursor on a series. The plane cursor resets
	// to 0 because plane counts differ per series. Out-of-range indices
	// are rejected with the cursor unchanged.
	SetSeries(series int) error

	// Series returns the series cursor
	Series() int

	// SetPlane positions the plane cursor within the current series
	SetPlane(plane int) error

	// Plane returns the plane cursor
	Plane() int

	// SetTileSizeX negotiates the tile width. An unset request selects the
	// full width of the current series; a concrete request resolves to the
	// nearest supported candidate. The effective width is returned.
	SetTileSizeX(size Opt[int]) (int, error)

	// TileSizeX returns the negotiated tile width, or the current series
	// width when no concrete request has been made
	TileSizeX() int

	// SetTileSizeY negotiates the tile height, mirroring SetTileSizeX
	SetTileSizeY(size Opt[int]) (int, error)

	// TileSizeY returns the negotiated tile height, or the current series
	// height when no concrete request has been made
	TileSizeY() int

	// SetCompression selects the compression scheme for the session. The
	// identifier must appear in the capability table.
	SetCompression(compression string) error

	// Compression returns the selected scheme, or an empty Opt when the
	// session uses the backend default
	Compression() Opt[string]

	// SetInterleaved records whether channels are interleaved per pixel
	SetInterleaved(interleaved bool) error

	// Interleaved returns the recorded channel layout, or an empty Opt
	// when none was chosen
	Interleaved() Opt[bool]

	// SetFramesPerSecond records the playback rate stored in the output
	SetFramesPerSecond(rate uint16) error

	// FramesPerSecond returns the recorded playback rate; 0 means
	// unspecified
	FramesPerSecond() uint16

	// SetWriteSequentially hints that planes arrive in storage order. The
	// hint never alters validation or addressing behavior.
	SetWriteSequentially(sequential bool) error

	// WriteSequentially returns the sequential-write hint
	WriteSequentially() bool

	// SaveBytes writes one full plane of the current series. The buffer
	// byte size must equal exactly
	//
	//	sizeX * sizeY * bytesPerSample * rgbChannelCount
	//
	// and the plane cursor moves to the named plane.
	SaveBytes(plane int, buf pixel.Buffer) error

	// SaveRegion writes a rectangular sub-region of one plane. The buffer
	// byte size must equal exactly
	//
	//	width * height * bytesPerSample * rgbChannelCount
	//
	// for the region's extents.
	SaveRegion(plane int, buf pixel.Buffer, r Region) error

	// SetLookupTable stores the lookup table for one plane. The table's
	// sample type must appear in the backend's lookup-table capabilities.
	SetLookupTable(plane int, lut pixel.Buffer) error
}

// Backend is the raw encoding hook a container implementation provides.
// Base performs every contract check first, so a backend only receives
// validated geometry.
type Backend interface {
	// ValidateMetadata reports whether the provider's dataset is
	// representable in the container: field-width limits, and consistency
	// with the current output's preamble once that has been written. The
	// engine calls it before opening an output, before switching outputs,
	// and before adopting a new provider while an output is open. A
	// refusal leaves the session untouched.
	ValidateMetadata(md meta.Retrieve) error

	// Begin arms a fresh sink. The engine validates the bound metadata
	// first, so Begin must not refuse a dataset ValidateMetadata accepted.
	// Implementations defer preamble bytes until the first plane so late
	// session configuration is captured.
	Begin(s Sink) error

	// EncodePlane encodes one validated region of one plane into the
	// current sink
	EncodePlane(series, plane int, buf pixel.Buffer, r Region) error

	// EncodeLookupTable stores a validated lookup table for one plane
	EncodeLookupTable(series, plane int, lut pixel.Buffer) error

	// Finish writes the container trailer for the current sink
	Finish() error
}
