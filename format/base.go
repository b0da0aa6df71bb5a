package format

import (
	"fmt"

	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// Base implements the Writer contract on top of a Backend. It owns the
// lifecycle state machine, the series/plane cursor, tile negotiation, and
// every validation rule, delegating only raw encoding. Backends embed
// *Base and may shadow individual methods when their container demands it.
type Base struct {
	caps    Capabilities
	backend Backend
	opener  SinkOpener

	state    State
	retrieve meta.Retrieve
	sink     Sink

	series int
	plane  int

	compression Opt[string]
	interleaved Opt[bool]
	fps         uint16
	sequential  bool

	// Negotiated tile extents. Empty means no concrete request was made
	// and the effective extent tracks the current series.
	tileX Opt[int]
	tileY Opt[int]
}

var _ Writer = (*Base)(nil)

// BaseOption configures a Base at construction
type BaseOption func(*Base)

// WithSinkOpener replaces the default file-backed sink opener
func WithSinkOpener(open SinkOpener) BaseOption {
	return func(b *Base) { b.opener = open }
}

// NewBase creates the session engine for a backend
func NewBase(caps Capabilities, backend Backend, opts ...BaseOption) *Base {
	b := &Base{
		caps:    caps.Normalize(),
		backend: backend,
		opener:  OpenFileSink,
		state:   Unbound,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Capabilities returns the backend capability table. Callers must treat it
// as read-only.
func (b *Base) Capabilities() Capabilities { return b.caps }

// Format returns the human-readable backend name
func (b *Base) Format() string { return b.caps.Format }

// Suffixes returns the output filename suffixes the backend claims
func (b *Base) Suffixes() []string {
	out := make([]string, len(b.caps.Suffixes))
	copy(out, b.caps.Suffixes)
	return out
}

// PixelTypes returns every pixel type writable under some compression
func (b *Base) PixelTypes() []pixel.Type { return b.caps.AllPixelTypes() }

// PixelTypesFor returns the pixel types writable under the given
// compression identifier
func (b *Base) PixelTypesFor(compression string) []pixel.Type {
	return b.caps.PixelTypesFor(compression)
}

// IsSupportedType reports whether t is writable under any compression
func (b *Base) IsSupportedType(t pixel.Type) bool { return b.caps.SupportsType(t) }

// IsSupportedTypeFor reports whether t is writable under the given
// compression identifier
func (b *Base) IsSupportedTypeFor(t pixel.Type, compression string) bool {
	return b.caps.SupportsTypeFor(t, compression)
}

// CompressionTypes returns all supported compression identifiers
func (b *Base) CompressionTypes() []string { return b.caps.Compressions() }

// CompressionTypesFor returns the compression identifiers under which t
// is writable
func (b *Base) CompressionTypesFor(t pixel.Type) []string {
	return b.caps.CompressionsFor(t)
}

// CanDoStacks reports whether one output file may hold multiple planes
func (b *Base) CanDoStacks() bool { return b.caps.Stacks }

// SetMetadataRetrieve binds the metadata provider for the session. The
// cursor resets to series 0, plane 0 and negotiated tile sizes are cleared,
// since neither is meaningful against new metadata. Rebinding is permitted
// until the session closes; while an output is open the backend revalidates
// the new provider first, and a refused provider leaves the previous
// binding in place.
func (b *Base) SetMetadataRetrieve(r meta.Retrieve) error {
	if b.state == Closed {
		return fmt.Errorf("%w: bind metadata on closed writer", ErrState)
	}
	if r == nil {
		return fmt.Errorf("%w: nil metadata provider", ErrInvalidArgument)
	}
	if err := meta.Validate(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if b.sink != nil {
		if err := b.backend.ValidateMetadata(r); err != nil {
			return err
		}
	}
	b.retrieve = r
	b.series = 0
	b.plane = 0
	b.tileX = None[int]()
	b.tileY = None[int]()
	if b.state == Unbound {
		b.state = Bound
	}
	return nil
}

// MetadataRetrieve returns the bound provider, or nil before binding
func (b *Base) MetadataRetrieve() meta.Retrieve { return b.retrieve }

// Open creates the output identified by id and hands it to the backend.
// The backend vets the bound metadata first, so nothing is created for a
// dataset the container cannot hold.
func (b *Base) Open(id string) error {
	if err := b.requireBound("open output"); err != nil {
		return err
	}
	if b.sink != nil {
		return fmt.Errorf("%w: output %q already open", ErrState, b.sink.ID())
	}
	if err := b.backend.ValidateMetadata(b.retrieve); err != nil {
		return err
	}
	s, err := b.opener(id)
	if err != nil {
		return fmt.Errorf("%w: open output %q: %v", ErrFormat, id, err)
	}
	if err := b.backend.Begin(s); err != nil {
		s.Close()
		return err
	}
	b.sink = s
	return nil
}

// ChangeOutputFile finalizes the current output and continues the session
// into a fresh one. The backend revalidates the bound metadata and the new
// sink is opened before anything is finalized: when either step fails the
// current output is left exactly as it was. Once the switch is under way
// the old output is finalized and closed before the backend rebinds;
// finalization errors complete the switch and are then reported.
func (b *Base) ChangeOutputFile(id string) error {
	if b.state == Closed {
		return fmt.Errorf("%w: change output on closed writer", ErrState)
	}
	if b.sink == nil {
		return fmt.Errorf("%w: no output open", ErrState)
	}
	if err := b.backend.ValidateMetadata(b.retrieve); err != nil {
		return err
	}
	next, err := b.opener(id)
	if err != nil {
		return fmt.Errorf("%w: open output %q: %v", ErrFormat, id, err)
	}

	oldID := b.sink.ID()
	finishErr := b.backend.Finish()
	if err := b.sink.Close(); err != nil && finishErr == nil {
		finishErr = err
	}
	b.sink = nil

	if err := b.backend.Begin(next); err != nil {
		next.Close()
		return err
	}
	b.sink = next

	if finishErr != nil {
		return fmt.Errorf("%w: finalize %q: %v", ErrFormat, oldID, finishErr)
	}
	return nil
}

// Close finalizes and releases the output. Closing a closed writer is a
// no-op.
func (b *Base) Close() error {
	if b.state == Closed {
		return nil
	}
	var first error
	if b.sink != nil {
		first = b.backend.Finish()
		if err := b.sink.Close(); err != nil && first == nil {
			first = fmt.Errorf("%w: close %q: %v", ErrFormat, b.sink.ID(), err)
		}
		b.sink = nil
	}
	b.state = Closed
	return first
}

// State returns the lifecycle position of the session
func (b *Base) State() State { return b.state }

// SetSeries positions the cursor on a series. The plane cursor resets to 0
// because plane counts differ per series. Out-of-range indices leave the
// cursor unchanged.
func (b *Base) SetSeries(series int) error {
	if err := b.requireBound("set series"); err != nil {
		return err
	}
	if n := b.retrieve.SeriesCount(); series < 0 || series >= n {
		return fmt.Errorf("%w: series %d of %d", ErrOutOfRange, series, n)
	}
	b.series = series
	b.plane = 0
	return nil
}

// Series returns the series cursor
func (b *Base) Series() int { return b.series }

// SetPlane positions the plane cursor within the current series
func (b *Base) SetPlane(plane int) error {
	if err := b.requireBound("set plane"); err != nil {
		return err
	}
	if n := b.retrieve.PlaneCount(b.series); plane < 0 || plane >= n {
		return fmt.Errorf("%w: plane %d of %d in series %d", ErrOutOfRange, plane, n, b.series)
	}
	b.plane = plane
	return nil
}

// Plane returns the plane cursor
func (b *Base) Plane() int { return b.plane }

// SetTileSizeX negotiates the tile width and returns the effective value.
// An unset request clears any earlier negotiation; the effective width then
// tracks the full width of the current series.
func (b *Base) SetTileSizeX(size Opt[int]) (int, error) {
	return b.negotiate(size, &b.tileX, b.caps.TileWidths, "width", b.sizeX())
}

// TileSizeX returns the negotiated tile width, or the current series width
// when no concrete request is in effect. A width negotiated on a larger
// series stays in effect across series switches.
func (b *Base) TileSizeX() int {
	if v, ok := b.tileX.Get(); ok {
		return v
	}
	return b.sizeX()
}

// SetTileSizeY negotiates the tile height, mirroring SetTileSizeX
func (b *Base) SetTileSizeY(size Opt[int]) (int, error) {
	return b.negotiate(size, &b.tileY, b.caps.TileHeights, "height", b.sizeY())
}

// TileSizeY returns the negotiated tile height, or the current series
// height when no concrete request is in effect
func (b *Base) TileSizeY() int {
	if v, ok := b.tileY.Get(); ok {
		return v
	}
	return b.sizeY()
}

func (b *Base) negotiate(size Opt[int], cache *Opt[int], candidates []int, axis string, extent int) (int, error) {
	if err := b.requireBound("negotiate tile size"); err != nil {
		return 0, err
	}
	if b.state == Writing {
		return 0, fmt.Errorf("%w: tile size is fixed once writing has begun", ErrState)
	}
	if !size.IsSet() {
		*cache = None[int]()
		return extent, nil
	}
	req, _ := size.Get()
	if req < 1 {
		return 0, fmt.Errorf("%w: tile %s %d", ErrInvalidArgument, axis, req)
	}
	got := negotiateTile(req, candidates, extent, b.caps.OversizeTiles)
	*cache = Some(got)
	b.markConfigured()
	return got, nil
}

// negotiateTile resolves a requested tile extent against the candidate
// list: the smallest candidate at or above the request wins, then the
// largest candidate below it, then the plane extent itself. Candidates
// beyond the plane extent are eligible only when oversize tiles are
// permitted.
func negotiateTile(req int, candidates []int, extent int, oversize bool) int {
	above, below := 0, 0
	for _, c := range candidates {
		if c < 1 {
			continue
		}
		if !oversize && c > extent {
			continue
		}
		if c >= req {
			if above == 0 || c < above {
				above = c
			}
		} else if c > below {
			below = c
		}
	}
	if above != 0 {
		return above
	}
	if below != 0 {
		return below
	}
	return extent
}

// SetCompression selects the compression scheme for the session
func (b *Base) SetCompression(compression string) error {
	if err := b.requireConfigurable("set compression"); err != nil {
		return err
	}
	if !b.caps.SupportsCompression(compression) {
		return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedCompression, compression, b.caps.Compressions())
	}
	b.compression = Some(compression)
	b.markConfigured()
	return nil
}

// Compression returns the selected scheme, or an empty Opt when the
// session runs on the backend default
func (b *Base) Compression() Opt[string] { return b.compression }

// EffectiveCompression returns the identifier validation and encoding run
// under: the selected scheme, or the identity scheme when none was chosen
func (b *Base) EffectiveCompression() string {
	return b.compression.Or(CompressionNone)
}

// SetInterleaved records whether channels are interleaved per pixel
func (b *Base) SetInterleaved(interleaved bool) error {
	if err := b.requireConfigurable("set interleaving"); err != nil {
		return err
	}
	b.interleaved = Some(interleaved)
	b.markConfigured()
	return nil
}

// Interleaved returns the recorded channel layout, or an empty Opt when
// none was chosen
func (b *Base) Interleaved() Opt[bool] { return b.interleaved }

// SetFramesPerSecond records the playback rate stored in the output
func (b *Base) SetFramesPerSecond(rate uint16) error {
	if err := b.requireConfigurable("set frame rate"); err != nil {
		return err
	}
	b.fps = rate
	b.markConfigured()
	return nil
}

// FramesPerSecond returns the recorded playback rate; 0 means unspecified
func (b *Base) FramesPerSecond() uint16 { return b.fps }

// SetWriteSequentially hints that planes arrive in storage order. Backends
// may use the hint to skip bookkeeping; it never alters validation or
// addressing behavior, and unlike settings it may be toggled mid-write.
func (b *Base) SetWriteSequentially(sequential bool) error {
	if err := b.requireBound("set write hint"); err != nil {
		return err
	}
	b.sequential = sequential
	return nil
}

// WriteSequentially returns the sequential-write hint
func (b *Base) WriteSequentially() bool { return b.sequential }

// SaveBytes writes one full plane of the current series
func (b *Base) SaveBytes(plane int, buf pixel.Buffer) error {
	if err := b.requireWritable("save bytes"); err != nil {
		return err
	}
	return b.savePlane(plane, buf, FullPlane(b.sizeX(), b.sizeY()))
}

// SaveRegion writes a rectangular sub-region of one plane
func (b *Base) SaveRegion(plane int, buf pixel.Buffer, r Region) error {
	if err := b.requireWritable("save region"); err != nil {
		return err
	}
	return b.savePlane(plane, buf, r)
}

// savePlane runs the full write validation sequence, delegates encoding,
// and records the write. Validation is synchronous: no byte reaches the
// backend unless every rule holds.
func (b *Base) savePlane(plane int, buf pixel.Buffer, r Region) error {
	if n := b.retrieve.PlaneCount(b.series); plane < 0 || plane >= n {
		return fmt.Errorf("%w: plane %d of %d in series %d", ErrOutOfRange, plane, n, b.series)
	}
	if buf == nil {
		return fmt.Errorf("%w: nil pixel buffer", ErrInvalidArgument)
	}
	if err := r.check(b.sizeX(), b.sizeY()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	typ := b.retrieve.PixelType(b.series)
	compression := b.EffectiveCompression()
	if !b.caps.SupportsTypeFor(typ, compression) {
		return fmt.Errorf("%w: %s under %q", ErrUnsupportedPixelType, typ, compression)
	}
	if buf.Type() != typ {
		return fmt.Errorf("%w: buffer holds %s, series %d holds %s", ErrFormat, buf.Type(), b.series, typ)
	}
	want := r.Width * r.Height * typ.Size() * b.retrieve.RGBChannelCount(b.series)
	if got := buf.ByteSize(); got != want {
		return fmt.Errorf("%w: buffer is %d bytes, region %s of series %d requires %d", ErrFormat, got, r, b.series, want)
	}
	if err := b.backend.EncodePlane(b.series, plane, buf, r); err != nil {
		return err
	}
	b.plane = plane
	b.state = Writing
	return nil
}

// SetLookupTable stores the lookup table for one plane. The cursor does
// not move: a lookup table is side-channel data, not plane data, so it
// also never transitions the session into the Writing state.
func (b *Base) SetLookupTable(plane int, lut pixel.Buffer) error {
	if err := b.requireWritable("set lookup table"); err != nil {
		return err
	}
	if n := b.retrieve.PlaneCount(b.series); plane < 0 || plane >= n {
		return fmt.Errorf("%w: plane %d of %d in series %d", ErrOutOfRange, plane, n, b.series)
	}
	if lut == nil {
		return fmt.Errorf("%w: nil lookup table", ErrInvalidArgument)
	}
	if lut.ByteSize() == 0 {
		return fmt.Errorf("%w: empty lookup table", ErrInvalidArgument)
	}
	if !b.caps.SupportsLUTType(lut.Type()) {
		return fmt.Errorf("%w: lookup table of %s", ErrUnsupportedPixelType, lut.Type())
	}
	if lut.ByteSize()%lut.Type().Size() != 0 {
		return fmt.Errorf("%w: lookup table of %d bytes is not whole %s samples", ErrFormat, lut.ByteSize(), lut.Type())
	}
	return b.backend.EncodeLookupTable(b.series, plane, lut)
}

func (b *Base) sizeX() int {
	if b.retrieve == nil {
		return 0
	}
	return b.retrieve.SizeX(b.series)
}

func (b *Base) sizeY() int {
	if b.retrieve == nil {
		return 0
	}
	return b.retrieve.SizeY(b.series)
}

func (b *Base) markConfigured() {
	if b.state == Bound {
		b.state = Configured
	}
}

func (b *Base) requireBound(op string) error {
	switch b.state {
	case Unbound:
		return fmt.Errorf("%w: %s before metadata is bound", ErrState, op)
	case Closed:
		return fmt.Errorf("%w: %s on closed writer", ErrState, op)
	}
	return nil
}

func (b *Base) requireConfigurable(op string) error {
	if err := b.requireBound(op); err != nil {
		return err
	}
	if b.state == Writing {
		return fmt.Errorf("%w: %s after writing has begun", ErrState, op)
	}
	return nil
}

func (b *Base) requireWritable(op string) error {
	if err := b.requireBound(op); err != nil {
		return err
	}
	if b.sink == nil {
		return fmt.Errorf("%w: %s with no output open", ErrState, op)
	}
	return nil
}
