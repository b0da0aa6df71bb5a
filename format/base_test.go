package format_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bioimago/go-bioimage-writer/format"
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// stubBackend records every delegated call so tests can assert exactly what
// reaches a backend after validation.
type stubBackend struct {
	sink      format.Sink
	begun     int
	finished  int
	validated int

	planes []encoded
	luts   []encoded

	validateErr error
	beginErr    error
	encodeErr   error
	finishErr   error
}

type encoded struct {
	series, plane int
	byteSize      int
	region        format.Region
	sinkID        string
}

func (s *stubBackend) ValidateMetadata(md meta.Retrieve) error {
	s.validated++
	return s.validateErr
}

func (s *stubBackend) Begin(sink format.Sink) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.begun++
	s.sink = sink
	return nil
}

func (s *stubBackend) EncodePlane(series, plane int, buf pixel.Buffer, r format.Region) error {
	if s.encodeErr != nil {
		return s.encodeErr
	}
	if _, err := s.sink.Write(buf.Bytes()); err != nil {
		return err
	}
	s.planes = append(s.planes, encoded{series, plane, buf.ByteSize(), r, s.sink.ID()})
	return nil
}

func (s *stubBackend) EncodeLookupTable(series, plane int, lut pixel.Buffer) error {
	s.luts = append(s.luts, encoded{series, plane, lut.ByteSize(), format.Region{}, s.sink.ID()})
	return nil
}

func (s *stubBackend) Finish() error {
	s.finished++
	return s.finishErr
}

func stubCaps() format.Capabilities {
	return format.Capabilities{
		Format:   "stub",
		Suffixes: []string{".stub"},
		PixelTypes: map[string][]pixel.Type{
			format.CompressionNone: {pixel.UInt8, pixel.UInt16},
			"squeeze":              {pixel.UInt8},
		},
		LUTTypes:    []pixel.Type{pixel.UInt8},
		TileWidths:  []int{16, 64, 256},
		TileHeights: []int{16, 64, 256},
		Stacks:      true,
	}
}

func stubMeta() *meta.Store {
	return meta.NewStore(
		meta.Series{SizeX: 100, SizeY: 50, Planes: 4, Type: pixel.UInt8, Channels: 1},
		meta.Series{SizeX: 300, SizeY: 200, Planes: 2, Type: pixel.UInt16, Channels: 1},
	)
}

func newStubWriter(t *testing.T) (*format.Base, *stubBackend, *format.SinkMap) {
	t.Helper()
	be := &stubBackend{}
	sinks := format.NewSinkMap()
	w := format.NewBase(stubCaps(), be, format.WithSinkOpener(sinks.Open))
	return w, be, sinks
}

func bindAndOpen(t *testing.T, w *format.Base, id string) {
	t.Helper()
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if err := w.Open(id); err != nil {
		t.Fatalf("Open(%q): %v", id, err)
	}
}

func plane8(samples int) pixel.Buffer {
	data := make([]byte, samples)
	for i := range data {
		data[i] = byte(i)
	}
	return pixel.NewBlock(pixel.UInt8, data)
}

func TestWriterLifecycle(t *testing.T) {
	w, be, _ := newStubWriter(t)

	if got := w.State(); got != format.Unbound {
		t.Fatalf("initial State() = %v, want unbound", got)
	}

	// Everything but capability queries fails before binding.
	if err := w.SetSeries(0); !errors.Is(err, format.ErrState) {
		t.Errorf("SetSeries before bind: %v, want ErrState", err)
	}
	if err := w.SetCompression("squeeze"); !errors.Is(err, format.ErrState) {
		t.Errorf("SetCompression before bind: %v, want ErrState", err)
	}
	if err := w.Open("early.stub"); !errors.Is(err, format.ErrState) {
		t.Errorf("Open before bind: %v, want ErrState", err)
	}
	if err := w.SaveBytes(0, plane8(5000)); !errors.Is(err, format.ErrState) {
		t.Errorf("SaveBytes before bind: %v, want ErrState", err)
	}
	if got := w.Format(); got != "stub" {
		t.Errorf("Format() = %q before bind, capability queries must always work", got)
	}

	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if got := w.State(); got != format.Bound {
		t.Fatalf("State() after bind = %v, want bound", got)
	}

	if err := w.SetCompression("squeeze"); err != nil {
		t.Fatalf("SetCompression: %v", err)
	}
	if got := w.State(); got != format.Configured {
		t.Fatalf("State() after configuring = %v, want configured", got)
	}

	if err := w.Open("out.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if be.begun != 1 {
		t.Fatalf("backend Begin called %d times, want 1", be.begun)
	}

	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if got := w.State(); got != format.Writing {
		t.Fatalf("State() after write = %v, want writing", got)
	}

	// Settings are fixed once data has landed.
	if err := w.SetCompression("none"); !errors.Is(err, format.ErrState) {
		t.Errorf("SetCompression while writing: %v, want ErrState", err)
	}
	if err := w.SetInterleaved(true); !errors.Is(err, format.ErrState) {
		t.Errorf("SetInterleaved while writing: %v, want ErrState", err)
	}
	if err := w.SetFramesPerSecond(25); !errors.Is(err, format.ErrState) {
		t.Errorf("SetFramesPerSecond while writing: %v, want ErrState", err)
	}

	// The cursor stays live while writing.
	if err := w.SetPlane(2); err != nil {
		t.Errorf("SetPlane while writing: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := w.State(); got != format.Closed {
		t.Fatalf("State() after close = %v, want closed", got)
	}
	if be.finished != 1 {
		t.Errorf("backend Finish called %d times, want 1", be.finished)
	}

	if err := w.SaveBytes(1, plane8(5000)); !errors.Is(err, format.ErrState) {
		t.Errorf("SaveBytes after close: %v, want ErrState", err)
	}
	if err := w.SetMetadataRetrieve(stubMeta()); !errors.Is(err, format.ErrState) {
		t.Errorf("rebind after close: %v, want ErrState", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v, want nil", err)
	}
	if be.finished != 1 {
		t.Errorf("second Close reached the backend: Finish called %d times", be.finished)
	}
}

func TestMetadataBinding(t *testing.T) {
	w, _, _ := newStubWriter(t)

	if err := w.SetMetadataRetrieve(nil); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("bind nil: %v, want ErrInvalidArgument", err)
	}
	bad := meta.NewStore(meta.Series{SizeX: 0, SizeY: 50, Planes: 1, Type: pixel.UInt8, Channels: 1})
	if err := w.SetMetadataRetrieve(bad); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("bind invalid store: %v, want ErrInvalidArgument", err)
	}
	if w.MetadataRetrieve() != nil {
		t.Error("failed binds must not install a provider")
	}

	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if w.MetadataRetrieve() == nil {
		t.Fatal("MetadataRetrieve() = nil after bind")
	}

	// Rebinding resets the cursor and any negotiated tile sizes.
	if err := w.SetSeries(1); err != nil {
		t.Fatalf("SetSeries: %v", err)
	}
	if _, err := w.SetTileSizeX(format.Some(64)); err != nil {
		t.Fatalf("SetTileSizeX: %v", err)
	}
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if got := w.Series(); got != 0 {
		t.Errorf("Series() after rebind = %d, want 0", got)
	}
	if got := w.TileSizeX(); got != 100 {
		t.Errorf("TileSizeX() after rebind = %d, want series width 100", got)
	}
}

func TestRebindWhileWriting(t *testing.T) {
	w, be, _ := newStubWriter(t)
	bindAndOpen(t, w, "rebind.stub")

	if _, err := w.SetTileSizeX(format.Some(64)); err != nil {
		t.Fatalf("SetTileSizeX: %v", err)
	}
	if err := w.SaveBytes(1, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	// Writing does not end the binding window: a fresh provider swaps in,
	// resets the cursor, and drops the negotiated tile sizes.
	next := meta.NewStore(meta.Series{SizeX: 40, SizeY: 30, Planes: 2, Type: pixel.UInt8, Channels: 1})
	if err := w.SetMetadataRetrieve(next); err != nil {
		t.Fatalf("rebind while writing: %v", err)
	}
	if got := w.Series(); got != 0 {
		t.Errorf("Series() after rebind = %d, want 0", got)
	}
	if got := w.Plane(); got != 0 {
		t.Errorf("Plane() after rebind = %d, want 0", got)
	}
	if got := w.TileSizeX(); got != 40 {
		t.Errorf("TileSizeX() after rebind = %d, want series width 40", got)
	}

	// The session is still in its writing phase: settings stay frozen and
	// writes validate against the new geometry.
	if got := w.State(); got != format.Writing {
		t.Errorf("State() after rebind = %v, want writing", got)
	}
	if err := w.SetCompression("none"); !errors.Is(err, format.ErrState) {
		t.Errorf("SetCompression after rebind: %v, want ErrState", err)
	}
	if err := w.SaveBytes(0, plane8(40*30)); err != nil {
		t.Fatalf("SaveBytes against new metadata: %v", err)
	}
	if err := w.SaveBytes(3, plane8(40*30)); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SaveBytes(3) against 2-plane series: %v, want ErrOutOfRange", err)
	}
	if got := be.planes[1]; got.series != 0 || got.byteSize != 40*30 {
		t.Errorf("backend received series %d, %d bytes after rebind", got.series, got.byteSize)
	}
}

func TestRebindRevalidatesAgainstOpenOutput(t *testing.T) {
	w, be, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if be.validated != 0 {
		t.Fatalf("backend consulted %d times with no output open", be.validated)
	}
	if err := w.Open("reval.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if be.validated != 1 {
		t.Fatalf("Open consulted the backend %d times, want 1", be.validated)
	}
	if err := w.SetSeries(1); err != nil {
		t.Fatalf("SetSeries: %v", err)
	}

	// A provider the open container cannot hold is refused, and the
	// refusal changes nothing: binding, cursor and state survive.
	prev := w.MetadataRetrieve()
	be.validateErr = fmt.Errorf("%w: dataset does not fit", format.ErrFormat)
	if err := w.SetMetadataRetrieve(stubMeta()); !errors.Is(err, format.ErrFormat) {
		t.Fatalf("refused rebind: %v, want ErrFormat", err)
	}
	if w.MetadataRetrieve() != prev {
		t.Error("refused rebind replaced the provider")
	}
	if got := w.Series(); got != 1 {
		t.Errorf("refused rebind moved the series cursor to %d", got)
	}

	be.validateErr = nil
	buf := pixel.NewBlock(pixel.UInt16, make([]byte, 300*200*2))
	if err := w.SaveBytes(0, buf); err != nil {
		t.Errorf("SaveBytes after refused rebind: %v", err)
	}
}

func TestSeriesPlaneCursor(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	if got, want := w.Series(), 0; got != want {
		t.Errorf("initial Series() = %d, want %d", got, want)
	}
	if got, want := w.Plane(), 0; got != want {
		t.Errorf("initial Plane() = %d, want %d", got, want)
	}

	if err := w.SetPlane(3); err != nil {
		t.Fatalf("SetPlane(3): %v", err)
	}
	if err := w.SetSeries(1); err != nil {
		t.Fatalf("SetSeries(1): %v", err)
	}
	if got := w.Plane(); got != 0 {
		t.Errorf("Plane() after series switch = %d, want 0", got)
	}

	// Series 1 has 2 planes; plane 3 is gone.
	if err := w.SetPlane(3); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SetPlane(3) in series 1: %v, want ErrOutOfRange", err)
	}
	if got := w.Plane(); got != 0 {
		t.Errorf("failed SetPlane moved the cursor to %d", got)
	}

	if err := w.SetSeries(2); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SetSeries(2): %v, want ErrOutOfRange", err)
	}
	if err := w.SetSeries(-1); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SetSeries(-1): %v, want ErrOutOfRange", err)
	}
	if got := w.Series(); got != 1 {
		t.Errorf("failed SetSeries moved the cursor to %d", got)
	}
}

func TestTileNegotiation(t *testing.T) {
	tests := []struct {
		name    string
		series  int
		request format.Opt[int]
		want    int
	}{
		{"unset selects full width", 0, format.None[int](), 100},
		{"exact candidate", 0, format.Some(64), 64},
		{"rounds up to next candidate", 0, format.Some(20), 64},
		{"below smallest rounds up", 0, format.Some(3), 16},
		{"above largest eligible falls back down", 0, format.Some(80), 64},
		{"candidates beyond extent are ineligible", 0, format.Some(200), 64},
		{"larger series admits larger candidates", 1, format.Some(200), 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, _ := newStubWriter(t)
			if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
				t.Fatalf("SetMetadataRetrieve: %v", err)
			}
			if err := w.SetSeries(tt.series); err != nil {
				t.Fatalf("SetSeries: %v", err)
			}
			got, err := w.SetTileSizeX(tt.request)
			if err != nil {
				t.Fatalf("SetTileSizeX: %v", err)
			}
			if got != tt.want {
				t.Errorf("SetTileSizeX = %d, want %d", got, tt.want)
			}
			if eff := w.TileSizeX(); eff != tt.want {
				t.Errorf("TileSizeX() = %d, want %d", eff, tt.want)
			}

			// Negotiation is deterministic: repeating the request
			// yields the same answer.
			again, err := w.SetTileSizeX(tt.request)
			if err != nil {
				t.Fatalf("repeated SetTileSizeX: %v", err)
			}
			if again != got {
				t.Errorf("repeated SetTileSizeX = %d, first gave %d", again, got)
			}
		})
	}
}

func TestTileNegotiationTracksSeries(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	// With no concrete request the effective size follows the cursor.
	if got, err := w.SetTileSizeY(format.None[int]()); err != nil || got != 50 {
		t.Fatalf("SetTileSizeY(unset) = %d, %v, want 50", got, err)
	}
	if err := w.SetSeries(1); err != nil {
		t.Fatalf("SetSeries: %v", err)
	}
	if got := w.TileSizeY(); got != 200 {
		t.Errorf("TileSizeY() on series 1 = %d, want 200", got)
	}
	if got, err := w.SetTileSizeY(format.None[int]()); err != nil || got != 200 {
		t.Errorf("SetTileSizeY(unset) on series 1 = %d, %v, want 200", got, err)
	}

	// A concrete negotiation survives the switch back.
	if _, err := w.SetTileSizeY(format.Some(64)); err != nil {
		t.Fatalf("SetTileSizeY(64): %v", err)
	}
	if err := w.SetSeries(0); err != nil {
		t.Fatalf("SetSeries(0): %v", err)
	}
	if got := w.TileSizeY(); got != 64 {
		t.Errorf("TileSizeY() after switch = %d, want cached 64", got)
	}

	// Clearing restores the dynamic extent.
	if got, err := w.SetTileSizeY(format.None[int]()); err != nil || got != 50 {
		t.Errorf("SetTileSizeY(unset) = %d, %v, want 50", got, err)
	}
}

func TestTileNegotiationErrors(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	if _, err := w.SetTileSizeX(format.Some(0)); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("SetTileSizeX(0): %v, want ErrInvalidArgument", err)
	}
	if _, err := w.SetTileSizeX(format.Some(-32)); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("SetTileSizeX(-32): %v, want ErrInvalidArgument", err)
	}

	if err := w.Open("tiles.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if _, err := w.SetTileSizeX(format.Some(64)); !errors.Is(err, format.ErrState) {
		t.Errorf("renegotiation after write: %v, want ErrState", err)
	}
}

func TestOversizeTiles(t *testing.T) {
	caps := stubCaps()
	caps.OversizeTiles = true
	be := &stubBackend{}
	sinks := format.NewSinkMap()
	w := format.NewBase(caps, be, format.WithSinkOpener(sinks.Open))
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	// Series 0 is 100 wide; with oversize permitted a 200-sample request
	// may resolve above the plane extent.
	got, err := w.SetTileSizeX(format.Some(200))
	if err != nil {
		t.Fatalf("SetTileSizeX: %v", err)
	}
	if got != 256 {
		t.Errorf("SetTileSizeX(200) with oversize = %d, want 256", got)
	}
}

func TestSaveBytesValidation(t *testing.T) {
	// Series 0: 100x50, uint8, one channel. A full plane is exactly
	// 100*50*1*1 = 5000 bytes.
	tests := []struct {
		name      string
		plane     int
		buf       pixel.Buffer
		wantErr   error
		delegated int
	}{
		{"exact size accepted", 1, plane8(5000), nil, 1},
		{"one byte short", 1, plane8(4999), format.ErrFormat, 0},
		{"one byte long", 1, plane8(5001), format.ErrFormat, 0},
		{"nil buffer", 1, nil, format.ErrInvalidArgument, 0},
		{"plane out of range", 4, plane8(5000), format.ErrOutOfRange, 0},
		{"negative plane", -1, plane8(5000), format.ErrOutOfRange, 0},
		{"wrong sample type", 1, pixel.NewBlock(pixel.UInt16, make([]byte, 10000)), format.ErrFormat, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, be, sinks := newStubWriter(t)
			bindAndOpen(t, w, "save.stub")

			err := w.SaveBytes(tt.plane, tt.buf)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SaveBytes: %v", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SaveBytes: %v, want %v", err, tt.wantErr)
			}
			if len(be.planes) != tt.delegated {
				t.Errorf("backend received %d planes, want %d", len(be.planes), tt.delegated)
			}
			if tt.wantErr != nil && sinks.Get("save.stub").Len() != 0 {
				t.Errorf("failed write reached the sink: %d bytes", sinks.Get("save.stub").Len())
			}
		})
	}
}

func TestSaveBytesDelegation(t *testing.T) {
	w, be, _ := newStubWriter(t)
	bindAndOpen(t, w, "delegate.stub")

	if err := w.SaveBytes(2, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if len(be.planes) != 1 {
		t.Fatalf("backend received %d planes, want 1", len(be.planes))
	}
	got := be.planes[0]
	if got.series != 0 || got.plane != 2 {
		t.Errorf("encoded series %d plane %d, want series 0 plane 2", got.series, got.plane)
	}
	full := format.FullPlane(100, 50)
	if got.region != full {
		t.Errorf("encoded region %v, want %v", got.region, full)
	}

	// The plane argument positions the cursor; it never auto-advances.
	if got := w.Plane(); got != 2 {
		t.Errorf("Plane() after SaveBytes(2, ...) = %d, want 2", got)
	}
}

func TestSaveRegionValidation(t *testing.T) {
	region := func(x, y, w, h int) format.Region {
		return format.Region{X: x, Y: y, Width: w, Height: h}
	}

	// Series 0 is 100x50 uint8, one channel.
	tests := []struct {
		name    string
		r       format.Region
		bytes   int
		wantErr error
	}{
		{"interior region", region(10, 10, 20, 20), 400, nil},
		{"flush against right edge", region(90, 0, 10, 10), 100, nil},
		{"overruns plane width", region(90, 0, 20, 10), 200, format.ErrInvalidArgument},
		{"overruns plane height", region(0, 45, 10, 10), 100, format.ErrInvalidArgument},
		{"negative x", region(-1, 0, 10, 10), 100, format.ErrInvalidArgument},
		{"negative y", region(0, -5, 10, 10), 100, format.ErrInvalidArgument},
		{"zero width", region(10, 10, 0, 10), 0, format.ErrInvalidArgument},
		{"zero height", region(10, 10, 10, 0), 0, format.ErrInvalidArgument},
		{"undersized buffer", region(10, 10, 20, 20), 399, format.ErrFormat},
		{"oversized buffer", region(10, 10, 20, 20), 401, format.ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, be, _ := newStubWriter(t)
			bindAndOpen(t, w, "region.stub")

			err := w.SaveRegion(0, plane8(tt.bytes), tt.r)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SaveRegion(%v): %v", tt.r, err)
				}
				if len(be.planes) != 1 {
					t.Fatalf("backend received %d regions, want 1", len(be.planes))
				}
				if be.planes[0].region != tt.r {
					t.Errorf("encoded region %v, want %v", be.planes[0].region, tt.r)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SaveRegion(%v): %v, want %v", tt.r, err, tt.wantErr)
			}
			if len(be.planes) != 0 {
				t.Errorf("failed region write reached the backend")
			}
		})
	}
}

func TestUnsupportedSelections(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	err := w.SetCompression("bogus-codec")
	if !errors.Is(err, format.ErrUnsupportedCompression) {
		t.Fatalf("SetCompression(bogus-codec): %v, want ErrUnsupportedCompression", err)
	}
	if w.Compression().IsSet() {
		t.Error("failed SetCompression installed a scheme")
	}

	// squeeze only handles uint8; series 1 holds uint16 planes.
	if err := w.SetCompression("squeeze"); err != nil {
		t.Fatalf("SetCompression(squeeze): %v", err)
	}
	if err := w.Open("unsupported.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.SetSeries(1); err != nil {
		t.Fatalf("SetSeries: %v", err)
	}
	buf := pixel.NewBlock(pixel.UInt16, make([]byte, 300*200*2))
	if err := w.SaveBytes(0, buf); !errors.Is(err, format.ErrUnsupportedPixelType) {
		t.Errorf("SaveBytes uint16 under squeeze: %v, want ErrUnsupportedPixelType", err)
	}
}

func TestConfigurationDefaults(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	if w.Compression().IsSet() {
		t.Error("Compression() set before any explicit choice")
	}
	if w.EffectiveCompression() != format.CompressionNone {
		t.Errorf("EffectiveCompression() = %q, want none", w.EffectiveCompression())
	}
	if w.Interleaved().IsSet() {
		t.Error("Interleaved() set before any explicit choice")
	}
	if got := w.FramesPerSecond(); got != 0 {
		t.Errorf("FramesPerSecond() = %d, want 0", got)
	}
	if w.WriteSequentially() {
		t.Error("WriteSequentially() = true, want false by default")
	}

	if err := w.SetInterleaved(true); err != nil {
		t.Fatalf("SetInterleaved: %v", err)
	}
	if v, ok := w.Interleaved().Get(); !ok || !v {
		t.Errorf("Interleaved() = %v,%v after SetInterleaved(true)", v, ok)
	}
	if err := w.SetFramesPerSecond(30); err != nil {
		t.Fatalf("SetFramesPerSecond: %v", err)
	}
	if got := w.FramesPerSecond(); got != 30 {
		t.Errorf("FramesPerSecond() = %d, want 30", got)
	}
}

func TestWriteSequentiallyIsAHint(t *testing.T) {
	w, be, _ := newStubWriter(t)
	bindAndOpen(t, w, "hint.stub")

	if err := w.SetWriteSequentially(true); err != nil {
		t.Fatalf("SetWriteSequentially: %v", err)
	}
	if got := w.State(); got != format.Bound {
		t.Errorf("State() after hint = %v, the hint must not configure the session", got)
	}

	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	// Unlike settings, the hint stays mutable while writing.
	if err := w.SetWriteSequentially(false); err != nil {
		t.Errorf("SetWriteSequentially while writing: %v", err)
	}
	if len(be.planes) != 1 {
		t.Errorf("hint toggling affected delegation: %d planes", len(be.planes))
	}
}

func TestSetLookupTable(t *testing.T) {
	w, be, _ := newStubWriter(t)
	bindAndOpen(t, w, "lut.stub")

	lut := pixel.NewBlock(pixel.UInt8, make([]byte, 256))
	if err := w.SetLookupTable(1, lut); err != nil {
		t.Fatalf("SetLookupTable: %v", err)
	}
	if len(be.luts) != 1 || be.luts[0].plane != 1 {
		t.Fatalf("backend lookup tables = %+v, want one for plane 1", be.luts)
	}

	// A lookup table is side-channel data: no state transition, no cursor
	// movement.
	if got := w.State(); got == format.Writing {
		t.Error("SetLookupTable transitioned the session to writing")
	}
	if got := w.Plane(); got != 0 {
		t.Errorf("SetLookupTable moved the plane cursor to %d", got)
	}

	bad := pixel.NewBlock(pixel.Float32, make([]byte, 1024))
	if err := w.SetLookupTable(0, bad); !errors.Is(err, format.ErrUnsupportedPixelType) {
		t.Errorf("SetLookupTable(float): %v, want ErrUnsupportedPixelType", err)
	}
	if err := w.SetLookupTable(9, lut); !errors.Is(err, format.ErrOutOfRange) {
		t.Errorf("SetLookupTable plane 9: %v, want ErrOutOfRange", err)
	}
	if err := w.SetLookupTable(0, nil); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("SetLookupTable(nil): %v, want ErrInvalidArgument", err)
	}
	if err := w.SetLookupTable(0, pixel.NewBlock(pixel.UInt8, nil)); !errors.Is(err, format.ErrInvalidArgument) {
		t.Errorf("SetLookupTable(empty): %v, want ErrInvalidArgument", err)
	}
}

func TestSetLookupTableSampleAlignment(t *testing.T) {
	caps := stubCaps()
	caps.LUTTypes = []pixel.Type{pixel.UInt8, pixel.UInt16}
	be := &stubBackend{}
	sinks := format.NewSinkMap()
	w := format.NewBase(caps, be, format.WithSinkOpener(sinks.Open))
	bindAndOpen(t, w, "align.stub")

	// 257 bytes is not a whole number of uint16 samples.
	odd := pixel.NewBlock(pixel.UInt16, make([]byte, 257))
	if err := w.SetLookupTable(0, odd); !errors.Is(err, format.ErrFormat) {
		t.Errorf("SetLookupTable(odd uint16): %v, want ErrFormat", err)
	}
	even := pixel.NewBlock(pixel.UInt16, make([]byte, 512))
	if err := w.SetLookupTable(0, even); err != nil {
		t.Errorf("SetLookupTable(512-byte uint16): %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	w, be, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}

	if err := w.Open("a.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Open("b.stub"); !errors.Is(err, format.ErrState) {
		t.Errorf("second Open: %v, want ErrState", err)
	}
	if be.begun != 1 {
		t.Errorf("backend Begin called %d times, want 1", be.begun)
	}
}

func TestOpenFailuresRollBack(t *testing.T) {
	t.Run("backend refuses dataset", func(t *testing.T) {
		be := &stubBackend{validateErr: fmt.Errorf("%w: dataset does not fit", format.ErrFormat)}
		sinks := format.NewSinkMap()
		w := format.NewBase(stubCaps(), be, format.WithSinkOpener(sinks.Open))
		if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
			t.Fatalf("SetMetadataRetrieve: %v", err)
		}
		if err := w.Open("refused.stub"); !errors.Is(err, format.ErrFormat) {
			t.Fatalf("Open with refused dataset: %v, want ErrFormat", err)
		}
		if be.begun != 0 {
			t.Error("backend saw Begin despite refusing the dataset")
		}
		if sinks.Get("refused.stub") != nil {
			t.Error("refused dataset still created an output")
		}

		be.validateErr = nil
		if err := w.Open("ok.stub"); err != nil {
			t.Errorf("Open after refusal: %v", err)
		}
	})

	t.Run("opener failure", func(t *testing.T) {
		be := &stubBackend{}
		w := format.NewBase(stubCaps(), be, format.WithSinkOpener(func(id string) (format.Sink, error) {
			return nil, fmt.Errorf("no space on device")
		}))
		if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
			t.Fatalf("SetMetadataRetrieve: %v", err)
		}
		if err := w.Open("fail.stub"); !errors.Is(err, format.ErrFormat) {
			t.Fatalf("Open with failing opener: %v, want ErrFormat", err)
		}
		if be.begun != 0 {
			t.Error("backend saw Begin despite opener failure")
		}
	})

	t.Run("backend begin failure", func(t *testing.T) {
		be := &stubBackend{beginErr: fmt.Errorf("geometry not representable")}
		sinks := format.NewSinkMap()
		w := format.NewBase(stubCaps(), be, format.WithSinkOpener(sinks.Open))
		if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
			t.Fatalf("SetMetadataRetrieve: %v", err)
		}
		if err := w.Open("begin.stub"); err == nil {
			t.Fatal("Open succeeded despite Begin failure")
		}
		if !sinks.Get("begin.stub").Closed() {
			t.Error("sink left open after Begin failure")
		}

		// The writer stays usable: a later Open may succeed.
		be.beginErr = nil
		if err := w.Open("retry.stub"); err != nil {
			t.Errorf("Open after failed Begin: %v", err)
		}
	})
}

func TestChangeOutputFile(t *testing.T) {
	w, be, sinks := newStubWriter(t)
	bindAndOpen(t, w, "first.stub")

	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	if err := w.ChangeOutputFile("second.stub"); err != nil {
		t.Fatalf("ChangeOutputFile: %v", err)
	}
	if be.finished != 1 {
		t.Errorf("old output finalized %d times, want 1", be.finished)
	}
	if !sinks.Get("first.stub").Closed() {
		t.Error("old sink left open after switch")
	}
	if be.begun != 2 {
		t.Errorf("backend Begin called %d times, want 2", be.begun)
	}

	// Subsequent planes land in the new output.
	if err := w.SaveBytes(1, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes after switch: %v", err)
	}
	if got := be.planes[1].sinkID; got != "second.stub" {
		t.Errorf("plane written to %q, want second.stub", got)
	}

	// The session stays in the writing state across the switch.
	if got := w.State(); got != format.Writing {
		t.Errorf("State() after switch = %v, want writing", got)
	}
}

func TestChangeOutputFileFailureLeavesTargetIntact(t *testing.T) {
	be := &stubBackend{}
	sinks := format.NewSinkMap()
	failNext := false
	opener := func(id string) (format.Sink, error) {
		if failNext {
			return nil, fmt.Errorf("target unavailable")
		}
		return sinks.Open(id)
	}
	w := format.NewBase(stubCaps(), be, format.WithSinkOpener(opener))
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if err := w.Open("keep.stub"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	failNext = true
	if err := w.ChangeOutputFile("gone.stub"); !errors.Is(err, format.ErrFormat) {
		t.Fatalf("ChangeOutputFile to bad target: %v, want ErrFormat", err)
	}

	// The in-progress output is untouched: not finalized, not closed, and
	// still accepting planes.
	if be.finished != 0 {
		t.Errorf("failed switch finalized the old output %d times", be.finished)
	}
	if sinks.Get("keep.stub").Closed() {
		t.Error("failed switch closed the old sink")
	}
	failNext = false
	if err := w.SaveBytes(1, plane8(5000)); err != nil {
		t.Errorf("SaveBytes after failed switch: %v", err)
	}
	if got := be.planes[1].sinkID; got != "keep.stub" {
		t.Errorf("plane written to %q, want keep.stub", got)
	}
}

func TestChangeOutputFileBackendRefusalLeavesTargetIntact(t *testing.T) {
	w, be, sinks := newStubWriter(t)
	bindAndOpen(t, w, "hold.stub")
	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	// The backend vets the bound metadata before anything is finalized; a
	// refusal leaves the in-progress output exactly as it was, and the new
	// output is never created.
	be.validateErr = fmt.Errorf("%w: dataset does not fit", format.ErrFormat)
	if err := w.ChangeOutputFile("next.stub"); !errors.Is(err, format.ErrFormat) {
		t.Fatalf("refused switch: %v, want ErrFormat", err)
	}
	if be.finished != 0 {
		t.Errorf("refused switch finalized the old output %d times", be.finished)
	}
	if sinks.Get("hold.stub").Closed() {
		t.Error("refused switch closed the old sink")
	}
	if sinks.Get("next.stub") != nil {
		t.Error("refused switch opened the new output")
	}

	be.validateErr = nil
	if err := w.SaveBytes(1, plane8(5000)); err != nil {
		t.Errorf("SaveBytes after refused switch: %v", err)
	}
	if got := be.planes[1].sinkID; got != "hold.stub" {
		t.Errorf("plane written to %q, want hold.stub", got)
	}
}

func TestChangeOutputFileBeginFailure(t *testing.T) {
	w, be, sinks := newStubWriter(t)
	bindAndOpen(t, w, "done.stub")
	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	// A backend failing Begin after accepting validation breaks the hook
	// contract; the engine still closes the new sink and stays re-openable.
	be.beginErr = fmt.Errorf("sink rejected")
	if err := w.ChangeOutputFile("dead.stub"); err == nil {
		t.Fatal("ChangeOutputFile succeeded despite Begin failure")
	}
	if be.finished != 1 {
		t.Errorf("old output finalized %d times, want 1", be.finished)
	}
	if !sinks.Get("dead.stub").Closed() {
		t.Error("new sink left open after Begin failure")
	}

	be.beginErr = nil
	if err := w.Open("revive.stub"); err != nil {
		t.Errorf("Open after failed switch: %v", err)
	}
}

func TestChangeOutputFileFinalizeError(t *testing.T) {
	w, be, sinks := newStubWriter(t)
	bindAndOpen(t, w, "old.stub")
	if err := w.SaveBytes(0, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	be.finishErr = fmt.Errorf("trailer write failed")
	err := w.ChangeOutputFile("new.stub")
	if !errors.Is(err, format.ErrFormat) {
		t.Fatalf("ChangeOutputFile with failing finalize: %v, want ErrFormat", err)
	}

	// The switch still completes so the session can continue.
	be.finishErr = nil
	if err := w.SaveBytes(1, plane8(5000)); err != nil {
		t.Fatalf("SaveBytes after reported finalize error: %v", err)
	}
	if got := be.planes[1].sinkID; got != "new.stub" {
		t.Errorf("plane written to %q, want new.stub", got)
	}
	if sinks.Get("old.stub") == nil || !sinks.Get("old.stub").Closed() {
		t.Error("old sink not closed after finalize error")
	}
}

func TestChangeOutputFileRequiresOpenOutput(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if err := w.ChangeOutputFile("next.stub"); !errors.Is(err, format.ErrState) {
		t.Errorf("ChangeOutputFile with no output: %v, want ErrState", err)
	}
}

func TestSaveBytesRequiresOpenOutput(t *testing.T) {
	w, _, _ := newStubWriter(t)
	if err := w.SetMetadataRetrieve(stubMeta()); err != nil {
		t.Fatalf("SetMetadataRetrieve: %v", err)
	}
	if err := w.SaveBytes(0, plane8(5000)); !errors.Is(err, format.ErrState) {
		t.Errorf("SaveBytes with no output: %v, want ErrState", err)
	}
}
