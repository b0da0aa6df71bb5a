// Package mtile implements the MTile container backend: an append-only,
// tiled, multi-page image container used as the reference implementation of
// the writer contract.
//
// # File Format Overview
//
// An MTile file consists of:
//   - A 40-byte fixed header with magic bytes, version, session flags, the
//     frame rate, the series count, and a dataset UUID
//   - A series table with one 16-byte geometry record per series
//   - A stream of chunks, each a 48-byte header followed by a payload
//   - A chunk index and a 24-byte fixed tail written at finalization
//
// Full-plane writes are split into the negotiated tile grid, row-major with
// edge tiles clipped to the plane; sub-region writes travel as one chunk
// carrying their own geometry. Chunk payloads are compressed with the codec
// the session selected; compression schemes come from the codec registry,
// so importing a scheme package extends the writer's capability table:
//
//	import (
//		_ "github.com/bioimago/go-bioimage-writer/codec/lz4"
//		_ "github.com/bioimago/go-bioimage-writer/codec/zstd"
//	)
//
// The header and series table are not written until the first chunk, so
// configuration applied after Open still lands in the header. All integers
// are little-endian.
//
// Reader parses finalized containers back into planes for verification.
package mtile

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/bioimago/go-bioimage-writer/codec"
	"github.com/bioimago/go-bioimage-writer/format"
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// FormatName is the human-readable backend name.
const FormatName = "MTile"

// Suffix is the conventional MTile filename suffix.
const Suffix = ".mtile"

// TileSizes lists the candidate tile extents offered on both axes during
// negotiation.
var TileSizes = []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// The series table stores a uint16 count and uint32 geometry; chunk headers
// store raw and payload lengths as uint32.
const (
	maxSeries           = math.MaxUint16
	maxExtent     int64 = math.MaxUint32
	maxChunkBytes int64 = math.MaxUint32
)

// Capabilities builds the MTile capability table. Every registered codec is
// advertised for all byte-oriented pixel types; bit-valued planes do not
// round-trip through byte-stream codecs and stay restricted to uncompressed
// storage.
func Capabilities() format.Capabilities {
	all := pixel.Types()
	bytewise := make([]pixel.Type, 0, len(all)-1)
	for _, t := range all {
		if t != pixel.Bit {
			bytewise = append(bytewise, t)
		}
	}
	types := make(map[string][]pixel.Type)
	for _, name := range codec.Names() {
		if name == format.CompressionNone {
			types[name] = all
		} else {
			types[name] = bytewise
		}
	}
	return format.Capabilities{
		Format:      FormatName,
		Suffixes:    []string{Suffix},
		PixelTypes:  types,
		LUTTypes:    []pixel.Type{pixel.UInt8, pixel.UInt16},
		TileWidths:  TileSizes,
		TileHeights: TileSizes,
		Stacks:      true,
	}
}

// Writer is an MTile writer session. Create one per output dataset with
// NewWriter; it satisfies the full contract, with validation handled by the
// embedded session engine.
type Writer struct {
	*format.Base

	// dataset identifies the session across output switches: every
	// container a session produces carries the same UUID.
	dataset uuid.UUID

	sink      format.Sink
	offset    uint64
	headerOut bool
	table     []seriesRecord
	index     []indexEntry
}

var (
	_ format.Writer  = (*Writer)(nil)
	_ format.Backend = (*Writer)(nil)
)

// NewWriter creates an MTile writer session. The capability table reflects
// the codecs registered at the time of the call.
func NewWriter(opts ...format.BaseOption) *Writer {
	w := &Writer{dataset: uuid.New()}
	w.Base = format.NewBase(Capabilities(), w, opts...)
	return w
}

// DatasetUUID returns the identifier stamped into every container header
// this session writes.
func (w *Writer) DatasetUUID() uuid.UUID { return w.dataset }

// ValidateMetadata checks that every series in md fits the container's
// field widths and, once the current container's header has been written,
// that md still describes the committed series table. The session engine
// calls it before Begin and before a provider rebind reaches an open
// container.
func (w *Writer) ValidateMetadata(md meta.Retrieve) error {
	n := md.SeriesCount()
	if n > maxSeries {
		return fmt.Errorf("%w: %d series, container holds at most %d", format.ErrFormat, n, maxSeries)
	}
	for i := 0; i < n; i++ {
		if int64(md.SizeX(i)) > maxExtent || int64(md.SizeY(i)) > maxExtent || int64(md.PlaneCount(i)) > maxExtent {
			return fmt.Errorf("%w: series %d geometry exceeds container field width", format.ErrFormat, i)
		}
		if md.RGBChannelCount(i) > math.MaxUint16 {
			return fmt.Errorf("%w: series %d has %d channels, container holds at most %d",
				format.ErrFormat, i, md.RGBChannelCount(i), math.MaxUint16)
		}
	}
	if w.headerOut && !tablesEqual(seriesTable(md), w.table) {
		return fmt.Errorf("%w: metadata conflicts with the series table committed to %q",
			format.ErrFormat, w.sink.ID())
	}
	return nil
}

// Begin arms a fresh sink. Header bytes are deferred to the first chunk.
func (w *Writer) Begin(s format.Sink) error {
	w.sink = s
	w.offset = 0
	w.headerOut = false
	w.table = nil
	w.index = w.index[:0]
	return nil
}

// EncodePlane writes one validated region of one plane. Full-plane regions
// are split into the negotiated tile grid; sub-regions travel as a single
// chunk with their own geometry, so they must fit one chunk's length field.
func (w *Writer) EncodePlane(series, plane int, buf pixel.Buffer, r format.Region) error {
	md := w.MetadataRetrieve()
	sizeX, sizeY := md.SizeX(series), md.SizeY(series)
	typ := md.PixelType(series)
	channels := md.RGBChannelCount(series)
	bpp := typ.Size() * channels

	full := r.Full(sizeX, sizeY)
	if !full {
		if n := int64(r.Width) * int64(r.Height) * int64(bpp); n > maxChunkBytes {
			return fmt.Errorf("%w: region %s of %d bytes exceeds the %d byte chunk capacity",
				format.ErrFormat, r, n, maxChunkBytes)
		}
	}
	if err := w.flushHeader(); err != nil {
		return err
	}
	c, err := codec.Get(w.EffectiveCompression())
	if err != nil {
		return fmt.Errorf("%w: %v", format.ErrFormat, err)
	}

	if !full {
		return w.writeChunk(ChunkTile, c, series, plane, r, typ, channels, buf.Bytes())
	}

	tw, th := w.TileSizeX(), w.TileSizeY()
	for ty := 0; ty < sizeY; ty += th {
		h := th
		if ty+h > sizeY {
			h = sizeY - ty
		}
		for tx := 0; tx < sizeX; tx += tw {
			wd := tw
			if tx+wd > sizeX {
				wd = sizeX - tx
			}
			tile := format.Region{X: tx, Y: ty, Width: wd, Height: h}
			raw := cutRegion(buf.Bytes(), sizeX, bpp, tile)
			if err := w.writeChunk(ChunkTile, c, series, plane, tile, typ, channels, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeLookupTable stores a lookup table as a 1-D chunk whose width is the
// sample count.
func (w *Writer) EncodeLookupTable(series, plane int, lut pixel.Buffer) error {
	if err := w.flushHeader(); err != nil {
		return err
	}
	c, err := codec.Get(w.EffectiveCompression())
	if err != nil {
		return fmt.Errorf("%w: %v", format.ErrFormat, err)
	}
	samples := lut.ByteSize() / lut.Type().Size()
	r := format.Region{X: 0, Y: 0, Width: samples, Height: 1}
	return w.writeChunk(ChunkLUT, c, series, plane, r, lut.Type(), 1, lut.Bytes())
}

// Finish writes the chunk index and the fixed tail. A container that never
// received a chunk still gets its header and series table here, so every
// finalized file is parseable.
func (w *Writer) Finish() error {
	if err := w.flushHeader(); err != nil {
		return err
	}
	indexOffset := w.offset
	h := chunkHeader{
		Kind:       ChunkIndex,
		Comp:       codec.TagNone,
		RawLen:     uint32(len(w.index) * indexEntrySize),
		PayloadLen: uint32(len(w.index) * indexEntrySize),
	}
	if err := w.emit(h.encode()); err != nil {
		return err
	}
	for _, e := range w.index {
		if err := w.emit(e.encode()); err != nil {
			return err
		}
	}
	t := tail{IndexOffset: indexOffset, EntryCount: uint64(len(w.index))}
	return w.emit(t.encode())
}

// flushHeader writes the fixed header and series table once per sink. It
// runs at the first chunk so settings chosen after Open are captured.
func (w *Writer) flushHeader() error {
	if w.headerOut {
		return nil
	}
	md := w.MetadataRetrieve()

	var flags uint16
	if w.WriteSequentially() {
		flags |= flagSequential
	}
	if v, ok := w.Interleaved().Get(); ok {
		flags |= flagInterleavedSet
		if v {
			flags |= flagInterleaved
		}
	}
	table := seriesTable(md)
	h := header{
		Version:     Version,
		Flags:       flags,
		FPS:         w.FramesPerSecond(),
		SeriesCount: uint16(len(table)),
		UUID:        w.dataset,
	}
	if err := w.emit(h.encode()); err != nil {
		return err
	}
	for _, rec := range table {
		if err := w.emit(rec.encode()); err != nil {
			return err
		}
	}
	w.headerOut = true
	w.table = table
	return nil
}

// seriesTable renders metadata into the wire form of the series table. The
// writer keeps the last table it committed so rebinds can be checked
// against it.
func seriesTable(md meta.Retrieve) []seriesRecord {
	recs := make([]seriesRecord, md.SeriesCount())
	for i := range recs {
		recs[i] = seriesRecord{
			SizeX:     uint32(md.SizeX(i)),
			SizeY:     uint32(md.SizeY(i)),
			Planes:    uint32(md.PlaneCount(i)),
			PixelType: md.PixelType(i).Code(),
			Channels:  uint16(md.RGBChannelCount(i)),
		}
	}
	return recs
}

func tablesEqual(a, b []seriesRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (w *Writer) writeChunk(kind ChunkKind, c codec.Codec, series, plane int, r format.Region, typ pixel.Type, channels int, raw []byte) error {
	if int64(len(raw)) > maxChunkBytes {
		return fmt.Errorf("%w: %d raw bytes exceed the %d byte chunk capacity",
			format.ErrFormat, len(raw), maxChunkBytes)
	}
	payload, err := c.Encode(raw)
	if err != nil {
		return fmt.Errorf("%w: %s encode: %v", format.ErrFormat, c.Name(), err)
	}
	if int64(len(payload)) > maxChunkBytes {
		return fmt.Errorf("%w: %d payload bytes exceed the %d byte chunk capacity",
			format.ErrFormat, len(payload), maxChunkBytes)
	}
	h := chunkHeader{
		Kind:       kind,
		Comp:       c.Tag(),
		Series:     uint32(series),
		Plane:      uint32(plane),
		X:          uint32(r.X),
		Y:          uint32(r.Y),
		W:          uint32(r.Width),
		H:          uint32(r.Height),
		PixelType:  typ.Code(),
		Channels:   uint16(channels),
		RawLen:     uint32(len(raw)),
		PayloadLen: uint32(len(payload)),
	}
	at := w.offset
	if err := w.emit(h.encode()); err != nil {
		return err
	}
	if err := w.emit(payload); err != nil {
		return err
	}
	w.index = append(w.index, indexEntry{
		Offset: at,
		Series: h.Series,
		Plane:  h.Plane,
		X:      h.X,
		Y:      h.Y,
		W:      h.W,
		H:      h.H,
	})
	return nil
}

func (w *Writer) emit(b []byte) error {
	if _, err := w.sink.Write(b); err != nil {
		return fmt.Errorf("%w: write %q: %v", format.ErrFormat, w.sink.ID(), err)
	}
	w.offset += uint64(len(b))
	return nil
}

// cutRegion copies the samples of one sub-rectangle out of a full-plane
// buffer. Full-width rectangles alias the source rows without copying.
func cutRegion(data []byte, sizeX, bpp int, r format.Region) []byte {
	row := sizeX * bpp
	if r.X == 0 && r.Width == sizeX {
		return data[r.Y*row : (r.Y+r.Height)*row]
	}
	out := make([]byte, r.Width*r.Height*bpp)
	for y := 0; y < r.Height; y++ {
		src := (r.Y+y)*row + r.X*bpp
		copy(out[y*r.Width*bpp:(y+1)*r.Width*bpp], data[src:src+r.Width*bpp])
	}
	return out
}
