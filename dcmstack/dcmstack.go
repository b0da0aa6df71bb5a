// Package dcmstack implements the DICOM stack backend: a frame-per-plane
// container whose payloads are encoded by DICOM transfer syntax codecs
// from the go-dicom registry.
//
// A DCS file is a 32-byte header, a series geometry table, and a stream of
// frame records, one frame per plane write. Each record names its series,
// plane, and transfer syntax wire code, so frames decode independently.
// Compression identifiers map to DICOM transfer syntaxes; a syntax is
// advertised only while a codec for it is registered, so linking codec
// packages extends the writer's capability table. Raw little-endian
// storage is always available.
//
// Planes always travel whole: DICOM frames have no sub-frame addressing,
// and SaveRegion calls covering less than the full plane are rejected.
// The header and series table are deferred to the first frame, so
// configuration applied after Open still lands in the header.
package dcmstack

import (
	"fmt"
	"math"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"

	"github.com/bioimago/go-bioimage-writer/format"
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// FormatName is the human-readable backend name.
const FormatName = "DICOM Stack"

// Suffix is the conventional DCS filename suffix.
const Suffix = ".dcs"

// The header stores a uint16 series count; frame geometry is uint16 in
// DICOM frame metadata; the series table stores a uint32 plane count; frame
// records store their payload length as uint32.
const (
	maxSeries            = math.MaxUint16
	maxFrameExtent       = math.MaxUint16
	maxPlanes      int64 = math.MaxUint32
	maxFrameBytes  int64 = math.MaxUint32
)

// frameTypes lists the sample encodings expressible as DICOM frame
// metadata: 8 or 16 bits allocated, integer samples.
var frameTypes = []pixel.Type{pixel.UInt8, pixel.Int8, pixel.UInt16, pixel.Int16}

// codecTypes lists the sample encodings the registered transfer syntax
// codecs operate on.
var codecTypes = []pixel.Type{pixel.UInt8, pixel.UInt16, pixel.Int16}

// syntaxScheme binds a session compression identifier to a DICOM transfer
// syntax and the stable wire code stored in frame records. A nil syntax is
// identity storage.
type syntaxScheme struct {
	id    string
	code  uint16
	ts    *transfer.Syntax
	types []pixel.Type
}

var schemes = []syntaxScheme{
	{id: format.CompressionNone, code: 0, ts: nil, types: frameTypes},
	{id: "jpeg-baseline", code: 1, ts: transfer.JPEGBaseline8Bit, types: []pixel.Type{pixel.UInt8}},
	{id: "jpeg-lossless", code: 2, ts: transfer.JPEGLossless, types: codecTypes},
	{id: "jpeg-lossless-sv1", code: 3, ts: transfer.JPEGLosslessSV1, types: codecTypes},
	{id: "jpegls-lossless", code: 4, ts: transfer.JPEGLSLossless, types: codecTypes},
	{id: "jpegls-near-lossless", code: 5, ts: transfer.JPEGLSNearLossless, types: codecTypes},
	{id: "jpeg2000-lossless", code: 6, ts: transfer.JPEG2000Lossless, types: codecTypes},
	{id: "jpeg2000", code: 7, ts: transfer.JPEG2000Lossy, types: codecTypes},
	{id: "rle", code: 8, ts: transfer.RLELossless, types: codecTypes},
	{id: "htj2k", code: 9, ts: transfer.HTJ2K, types: codecTypes},
	{id: "htj2k-lossless", code: 10, ts: transfer.HTJ2KLossless, types: codecTypes},
}

func schemeFor(id string) (syntaxScheme, bool) {
	for _, s := range schemes {
		if s.id == id {
			return s, true
		}
	}
	return syntaxScheme{}, false
}

func schemeForCode(code uint16) (syntaxScheme, bool) {
	for _, s := range schemes {
		if s.code == code {
			return s, true
		}
	}
	return syntaxScheme{}, false
}

// Capabilities builds the DCS capability table from the go-dicom codec
// registry: raw storage is always available, and each transfer syntax with
// a registered codec contributes its compression identifier. Frames have
// no sub-frame addressing, so no tile extents are offered, and there is no
// lookup table support.
func Capabilities() format.Capabilities {
	types := make(map[string][]pixel.Type)
	reg := codec.GetGlobalRegistry()
	for _, s := range schemes {
		if s.ts == nil {
			types[s.id] = s.types
			continue
		}
		if _, ok := reg.GetCodec(s.ts); ok {
			types[s.id] = s.types
		}
	}
	return format.Capabilities{
		Format:     FormatName,
		Suffixes:   []string{Suffix},
		PixelTypes: types,
		Stacks:     true,
	}
}

// Writer is a DCS writer session. Create one per output dataset with
// NewWriter; it satisfies the full contract, with validation handled by
// the embedded session engine.
type Writer struct {
	*format.Base

	sink      format.Sink
	headerOut bool
	table     []seriesRecord
}

var (
	_ format.Writer  = (*Writer)(nil)
	_ format.Backend = (*Writer)(nil)
)

// NewWriter creates a DCS writer session. The capability table reflects
// the codecs registered at the time of the call.
func NewWriter(opts ...format.BaseOption) *Writer {
	w := &Writer{}
	w.Base = format.NewBase(Capabilities(), w, opts...)
	return w
}

// ValidateMetadata checks that the dataset fits DICOM frame metadata and
// the container's field widths and, once the current container's header has
// been written, that md still describes the committed series table. The
// session engine calls it before Begin and before a provider rebind reaches
// an open container.
func (w *Writer) ValidateMetadata(md meta.Retrieve) error {
	n := md.SeriesCount()
	if n > maxSeries {
		return fmt.Errorf("%w: %d series, container holds at most %d", format.ErrFormat, n, maxSeries)
	}
	for i := 0; i < n; i++ {
		if md.SizeX(i) > maxFrameExtent || md.SizeY(i) > maxFrameExtent {
			return fmt.Errorf("%w: series %d is %dx%d, frame extents hold at most %d",
				format.ErrFormat, i, md.SizeX(i), md.SizeY(i), maxFrameExtent)
		}
		if int64(md.PlaneCount(i)) > maxPlanes {
			return fmt.Errorf("%w: series %d plane count exceeds container field width", format.ErrFormat, i)
		}
		c := md.RGBChannelCount(i)
		if c != 1 && c != 3 {
			return fmt.Errorf("%w: series %d has %d channels, frames hold 1 or 3", format.ErrFormat, i, c)
		}
		if !representable(md.PixelType(i)) {
			return fmt.Errorf("%w: series %d holds %s samples, frames hold 8- or 16-bit integers",
				format.ErrFormat, i, md.PixelType(i))
		}
		raw := int64(md.SizeX(i)) * int64(md.SizeY(i)) * int64(md.PixelType(i).Size()) * int64(c)
		if raw > maxFrameBytes {
			return fmt.Errorf("%w: series %d planes of %d bytes exceed the %d byte frame capacity",
				format.ErrFormat, i, raw, maxFrameBytes)
		}
	}
	if w.headerOut && !tablesEqual(seriesTable(md), w.table) {
		return fmt.Errorf("%w: metadata conflicts with the series table committed to %q",
			format.ErrFormat, w.sink.ID())
	}
	return nil
}

// Begin arms a fresh sink. Header bytes are deferred to the first frame.
func (w *Writer) Begin(s format.Sink) error {
	w.sink = s
	w.headerOut = false
	w.table = nil
	return nil
}

// EncodePlane writes one plane as one frame record. The region has been
// validated by the session engine; anything short of the full plane is
// rejected because frames have no sub-frame addressing.
func (w *Writer) EncodePlane(series, plane int, buf pixel.Buffer, r format.Region) error {
	md := w.MetadataRetrieve()
	if !r.Full(md.SizeX(series), md.SizeY(series)) {
		return fmt.Errorf("%w: %s stores whole planes, region %s is partial", format.ErrFormat, FormatName, r)
	}
	if err := w.flushHeader(); err != nil {
		return err
	}
	s, ok := schemeFor(w.EffectiveCompression())
	if !ok {
		return fmt.Errorf("%w: %q", format.ErrUnsupportedCompression, w.EffectiveCompression())
	}
	payload, err := w.encodeFrame(s, series, buf)
	if err != nil {
		return err
	}
	if int64(len(payload)) > maxFrameBytes {
		return fmt.Errorf("%w: %d payload bytes exceed the %d byte frame capacity",
			format.ErrFormat, len(payload), maxFrameBytes)
	}
	rec := frameRecord{
		Series:     uint32(series),
		Plane:      uint32(plane),
		Syntax:     s.code,
		PayloadLen: uint32(len(payload)),
	}
	if err := w.emit(rec.encode()); err != nil {
		return err
	}
	return w.emit(payload)
}

// EncodeLookupTable is unreachable through the session engine: the
// capability table advertises no lookup table types.
func (w *Writer) EncodeLookupTable(series, plane int, lut pixel.Buffer) error {
	return fmt.Errorf("%w: %s stores no lookup tables", format.ErrFormat, FormatName)
}

// Finish flushes the header so a container that never received a frame is
// still parseable. Frame records carry their own length, so there is no
// trailer.
func (w *Writer) Finish() error {
	return w.flushHeader()
}

// encodeFrame renders one plane buffer into a frame payload under the
// given scheme.
func (w *Writer) encodeFrame(s syntaxScheme, series int, buf pixel.Buffer) ([]byte, error) {
	if s.ts == nil {
		return buf.Bytes(), nil
	}
	c, ok := codec.GetGlobalRegistry().GetCodec(s.ts)
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for %s", format.ErrUnsupportedCompression, s.ts.UID().UID())
	}
	md := w.MetadataRetrieve()
	info := frameInfoFor(meta.Series{
		SizeX:    md.SizeX(series),
		SizeY:    md.SizeY(series),
		Planes:   md.PlaneCount(series),
		Type:     md.PixelType(series),
		Channels: md.RGBChannelCount(series),
	}, w.Interleaved())
	src := newFrameBuffer(info)
	if err := src.AddFrame(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", format.ErrFormat, err)
	}
	dst := newFrameBuffer(info)
	if err := c.Encode(src, dst, nil); err != nil {
		return nil, fmt.Errorf("%w: %s encode: %v", format.ErrFormat, c.Name(), err)
	}
	payload, err := dst.GetFrame(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s produced no frame: %v", format.ErrFormat, c.Name(), err)
	}
	return payload, nil
}

// frameInfoFor maps series geometry onto DICOM frame metadata. Both sides
// of a codec call see the same mapping: the writer builds it from the
// bound metadata, the reader from the series table.
func frameInfoFor(sr meta.Series, interleaved format.Opt[bool]) *imagetypes.FrameInfo {
	bits := uint16(sr.Type.Size() * 8)
	var rep uint16
	if sr.Type.Signed() {
		rep = 1
	}
	photometric := "MONOCHROME2"
	if sr.Channels == 3 {
		photometric = "RGB"
	}
	// PlanarConfiguration 0 is channel-interleaved, the DICOM default;
	// only an explicit planar choice flips it.
	var planar uint16
	if v, ok := interleaved.Get(); ok && !v {
		planar = 1
	}
	return &imagetypes.FrameInfo{
		Width:                     uint16(sr.SizeX),
		Height:                    uint16(sr.SizeY),
		BitsAllocated:             bits,
		BitsStored:                bits,
		HighBit:                   bits - 1,
		SamplesPerPixel:           uint16(sr.Channels),
		PixelRepresentation:       rep,
		PlanarConfiguration:       planar,
		PhotometricInterpretation: photometric,
	}
}

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

func (w *Writer) emit(b []byte) error {
	if _, err := w.sink.Write(b); err != nil {
		return fmt.Errorf("%w: write %q: %v", format.ErrFormat, w.sink.ID(), err)
	}
	return nil
}

func representable(t pixel.Type) bool {
	for _, ft := range frameTypes {
		if t == ft {
			return true
		}
	}
	return false
}
