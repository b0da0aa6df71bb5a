package mtile

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/bioimago/go-bioimage-writer/codec"
	"github.com/bioimago/go-bioimage-writer/format"
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// Reader is a parsed, finalized MTile container. It validates the full
// container structure up front, including the chunk index against the
// chunk stream, and reassembles planes from their tiles.
type Reader struct {
	hdr    header
	series []meta.Series
	chunks []Chunk
}

// Chunk describes one data chunk of a parsed container.
type Chunk struct {
	Kind      ChunkKind
	CodecTag  uint16
	Series    int
	Plane     int
	Region    format.Region
	PixelType pixel.Type
	Channels  int
	RawLen    int

	offset  uint64
	payload []byte
}

// Payload decompresses and returns the chunk's sample data.
func (c Chunk) Payload() ([]byte, error) {
	cd, err := codec.GetByTag(c.CodecTag)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk at offset %d: %v", ErrCorrupt, c.offset, err)
	}
	raw, err := cd.Decode(c.payload, c.RawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk at offset %d: %v", ErrCorrupt, c.offset, err)
	}
	return raw, nil
}

// Parse reads a finalized MTile container. It fails with ErrTruncated when
// the data ends before the tail, which includes containers that were never
// finalized, and with ErrCorrupt when the structure is inconsistent.
func Parse(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if !bytes.Equal(data[0:8], Magic[:]) {
		return nil, ErrInvalidMagic
	}
	hdr := decodeHeader(data)
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hdr.Version)
	}

	r := &Reader{hdr: hdr}
	pos := headerSize
	for i := 0; i < int(hdr.SeriesCount); i++ {
		if pos+seriesRecordSize > len(data) {
			return nil, fmt.Errorf("%w: series table", ErrTruncated)
		}
		rec := decodeSeriesRecord(data[pos:])
		typ, err := pixel.TypeFromCode(rec.PixelType)
		if err != nil {
			return nil, fmt.Errorf("%w: series %d: %v", ErrCorrupt, i, err)
		}
		r.series = append(r.series, meta.Series{
			SizeX:    int(rec.SizeX),
			SizeY:    int(rec.SizeY),
			Planes:   int(rec.Planes),
			Type:     typ,
			Channels: int(rec.Channels),
		})
		pos += seriesRecordSize
	}

	for {
		if pos+chunkHeaderSize > len(data) {
			return nil, fmt.Errorf("%w: no index chunk before end of data", ErrTruncated)
		}
		h := decodeChunkHeader(data[pos:])
		body := pos + chunkHeaderSize
		if body+int(h.PayloadLen) > len(data) {
			return nil, fmt.Errorf("%w: chunk at offset %d", ErrTruncated, pos)
		}
		if h.Kind == ChunkIndex {
			if err := r.checkIndex(data, pos, h); err != nil {
				return nil, err
			}
			return r, nil
		}
		ch, err := r.makeChunk(uint64(pos), h, data[body:body+int(h.PayloadLen)])
		if err != nil {
			return nil, err
		}
		r.chunks = append(r.chunks, ch)
		pos = body + int(h.PayloadLen)
	}
}

func (r *Reader) makeChunk(offset uint64, h chunkHeader, payload []byte) (Chunk, error) {
	if h.Kind != ChunkTile && h.Kind != ChunkLUT {
		return Chunk{}, fmt.Errorf("%w: chunk at offset %d has kind %d", ErrCorrupt, offset, h.Kind)
	}
	if int(h.Series) >= len(r.series) {
		return Chunk{}, fmt.Errorf("%w: chunk at offset %d names series %d of %d", ErrCorrupt, offset, h.Series, len(r.series))
	}
	typ, err := pixel.TypeFromCode(h.PixelType)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: chunk at offset %d: %v", ErrCorrupt, offset, err)
	}
	sr := r.series[h.Series]
	ch := Chunk{
		Kind:      h.Kind,
		CodecTag:  h.Comp,
		Series:    int(h.Series),
		Plane:     int(h.Plane),
		Region:    format.Region{X: int(h.X), Y: int(h.Y), Width: int(h.W), Height: int(h.H)},
		PixelType: typ,
		Channels:  int(h.Channels),
		RawLen:    int(h.RawLen),
		offset:    offset,
		payload:   payload,
	}
	switch h.Kind {
	case ChunkTile:
		if ch.Plane >= sr.Planes {
			return Chunk{}, fmt.Errorf("%w: chunk at offset %d names plane %d of %d", ErrCorrupt, offset, ch.Plane, sr.Planes)
		}
		reg := ch.Region
		if reg.Width < 1 || reg.Height < 1 || reg.X < 0 || reg.Y < 0 ||
			reg.X+reg.Width > sr.SizeX || reg.Y+reg.Height > sr.SizeY {
			return Chunk{}, fmt.Errorf("%w: chunk at offset %d region %s outside series %d", ErrCorrupt, offset, reg, ch.Series)
		}
		if want := reg.Width * reg.Height * typ.Size() * ch.Channels; ch.RawLen != want {
			return Chunk{}, fmt.Errorf("%w: chunk at offset %d carries %d raw bytes for region %s, want %d", ErrCorrupt, offset, ch.RawLen, reg, want)
		}
	case ChunkLUT:
		if ch.Plane >= sr.Planes {
			return Chunk{}, fmt.Errorf("%w: lookup chunk at offset %d names plane %d of %d", ErrCorrupt, offset, ch.Plane, sr.Planes)
		}
		if want := ch.Region.Width * typ.Size(); ch.RawLen != want {
			return Chunk{}, fmt.Errorf("%w: lookup chunk at offset %d carries %d raw bytes for %d samples", ErrCorrupt, offset, ch.RawLen, ch.Region.Width)
		}
	}
	return ch, nil
}

// checkIndex verifies the index chunk against the chunk stream and the tail
// against the index.
func (r *Reader) checkIndex(data []byte, pos int, h chunkHeader) error {
	if h.RawLen != h.PayloadLen || int(h.PayloadLen)%indexEntrySize != 0 {
		return fmt.Errorf("%w: index chunk at offset %d", ErrCorrupt, pos)
	}
	count := int(h.PayloadLen) / indexEntrySize
	if count != len(r.chunks) {
		return fmt.Errorf("%w: index lists %d chunks, stream holds %d", ErrCorrupt, count, len(r.chunks))
	}
	body := pos + chunkHeaderSize
	for i := 0; i < count; i++ {
		e := decodeIndexEntry(data[body+i*indexEntrySize:])
		c := r.chunks[i]
		if e.Offset != c.offset || int(e.Series) != c.Series || int(e.Plane) != c.Plane ||
			int(e.X) != c.Region.X || int(e.Y) != c.Region.Y ||
			int(e.W) != c.Region.Width || int(e.H) != c.Region.Height {
			return fmt.Errorf("%w: index entry %d disagrees with chunk at offset %d", ErrCorrupt, i, c.offset)
		}
	}

	tailPos := body + int(h.PayloadLen)
	if tailPos+tailSize > len(data) {
		return fmt.Errorf("%w: tail", ErrTruncated)
	}
	if tailPos+tailSize != len(data) {
		return fmt.Errorf("%w: %d bytes after tail", ErrCorrupt, len(data)-tailPos-tailSize)
	}
	if !bytes.Equal(data[tailPos+16:tailPos+24], tailMagic[:]) {
		return fmt.Errorf("%w: tail magic", ErrCorrupt)
	}
	t := decodeTail(data[tailPos:])
	if t.IndexOffset != uint64(pos) {
		return fmt.Errorf("%w: tail points at offset %d, index chunk at %d", ErrCorrupt, t.IndexOffset, pos)
	}
	if t.EntryCount != uint64(count) {
		return fmt.Errorf("%w: tail counts %d entries, index holds %d", ErrCorrupt, t.EntryCount, count)
	}
	return nil
}

// Version returns the container format version.
func (r *Reader) Version() uint16 { return r.hdr.Version }

// FPS returns the frame rate recorded in the header; 0 means unspecified.
func (r *Reader) FPS() uint16 { return r.hdr.FPS }

// SequentialHint reports whether the writer session declared sequential
// plane order.
func (r *Reader) SequentialHint() bool { return r.hdr.Flags&flagSequential != 0 }

// Interleaved returns the channel layout recorded in the header, or an
// empty Opt when the session never chose one.
func (r *Reader) Interleaved() format.Opt[bool] {
	if r.hdr.Flags&flagInterleavedSet == 0 {
		return format.None[bool]()
	}
	return format.Some(r.hdr.Flags&flagInterleaved != 0)
}

// DatasetUUID returns the identifier of the writer session that produced
// the container.
func (r *Reader) DatasetUUID() uuid.UUID { return uuid.UUID(r.hdr.UUID) }

// SeriesCount returns the number of series in the container.
func (r *Reader) SeriesCount() int { return len(r.series) }

// Metadata rebuilds an in-memory metadata store from the series table.
func (r *Reader) Metadata() *meta.Store {
	return meta.NewStore(r.series...)
}

// Chunks returns the data chunks in stream order. Index chunks are
// consumed during parsing and not listed.
func (r *Reader) Chunks() []Chunk {
	out := make([]Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// AssemblePlane stitches every tile chunk of one plane back into a full
// plane buffer. Chunks apply in stream order, so a rewritten region holds
// its latest bytes; areas no chunk covers stay zero. It fails with
// ErrNotFound when no chunk touches the plane.
func (r *Reader) AssemblePlane(series, plane int) (*pixel.Block, error) {
	if series < 0 || series >= len(r.series) {
		return nil, fmt.Errorf("%w: series %d", ErrNotFound, series)
	}
	sr := r.series[series]
	bpp := sr.Type.Size() * sr.Channels
	row := sr.SizeX * bpp
	out := make([]byte, sr.SizeY*row)

	found := false
	for _, c := range r.chunks {
		if c.Kind != ChunkTile || c.Series != series || c.Plane != plane {
			continue
		}
		raw, err := c.Payload()
		if err != nil {
			return nil, err
		}
		found = true
		tw := c.Region.Width * bpp
		for y := 0; y < c.Region.Height; y++ {
			dst := (c.Region.Y+y)*row + c.Region.X*bpp
			copy(out[dst:dst+tw], raw[y*tw:(y+1)*tw])
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: series %d plane %d", ErrNotFound, series, plane)
	}
	return pixel.NewBlock(sr.Type, out), nil
}

// LookupTable returns the lookup table stored for one plane. When a plane's
// table was written more than once the latest one wins. It fails with
// ErrNotFound when the plane has no table.
func (r *Reader) LookupTable(series, plane int) (*pixel.Block, error) {
	var hit *Chunk
	for i := range r.chunks {
		c := &r.chunks[i]
		if c.Kind == ChunkLUT && c.Series == series && c.Plane == plane {
			hit = c
		}
	}
	if hit == nil {
		return nil, fmt.Errorf("%w: lookup table for series %d plane %d", ErrNotFound, series, plane)
	}
	raw, err := hit.Payload()
	if err != nil {
		return nil, err
	}
	return pixel.NewBlock(hit.PixelType, raw), nil
}
