package dcmstack

import (
	"bytes"
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/codec"

	"github.com/bioimago/go-bioimage-writer/format"
	"github.com/bioimago/go-bioimage-writer/meta"
	"github.com/bioimago/go-bioimage-writer/pixel"
)

// Reader is a parsed DCS container. It validates the container structure
// up front and decodes frames back to raw planes for verification.
type Reader struct {
	hdr    header
	series []meta.Series
	frames []Frame
}

// Frame describes one frame record of a parsed container.
type Frame struct {
	Series     int
	Plane      int
	SyntaxCode uint16
	Payload    []byte
}

// Parse reads a DCS container. It fails with ErrTruncated when the data
// ends mid-structure and with ErrCorrupt when records are inconsistent
// with the series table.
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

	for pos < len(data) {
		if pos+frameRecordSize > len(data) {
			return nil, fmt.Errorf("%w: frame record at offset %d", ErrTruncated, pos)
		}
		rec := decodeFrameRecord(data[pos:])
		body := pos + frameRecordSize
		if body+int(rec.PayloadLen) > len(data) {
			return nil, fmt.Errorf("%w: frame at offset %d", ErrTruncated, pos)
		}
		f, err := r.makeFrame(pos, rec, data[body:body+int(rec.PayloadLen)])
		if err != nil {
			return nil, err
		}
		r.frames = append(r.frames, f)
		pos = body + int(rec.PayloadLen)
	}
	return r, nil
}

func (r *Reader) makeFrame(offset int, rec frameRecord, payload []byte) (Frame, error) {
	if int(rec.Series) >= len(r.series) {
		return Frame{}, fmt.Errorf("%w: frame at offset %d names series %d of %d", ErrCorrupt, offset, rec.Series, len(r.series))
	}
	sr := r.series[rec.Series]
	if int(rec.Plane) >= sr.Planes {
		return Frame{}, fmt.Errorf("%w: frame at offset %d names plane %d of %d", ErrCorrupt, offset, rec.Plane, sr.Planes)
	}
	s, ok := schemeForCode(rec.Syntax)
	if !ok {
		return Frame{}, fmt.Errorf("%w: frame at offset %d has syntax code %d", ErrCorrupt, offset, rec.Syntax)
	}
	if s.ts == nil {
		if want := sr.SizeX * sr.SizeY * sr.Type.Size() * sr.Channels; len(payload) != want {
			return Frame{}, fmt.Errorf("%w: raw frame at offset %d carries %d bytes, plane is %d", ErrCorrupt, offset, len(payload), want)
		}
	}
	return Frame{
		Series:     int(rec.Series),
		Plane:      int(rec.Plane),
		SyntaxCode: rec.Syntax,
		Payload:    payload,
	}, nil
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

// SeriesCount returns the number of series in the container.
func (r *Reader) SeriesCount() int { return len(r.series) }

// Metadata rebuilds an in-memory metadata store from the series table.
func (r *Reader) Metadata() *meta.Store {
	return meta.NewStore(r.series...)
}

// Frames returns the frame records in stream order.
func (r *Reader) Frames() []Frame {
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// DecodePlane decodes the frame stored for one plane back to raw samples.
// When a plane was written more than once the latest frame wins. It fails
// with ErrNotFound when no frame matches, and with ErrUnsupportedCompression
// from the format package when the frame's transfer syntax has no
// registered codec.
func (r *Reader) DecodePlane(series, plane int) (*pixel.Block, error) {
	if series < 0 || series >= len(r.series) {
		return nil, fmt.Errorf("%w: series %d", ErrNotFound, series)
	}
	var hit *Frame
	for i := range r.frames {
		f := &r.frames[i]
		if f.Series == series && f.Plane == plane {
			hit = f
		}
	}
	if hit == nil {
		return nil, fmt.Errorf("%w: series %d plane %d", ErrNotFound, series, plane)
	}

	sr := r.series[series]
	want := sr.SizeX * sr.SizeY * sr.Type.Size() * sr.Channels
	s, _ := schemeForCode(hit.SyntaxCode)
	if s.ts == nil {
		out := make([]byte, len(hit.Payload))
		copy(out, hit.Payload)
		return pixel.NewBlock(sr.Type, out), nil
	}

	c, ok := codec.GetGlobalRegistry().GetCodec(s.ts)
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for %s", format.ErrUnsupportedCompression, s.ts.UID().UID())
	}
	info := frameInfoFor(sr, r.Interleaved())
	src := newFrameBuffer(info)
	if err := src.AddFrame(hit.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	dst := newFrameBuffer(info)
	if err := c.Decode(src, dst, nil); err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", ErrCorrupt, c.Name(), err)
	}
	raw, err := dst.GetFrame(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s produced no frame: %v", ErrCorrupt, c.Name(), err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: decoded frame is %d bytes, plane is %d", ErrCorrupt, len(raw), want)
	}
	return pixel.NewBlock(sr.Type, raw), nil
}
