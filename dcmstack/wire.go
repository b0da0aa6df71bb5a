package dcmstack

import "encoding/binary"

// Version is the DCS container format version this package writes.
const Version uint16 = 1

// Magic is the 8-byte DCS file signature.
var Magic = [8]byte{'D', 'C', 'S', 'T', 'K', '\r', '\n', 0x1A}

const (
	headerSize       = 32
	seriesRecordSize = 16
	frameRecordSize  = 16
)

// Header flag bits.
const (
	flagSequential     uint16 = 0x0001
	flagInterleavedSet uint16 = 0x0002
	flagInterleaved    uint16 = 0x0004
)

type header struct {
	Version     uint16
	Flags       uint16
	FPS         uint16
	SeriesCount uint16
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags)
	binary.LittleEndian.PutUint16(buf[12:14], h.FPS)
	binary.LittleEndian.PutUint16(buf[14:16], h.SeriesCount)
	return buf
}

func decodeHeader(b []byte) header {
	return header{
		Version:     binary.LittleEndian.Uint16(b[8:10]),
		Flags:       binary.LittleEndian.Uint16(b[10:12]),
		FPS:         binary.LittleEndian.Uint16(b[12:14]),
		SeriesCount: binary.LittleEndian.Uint16(b[14:16]),
	}
}

type seriesRecord struct {
	SizeX     uint32
	SizeY     uint32
	Planes    uint32
	PixelType uint16
	Channels  uint16
}

func (r seriesRecord) encode() []byte {
	buf := make([]byte, seriesRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.SizeX)
	binary.LittleEndian.PutUint32(buf[4:8], r.SizeY)
	binary.LittleEndian.PutUint32(buf[8:12], r.Planes)
	binary.LittleEndian.PutUint16(buf[12:14], r.PixelType)
	binary.LittleEndian.PutUint16(buf[14:16], r.Channels)
	return buf
}

func decodeSeriesRecord(b []byte) seriesRecord {
	return seriesRecord{
		SizeX:     binary.LittleEndian.Uint32(b[0:4]),
		SizeY:     binary.LittleEndian.Uint32(b[4:8]),
		Planes:    binary.LittleEndian.Uint32(b[8:12]),
		PixelType: binary.LittleEndian.Uint16(b[12:14]),
		Channels:  binary.LittleEndian.Uint16(b[14:16]),
	}
}

// frameRecord precedes every frame payload. Syntax holds the wire code of
// the transfer syntax the payload is encoded under.
type frameRecord struct {
	Series     uint32
	Plane      uint32
	Syntax     uint16
	PayloadLen uint32
}

func (r frameRecord) encode() []byte {
	buf := make([]byte, frameRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Series)
	binary.LittleEndian.PutUint32(buf[4:8], r.Plane)
	binary.LittleEndian.PutUint16(buf[8:10], r.Syntax)
	binary.LittleEndian.PutUint32(buf[12:16], r.PayloadLen)
	return buf
}

func decodeFrameRecord(b []byte) frameRecord {
	return frameRecord{
		Series:     binary.LittleEndian.Uint32(b[0:4]),
		Plane:      binary.LittleEndian.Uint32(b[4:8]),
		Syntax:     binary.LittleEndian.Uint16(b[8:10]),
		PayloadLen: binary.LittleEndian.Uint32(b[12:16]),
	}
}
