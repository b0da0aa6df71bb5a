package mtile

import "encoding/binary"

// Version is the MTile container format version this package writes.
const Version uint16 = 1

// Magic is the 8-byte MTile file signature.
var Magic = [8]byte{'M', 'T', 'I', 'L', 'E', '\r', '\n', 0x1A}

// tailMagic closes every finalized container.
var tailMagic = [8]byte{'M', 'T', 'E', 'N', 'D', 0, 0, 0}

const (
	headerSize       = 40
	seriesRecordSize = 16
	chunkHeaderSize  = 48
	indexEntrySize   = 32
	tailSize         = 24
)

// Header flag bits.
const (
	flagSequential     uint16 = 0x0001
	flagInterleavedSet uint16 = 0x0002
	flagInterleaved    uint16 = 0x0004
)

// ChunkKind identifies what a chunk carries.
type ChunkKind uint16

const (
	// ChunkTile holds sample data for one rectangle of one plane
	ChunkTile ChunkKind = 1

	// ChunkLUT holds a lookup table associated with one plane
	ChunkLUT ChunkKind = 2

	// ChunkIndex holds the chunk index written by finalization
	ChunkIndex ChunkKind = 3
)

type header struct {
	Version     uint16
	Flags       uint16
	FPS         uint16
	SeriesCount uint16
	UUID        [16]byte
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags)
	binary.LittleEndian.PutUint16(buf[12:14], h.FPS)
	binary.LittleEndian.PutUint16(buf[14:16], h.SeriesCount)
	copy(buf[16:32], h.UUID[:])
	return buf
}

func decodeHeader(b []byte) header {
	var h header
	h.Version = binary.LittleEndian.Uint16(b[8:10])
	h.Flags = binary.LittleEndian.Uint16(b[10:12])
	h.FPS = binary.LittleEndian.Uint16(b[12:14])
	h.SeriesCount = binary.LittleEndian.Uint16(b[14:16])
	copy(h.UUID[:], b[16:32])
	return h
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

type chunkHeader struct {
	Kind       ChunkKind
	Comp       uint16
	Series     uint32
	Plane      uint32
	X, Y, W, H uint32
	PixelType  uint16
	Channels   uint16
	RawLen     uint32
	PayloadLen uint32
}

func (h chunkHeader) encode() []byte {
	buf := make([]byte, chunkHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Kind))
	binary.LittleEndian.PutUint16(buf[2:4], h.Comp)
	binary.LittleEndian.PutUint32(buf[4:8], h.Series)
	binary.LittleEndian.PutUint32(buf[8:12], h.Plane)
	binary.LittleEndian.PutUint32(buf[12:16], h.X)
	binary.LittleEndian.PutUint32(buf[16:20], h.Y)
	binary.LittleEndian.PutUint32(buf[20:24], h.W)
	binary.LittleEndian.PutUint32(buf[24:28], h.H)
	binary.LittleEndian.PutUint16(buf[28:30], h.PixelType)
	binary.LittleEndian.PutUint16(buf[30:32], h.Channels)
	binary.LittleEndian.PutUint32(buf[32:36], h.RawLen)
	binary.LittleEndian.PutUint32(buf[36:40], h.PayloadLen)
	return buf
}

func decodeChunkHeader(b []byte) chunkHeader {
	return chunkHeader{
		Kind:       ChunkKind(binary.LittleEndian.Uint16(b[0:2])),
		Comp:       binary.LittleEndian.Uint16(b[2:4]),
		Series:     binary.LittleEndian.Uint32(b[4:8]),
		Plane:      binary.LittleEndian.Uint32(b[8:12]),
		X:          binary.LittleEndian.Uint32(b[12:16]),
		Y:          binary.LittleEndian.Uint32(b[16:20]),
		W:          binary.LittleEndian.Uint32(b[20:24]),
		H:          binary.LittleEndian.Uint32(b[24:28]),
		PixelType:  binary.LittleEndian.Uint16(b[28:30]),
		Channels:   binary.LittleEndian.Uint16(b[30:32]),
		RawLen:     binary.LittleEndian.Uint32(b[32:36]),
		PayloadLen: binary.LittleEndian.Uint32(b[36:40]),
	}
}

type indexEntry struct {
	Offset     uint64
	Series     uint32
	Plane      uint32
	X, Y, W, H uint32
}

func (e indexEntry) encode() []byte {
	buf := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], e.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], e.Series)
	binary.LittleEndian.PutUint32(buf[12:16], e.Plane)
	binary.LittleEndian.PutUint32(buf[16:20], e.X)
	binary.LittleEndian.PutUint32(buf[20:24], e.Y)
	binary.LittleEndian.PutUint32(buf[24:28], e.W)
	binary.LittleEndian.PutUint32(buf[28:32], e.H)
	return buf
}

func decodeIndexEntry(b []byte) indexEntry {
	return indexEntry{
		Offset: binary.LittleEndian.Uint64(b[0:8]),
		Series: binary.LittleEndian.Uint32(b[8:12]),
		Plane:  binary.LittleEndian.Uint32(b[12:16]),
		X:      binary.LittleEndian.Uint32(b[16:20]),
		Y:      binary.LittleEndian.Uint32(b[20:24]),
		W:      binary.LittleEndian.Uint32(b[24:28]),
		H:      binary.LittleEndian.Uint32(b[28:32]),
	}
}

type tail struct {
	IndexOffset uint64
	EntryCount  uint64
}

func (t tail) encode() []byte {
	buf := make([]byte, tailSize)
	binary.LittleEndian.PutUint64(buf[0:8], t.IndexOffset)
	binary.LittleEndian.PutUint64(buf[8:16], t.EntryCount)
	copy(buf[16:24], tailMagic[:])
	return buf
}

func decodeTail(b []byte) tail {
	return tail{
		IndexOffset: binary.LittleEndian.Uint64(b[0:8]),
		EntryCount:  binary.LittleEndian.Uint64(b[8:16]),
	}
}
