package dcmstack

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

// frameBuffer is the in-memory PixelData handed to DICOM codecs on both
// sides of an Encode or Decode call. Frame payloads are framed by the
// container's frame records rather than DICOM encapsulation, so a buffer
// never reports as encapsulated.
type frameBuffer struct {
	info   *imagetypes.FrameInfo
	frames [][]byte
}

var _ imagetypes.PixelData = (*frameBuffer)(nil)

func newFrameBuffer(info *imagetypes.FrameInfo) *frameBuffer {
	return &frameBuffer{info: info}
}

// GetFrame returns the data of one frame, 0-indexed
func (b *frameBuffer) GetFrame(index int) ([]byte, error) {
	if index < 0 || index >= len(b.frames) {
		return nil, fmt.Errorf("frame %d of %d", index, len(b.frames))
	}
	return b.frames[index], nil
}

// AddFrame appends one frame
func (b *frameBuffer) AddFrame(data []byte) error {
	b.frames = append(b.frames, data)
	return nil
}

// FrameCount returns the number of frames held
func (b *frameBuffer) FrameCount() int {
	return len(b.frames)
}

// GetFrameInfo returns the frame geometry codecs operate under
func (b *frameBuffer) GetFrameInfo() *imagetypes.FrameInfo {
	return b.info
}

// IsEncapsulated reports whether frames hold transfer-syntax encoded data
func (b *frameBuffer) IsEncapsulated() bool {
	return false
}
