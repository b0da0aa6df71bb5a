// Package deflate registers the deflate compression codec. Payloads are
// zlib streams, following the TIFF adobe-deflate convention.
package deflate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/bioimago/go-bioimage-writer/codec"
)

type deflateCodec struct{}

var _ codec.Codec = deflateCodec{}

func (deflateCodec) Name() string { return "deflate" }

func (deflateCodec) Tag() uint16 { return codec.TagDeflate }

func (deflateCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decode(src []byte, rawLen int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(rawLen)+1))
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%w: deflate payload decoded to %d bytes, want %d", codec.ErrCorrupt, len(out), rawLen)
	}
	return out, nil
}

func init() {
	codec.Register(deflateCodec{})
}
