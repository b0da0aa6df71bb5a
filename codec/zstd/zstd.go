// Package zstd registers the Zstandard compression codec.
package zstd

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/bioimago/go-bioimage-writer/codec"
)

type zstdCodec struct{}

var _ codec.Codec = zstdCodec{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Tag() uint16 { return codec.TagZstd }

func (zstdCodec) Encode(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func (zstdCodec) Decode(src []byte, rawLen int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%w: zstd payload decoded to %d bytes, want %d", codec.ErrCorrupt, len(out), rawLen)
	}
	return out, nil
}

func init() {
	codec.Register(zstdCodec{})
}
