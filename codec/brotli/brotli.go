// Package brotli registers the Brotli compression codec.
package brotli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/bioimago/go-bioimage-writer/codec"
)

type brotliCodec struct{}

var _ codec.Codec = brotliCodec{}

func (brotliCodec) Name() string { return "brotli" }

func (brotliCodec) Tag() uint16 { return codec.TagBrotli }

func (brotliCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write(src); err != nil {
		bw.Close()
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	return buf.Bytes(), nil
}

func (brotliCodec) Decode(src []byte, rawLen int) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(src))
	out, err := io.ReadAll(io.LimitReader(r, int64(rawLen)+1))
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%w: brotli payload decoded to %d bytes, want %d", codec.ErrCorrupt, len(out), rawLen)
	}
	return out, nil
}

func init() {
	codec.Register(brotliCodec{})
}
