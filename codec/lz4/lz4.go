// Package lz4 registers the LZ4 compression codec.
package lz4

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/bioimago/go-bioimage-writer/codec"
)

type lz4Codec struct{}

var _ codec.Codec = lz4Codec{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Tag() uint16 { return codec.TagLZ4 }

func (lz4Codec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decode(src []byte, rawLen int) ([]byte, error) {
	// The limit of rawLen+1 turns any expansion beyond the recorded size
	// into a detectable length mismatch.
	r := lz4.NewReader(bytes.NewReader(src))
	out, err := io.ReadAll(io.LimitReader(r, int64(rawLen)+1))
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%w: lz4 payload decoded to %d bytes, want %d", codec.ErrCorrupt, len(out), rawLen)
	}
	return out, nil
}

func init() {
	codec.Register(lz4Codec{})
}
