package codec

import "fmt"

// noneCodec is the identity scheme: payloads are stored as given
type noneCodec struct{}

var _ Codec = noneCodec{}

func (noneCodec) Name() string { return "none" }

func (noneCodec) Tag() uint16 { return TagNone }

func (noneCodec) Encode(src []byte) ([]byte, error) {
	return src, nil
}

func (noneCodec) Decode(src []byte, rawLen int) ([]byte, error) {
	if len(src) != rawLen {
		return nil, fmt.Errorf("%w: identity payload is %d bytes, want %d", ErrCorrupt, len(src), rawLen)
	}
	return src, nil
}

func init() {
	Register(noneCodec{})
}
