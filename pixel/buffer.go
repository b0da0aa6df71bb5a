package pixel

// Buffer is the in-memory sample source consumed by plane writes.
// The writer contract validates its declared type and byte size; sample
// values are never interpreted.
type Buffer interface {
	// Type returns the sample encoding of the buffer
	Type() Type

	// ByteSize returns the total payload size in bytes
	ByteSize() int

	// Bytes returns the raw little-endian sample data
	Bytes() []byte
}

// Block is a contiguous sample buffer backed by a byte slice
type Block struct {
	typ  Type
	data []byte
}

var _ Buffer = (*Block)(nil)

// NewBlock wraps existing sample data in a Block. The slice is not copied.
func NewBlock(t Type, data []byte) *Block {
	return &Block{typ: t, data: data}
}

// AllocBlock allocates a zeroed Block holding the given number of samples
func AllocBlock(t Type, samples int) *Block {
	return &Block{typ: t, data: make([]byte, samples*t.Size())}
}

// Type returns the sample encoding of the block
func (b *Block) Type() Type {
	return b.typ
}

// ByteSize returns the payload size in bytes
func (b *Block) ByteSize() int {
	return len(b.data)
}

// Bytes returns the underlying sample data
func (b *Block) Bytes() []byte {
	return b.data
}
