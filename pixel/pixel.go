// Package pixel defines the sample encodings understood by the writer
// contract and the raw buffer type that carries sample data.
package pixel

import (
	"errors"
	"fmt"
)

// Type identifies the sample encoding of pixel data
type Type int

const (
	UInt8 Type = iota + 1
	Int8
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
	Bit
)

var (
	// ErrUnknownType is returned when a name or wire code does not map to a pixel type
	ErrUnknownType = errors.New("pixel: unknown pixel type")
)

var typeNames = map[Type]string{
	UInt8:   "uint8",
	Int8:    "int8",
	UInt16:  "uint16",
	Int16:   "int16",
	UInt32:  "uint32",
	Int32:   "int32",
	Float32: "float",
	Float64: "double",
	Bit:     "bit",
}

// Types returns all pixel types in canonical order
func Types() []Type {
	return []Type{UInt8, Int8, UInt16, Int16, UInt32, Int32, Float32, Float64, Bit}
}

// String returns the canonical lower-case name of the type
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("pixel.Type(%d)", int(t))
}

// Valid reports whether t is one of the defined pixel types
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Size returns the number of bytes occupied by one sample.
// Bit reports 1: bit-valued data travels one sample per byte in buffers.
func (t Type) Size() int {
	switch t {
	case UInt8, Int8, Bit:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether samples carry a sign
func (t Type) Signed() bool {
	switch t {
	case Int8, Int16, Int32, Float32, Float64:
		return true
	default:
		return false
	}
}

// Float reports whether samples are floating point
func (t Type) Float() bool {
	return t == Float32 || t == Float64
}

// Code returns the stable wire code used in container headers
func (t Type) Code() uint16 {
	return uint16(t)
}

// TypeFromCode maps a wire code back to a pixel type
func TypeFromCode(code uint16) (Type, error) {
	t := Type(code)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: code %d", ErrUnknownType, code)
	}
	return t, nil
}

// ParseType maps a canonical name back to a pixel type
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}
