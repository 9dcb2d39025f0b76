package proto

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// Encoding is the byte order to use for serialization.
	Encoding = binary.BigEndian

	errInvalidStringLength    = errors.New("invalid string length")
	errInvalidArrayLength     = errors.New("invalid array length")
	errInvalidByteSliceLength = errors.New("invalid byteslice length")
)

// PacketEncoder is used to serialize an object.
type PacketEncoder interface {
	PutInt8(in int8)
	PutInt16(in int16)
	PutInt32(in int32)
	PutInt64(in int64)
	PutArrayLength(in int) error
	PutRawBytes(in []byte) error
	PutBytes(in []byte) error
	PutString(in string) error
}

// Encoder is a struct that can be serialized.
type Encoder interface {
	Encode(e PacketEncoder) error
}

// Encode serializes the struct to bytes. It runs a sizing pass first so the
// output buffer is allocated at exactly the encoded length.
func Encode(e Encoder) ([]byte, error) {
	lenEnc := new(LenEncoder)
	err := e.Encode(lenEnc)
	if err != nil {
		return nil, err
	}

	b := make([]byte, lenEnc.Length)
	byteEnc := NewByteEncoder(b)
	err = e.Encode(byteEnc)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Size returns the exact number of bytes Encode would produce for the struct.
func Size(e Encoder) (int, error) {
	lenEnc := new(LenEncoder)
	if err := e.Encode(lenEnc); err != nil {
		return 0, err
	}
	return lenEnc.Length, nil
}

// LenEncoder is a PacketEncoder that tracks the running length of serialized
// bytes.
type LenEncoder struct {
	Length int
}

// PutInt8 increments length for an int8.
func (e *LenEncoder) PutInt8(in int8) {
	e.Length++
}

// PutInt16 increments length for an int16.
func (e *LenEncoder) PutInt16(in int16) {
	e.Length += 2
}

// PutInt32 increments length for an int32.
func (e *LenEncoder) PutInt32(in int32) {
	e.Length += 4
}

// PutInt64 increments length for an int64.
func (e *LenEncoder) PutInt64(in int64) {
	e.Length += 8
}

// PutArrayLength increments length for an array size.
func (e *LenEncoder) PutArrayLength(in int) error {
	if in > math.MaxInt32 {
		return errInvalidArrayLength
	}
	e.Length += 4
	return nil
}

// PutBytes increments length for a size-prefixed byte array.
func (e *LenEncoder) PutBytes(in []byte) error {
	e.Length += 4
	if in == nil {
		return nil
	}
	if len(in) > math.MaxInt32 {
		return errInvalidByteSliceLength
	}
	e.Length += len(in)
	return nil
}

// PutRawBytes increments length for a raw byte array.
func (e *LenEncoder) PutRawBytes(in []byte) error {
	if len(in) > math.MaxInt32 {
		return errInvalidByteSliceLength
	}
	e.Length += len(in)
	return nil
}

// PutString increments length for a size-prefixed string.
func (e *LenEncoder) PutString(in string) error {
	e.Length += 2
	if len(in) > math.MaxInt16 {
		return errInvalidStringLength
	}
	e.Length += len(in)
	return nil
}

// ByteEncoder is a PacketEncoder that serializes data into a byte slice.
type ByteEncoder struct {
	b   []byte
	off int
}

// NewByteEncoder creates a new ByteEncoder with the given backing
// pre-allocated byte slice.
func NewByteEncoder(b []byte) *ByteEncoder {
	return &ByteEncoder{b: b}
}

// Bytes returns the underlying byte slice.
func (e *ByteEncoder) Bytes() []byte {
	return e.b
}

// PutInt8 serializes an int8.
func (e *ByteEncoder) PutInt8(in int8) {
	e.b[e.off] = byte(in)
	e.off++
}

// PutInt16 serializes an int16.
func (e *ByteEncoder) PutInt16(in int16) {
	Encoding.PutUint16(e.b[e.off:], uint16(in))
	e.off += 2
}

// PutInt32 serializes an int32.
func (e *ByteEncoder) PutInt32(in int32) {
	Encoding.PutUint32(e.b[e.off:], uint32(in))
	e.off += 4
}

// PutInt64 serializes an int64.
func (e *ByteEncoder) PutInt64(in int64) {
	Encoding.PutUint64(e.b[e.off:], uint64(in))
	e.off += 8
}

// PutArrayLength serializes an array length as an int32.
func (e *ByteEncoder) PutArrayLength(in int) error {
	e.PutInt32(int32(in))
	return nil
}

// PutRawBytes serializes a byte slice.
func (e *ByteEncoder) PutRawBytes(in []byte) error {
	copy(e.b[e.off:], in)
	e.off += len(in)
	return nil
}

// PutBytes serializes a size-prefixed byte slice.
func (e *ByteEncoder) PutBytes(in []byte) error {
	if in == nil {
		e.PutInt32(-1)
		return nil
	}
	e.PutInt32(int32(len(in)))
	copy(e.b[e.off:], in)
	e.off += len(in)
	return nil
}

// PutString serializes a size-prefixed string.
func (e *ByteEncoder) PutString(in string) error {
	e.PutInt16(int16(len(in)))
	copy(e.b[e.off:], in)
	e.off += len(in)
	return nil
}
