package proto

import "errors"

// ErrInsufficientData is returned when decoding runs off the end of the
// buffer before the declared structure is complete. No partial object is
// produced when this happens.
var ErrInsufficientData = errors.New("insufficient data to decode packet")

// PacketDecoder is used to deserialize an object. Consumption is driven by the
// declared structure, not end-of-buffer, so trailing bytes beyond the
// structure are left untouched.
type PacketDecoder interface {
	Int8() (int8, error)
	Int16() (int16, error)
	Int32() (int32, error)
	Int64() (int64, error)
	ArrayLength() (int, error)
	Bytes() ([]byte, error)
	String() (string, error)
	remaining() int
}

// Decoder is a struct that can be deserialized.
type Decoder interface {
	Decode(d PacketDecoder) error
}

// Decode deserializes the struct from the given bytes.
func Decode(b []byte, in Decoder) error {
	d := NewByteDecoder(b)
	return in.Decode(d)
}

// ByteDecoder is a PacketDecoder that reads from a byte slice.
type ByteDecoder struct {
	b   []byte
	off int
}

// NewByteDecoder creates a new ByteDecoder reading from the given byte slice.
func NewByteDecoder(b []byte) *ByteDecoder {
	return &ByteDecoder{b: b}
}

// Offset returns the number of bytes consumed so far.
func (d *ByteDecoder) Offset() int {
	return d.off
}

func (d *ByteDecoder) remaining() int {
	return len(d.b) - d.off
}

// Int8 deserializes an int8.
func (d *ByteDecoder) Int8() (int8, error) {
	if d.remaining() < 1 {
		return 0, ErrInsufficientData
	}
	b := int8(d.b[d.off])
	d.off++
	return b, nil
}

// Int16 deserializes an int16.
func (d *ByteDecoder) Int16() (int16, error) {
	if d.remaining() < 2 {
		return 0, ErrInsufficientData
	}
	i := int16(Encoding.Uint16(d.b[d.off:]))
	d.off += 2
	return i, nil
}

// Int32 deserializes an int32.
func (d *ByteDecoder) Int32() (int32, error) {
	if d.remaining() < 4 {
		return 0, ErrInsufficientData
	}
	i := int32(Encoding.Uint32(d.b[d.off:]))
	d.off += 4
	return i, nil
}

// Int64 deserializes an int64.
func (d *ByteDecoder) Int64() (int64, error) {
	if d.remaining() < 8 {
		return 0, ErrInsufficientData
	}
	i := int64(Encoding.Uint64(d.b[d.off:]))
	d.off += 8
	return i, nil
}

// ArrayLength deserializes an int32 array length.
func (d *ByteDecoder) ArrayLength() (int, error) {
	length, err := d.Int32()
	if err != nil {
		return 0, err
	}
	if length < 0 {
		return 0, errInvalidArrayLength
	}
	if int(length) > d.remaining() {
		return 0, ErrInsufficientData
	}
	return int(length), nil
}

// Bytes deserializes a size-prefixed byte slice. A -1 size yields a nil
// slice.
func (d *ByteDecoder) Bytes() ([]byte, error) {
	length, err := d.Int32()
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}
	if length < 0 {
		return nil, errInvalidByteSliceLength
	}
	if int(length) > d.remaining() {
		return nil, ErrInsufficientData
	}
	b := d.b[d.off : d.off+int(length)]
	d.off += int(length)
	return b, nil
}

// String deserializes a size-prefixed string.
func (d *ByteDecoder) String() (string, error) {
	length, err := d.Int16()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", errInvalidStringLength
	}
	if int(length) > d.remaining() {
		return "", ErrInsufficientData
	}
	s := string(d.b[d.off : d.off+int(length)])
	d.off += int(length)
	return s, nil
}
