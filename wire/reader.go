// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package wire implements the primitive encoding
// used by serialized query plans and the values
// embedded in them.
//
// Fixed-width integers are big-endian.
// Lengths and most small integers use the packed
// encoding, where values in [-119, 119] occupy a
// single byte and larger magnitudes are written as
// a length byte followed by little-endian magnitude
// bytes offset by 119.
// A sequence length of -1 denotes an absent sequence
// (or an absent string).
package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

var (
	// ErrShortBuffer is returned when the input ends
	// in the middle of a primitive.
	ErrShortBuffer = errors.New("wire: unexpected end of input")
	// ErrInvalidLength is returned when a sequence
	// length is less than -1 or larger than the input.
	ErrInvalidLength = errors.New("wire: invalid sequence length")
	// ErrInvalidPacked is returned when a packed integer
	// header byte describes an impossible length.
	ErrInvalidPacked = errors.New("wire: invalid packed integer")
)

const packedBias = 119

// Reader is a cursor over an encoded buffer.
// A Reader is not safe for concurrent use.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned
// at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, errors.Wrapf(ErrShortBuffer, "reading %d bytes at offset %d", n, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadInt8 reads one signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadBool reads a one-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadShort reads a big-endian int16.
func (r *Reader) ReadShort() (int16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// ReadInt reads a big-endian int32.
func (r *Reader) ReadInt() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadLong reads a big-endian int64.
func (r *Reader) ReadLong() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadDouble reads a big-endian IEEE-754 double.
func (r *Reader) ReadDouble() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) readPacked(maxlen int) (int64, error) {
	h, err := r.ReadInt8()
	if err != nil {
		return 0, err
	}
	var neg bool
	var n int
	switch {
	case h < -packedBias:
		neg = true
		n = -int(h) - packedBias
	case h > packedBias:
		n = int(h) - packedBias
	default:
		return int64(h), nil
	}
	if n > maxlen {
		return 0, errors.Wrapf(ErrInvalidPacked, "%d magnitude bytes at offset %d", n, r.off-1)
	}
	b, err := r.take(n)
	if err != nil {
		return 0, err
	}
	var mag uint64
	for i := len(b) - 1; i >= 0; i-- {
		mag = (mag << 8) | uint64(b[i])
	}
	if neg {
		if mag > math.MaxInt64-packedBias+1 {
			return 0, errors.Wrapf(ErrInvalidPacked, "magnitude %d overflows", mag)
		}
		return -int64(mag) - packedBias, nil
	}
	if mag > math.MaxInt64-packedBias {
		return 0, errors.Wrapf(ErrInvalidPacked, "magnitude %d overflows", mag)
	}
	return int64(mag) + packedBias, nil
}

// ReadPackedInt reads a packed int32.
func (r *Reader) ReadPackedInt() (int32, error) {
	v, err := r.readPacked(4)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrInvalidPacked, "value %d out of int32 range", v)
	}
	return int32(v), nil
}

// ReadPackedLong reads a packed int64.
func (r *Reader) ReadPackedLong() (int64, error) {
	return r.readPacked(8)
}

// ReadSequenceLength reads a sequence length.
// The returned length is -1 for an absent sequence.
func (r *Reader) ReadSequenceLength() (int, error) {
	n, err := r.ReadPackedInt()
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, errors.Wrapf(ErrInvalidLength, "length %d at offset %d", n, r.off)
	}
	return int(n), nil
}

// ReadBytes reads a length-prefixed byte slice.
// The result aliases the input buffer and is
// nil when the sequence is absent.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadSequenceLength()
	if err != nil || n < 0 {
		return nil, err
	}
	if n > r.Len() {
		return nil, errors.Wrapf(ErrInvalidLength, "length %d exceeds remaining %d bytes", n, r.Len())
	}
	return r.take(n)
}

// ReadString reads a length-prefixed UTF-8 string.
// ok is false when the string is absent.
func (r *Reader) ReadString() (s string, ok bool, err error) {
	b, err := r.ReadBytes()
	if err != nil || b == nil {
		return "", false, err
	}
	if !utf8.Valid(b) {
		return "", false, errors.Newf("wire: invalid UTF-8 string at offset %d", r.off-len(b))
	}
	return string(b), true, nil
}

// ReadStringArray reads a sequence of strings.
// The result is nil when the sequence is absent.
// Absent elements are returned as empty strings.
func (r *Reader) ReadStringArray() ([]string, error) {
	n, err := r.ReadSequenceLength()
	if err != nil || n < 0 {
		return nil, err
	}
	if n > r.Len() {
		return nil, errors.Wrapf(ErrInvalidLength, "%d strings exceed remaining %d bytes", n, r.Len())
	}
	out := make([]string, n)
	for i := range out {
		out[i], _, err = r.ReadString()
		if err != nil {
			return nil, errors.Wrapf(err, "string #%d", i)
		}
	}
	return out, nil
}
