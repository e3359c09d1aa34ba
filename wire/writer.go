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

package wire

import (
	"encoding/binary"
	"math"
)

// Writer accumulates an encoded buffer.
// The zero value is ready to use.
type Writer struct {
	buf []byte
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Reset clears the buffer, retaining its capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// WriteInt8 writes one signed byte.
func (w *Writer) WriteInt8(v int8) { w.buf = append(w.buf, byte(v)) }

// WriteBool writes a one-byte boolean.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteShort writes a big-endian int16.
func (w *Writer) WriteShort(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

// WriteInt writes a big-endian int32.
func (w *Writer) WriteInt(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// PatchInt overwrites the int32 previously
// written at offset off.
func (w *Writer) PatchInt(off int, v int32) {
	binary.BigEndian.PutUint32(w.buf[off:], uint32(v))
}

// WriteLong writes a big-endian int64.
func (w *Writer) WriteLong(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteDouble writes a big-endian IEEE-754 double.
func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) writePacked(v int64) {
	if v >= -packedBias && v <= packedBias {
		w.buf = append(w.buf, byte(int8(v)))
		return
	}
	var mag uint64
	neg := v < 0
	if neg {
		mag = uint64(-(v + packedBias))
	} else {
		mag = uint64(v - packedBias)
	}
	var tmp [8]byte
	n := 0
	for mag != 0 || n == 0 {
		tmp[n] = byte(mag)
		mag >>= 8
		n++
	}
	if neg {
		w.buf = append(w.buf, byte(int8(-packedBias-n)))
	} else {
		w.buf = append(w.buf, byte(int8(packedBias+n)))
	}
	w.buf = append(w.buf, tmp[:n]...)
}

// WritePackedInt writes a packed int32.
func (w *Writer) WritePackedInt(v int32) { w.writePacked(int64(v)) }

// WritePackedLong writes a packed int64.
func (w *Writer) WritePackedLong(v int64) { w.writePacked(v) }

// WriteSequenceLength writes a sequence length;
// pass -1 for an absent sequence.
func (w *Writer) WriteSequenceLength(n int) { w.writePacked(int64(n)) }

// WriteBytes writes a length-prefixed byte slice.
// A nil slice is written as absent.
func (w *Writer) WriteBytes(b []byte) {
	if b == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(b))
	w.buf = append(w.buf, b...)
}

// WriteString writes a length-prefixed string.
func (w *Writer) WriteString(s string) {
	w.WriteSequenceLength(len(s))
	w.buf = append(w.buf, s...)
}

// WriteAbsentString writes the absent-string marker.
func (w *Writer) WriteAbsentString() { w.WriteSequenceLength(-1) }

// WriteStringArray writes a sequence of strings.
// A nil slice is written as absent.
func (w *Writer) WriteStringArray(s []string) {
	if s == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(s))
	for i := range s {
		w.WriteString(s[i])
	}
}
