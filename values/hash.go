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

package values

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/dchest/siphash"
	"golang.org/x/exp/slices"
)

// fixed keys; hashes never leave the process
const (
	hashK0 = 0x736f6d6570736575
	hashK1 = 0x646f72616e646f6d
)

// Hash returns a 64-bit hash of v that is
// consistent with Equal: equal values
// (including numerics of different types
// holding the same number) hash identically.
func Hash(v Value) uint64 {
	var buf []byte
	buf = appendCanonical(buf, v)
	return siphash.Hash(hashK0, hashK1, buf)
}

// HashTuple hashes a sequence of values.
func HashTuple(vs []Value) uint64 {
	var buf []byte
	for i := range vs {
		buf = appendCanonical(buf, vs[i])
	}
	return siphash.Hash(hashK0, hashK1, buf)
}

func appendCanonical(dst []byte, v Value) []byte {
	switch v := v.(type) {
	case Int, Long, Double, *Number:
		return appendNumeric(dst, v)
	case String:
		dst = append(dst, 's')
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
		return append(dst, v...)
	case Binary:
		dst = append(dst, 'x')
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
		return append(dst, v...)
	case Bool:
		if v {
			return append(dst, 'T')
		}
		return append(dst, 'F')
	case Timestamp:
		dst = append(dst, 't')
		return binary.LittleEndian.AppendUint64(dst, uint64(time.Time(v).UnixNano()))
	case Array:
		dst = append(dst, 'a')
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
		for i := range v {
			dst = appendCanonical(dst, v[i])
		}
		return dst
	case *Map:
		// field order does not matter for equality,
		// so hash each field separately and sort
		fields := make([]uint64, 0, v.Len())
		var tmp []byte
		v.Range(func(k string, fv Value) bool {
			tmp = append(tmp[:0], k...)
			tmp = append(tmp, 0)
			tmp = appendCanonical(tmp, fv)
			fields = append(fields, siphash.Hash(hashK0, hashK1, tmp))
			return true
		})
		slices.Sort(fields)
		dst = append(dst, 'm')
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(fields)))
		for _, h := range fields {
			dst = binary.LittleEndian.AppendUint64(dst, h)
		}
		return dst
	}
	return append(dst, 'z', byte(v.Type()))
}

func appendNumeric(dst []byte, v Value) []byte {
	switch n := v.(type) {
	case Int:
		return appendInteger(dst, int64(n))
	case Long:
		return appendInteger(dst, int64(n))
	case Double:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			dst = append(dst, 'f')
			return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f))
		}
		if f == math.Trunc(f) && f >= -exactFloat && f <= exactFloat {
			return appendInteger(dst, int64(f))
		}
	}
	d, err := toDecimal(v)
	if err != nil {
		return append(dst, 'z')
	}
	var red apd.Decimal
	red.Reduce(d)
	if red.Exponent >= 0 {
		if i, err := red.Int64(); err == nil {
			return appendInteger(dst, i)
		}
	}
	dst = append(dst, 'n')
	return append(dst, red.String()...)
}

func appendInteger(dst []byte, i int64) []byte {
	dst = append(dst, 'i')
	return binary.LittleEndian.AppendUint64(dst, uint64(i))
}
