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
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nosqlx/planexec/wire"
)

// ErrUnknownType is returned by Read for
// an unrecognized type code.
var ErrUnknownType = errors.New("unknown value type")

// Read decodes one value: a type byte
// followed by the type-specific payload.
func Read(r *wire.Reader) (Value, error) {
	code, err := r.ReadInt8()
	if err != nil {
		return nil, err
	}
	switch t := Type(code); t {
	case TypeArray:
		if _, err := r.ReadInt(); err != nil { // total length
			return nil, err
		}
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > r.Len() {
			return nil, errors.Newf("invalid array length %d", n)
		}
		arr := make(Array, n)
		for i := range arr {
			arr[i], err = Read(r)
			if err != nil {
				return nil, errors.Wrapf(err, "array element %d", i)
			}
		}
		return arr, nil
	case TypeBinary:
		b, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		return Binary(append([]byte{}, b...)), nil
	case TypeBoolean:
		b, err := r.ReadBool()
		return Bool(b), err
	case TypeDouble:
		f, err := r.ReadDouble()
		return Double(f), err
	case TypeInteger:
		i, err := r.ReadPackedInt()
		return Int(i), err
	case TypeLong:
		l, err := r.ReadPackedLong()
		return Long(l), err
	case TypeMap:
		if _, err := r.ReadInt(); err != nil { // total length
			return nil, err
		}
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > r.Len() {
			return nil, errors.Newf("invalid map size %d", n)
		}
		m := NewMap(int(n))
		for i := 0; i < int(n); i++ {
			k, ok, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Newf("map field %d has no name", i)
			}
			v, err := Read(r)
			if err != nil {
				return nil, errors.Wrapf(err, "map field %q", k)
			}
			m.Put(k, v)
		}
		return m, nil
	case TypeString:
		s, ok, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if !ok {
			return Null, nil
		}
		return String(s), nil
	case TypeTimestamp:
		s, _, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, errors.Wrap(err, "timestamp")
		}
		return Timestamp(ts), nil
	case TypeNumber:
		s, _, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return ParseNumber(s)
	case TypeJSONNull:
		return JSONNull, nil
	case TypeNull:
		return Null, nil
	case TypeEmpty:
		return Empty, nil
	default:
		return nil, errors.Wrapf(ErrUnknownType, "type code %d", code)
	}
}

// Write encodes v in the format accepted by Read.
func Write(w *wire.Writer, v Value) {
	w.WriteInt8(int8(v.Type()))
	switch v := v.(type) {
	case Array:
		off := w.Len()
		w.WriteInt(0)
		w.WriteInt(int32(len(v)))
		for i := range v {
			Write(w, v[i])
		}
		w.PatchInt(off, int32(w.Len()-off-4))
	case Binary:
		w.WriteBytes(v)
	case Bool:
		w.WriteBool(bool(v))
	case Double:
		w.WriteDouble(float64(v))
	case Int:
		w.WritePackedInt(int32(v))
	case Long:
		w.WritePackedLong(int64(v))
	case *Map:
		off := w.Len()
		w.WriteInt(0)
		w.WriteInt(int32(v.Len()))
		v.Range(func(k string, fv Value) bool {
			w.WriteString(k)
			Write(w, fv)
			return true
		})
		w.PatchInt(off, int32(w.Len()-off-4))
	case String:
		w.WriteString(string(v))
	case Timestamp:
		w.WriteString(time.Time(v).UTC().Format(time.RFC3339Nano))
	case *Number:
		w.WriteString(v.d.String())
	}
}
