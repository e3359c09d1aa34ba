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

// Package values implements the dynamic values
// produced and consumed by query plan operators:
// numeric promotion, comparison, null semantics,
// hashing and the wire representation of literals.
package values

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Type is the type code of a value.
// The numeric codes are part of the wire format.
type Type int8

const (
	TypeArray     Type = 0
	TypeBinary    Type = 1
	TypeBoolean   Type = 2
	TypeDouble    Type = 3
	TypeInteger   Type = 4
	TypeLong      Type = 5
	TypeMap       Type = 6
	TypeString    Type = 7
	TypeTimestamp Type = 8
	TypeNumber    Type = 9
	TypeJSONNull  Type = 10
	TypeNull      Type = 11
	TypeEmpty     Type = 12
)

var typeNames = [...]string{
	TypeArray:     "ARRAY",
	TypeBinary:    "BINARY",
	TypeBoolean:   "BOOLEAN",
	TypeDouble:    "DOUBLE",
	TypeInteger:   "INTEGER",
	TypeLong:      "LONG",
	TypeMap:       "MAP",
	TypeString:    "STRING",
	TypeTimestamp: "TIMESTAMP",
	TypeNumber:    "NUMBER",
	TypeJSONNull:  "JSON_NULL",
	TypeNull:      "NULL",
	TypeEmpty:     "EMPTY",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Value is a dynamically-typed value.
//
// Values are immutable once they have been
// written to a register; operators that need
// to build a new Array or Map allocate one.
type Value interface {
	Type() Type
	String() string
}

type (
	Int       int32
	Long      int64
	Double    float64
	Bool      bool
	String    string
	Binary    []byte
	Timestamp time.Time
	Array     []Value
)

// Number is an arbitrary-precision decimal.
type Number struct {
	d apd.Decimal
}

type special Type

var (
	// Null is the SQL NULL.
	Null Value = special(TypeNull)
	// JSONNull is the JSON null literal.
	JSONNull Value = special(TypeJSONNull)
	// Empty is the result of navigating
	// to something that does not exist.
	Empty Value = special(TypeEmpty)
)

func (Int) Type() Type       { return TypeInteger }
func (Long) Type() Type      { return TypeLong }
func (Double) Type() Type    { return TypeDouble }
func (Bool) Type() Type      { return TypeBoolean }
func (String) Type() Type    { return TypeString }
func (Binary) Type() Type    { return TypeBinary }
func (Timestamp) Type() Type { return TypeTimestamp }
func (Array) Type() Type     { return TypeArray }
func (*Number) Type() Type   { return TypeNumber }
func (*Map) Type() Type      { return TypeMap }
func (s special) Type() Type { return Type(s) }

func (i Int) String() string  { return strconv.FormatInt(int64(i), 10) }
func (l Long) String() string { return strconv.FormatInt(int64(l), 10) }
func (d Double) String() string {
	return strconv.FormatFloat(float64(d), 'g', -1, 64)
}
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (s String) String() string { return strconv.Quote(string(s)) }
func (b Binary) String() string {
	return strconv.Quote(base64.StdEncoding.EncodeToString(b))
}
func (t Timestamp) String() string {
	return strconv.Quote(time.Time(t).UTC().Format(time.RFC3339Nano))
}
func (n *Number) String() string { return n.d.String() }

func (s special) String() string {
	if Type(s) == TypeEmpty {
		return "EMPTY"
	}
	return "null"
}

func (a Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range a {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a[i].String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// NewNumber returns a Number holding a copy of d.
func NewNumber(d *apd.Decimal) *Number {
	n := &Number{}
	n.d.Set(d)
	return n
}

// ParseNumber parses a decimal string.
func ParseNumber(s string) (*Number, error) {
	n := &Number{}
	if _, _, err := n.d.SetString(s); err != nil {
		return nil, err
	}
	return n, nil
}

// Decimal returns a copy of the decimal held by n.
func (n *Number) Decimal() *apd.Decimal {
	return new(apd.Decimal).Set(&n.d)
}

// Map is an insertion-ordered string-keyed map.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map with room for n fields.
func NewMap(n int) *Map {
	return &Map{
		keys: make([]string, 0, n),
		vals: make(map[string]Value, n),
	}
}

// Put sets the value of field k. Replacing
// an existing field keeps its position.
func (m *Map) Put(k string, v Value) *Map {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
	return m
}

// Get returns the value of field k.
func (m *Map) Get(k string) (Value, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Len returns the number of fields.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the field names in insertion order.
// The returned slice must not be modified.
func (m *Map) Keys() []string { return m.keys }

// Range calls fn for each field in insertion
// order until fn returns false.
func (m *Map) Range(fn func(k string, v Value) bool) {
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

func (m *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte(':')
		sb.WriteString(m.vals[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// IsNull returns true for SQL NULL and JSON null.
func IsNull(v Value) bool {
	t := v.Type()
	return t == TypeNull || t == TypeJSONNull
}

// IsNullish returns true for NULL, JSON null and EMPTY.
// These are the values that sort specs
// place according to their null ordering.
func IsNullish(v Value) bool {
	t := v.Type()
	return t == TypeNull || t == TypeJSONNull || t == TypeEmpty
}

// IsNumeric returns true for INTEGER, LONG,
// DOUBLE and NUMBER values.
func IsNumeric(v Value) bool {
	switch v.Type() {
	case TypeInteger, TypeLong, TypeDouble, TypeNumber:
		return true
	}
	return false
}

// IsAtomic returns true for values that are
// neither arrays nor maps.
func IsAtomic(v Value) bool {
	t := v.Type()
	return t != TypeArray && t != TypeMap
}

// Equal returns whether a and b are equal.
// Numeric values compare by value regardless
// of their type, and maps compare without
// regard to field order.
func Equal(a, b Value) bool {
	if IsNumeric(a) && IsNumeric(b) {
		c, err := compareNumeric(a, b)
		return err == nil && c == 0
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a := a.(type) {
	case String, Bool, special:
		return a == b
	case Binary:
		return bytes.Equal(a, b.(Binary))
	case Timestamp:
		return time.Time(a).Equal(time.Time(b.(Timestamp)))
	case Array:
		b := b.(Array)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	case *Map:
		b := b.(*Map)
		if a.Len() != b.Len() {
			return false
		}
		for k, av := range a.vals {
			bv, ok := b.vals[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// SizeOf estimates the memory held by v in bytes.
func SizeOf(v Value) int64 {
	const word = 8
	switch v := v.(type) {
	case String:
		return 2*word + int64(len(v))
	case Binary:
		return 3*word + int64(len(v))
	case *Number:
		return 6 * word
	case Timestamp:
		return 3 * word
	case Array:
		n := int64(3 * word)
		for i := range v {
			n += 2*word + SizeOf(v[i])
		}
		return n
	case *Map:
		n := int64(8 * word)
		for k, fv := range v.vals {
			n += 6*word + int64(2*len(k)) + SizeOf(fv)
		}
		return n
	}
	return 2 * word
}
