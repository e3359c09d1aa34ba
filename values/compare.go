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
	"bytes"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrIncomparable is returned when a comparison
// involves an ARRAY or MAP value.
var ErrIncomparable = errors.New("values are not comparable")

// total order of atomic types; numerics compare
// with each other by value
var typeRank = [...]int{
	TypeInteger:   0,
	TypeLong:      0,
	TypeDouble:    0,
	TypeNumber:    0,
	TypeTimestamp: 1,
	TypeString:    2,
	TypeBoolean:   3,
	TypeBinary:    4,
	TypeEmpty:     5,
	TypeJSONNull:  6,
	TypeNull:      7,
	TypeArray:     -1,
	TypeMap:       -1,
}

// Compare returns the relative order of two atomic
// values: numerics, then timestamps, strings,
// booleans and binaries, followed by EMPTY,
// JSON null and NULL. Numerics compare by value
// across types; NaN sorts above every other number.
// Comparing an ARRAY or MAP returns ErrIncomparable.
func Compare(a, b Value) (int, error) {
	ta, tb := a.Type(), b.Type()
	ra, rb := typeRank[ta], typeRank[tb]
	if ra < 0 || rb < 0 {
		bad := ta
		if ra >= 0 {
			bad = tb
		}
		return 0, errors.Wrapf(ErrIncomparable, "cannot compare %s value", bad)
	}
	if ra != rb {
		if ra < rb {
			return -1, nil
		}
		return 1, nil
	}
	switch a := a.(type) {
	case String:
		return strings.Compare(string(a), string(b.(String))), nil
	case Bool:
		x, y := bool(a), bool(b.(Bool))
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		}
		return 1, nil
	case Timestamp:
		return time.Time(a).Compare(time.Time(b.(Timestamp))), nil
	case Binary:
		return bytes.Compare(a, b.(Binary)), nil
	case special:
		return 0, nil
	}
	return compareNumeric(a, b)
}

// largest long that converts exactly to a double
const exactFloat = 1 << 53

func compareNumeric(a, b Value) (int, error) {
	ra, rb := rank(a), rank(b)
	if ra < 0 || rb < 0 {
		return 0, errors.Wrapf(ErrTypeMismatch, "comparing %s with %s", a.Type(), b.Type())
	}
	if ra <= rankLong && rb <= rankLong {
		return cmp64(asInt64(a), asInt64(b)), nil
	}
	if ra != rankNumber && rb != rankNumber {
		x, y := asFloat64(a), asFloat64(b)
		if ra == rankDouble && rb == rankDouble || exactAsFloat(a, b) {
			return cmpFloat(x, y), nil
		}
	}
	// NaN and infinities have no decimal representation
	// worth comparing against; handle them as doubles
	if d, ok := a.(Double); ok && (math.IsNaN(float64(d)) || math.IsInf(float64(d), 0)) {
		return cmpFloat(float64(d), 0), nil
	}
	if d, ok := b.(Double); ok && (math.IsNaN(float64(d)) || math.IsInf(float64(d), 0)) {
		return -cmpFloat(float64(d), 0), nil
	}
	x, err := toDecimal(a)
	if err != nil {
		return 0, err
	}
	y, err := toDecimal(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}

// exactAsFloat reports whether a mixed integer/double
// comparison can be done on doubles without loss.
func exactAsFloat(a, b Value) bool {
	for _, v := range []Value{a, b} {
		if rank(v) <= rankLong {
			i := asInt64(v)
			if i > exactFloat || i < -exactFloat {
				return false
			}
		}
	}
	return true
}

func cmp64(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// cmpFloat orders NaN above every other value.
func cmpFloat(x, y float64) int {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xn && yn:
		return 0
	case xn:
		return 1
	case yn:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
