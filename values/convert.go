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
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FromGo converts a Go value as produced by
// encoding/json (optionally with UseNumber)
// or a YAML decoder into a Value.
// Map fields are ordered by name.
func FromGo(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return integer(int64(x)), nil
	case int32:
		return Int(x), nil
	case int64:
		return integer(x), nil
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return integer(int64(x)), nil
		}
		return Double(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return integer(i), nil
		}
		if strings.ContainsAny(string(x), "eE") {
			f, err := x.Float64()
			if err != nil {
				return nil, err
			}
			return Double(f), nil
		}
		return ParseNumber(string(x))
	case string:
		return String(x), nil
	case []byte:
		return Binary(x), nil
	case time.Time:
		return Timestamp(x), nil
	case []any:
		arr := make(Array, len(x))
		for i := range x {
			v, err := FromGo(x[i])
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		keys := maps.Keys(x)
		slices.Sort(keys)
		m := NewMap(len(keys))
		for _, k := range keys {
			v, err := FromGo(x[k])
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", k)
			}
			m.Put(k, v)
		}
		return m, nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "cannot convert %T", x)
}

// MustFromGo is like FromGo but panics on error.
// It is intended for literals in tests and tools.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

func integer(i int64) Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int(i)
	}
	return Long(i)
}
