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
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

var (
	// ErrDivisionByZero is returned by Arith for a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrTypeMismatch is returned when an operand
	// has a type the operation does not accept.
	ErrTypeMismatch = errors.New("type mismatch")
)

// DecimalContext is the context used for NUMBER
// arithmetic: 34 significant digits, as in the
// IEEE 754 decimal128 format.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// Op is an arithmetic operator.
type Op byte

const (
	OpAdd    Op = '+'
	OpSub    Op = '-'
	OpMul    Op = '*'
	OpDiv    Op = '/'
	OpDecDiv Op = 'd' // always divides as NUMBER
)

// numeric promotion ranks
const (
	rankInt = iota
	rankLong
	rankDouble
	rankNumber
)

func rank(v Value) int {
	switch v.(type) {
	case Int:
		return rankInt
	case Long:
		return rankLong
	case Double:
		return rankDouble
	case *Number:
		return rankNumber
	}
	return -1
}

func asInt64(v Value) int64 {
	switch v := v.(type) {
	case Int:
		return int64(v)
	case Long:
		return int64(v)
	}
	panic("values: asInt64 on non-integer")
}

func asFloat64(v Value) float64 {
	switch v := v.(type) {
	case Int:
		return float64(v)
	case Long:
		return float64(v)
	case Double:
		return float64(v)
	}
	panic("values: asFloat64 on non-floating value")
}

// toDecimal converts a numeric value to a decimal.
func toDecimal(v Value) (*apd.Decimal, error) {
	switch v := v.(type) {
	case Int:
		return apd.New(int64(v), 0), nil
	case Long:
		return apd.New(int64(v), 0), nil
	case Double:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) >= exactFloat && !math.IsInf(f, 0) {
			// large integral doubles convert exactly; the
			// shortest representation would round them
			i, _ := new(big.Float).SetFloat64(f).Int(nil)
			d, _, err := new(apd.Decimal).SetString(i.String())
			return d, err
		}
		d, err := new(apd.Decimal).SetFloat64(f)
		if err != nil {
			return nil, errors.Wrapf(ErrTypeMismatch, "cannot convert %v to NUMBER", v)
		}
		return d, nil
	case *Number:
		return v.Decimal(), nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "%s is not numeric", v.Type())
}

// fromInt64 narrows to INTEGER when both operands were INTEGER
// and the result fits.
func fromInt64(v int64, narrow bool) Value {
	if narrow && v >= math.MinInt32 && v <= math.MaxInt32 {
		return Int(v)
	}
	return Long(v)
}

// Arith applies op to two numeric operands.
//
// The operands are promoted to the wider of their
// types along INTEGER -> LONG -> DOUBLE -> NUMBER.
// Integer results that overflow 64 bits are
// computed as NUMBER instead. OpDiv on two integer
// operands truncates; OpDecDiv always yields a NUMBER.
// Callers handle NULL operands before calling Arith.
func Arith(op Op, a, b Value) (Value, error) {
	ra, rb := rank(a), rank(b)
	if ra < 0 || rb < 0 {
		bad := a
		if ra >= 0 {
			bad = b
		}
		return nil, errors.Wrapf(ErrTypeMismatch, "arithmetic on %s value", bad.Type())
	}
	r := ra
	if rb > r {
		r = rb
	}
	if op == OpDecDiv {
		r = rankNumber
	}
	switch r {
	case rankInt, rankLong:
		x, y := asInt64(a), asInt64(b)
		narrow := r == rankInt
		var res int64
		ok := true
		switch op {
		case OpAdd:
			res, ok = add64(x, y)
		case OpSub:
			res, ok = sub64(x, y)
		case OpMul:
			res, ok = mul64(x, y)
		case OpDiv:
			if y == 0 {
				return nil, ErrDivisionByZero
			}
			if x == math.MinInt64 && y == -1 {
				ok = false
			} else {
				res = x / y
			}
		default:
			return nil, errors.AssertionFailedf("unknown arithmetic operator %q", op)
		}
		if ok {
			return fromInt64(res, narrow), nil
		}
		// overflow: redo the operation as NUMBER
	case rankDouble:
		x, y := asFloat64(a), asFloat64(b)
		switch op {
		case OpAdd:
			return Double(x + y), nil
		case OpSub:
			return Double(x - y), nil
		case OpMul:
			return Double(x * y), nil
		case OpDiv:
			if y == 0 {
				return nil, ErrDivisionByZero
			}
			return Double(x / y), nil
		}
		return nil, errors.AssertionFailedf("unknown arithmetic operator %q", op)
	}
	return decimalArith(op, a, b)
}

func decimalArith(op Op, a, b Value) (Value, error) {
	x, err := toDecimal(a)
	if err != nil {
		return nil, err
	}
	y, err := toDecimal(b)
	if err != nil {
		return nil, err
	}
	res := &Number{}
	switch op {
	case OpAdd:
		_, err = DecimalContext.Add(&res.d, x, y)
	case OpSub:
		_, err = DecimalContext.Sub(&res.d, x, y)
	case OpMul:
		_, err = DecimalContext.Mul(&res.d, x, y)
	case OpDiv, OpDecDiv:
		if y.IsZero() {
			return nil, ErrDivisionByZero
		}
		_, err = DecimalContext.Quo(&res.d, x, y)
	default:
		return nil, errors.AssertionFailedf("unknown arithmetic operator %q", op)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrTypeMismatch, "NUMBER arithmetic: %v", err)
	}
	return res, nil
}

// Negate returns -v for a numeric v.
func Negate(v Value) (Value, error) {
	switch v := v.(type) {
	case Int:
		return fromInt64(-int64(v), true), nil
	case Long:
		if v == math.MinInt64 {
			return decimalArith(OpSub, Int(0), v)
		}
		return -v, nil
	case Double:
		return -v, nil
	case *Number:
		res := &Number{}
		res.d.Neg(&v.d)
		return res, nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "negation of %s value", v.Type())
}

func add64(x, y int64) (int64, bool) {
	r := x + y
	if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func sub64(x, y int64) (int64, bool) {
	r := x - y
	if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func mul64(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return r, true
}
