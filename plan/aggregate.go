// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package plan

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// accumulator folds values into the result
// of one aggregate function.
type accumulator struct {
	code  FuncCode
	count int64
	val   values.Value // sum, min or max so far
	list  values.Array
	seen  map[uint64][]values.Value
	size  int64
}

func newAccumulator(code FuncCode) *accumulator {
	return &accumulator{code: code}
}

// add folds v into the accumulator and returns
// the number of bytes of v it retained.
func (a *accumulator) add(v values.Value) (int64, error) {
	var grew int64
	switch a.code {
	case FnCountStar:
		a.count++
	case FnCount:
		if !values.IsNullish(v) {
			a.count++
		}
	case FnCountNumbers:
		if values.IsNumeric(v) {
			a.count++
		}
	case FnSum:
		if !values.IsNumeric(v) {
			break
		}
		if a.val == nil {
			a.val = v
			break
		}
		sum, err := values.Arith(values.OpAdd, a.val, v)
		if err != nil {
			return 0, err
		}
		a.val = sum
	case FnMin, FnMax:
		if values.IsNullish(v) || !values.IsAtomic(v) {
			break
		}
		if a.val == nil {
			a.val = v
			break
		}
		c, err := values.Compare(v, a.val)
		if err != nil {
			return 0, err
		}
		if (a.code == FnMin && c < 0) || (a.code == FnMax && c > 0) {
			a.val = v
		}
	case FnArrayCollect:
		if v.Type() == values.TypeEmpty {
			break
		}
		a.list = append(a.list, v)
		grew = values.SizeOf(v)
	case FnArrayCollectDistinct:
		if v.Type() == values.TypeEmpty {
			break
		}
		h := values.Hash(v)
		for _, u := range a.seen[h] {
			if values.Equal(u, v) {
				return 0, nil
			}
		}
		if a.seen == nil {
			a.seen = make(map[uint64][]values.Value)
		}
		a.seen[h] = append(a.seen[h], v)
		a.list = append(a.list, v)
		grew = values.SizeOf(v)
	default:
		return 0, errors.AssertionFailedf("%s is not an aggregate function", a.code)
	}
	a.size += grew
	return grew, nil
}

// value returns the aggregate of the values
// added since the last reset.
func (a *accumulator) value() values.Value {
	switch a.code {
	case FnCountStar, FnCount, FnCountNumbers:
		return values.Long(a.count)
	case FnArrayCollect, FnArrayCollectDistinct:
		if a.list == nil {
			return values.Array{}
		}
		// later appends must not show through
		return a.list[:len(a.list):len(a.list)]
	}
	if a.val == nil {
		return values.Null
	}
	return a.val
}

// reset clears the accumulator and returns
// the number of bytes it released.
func (a *accumulator) reset() int64 {
	size := a.size
	*a = accumulator{code: a.code}
	return size
}

type aggrState struct {
	iterState
	acc *accumulator
}

// The aggregate function iterators consume their
// whole input on Next, fold it into the accumulator
// and yield the value accumulated so far. Reset
// restarts the input but keeps the accumulator;
// only AggrValue with reset set clears it, so an
// enclosing SFW can feed one group row at a time.

func aggrOpen(ec *ExecContext, it, input Iter, code FuncCode) error {
	ec.initState(it, &aggrState{acc: newAccumulator(code)})
	return input.Open(ec)
}

func aggrNext(ec *ExecContext, it, input Iter) (bool, error) {
	st, err := stateOf[*aggrState](ec, it)
	if err != nil || st.isDone() {
		return false, err
	}
	for {
		more, err := input.Next(ec)
		if err != nil {
			return false, err
		}
		if !more {
			break
		}
		v, err := ec.Value(input)
		if err != nil {
			return false, err
		}
		if _, err := st.acc.add(v); err != nil {
			return false, ec.evalError(it, err)
		}
	}
	ec.setReg(it.ResultReg(), st.acc.value())
	st.setDone()
	return true, nil
}

func aggrReset(ec *ExecContext, it, input Iter) error {
	if err := input.Reset(ec); err != nil {
		return err
	}
	return ec.resetState(it)
}

func aggrValue(ec *ExecContext, it Iter, reset bool) (values.Value, error) {
	st, err := stateOf[*aggrState](ec, it)
	if err != nil {
		return nil, err
	}
	if st.acc == nil {
		return nil, errors.AssertionFailedf("aggregate value of closed %s iterator", it.Kind())
	}
	v := st.acc.value()
	if reset {
		st.acc.reset()
	}
	return v, nil
}

func aggrClose(ec *ExecContext, it, input Iter) error {
	if ec.closeState(it) {
		ec.states[it.StatePos()].(*aggrState).acc = nil
	}
	return input.Close(ec)
}

// FuncSum sums the numeric values of its input.
// The sum of no numbers is null.
type FuncSum struct {
	Header
	Input Iter
}

func (f *FuncSum) Kind() Kind                   { return KindFnSum }
func (f *FuncSum) FuncCode() FuncCode           { return FnSum }
func (f *FuncSum) Children() []Iter             { return []Iter{f.Input} }
func (f *FuncSum) input() Iter                  { return f.Input }
func (f *FuncSum) validate() error              { return nil }
func (f *FuncSum) Open(ec *ExecContext) error   { return aggrOpen(ec, f, f.Input, FnSum) }
func (f *FuncSum) Reset(ec *ExecContext) error  { return aggrReset(ec, f, f.Input) }
func (f *FuncSum) Close(ec *ExecContext) error  { return aggrClose(ec, f, f.Input) }
func (f *FuncSum) encode(w *wire.Writer)        { encodeIter(w, f.Input) }

func (f *FuncSum) Next(ec *ExecContext) (bool, error) { return aggrNext(ec, f, f.Input) }

func (f *FuncSum) AggrValue(ec *ExecContext, reset bool) (values.Value, error) {
	return aggrValue(ec, f, reset)
}

func (f *FuncSum) describe(dst *strings.Builder, indent int) {
	describeIter(dst, indent, "input iterator", f.Input)
}

// FuncMinMax yields the least (FnMin) or greatest
// (FnMax) atomic, non-null value of its input.
type FuncMinMax struct {
	Header
	Code  FuncCode
	Input Iter
}

func (f *FuncMinMax) Kind() Kind                  { return KindFnMinMax }
func (f *FuncMinMax) FuncCode() FuncCode          { return f.Code }
func (f *FuncMinMax) Children() []Iter            { return []Iter{f.Input} }
func (f *FuncMinMax) input() Iter                 { return f.Input }
func (f *FuncMinMax) Open(ec *ExecContext) error  { return aggrOpen(ec, f, f.Input, f.Code) }
func (f *FuncMinMax) Reset(ec *ExecContext) error { return aggrReset(ec, f, f.Input) }
func (f *FuncMinMax) Close(ec *ExecContext) error { return aggrClose(ec, f, f.Input) }

func (f *FuncMinMax) validate() error {
	if f.Code != FnMin && f.Code != FnMax {
		return errors.Newf("function code %s is not min or max", f.Code)
	}
	return nil
}

func (f *FuncMinMax) Next(ec *ExecContext) (bool, error) { return aggrNext(ec, f, f.Input) }

func (f *FuncMinMax) AggrValue(ec *ExecContext, reset bool) (values.Value, error) {
	return aggrValue(ec, f, reset)
}

func (f *FuncMinMax) describe(dst *strings.Builder, indent int) {
	describeIter(dst, indent, "input iterator", f.Input)
}

func (f *FuncMinMax) encode(w *wire.Writer) {
	w.WriteShort(int16(f.Code))
	encodeIter(w, f.Input)
}

// FuncCollect collects the values of its input
// into an ARRAY, optionally dropping duplicates.
type FuncCollect struct {
	Header
	Distinct bool
	Input    Iter
}

func (f *FuncCollect) Kind() Kind                  { return KindFnCollect }
func (f *FuncCollect) Children() []Iter            { return []Iter{f.Input} }
func (f *FuncCollect) input() Iter                 { return f.Input }
func (f *FuncCollect) validate() error             { return nil }
func (f *FuncCollect) Open(ec *ExecContext) error  { return aggrOpen(ec, f, f.Input, f.FuncCode()) }
func (f *FuncCollect) Reset(ec *ExecContext) error { return aggrReset(ec, f, f.Input) }
func (f *FuncCollect) Close(ec *ExecContext) error { return aggrClose(ec, f, f.Input) }

func (f *FuncCollect) FuncCode() FuncCode {
	if f.Distinct {
		return FnArrayCollectDistinct
	}
	return FnArrayCollect
}

func (f *FuncCollect) Next(ec *ExecContext) (bool, error) { return aggrNext(ec, f, f.Input) }

func (f *FuncCollect) AggrValue(ec *ExecContext, reset bool) (values.Value, error) {
	return aggrValue(ec, f, reset)
}

func (f *FuncCollect) describe(dst *strings.Builder, indent int) {
	describeIter(dst, indent, "input iterator", f.Input)
}

func (f *FuncCollect) encode(w *wire.Writer) {
	w.WriteBool(f.Distinct)
	encodeIter(w, f.Input)
}
