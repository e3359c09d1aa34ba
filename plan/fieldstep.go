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

	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// FieldStep navigates to a named field of its
// input. A MAP input yields the field if it is
// present; an ARRAY input yields the field of
// every MAP element that has it, one per Next.
// Any other input yields nothing.
type FieldStep struct {
	Header
	Input Iter
	Field string
}

type fieldStepState struct {
	iterState
	elems values.Array
	pos   int
}

func (f *FieldStep) Kind() Kind       { return KindFieldStep }
func (f *FieldStep) Children() []Iter { return []Iter{f.Input} }
func (f *FieldStep) input() Iter      { return f.Input }
func (f *FieldStep) validate() error  { return nil }

func (f *FieldStep) Open(ec *ExecContext) error {
	ec.initState(f, &fieldStepState{})
	return f.Input.Open(ec)
}

func (f *FieldStep) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*fieldStepState](ec, f)
	if err != nil || st.isDone() {
		return false, err
	}
	for {
		for st.pos < len(st.elems) {
			elem := st.elems[st.pos]
			st.pos++
			if m, ok := elem.(*values.Map); ok {
				if v, ok := m.Get(f.Field); ok {
					ec.setReg(f.Result, v)
					st.running()
					return true, nil
				}
			}
		}
		st.elems, st.pos = nil, 0
		more, err := f.Input.Next(ec)
		if err != nil {
			return false, err
		}
		if !more {
			st.setDone()
			return false, nil
		}
		in, err := ec.Value(f.Input)
		if err != nil {
			return false, err
		}
		switch in := in.(type) {
		case *values.Map:
			if v, ok := in.Get(f.Field); ok {
				ec.setReg(f.Result, v)
				st.running()
				return true, nil
			}
		case values.Array:
			st.elems = in
		}
	}
}

func (f *FieldStep) Reset(ec *ExecContext) error {
	st, err := stateOf[*fieldStepState](ec, f)
	if err != nil {
		return err
	}
	st.elems, st.pos = nil, 0
	if err := f.Input.Reset(ec); err != nil {
		return err
	}
	return ec.resetState(f)
}

func (f *FieldStep) Close(ec *ExecContext) error {
	if ec.closeState(f) {
		st := ec.states[f.State].(*fieldStepState)
		st.elems = nil
	}
	return f.Input.Close(ec)
}

func (f *FieldStep) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "field name : %s\n", f.Field)
	describeIter(dst, indent, "input iterator", f.Input)
}

func (f *FieldStep) encode(w *wire.Writer) {
	encodeIter(w, f.Input)
	w.WriteString(f.Field)
}
