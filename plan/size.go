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

// Size yields the number of elements of an
// ARRAY or the number of fields of a MAP.
type Size struct {
	Header
	Input Iter
}

func (s *Size) Kind() Kind       { return KindFnSize }
func (s *Size) Children() []Iter { return []Iter{s.Input} }
func (s *Size) input() Iter      { return s.Input }
func (s *Size) validate() error  { return nil }

func (s *Size) Open(ec *ExecContext) error {
	ec.initState(s, &iterState{})
	return s.Input.Open(ec)
}

func (s *Size) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*iterState](ec, s)
	if err != nil || st.isDone() {
		return false, err
	}
	more, err := s.Input.Next(ec)
	if err != nil {
		return false, err
	}
	st.setDone()
	if !more {
		return false, nil
	}
	in, err := ec.Value(s.Input)
	if err != nil {
		return false, err
	}
	var res values.Value
	switch v := in.(type) {
	case values.Array:
		res = values.Int(len(v))
	case *values.Map:
		res = values.Int(v.Len())
	default:
		switch {
		case v.Type() == values.TypeEmpty:
			return false, nil
		case values.IsNull(v):
			res = values.Null
		default:
			return false, ec.userErrorf(s, TypeMismatch, "size() of %s value", v.Type())
		}
	}
	ec.setReg(s.Result, res)
	return true, nil
}

func (s *Size) Reset(ec *ExecContext) error {
	if err := s.Input.Reset(ec); err != nil {
		return err
	}
	return ec.resetState(s)
}

func (s *Size) Close(ec *ExecContext) error {
	ec.closeState(s)
	return s.Input.Close(ec)
}

func (s *Size) describe(dst *strings.Builder, indent int) {
	describeIter(dst, indent, "input iterator", s.Input)
}

func (s *Size) encode(w *wire.Writer) { encodeIter(w, s.Input) }
