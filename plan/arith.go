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

// Arith combines the values of its operands
// left to right. Ops holds one operator per
// operand: '+' or '-' for OpAddSub, and '*',
// '/' or 'd' for OpMultDiv. The operator of
// the first operand is applied against the
// identity of the family, so "-x" is 0-x.
//
// A null operand makes the result null; an
// operand with no value makes Arith yield nothing.
type Arith struct {
	Header
	Code FuncCode
	Args []Iter
	Ops  string
}

func (a *Arith) Kind() Kind         { return KindArithOp }
func (a *Arith) FuncCode() FuncCode { return a.Code }
func (a *Arith) Children() []Iter   { return a.Args }

func (a *Arith) validate() error {
	var allowed string
	switch a.Code {
	case OpAddSub:
		allowed = "+-"
	case OpMultDiv:
		allowed = "*/d"
	default:
		return errors.Newf("function code %s is not arithmetic", a.Code)
	}
	if len(a.Args) == 0 {
		return errors.New("no operands")
	}
	if len(a.Ops) != len(a.Args) {
		return errors.Newf("%d operators for %d operands", len(a.Ops), len(a.Args))
	}
	for i := 0; i < len(a.Ops); i++ {
		if strings.IndexByte(allowed, a.Ops[i]) < 0 {
			return errors.Newf("operator %q not valid for %s", a.Ops[i], a.Code)
		}
	}
	return nil
}

func (a *Arith) Open(ec *ExecContext) error {
	ec.initState(a, &iterState{})
	return openAll(ec, a.Args...)
}

func (a *Arith) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*iterState](ec, a)
	if err != nil || st.isDone() {
		return false, err
	}
	var res values.Value
	null := false
	for i, arg := range a.Args {
		more, err := arg.Next(ec)
		if err != nil {
			return false, err
		}
		if !more {
			st.setDone()
			return false, nil
		}
		v, err := ec.Value(arg)
		if err != nil {
			return false, err
		}
		if v.Type() == values.TypeEmpty {
			st.setDone()
			return false, nil
		}
		if values.IsNull(v) {
			null = true
			continue
		}
		if !values.IsNumeric(v) {
			return false, ec.userErrorf(a, TypeMismatch, "arithmetic operand is %s, not a number", v.Type())
		}
		if null {
			continue
		}
		op := values.Op(a.Ops[i])
		if i == 0 {
			res, err = a.identity(op, v)
		} else {
			res, err = values.Arith(op, res, v)
		}
		if err != nil {
			return false, ec.evalError(a, err)
		}
	}
	if null {
		res = values.Null
	}
	ec.setReg(a.Result, res)
	st.setDone()
	return true, nil
}

// identity applies op to the identity
// element of the operator family and v.
func (a *Arith) identity(op values.Op, v values.Value) (values.Value, error) {
	switch op {
	case values.OpAdd, values.OpMul:
		return v, nil
	case values.OpSub:
		return values.Negate(v)
	}
	return values.Arith(op, values.Int(1), v)
}

func (a *Arith) Reset(ec *ExecContext) error {
	if err := resetAll(ec, a.Args...); err != nil {
		return err
	}
	return ec.resetState(a)
}

func (a *Arith) Close(ec *ExecContext) error {
	ec.closeState(a)
	return closeAll(ec, a.Args...)
}

func (a *Arith) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "operations : %s\n", a.Ops)
	describeIters(dst, indent, "operand", a.Args)
}

func (a *Arith) encode(w *wire.Writer) {
	w.WriteShort(int16(a.Code))
	encodeIters(w, a.Args)
	w.WriteString(a.Ops)
}
