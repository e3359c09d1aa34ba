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

	"github.com/nosqlx/planexec/wire"
)

// VarRef yields the current value of a FROM
// variable. The SFW binding the variable writes
// it to the register VarRef shares with the
// variable's FROM iterator, so VarRef only
// signals that the value is there.
type VarRef struct {
	Header
	Name string
}

func (v *VarRef) Kind() Kind       { return KindVarRef }
func (v *VarRef) Children() []Iter { return nil }

func (v *VarRef) validate() error {
	if v.Name == "" {
		return errors.New("missing variable name")
	}
	return nil
}

func (v *VarRef) Open(ec *ExecContext) error {
	ec.initState(v, &iterState{})
	return nil
}

func (v *VarRef) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*iterState](ec, v)
	if err != nil || st.isDone() {
		return false, err
	}
	st.setDone()
	return true, nil
}

func (v *VarRef) Reset(ec *ExecContext) error { return ec.resetState(v) }

func (v *VarRef) Close(ec *ExecContext) error {
	ec.closeState(v)
	return nil
}

func (v *VarRef) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "name : %s\n", v.Name)
}

func (v *VarRef) encode(w *wire.Writer) { w.WriteString(v.Name) }

// ExternalVarRef yields the value bound to an
// external variable of the query before execution.
type ExternalVarRef struct {
	Header
	Name string
	// ID indexes the external variables
	// of an ExecContext.
	ID int
}

func (v *ExternalVarRef) Kind() Kind       { return KindExternalVarRef }
func (v *ExternalVarRef) Children() []Iter { return nil }

func (v *ExternalVarRef) validate() error {
	if v.ID < 0 {
		return errors.Newf("negative variable id %d", v.ID)
	}
	return nil
}

func (v *ExternalVarRef) Open(ec *ExecContext) error {
	ec.initState(v, &iterState{})
	return nil
}

func (v *ExternalVarRef) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*iterState](ec, v)
	if err != nil || st.isDone() {
		return false, err
	}
	val := ec.externals[v.ID]
	if val == nil {
		st.setDone()
		return false, ec.userErrorf(v, UnboundVariable, "variable %s has no value", v.Name)
	}
	ec.setReg(v.Result, val)
	st.setDone()
	return true, nil
}

func (v *ExternalVarRef) Reset(ec *ExecContext) error { return ec.resetState(v) }

func (v *ExternalVarRef) Close(ec *ExecContext) error {
	ec.closeState(v)
	return nil
}

func (v *ExternalVarRef) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "name : %s\n", v.Name)
	tabfprintf(dst, indent, "id : %d\n", v.ID)
}

func (v *ExternalVarRef) encode(w *wire.Writer) {
	w.WriteString(v.Name)
	w.WritePackedInt(int32(v.ID))
}
