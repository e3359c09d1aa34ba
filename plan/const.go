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

// Const yields a literal value once per Open or Reset.
type Const struct {
	Header
	Value values.Value
}

func (c *Const) Kind() Kind       { return KindConst }
func (c *Const) Children() []Iter { return nil }

func (c *Const) validate() error {
	if c.Value == nil {
		return errors.New("missing value")
	}
	return nil
}

func (c *Const) Open(ec *ExecContext) error {
	ec.initState(c, &iterState{})
	return nil
}

func (c *Const) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*iterState](ec, c)
	if err != nil || st.isDone() {
		return false, err
	}
	ec.setReg(c.Result, c.Value)
	st.setDone()
	return true, nil
}

func (c *Const) Reset(ec *ExecContext) error { return ec.resetState(c) }

func (c *Const) Close(ec *ExecContext) error {
	ec.closeState(c)
	return nil
}

func (c *Const) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "value : %s\n", c.Value)
}

func (c *Const) encode(w *wire.Writer) { values.Write(w, c.Value) }
