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

// Group groups MAP rows that arrive sorted by
// their grouping columns. The first NumGroupBy
// Columns are the key; each remaining column is
// aggregated with the function in Aggregates.
// One row is produced per group, in input order,
// holding the key columns followed by the
// aggregates. Rows missing a key column are
// skipped.
type Group struct {
	Header
	Input      Iter
	NumGroupBy int
	Columns    []string
	Aggregates []FuncCode
	// Distinct is set for SELECT DISTINCT,
	// which groups without aggregates.
	Distinct bool
	// RemoveProducedResult drops a group's
	// result once it has been produced;
	// otherwise results are retained (and
	// counted) until the iterator is reset.
	RemoveProducedResult bool
	// CountMemory counts buffered groups
	// against ExecContext.MaxMemory.
	CountMemory bool
}

type groupState struct {
	iterState
	key      values.Array
	accs     []*accumulator
	pending  bool
	produced []values.Value
	mem      int64
}

func (g *Group) Kind() Kind       { return KindGroup }
func (g *Group) Children() []Iter { return []Iter{g.Input} }
func (g *Group) input() Iter      { return g.Input }

func (g *Group) validate() error {
	if g.NumGroupBy > len(g.Columns) {
		return errors.Newf("%d grouping columns of %d columns", g.NumGroupBy, len(g.Columns))
	}
	if n := len(g.Columns) - g.NumGroupBy; len(g.Aggregates) != n {
		return errors.Newf("%d aggregate functions for %d aggregate columns", len(g.Aggregates), n)
	}
	for _, fc := range g.Aggregates {
		if !fc.IsAggregate() {
			return errors.Newf("function code %s is not an aggregate", fc)
		}
	}
	return nil
}

func (g *Group) Open(ec *ExecContext) error {
	st := &groupState{accs: make([]*accumulator, len(g.Aggregates))}
	for i, fc := range g.Aggregates {
		st.accs[i] = newAccumulator(fc)
	}
	ec.initState(g, st)
	return g.Input.Open(ec)
}

func (g *Group) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*groupState](ec, g)
	if err != nil || st.isDone() {
		return false, err
	}
	for {
		more, err := g.Input.Next(ec)
		if err != nil {
			return false, err
		}
		if !more {
			if !st.pending {
				st.setDone()
				return false, nil
			}
			st.pending = false
			out, err := g.flush(ec, st)
			if err != nil {
				return false, err
			}
			ec.setReg(g.Result, out)
			st.running()
			return true, nil
		}
		v, err := ec.Value(g.Input)
		if err != nil {
			return false, err
		}
		row, ok := v.(*values.Map)
		if !ok {
			return false, ec.userErrorf(g, TypeMismatch, "grouped row is %s, not a MAP", v.Type())
		}
		key, ok := g.key(row)
		if !ok {
			continue
		}
		var out values.Value
		if st.pending && !sameKey(st.key, key) {
			if out, err = g.flush(ec, st); err != nil {
				return false, err
			}
		}
		if !st.pending {
			if err := g.start(ec, st, key); err != nil {
				return false, err
			}
		}
		if err := g.aggregate(ec, st, row); err != nil {
			return false, err
		}
		if out != nil {
			ec.setReg(g.Result, out)
			st.running()
			return true, nil
		}
	}
}

// key returns the grouping columns of row, or
// false if any of them is missing.
func (g *Group) key(row *values.Map) (values.Array, bool) {
	key := make(values.Array, g.NumGroupBy)
	for i := range key {
		v, ok := row.Get(g.Columns[i])
		if !ok || v.Type() == values.TypeEmpty {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}

func sameKey(a, b values.Array) bool {
	for i := range a {
		if !values.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (g *Group) start(ec *ExecContext, st *groupState, key values.Array) error {
	st.key = key
	st.pending = true
	return g.account(ec, st, values.SizeOf(key))
}

func (g *Group) aggregate(ec *ExecContext, st *groupState, row *values.Map) error {
	for i, acc := range st.accs {
		v, ok := row.Get(g.Columns[g.NumGroupBy+i])
		if !ok {
			v = values.Empty
		}
		grew, err := acc.add(v)
		if err != nil {
			return ec.evalError(g, err)
		}
		if err := g.account(ec, st, grew); err != nil {
			return err
		}
	}
	return nil
}

// flush produces the result row of the pending
// group and starts over with empty accumulators.
func (g *Group) flush(ec *ExecContext, st *groupState) (values.Value, error) {
	out := values.NewMap(len(g.Columns))
	for i, v := range st.key {
		out.Put(g.Columns[i], v)
	}
	freed := values.SizeOf(st.key)
	for i, acc := range st.accs {
		out.Put(g.Columns[g.NumGroupBy+i], acc.value())
		freed += acc.reset()
	}
	st.key = nil
	st.pending = false
	if g.CountMemory {
		ec.shrink(freed)
		st.mem -= freed
	}
	if !g.RemoveProducedResult {
		st.produced = append(st.produced, out)
		if err := g.account(ec, st, values.SizeOf(out)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Group) account(ec *ExecContext, st *groupState, n int64) error {
	if !g.CountMemory || n == 0 {
		return nil
	}
	st.mem += n
	return ec.grow(g, n)
}

// release drops every buffered group.
func (g *Group) release(ec *ExecContext, st *groupState) {
	for _, acc := range st.accs {
		acc.reset()
	}
	st.key, st.pending, st.produced = nil, false, nil
	ec.shrink(st.mem)
	st.mem = 0
}

func (g *Group) Reset(ec *ExecContext) error {
	st, err := stateOf[*groupState](ec, g)
	if err != nil {
		return err
	}
	g.release(ec, st)
	if err := g.Input.Reset(ec); err != nil {
		return err
	}
	return ec.resetState(g)
}

func (g *Group) Close(ec *ExecContext) error {
	if ec.closeState(g) {
		g.release(ec, ec.states[g.State].(*groupState))
	}
	return g.Input.Close(ec)
}

func (g *Group) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "grouping columns : %s\n", strings.Join(g.Columns[:g.NumGroupBy], ", "))
	for i, fc := range g.Aggregates {
		tabfprintf(dst, indent, "aggregate : %s(%s)\n", fc, g.Columns[g.NumGroupBy+i])
	}
	tabfprintf(dst, indent, "distinct : %t\n", g.Distinct)
	tabfprintf(dst, indent, "remove produced result : %t\n", g.RemoveProducedResult)
	tabfprintf(dst, indent, "count memory : %t\n", g.CountMemory)
	describeIter(dst, indent, "input iterator", g.Input)
}

func (g *Group) encode(w *wire.Writer) {
	encodeIter(w, g.Input)
	w.WriteInt(int32(g.NumGroupBy))
	w.WriteStringArray(g.Columns)
	encodeFuncCodes(w, g.Aggregates)
	w.WriteBool(g.Distinct)
	w.WriteBool(g.RemoveProducedResult)
	w.WriteBool(g.CountMemory)
}
