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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
)

// builder hands out dense registers and state
// slots to iterators built by hand.
type builder struct {
	reg, state int
}

func (b *builder) header() Header {
	h := b.alias(b.reg)
	b.reg++
	return h
}

// alias returns a header that writes to reg.
func (b *builder) alias(reg int) Header {
	h := Header{
		Result: reg,
		State:  b.state,
		Loc:    Location{StartLine: 1, StartColumn: b.state, EndLine: 1, EndColumn: b.state + 1},
	}
	b.state++
	return h
}

func (b *builder) constant(v any) *Const {
	return &Const{Header: b.header(), Value: values.MustFromGo(v)}
}

func (b *builder) recv(key *sorting.Key) *Receive {
	r := &Receive{Header: b.header(), Distribution: partition.AllPartitions}
	if key != nil {
		r.Key = *key
	}
	return r
}

func (b *builder) varRef(name string, from Iter) *VarRef {
	return &VarRef{Header: b.alias(from.ResultReg()), Name: name}
}

func (b *builder) field(in Iter, name string) *FieldStep {
	return &FieldStep{Header: b.header(), Input: in, Field: name}
}

func (b *builder) arith(code FuncCode, ops string, args ...Iter) *Arith {
	return &Arith{Header: b.header(), Code: code, Ops: ops, Args: args}
}

func asc(fields ...string) *sorting.Key {
	k := &sorting.Key{Fields: fields}
	for range fields {
		k.Specs = append(k.Specs, sorting.NewSpec(false, false))
	}
	return k
}

// records returns one {field: v} row per value.
func records(field string, vs ...any) []values.Value {
	out := make([]values.Value, len(vs))
	for i, v := range vs {
		out[i] = values.NewMap(1).Put(field, values.MustFromGo(v))
	}
	return out
}

// fields extracts one field of every row.
func fields(t *testing.T, rows []values.Value, field string) []values.Value {
	out := make([]values.Value, len(rows))
	for i, row := range rows {
		m, ok := row.(*values.Map)
		require.True(t, ok, "row %d is %s", i, row)
		out[i], ok = m.Get(field)
		require.True(t, ok, "row %d has no field %q", i, field)
	}
	return out
}

func ints(vs ...int) []values.Value {
	out := make([]values.Value, len(vs))
	for i, v := range vs {
		out[i] = values.Int(v)
	}
	return out
}

func mustPlan(t *testing.T, root Iter) *Plan {
	p, err := New(root, CurrentVersion)
	require.NoError(t, err)
	return p
}

func newContext(p *Plan, src partition.Source) *ExecContext {
	ec := NewExecContext(context.Background(), p)
	ec.Source = src
	return ec
}

// drain opens the root of ec's plan, collects
// every row it yields and closes it.
func drain(ec *ExecContext) ([]values.Value, error) {
	root := ec.Plan().Root
	if err := root.Open(ec); err != nil {
		return nil, err
	}
	var out []values.Value
	for {
		more, err := root.Next(ec)
		if err != nil {
			root.Close(ec)
			return out, err
		}
		if !more {
			break
		}
		out = append(out, ec.Reg(root.ResultReg()))
	}
	return out, root.Close(ec)
}

func run(t *testing.T, root Iter, src partition.Source) []values.Value {
	out, err := drain(newContext(mustPlan(t, root), src))
	require.NoError(t, err)
	return out
}

// requireValues compares values with values.Equal.
func requireValues(t *testing.T, want, got []values.Value) {
	t.Helper()
	require.Equal(t, len(want), len(got), "got %v", got)
	for i := range want {
		require.True(t, values.Equal(want[i], got[i]), "value %d: want %s, got %s", i, want[i], got[i])
	}
}
