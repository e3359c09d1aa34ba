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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/values"
)

// sfwOver returns SELECT <cols> FROM RECV AS $r
// where every column reads one field of $r.
func sfwOver(b *builder, names ...string) (*SFW, *Receive) {
	r := b.recv(nil)
	s := &SFW{Header: b.header(), From: []Iter{r}, FromVars: []string{"$r"}, NumGroupBy: -1}
	for _, name := range names {
		s.Columns = append(s.Columns, b.field(b.varRef("$r", r), name))
		s.ColumnNames = append(s.ColumnNames, name)
	}
	return s, r
}

func TestSFWProject(t *testing.T) {
	src := partition.NewMemory().AddPages(1, []values.Value{kv(1, "a"), values.NewMap(1).Put("k", values.Int(2))})
	var b builder
	s, _ := sfwOver(&b, "v", "k")
	out := run(t, s, src)
	require.Len(t, out, 2)
	require.Equal(t, []string{"v", "k"}, out[0].(*values.Map).Keys())
	requireValues(t, []values.Value{values.String("a"), values.Null}, fields(t, out, "v"))
}

func TestSFWWhere(t *testing.T) {
	row := func(k int, ok any) values.Value {
		return values.NewMap(2).Put("k", values.Int(k)).Put("ok", values.MustFromGo(ok))
	}
	src := partition.NewMemory().AddPages(1, []values.Value{
		row(1, true), row(2, false), row(3, nil), values.NewMap(1).Put("k", values.Int(4)), row(5, true),
	})
	var b builder
	s, r := sfwOver(&b, "k")
	s.Where = b.field(b.varRef("$r", r), "ok")
	out := run(t, s, src)
	requireValues(t, ints(1, 5), fields(t, out, "k"))

	src = partition.NewMemory().AddPages(1, []values.Value{row(1, "yes")})
	_, err := drain(newContext(mustPlan(t, s), src))
	qe, ok := AsQueryError(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, TypeMismatch, qe.Kind)
	require.Equal(t, s.Where.Location(), qe.Location)
}

func TestSFWSelectStar(t *testing.T) {
	src := partition.NewMemory().AddPages(1, records("x", 1, 2))
	var b builder
	s, _ := sfwOver(&b)
	s.SelectStar = true
	out := run(t, s, src)
	requireValues(t, ints(1, 2), fields(t, out, "x"))
}

func TestSFWNestedLoop(t *testing.T) {
	var b builder
	outer := b.field(b.constant([]any{map[string]any{"a": 1}, map[string]any{"a": 2}}), "a")
	inner := b.field(b.constant([]any{map[string]any{"b": "x"}, map[string]any{"b": "y"}}), "b")
	s := &SFW{
		Header:     b.header(),
		From:       []Iter{outer, inner},
		FromVars:   []string{"$x", "$y"},
		NumGroupBy: -1,
		SelectStar: true,
	}
	out := run(t, s, nil)
	requireValues(t, ints(1, 1, 2, 2), fields(t, out, "$x"))
	requireValues(t, []values.Value{values.String("x"), values.String("y"), values.String("x"), values.String("y")}, fields(t, out, "$y"))
}

func TestSFWGroupBy(t *testing.T) {
	src := partition.NewMemory().AddRows(1, 2, kv(1, 10), kv(1, 5), kv(2, 7))
	var b builder
	r := b.recv(nil)
	s := &SFW{
		Header:      b.header(),
		From:        []Iter{r},
		FromVars:    []string{"$r"},
		NumGroupBy:  1,
		ColumnNames: []string{"k", "sum"},
		Columns: []Iter{
			b.field(b.varRef("$r", r), "k"),
			&FuncSum{Header: b.header(), Input: b.field(b.varRef("$r", r), "v")},
		},
	}
	p := mustPlan(t, s)
	require.False(t, p.Resumable())
	out := run(t, s, src)
	requireValues(t, ints(1, 2), fields(t, out, "k"))
	requireValues(t, ints(15, 7), fields(t, out, "sum"))
}

func TestSFWGroupAllRows(t *testing.T) {
	build := func() *SFW {
		var b builder
		r := b.recv(nil)
		return &SFW{
			Header:      b.header(),
			From:        []Iter{r},
			FromVars:    []string{"$r"},
			NumGroupBy:  0,
			ColumnNames: []string{"sum", "max"},
			Columns: []Iter{
				&FuncSum{Header: b.header(), Input: b.field(b.varRef("$r", r), "v")},
				&FuncMinMax{Header: b.header(), Code: FnMax, Input: b.field(b.varRef("$r", r), "v")},
			},
		}
	}
	out := run(t, build(), partition.NewMemory().AddPages(1, []values.Value{kv(1, 4), kv(2, 9), kv(3, 1)}))
	requireValues(t, ints(14), fields(t, out, "sum"))
	requireValues(t, ints(9), fields(t, out, "max"))

	// no input still produces one row
	out = run(t, build(), partition.NewMemory().AddPages(1, nil))
	requireValues(t, []values.Value{values.Null}, fields(t, out, "sum"))
}

func TestSFWOffsetLimit(t *testing.T) {
	src := partition.NewMemory().AddRows(1, 2, records("x", 1, 2, 3, 4, 5, 6)...)
	var b builder
	s, _ := sfwOver(&b, "x")
	s.Offset = b.constant(1)
	s.Limit = &ExternalVarRef{Header: b.header(), Name: "$lim", ID: 0}
	p := mustPlan(t, s)
	require.False(t, p.Resumable())
	ec := newContext(p, src)
	require.NoError(t, ec.SetExternal("$lim", values.Long(3)))
	out, err := drain(ec)
	require.NoError(t, err)
	requireValues(t, ints(2, 3, 4), fields(t, out, "x"))

	ec = newContext(p, src)
	require.NoError(t, ec.SetExternal("$lim", values.Int(-1)))
	_, err = drain(ec)
	qe, ok := AsQueryError(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, InvalidArgument, qe.Kind)
}

func TestSFWReset(t *testing.T) {
	src := partition.NewMemory().AddPages(1, []values.Value{kv(1, 1), kv(1, 2), kv(2, 3)})
	var b builder
	r := b.recv(nil)
	s := &SFW{
		Header:      b.header(),
		From:        []Iter{r},
		FromVars:    []string{"$r"},
		NumGroupBy:  1,
		ColumnNames: []string{"k", "all"},
		Columns: []Iter{
			b.field(b.varRef("$r", r), "k"),
			&FuncCollect{Header: b.header(), Input: b.field(b.varRef("$r", r), "v")},
		},
	}
	ec := newContext(mustPlan(t, s), src)
	require.NoError(t, s.Open(ec))
	more, err := s.Next(ec)
	require.NoError(t, err)
	require.True(t, more)
	// restart halfway through the second group
	require.NoError(t, s.Reset(ec))
	var out []values.Value
	for {
		more, err := s.Next(ec)
		require.NoError(t, err)
		if !more {
			break
		}
		out = append(out, ec.Reg(s.Result))
	}
	require.NoError(t, s.Close(ec))
	require.Len(t, out, 2)
	all := fields(t, out, "all")
	require.True(t, values.Equal(values.Array(ints(1, 2)), all[0]), "%s", all[0])
	require.True(t, values.Equal(values.Array(ints(3)), all[1]), "%s", all[1])
}

func TestSFWGroupColumnsWithoutRegisters(t *testing.T) {
	src := partition.NewMemory().AddRows(1, 2, kv(1, 10), kv(1, 5), kv(2, 7))
	var b builder
	r := b.recv(nil)
	s := &SFW{
		Header:      b.header(),
		From:        []Iter{r},
		FromVars:    []string{"$r"},
		NumGroupBy:  1,
		ColumnNames: []string{"k", "sum", "n"},
	}
	s.Columns = []Iter{
		b.field(b.varRef("$r", r), "k"),
		&FuncSum{Header: b.alias(-1), Input: b.field(b.varRef("$r", r), "v")},
		&FuncMinMax{Header: b.alias(-1), Code: FnMax, Input: b.field(b.varRef("$r", r), "v")},
	}
	out := run(t, s, src)
	requireValues(t, ints(1, 2), fields(t, out, "k"))
	requireValues(t, ints(15, 7), fields(t, out, "sum"))
	requireValues(t, ints(10, 7), fields(t, out, "n"))
}

func TestSFWPendingGroup(t *testing.T) {
	src := partition.NewMemory().AddPages(1, []values.Value{kv(1, 1), kv(1, 2), kv(2, 4), kv(2, 8)})
	var b builder
	r := b.recv(nil)
	sum := &FuncSum{Header: b.header(), Input: b.field(b.varRef("$r", r), "v")}
	s := &SFW{
		Header:      b.header(),
		From:        []Iter{r},
		FromVars:    []string{"$r"},
		NumGroupBy:  1,
		ColumnNames: []string{"k", "sum"},
		Columns:     []Iter{b.field(b.varRef("$r", r), "k"), sum},
	}
	ec := newContext(mustPlan(t, s), src)
	require.NoError(t, s.Open(ec))
	_, ok, err := s.PendingGroup(ec)
	require.NoError(t, err)
	require.False(t, ok)

	more, err := s.Next(ec)
	require.NoError(t, err)
	require.True(t, more)
	requireValues(t, ints(3), fields(t, []values.Value{ec.Reg(s.Result)}, "sum"))

	// the first row of the second group was
	// consumed to find the end of the first
	v, err := AggrValue(ec, sum, false)
	require.NoError(t, err)
	require.True(t, values.Equal(values.Int(4), v), "%s", v)
	g, ok, err := s.PendingGroup(ec)
	require.NoError(t, err)
	require.True(t, ok)
	requireValues(t, ints(2), fields(t, []values.Value{g}, "k"))
	requireValues(t, ints(4), fields(t, []values.Value{g}, "sum"))

	more, err = s.Next(ec)
	require.NoError(t, err)
	require.True(t, more)
	requireValues(t, ints(12), fields(t, []values.Value{ec.Reg(s.Result)}, "sum"))
	_, ok, err = s.PendingGroup(ec)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Close(ec))
}
