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
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/values"
)

// addExternal builds SELECT r.n + $x AS v FROM RECV r.
func addExternal() *SFW {
	var b builder
	r := b.recv(nil)
	s := &SFW{
		Header:      b.header(),
		From:        []Iter{r},
		FromVars:    []string{"r"},
		ColumnNames: []string{"v"},
		NumGroupBy:  -1,
	}
	ext := &ExternalVarRef{Header: b.header(), Name: "$x", ID: 0}
	s.Columns = []Iter{b.arith(OpAddSub, "++", b.field(b.varRef("r", r), "n"), ext)}
	return s
}

// Execution contexts share the plan
// but nothing else.
func TestConcurrentContexts(t *testing.T) {
	p := mustPlan(t, addExternal())
	require.True(t, p.Resumable())
	src := partition.NewMemory().
		AddRows(0, 2, records("n", 1, 2, 3)...).
		AddRows(1, 1, records("n", 10, 20)...)

	const parallel = 16
	results := make([][]values.Value, parallel)
	var eg errgroup.Group
	for i := 0; i < parallel; i++ {
		i := i
		eg.Go(func() error {
			ec := newContext(p, src)
			if err := ec.SetExternal("$x", values.Int(i)); err != nil {
				return err
			}
			rows, err := drain(ec)
			if err != nil {
				return fmt.Errorf("context %d: %w", i, err)
			}
			results[i] = rows
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for i, rows := range results {
		requireValues(t, ints(1+i, 2+i, 3+i, 10+i, 20+i), fields(t, rows, "v"))
	}
}

func TestUnboundExternal(t *testing.T) {
	p := mustPlan(t, addExternal())
	ec := newContext(p, partition.NewMemory().AddRows(0, 0, records("n", 1)...))
	_, err := drain(ec)
	qe, ok := AsQueryError(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, UnboundVariable, qe.Kind)
	require.Error(t, ec.SetExternal("$nope", values.Int(1)))
}

func TestCloseIdempotent(t *testing.T) {
	p := mustPlan(t, addExternal())
	ec := newContext(p, partition.NewMemory())
	root := p.Root

	// closing before open is harmless
	require.NoError(t, root.Close(ec))
	require.False(t, root.IsDone(ec))

	require.NoError(t, ec.SetExternal("$x", values.Int(0)))
	require.NoError(t, root.Open(ec))
	require.NoError(t, root.Close(ec))
	require.NoError(t, root.Close(ec))
	require.True(t, root.IsDone(ec))
	Walk(root, func(it Iter) bool {
		require.True(t, it.IsDone(ec), "%s not closed", it.Kind())
		return true
	})
	require.Zero(t, ec.MemoryUsed())
}

func TestNextAfterDone(t *testing.T) {
	p := mustPlan(t, addExternal())
	ec := newContext(p, partition.NewMemory().AddRows(0, 0, records("n", 7)...))
	require.NoError(t, ec.SetExternal("$x", values.Int(1)))
	root := p.Root
	require.NoError(t, root.Open(ec))
	more, err := root.Next(ec)
	require.NoError(t, err)
	require.True(t, more)
	for i := 0; i < 3; i++ {
		more, err = root.Next(ec)
		require.NoError(t, err)
		require.False(t, more)
		require.True(t, root.IsDone(ec))
	}
	require.NoError(t, root.Close(ec))
}

func TestResetReplays(t *testing.T) {
	p := mustPlan(t, addExternal())
	src := partition.NewMemory().AddRows(0, 1, records("n", 1, 2)...)
	ec := newContext(p, src)
	require.NoError(t, ec.SetExternal("$x", values.Int(0)))
	root := p.Root
	require.NoError(t, root.Open(ec))
	collect := func() []values.Value {
		var out []values.Value
		for {
			more, err := root.Next(ec)
			require.NoError(t, err)
			if !more {
				return out
			}
			out = append(out, ec.Reg(root.ResultReg()))
		}
	}
	first := collect()
	require.NoError(t, root.Reset(ec))
	requireValues(t, first, collect())
	require.NoError(t, root.Close(ec))
	require.Equal(t, 4, src.Fetches(0))
}

func TestCancelledContext(t *testing.T) {
	p := mustPlan(t, addExternal())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ec := NewExecContext(ctx, p)
	ec.Source = partition.NewMemory().AddRows(0, 0, records("n", 1)...)
	require.NoError(t, ec.SetExternal("$x", values.Int(0)))
	_, err := drain(ec)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValueUnset(t *testing.T) {
	var b builder
	c := b.constant(3)
	ec := newContext(mustPlan(t, c), nil)
	require.NoError(t, c.Open(ec))
	_, err := ec.Value(c)
	require.True(t, errors.HasAssertionFailure(err), "%v", err)
	require.True(t, IsInternal(err))

	more, err := c.Next(ec)
	require.NoError(t, err)
	require.True(t, more)
	v, err := ec.Value(c)
	require.NoError(t, err)
	require.True(t, values.Equal(values.Int(3), v), "%s", v)
	require.NoError(t, c.Close(ec))
}
