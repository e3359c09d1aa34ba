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

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/values"
)

func TestReceiveMerge(t *testing.T) {
	src := partition.NewMemory().
		AddPages(1, records("x", 1, 3, 5), records("x", 7)).
		AddPages(2, records("x", 2, 4), records("x", 6, 8))
	var b builder
	r := b.recv(asc("x"))
	ec := newContext(mustPlan(t, r), src)
	out, err := drain(ec)
	require.NoError(t, err)
	requireValues(t, ints(1, 2, 3, 4, 5, 6, 7, 8), fields(t, out, "x"))
	require.Equal(t, 4, ec.Stats.Fetches)
	require.Equal(t, int64(8), ec.Stats.Consumed.ReadUnits)
	require.False(t, ec.Suspended())
	require.True(t, r.Exhausted(ec))
}

func TestReceiveMergeRefetchesBeforeSelecting(t *testing.T) {
	// partition 1 still holds 2 when its first
	// page runs dry; 3 must not be yielded first
	src := partition.NewMemory().
		AddPages(1, records("x", 1), records("x", 2)).
		AddPages(2, records("x", 3))
	var b builder
	out := run(t, b.recv(asc("x")), src)
	requireValues(t, ints(1, 2, 3), fields(t, out, "x"))
}

func TestReceiveEmptyPages(t *testing.T) {
	src := partition.NewMemory().
		AddPages(1, nil, records("x", 2), nil).
		AddPages(2, records("x", 1), nil)
	var b builder
	out := run(t, b.recv(asc("x")), src)
	requireValues(t, ints(1, 2), fields(t, out, "x"))
}

func TestReceiveConcat(t *testing.T) {
	src := partition.NewMemory().
		AddPages(5, records("x", 9), records("x", 8)).
		AddPages(3, records("x", 1))
	var b builder
	out := run(t, b.recv(nil), src)
	requireValues(t, ints(9, 8, 1), fields(t, out, "x"))
}

func TestReceiveSinglePartition(t *testing.T) {
	src := partition.NewMemory().
		AddPages(5, records("x", 9)).
		AddPages(3, records("x", 1))
	var b builder
	r := b.recv(nil)
	r.Distribution = partition.SinglePartition
	out := run(t, r, src)
	requireValues(t, ints(9), fields(t, out, "x"))
}

func TestReceiveDedup(t *testing.T) {
	row := func(id, v int) values.Value {
		return values.NewMap(2).Put("id", values.Int(id)).Put("v", values.Int(v))
	}
	src := partition.NewMemory().
		AddPages(1, []values.Value{row(1, 10), row(2, 20)}).
		AddPages(2, []values.Value{row(2, 21), row(3, 30)})
	var b builder
	r := b.recv(nil)
	r.PrimaryKey = []string{"id"}
	out := run(t, r, src)
	requireValues(t, ints(10, 20, 30), fields(t, out, "v"))
}

func TestReceiveSuspendResumeConcat(t *testing.T) {
	src := partition.NewMemory().AddPages(1, records("x", 1, 2), records("x", 3))
	var b builder
	r := b.recv(nil)
	p := mustPlan(t, r)
	require.True(t, p.Resumable())

	ec := newContext(p, src)
	ec.MaxFetches = 1
	out, err := drain(ec)
	require.NoError(t, err)
	requireValues(t, ints(1, 2), fields(t, out, "x"))
	require.True(t, ec.Suspended())
	require.False(t, r.Exhausted(ec))
	pos, err := r.Positions(ec)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.False(t, pos[0].Finished)
	require.NotNil(t, pos[0].Token)
	require.Zero(t, pos[0].Skip)

	ec = newContext(p, src)
	ec.Resume(pos)
	out, err = drain(ec)
	require.NoError(t, err)
	requireValues(t, ints(3), fields(t, out, "x"))
	require.True(t, r.Exhausted(ec))
}

func TestReceiveSuspendResumeMerge(t *testing.T) {
	src := partition.NewMemory().
		AddPages(1, records("x", 1, 3), records("x", 5)).
		AddPages(2, records("x", 2, 4))
	var b builder
	r := b.recv(asc("x"))
	p := mustPlan(t, r)

	ec := newContext(p, src)
	ec.MaxFetches = 2
	out, err := drain(ec)
	require.NoError(t, err)
	require.True(t, ec.Suspended())
	requireValues(t, ints(1, 2, 3), fields(t, out, "x"))
	pos, err := r.Positions(ec)
	require.NoError(t, err)

	ec = newContext(p, src)
	ec.Resume(pos)
	out, err = drain(ec)
	require.NoError(t, err)
	require.False(t, ec.Suspended())
	requireValues(t, ints(4, 5), fields(t, out, "x"))
}

func TestReceiveFetchError(t *testing.T) {
	src := partition.NewMemory().AddPages(1, records("x", 1))
	boom := errors.New("service unavailable")
	src.Fail = func(*partition.Request) error { return boom }
	var b builder
	_, err := drain(newContext(mustPlan(t, b.recv(nil)), src))
	require.ErrorIs(t, err, boom)
	require.False(t, IsInternal(err))
	_, ok := AsQueryError(err)
	require.False(t, ok)
}

func TestReceiveCancelled(t *testing.T) {
	src := partition.NewMemory().AddPages(1, records("x", 1))
	var b builder
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ec := NewExecContext(ctx, mustPlan(t, b.recv(nil)))
	ec.Source = src
	_, err := drain(ec)
	require.ErrorIs(t, err, context.Canceled)
}
