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

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/query"
	"github.com/nosqlx/planexec/values"
)

const testFixture = `
table: users
primary_key: [id]
units_per_row: 2
externals:
  $bonus: 10
partitions:
  - id: 0
    pages:
      - [{id: 1, num: 5}, {id: 2, num: 6}]
      - [{id: 3, num: 7}]
  - id: 4
    pages:
      - [{id: 9, num: 1.5}]
`

func TestParseFixture(t *testing.T) {
	fx, err := parseFixture([]byte(testFixture))
	require.NoError(t, err)
	require.Equal(t, partition.Table{Name: "users", PrimaryKey: []string{"id"}}, fx.table())

	src, err := fx.source()
	require.NoError(t, err)
	ids, err := src.Partitions(context.Background(), fx.table(), partition.AllPartitions)
	require.NoError(t, err)
	require.Equal(t, []partition.ID{0, 4}, ids)
	page, err := src.Fetch(context.Background(), &partition.Request{Partition: 0})
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.Equal(t, int64(4), page.Consumed.ReadUnits)
	n, ok := page.Rows[1].(*values.Map).Get("num")
	require.True(t, ok)
	require.True(t, values.Equal(values.Int(6), n))

	ext, err := fx.externals()
	require.NoError(t, err)
	require.True(t, values.Equal(values.Int(10), ext["$bonus"]))

	_, err = parseFixture([]byte("tables: nope\n"))
	require.Error(t, err)
	fx, err = parseFixture([]byte("partitions: [{id: 1}, {id: 1}]\n"))
	require.NoError(t, err)
	_, err = fx.source()
	require.Error(t, err)
}

// bonusPlan is SELECT r.num + $bonus AS total FROM RECV r.
func bonusPlan() plan.Iter {
	r := &plan.Receive{Header: plan.Header{Result: 0, State: 0}, Distribution: partition.AllPartitions}
	ref := &plan.VarRef{Header: plan.Header{Result: 0, State: 1}, Name: "r"}
	n := &plan.FieldStep{Header: plan.Header{Result: 1, State: 2}, Input: ref, Field: "num"}
	x := &plan.ExternalVarRef{Header: plan.Header{Result: 2, State: 3}, Name: "$bonus"}
	return &plan.SFW{
		Header:      plan.Header{Result: 4, State: 5},
		From:        []plan.Iter{r},
		FromVars:    []string{"r"},
		Columns:     []plan.Iter{&plan.Arith{Header: plan.Header{Result: 3, State: 4}, Code: plan.OpAddSub, Ops: "++", Args: []plan.Iter{n, x}}},
		ColumnNames: []string{"total"},
		NumGroupBy:  -1,
	}
}

func TestRunFixture(t *testing.T) {
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o644))

	cfg := query.DefaultConfig()
	cfg.MaxFetches = 1
	e, err := query.NewEngine(cfg)
	require.NoError(t, err)
	p, err := e.Prepare(plan.Encode(bonusPlan()), plan.CurrentVersion)
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, runFixture(context.Background(), &b, p, path))
	out := b.String()
	require.Contains(t, out, "more results available")
	require.Contains(t, out, "2 rows, 1 executions")

	dashresume = true
	defer func() { dashresume = false }()
	b.Reset()
	require.NoError(t, runFixture(context.Background(), &b, p, path))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 5, b.String())
	require.Contains(t, lines[3], "11.5")
	require.Equal(t, "4 rows, 3 executions, 3 pages, 8 read units, 8 read KB", lines[4])
}

func TestFixtureBooleanKeys(t *testing.T) {
	fx, err := parseFixture([]byte("partitions:\n  - id: 1\n    pages:\n      - [{n: 1, \"y\": 2}]\n"))
	require.NoError(t, err)
	src, err := fx.source()
	require.NoError(t, err)
	page, err := src.Fetch(context.Background(), &partition.Request{Partition: 1})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	row := page.Rows[0].(*values.Map)
	_, ok := row.Get("n")
	require.False(t, ok)
	_, ok = row.Get("false")
	require.True(t, ok)
	y, ok := row.Get("y")
	require.True(t, ok)
	require.True(t, values.Equal(values.Int(2), y))
}
