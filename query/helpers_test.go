// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
)

// slots hands out registers and state slots.
type slots struct{ reg, state int }

func (s *slots) header() plan.Header {
	h := s.alias(s.reg)
	s.reg++
	return h
}

func (s *slots) alias(reg int) plan.Header {
	h := plan.Header{Result: reg, State: s.state}
	s.state++
	return h
}

// scanPlan is SELECT * FROM RECV r.
func scanPlan() plan.Iter {
	var s slots
	r := &plan.Receive{Header: s.header(), Distribution: partition.AllPartitions}
	return &plan.SFW{
		Header:     s.header(),
		From:       []plan.Iter{r},
		FromVars:   []string{"r"},
		NumGroupBy: -1,
		SelectStar: true,
	}
}

// addPlan is SELECT r.n + $x AS v FROM RECV r.
func addPlan() plan.Iter {
	var s slots
	r := &plan.Receive{Header: s.header(), Distribution: partition.AllPartitions}
	sfw := &plan.SFW{
		Header:      s.header(),
		From:        []plan.Iter{r},
		FromVars:    []string{"r"},
		ColumnNames: []string{"v"},
		NumGroupBy:  -1,
	}
	ref := &plan.VarRef{Header: s.alias(r.Result), Name: "r"}
	n := &plan.FieldStep{Header: s.header(), Input: ref, Field: "n"}
	x := &plan.ExternalVarRef{Header: s.header(), Name: "$x"}
	sfw.Columns = []plan.Iter{&plan.Arith{Header: s.header(), Code: plan.OpAddSub, Ops: "++", Args: []plan.Iter{n, x}}}
	return sfw
}

// sortedPlan is SORT on n over RECV.
func sortedPlan() plan.Iter {
	var s slots
	r := &plan.Receive{Header: s.header(), Distribution: partition.AllPartitions}
	return &plan.Sort{
		Header: s.header(),
		Input:  r,
		Key:    sorting.Key{Fields: []string{"n"}, Specs: []sorting.Spec{sorting.NewSpec(false, false)}},
	}
}

func rows(vs ...int) []values.Value {
	out := make([]values.Value, len(vs))
	for i, v := range vs {
		out[i] = values.NewMap(1).Put("n", values.Int(v))
	}
	return out
}

func newEngine(t *testing.T, cfg Config) *Engine {
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func prepare(t *testing.T, e *Engine, root plan.Iter) *Prepared {
	p, err := e.Prepare(plan.Encode(root), plan.CurrentVersion)
	require.NoError(t, err)
	return p
}

// collect drains c and returns field f of every row.
func collect(t *testing.T, c *Cursor, f string) []int {
	var out []int
	for {
		row, ok, err := c.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		m, isMap := row.(*values.Map)
		require.True(t, isMap, "row %s", row)
		v, ok := m.Get(f)
		require.True(t, ok)
		out = append(out, int(v.(values.Int)))
	}
}
