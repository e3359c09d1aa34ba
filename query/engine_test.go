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
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/values"
)

func TestExecute(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	p := prepare(t, e, scanPlan())
	src := partition.NewMemory().
		AddRows(0, 2, rows(1, 2, 3)...).
		AddRows(1, 2, rows(4)...)
	c, err := p.Execute(context.Background(), Options{Source: src})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, collect(t, c, "n"))
	key, err := c.ContinuationKey()
	require.NoError(t, err)
	require.Nil(t, key)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, int64(4), c.Capacity().ReadUnits)
	require.Equal(t, 3, c.Stats().Fetches)

	_, _, err = c.Next()
	require.ErrorIs(t, err, ErrCursorClosed)
}

func TestPrepareCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.PlanCacheSize = 1
	cfg.Registerer = reg
	e := newEngine(t, cfg)

	blob := plan.Encode(scanPlan())
	p1, err := e.Prepare(blob, plan.CurrentVersion)
	require.NoError(t, err)
	p2, err := e.Prepare(blob, plan.CurrentVersion)
	require.NoError(t, err)
	require.Same(t, p1, p2)
	// the version is part of the key
	p3, err := e.Prepare(blob, plan.MinVersion)
	require.NoError(t, err)
	require.NotSame(t, p1, p3)
	require.Equal(t, 1, e.Cache().Len())

	m := e.metrics
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cachedPlans))

	_, err = e.Prepare([]byte{0xff}, plan.CurrentVersion)
	require.True(t, plan.IsInternal(err))
	require.True(t, errors.Is(err, plan.ErrMalformedPlan))
	require.Equal(t, 1, e.Cache().Len())

	e.Cache().Purge()
	require.Zero(t, e.Cache().Len())
	require.Zero(t, testutil.ToFloat64(m.cachedPlans))
}

func TestPrepareWithoutEngine(t *testing.T) {
	p, err := Prepare(plan.Encode(addPlan()), plan.CurrentVersion)
	require.NoError(t, err)
	require.True(t, p.Resumable())
	require.Equal(t, []string{"$x"}, p.Externals())
	require.Contains(t, p.Display(), "EXTERNAL_VAR_REF")
}

func TestExternals(t *testing.T) {
	p := prepare(t, newEngine(t, DefaultConfig()), addPlan())
	src := partition.NewMemory().AddRows(0, 0, rows(1, 2)...)

	c, err := p.Execute(context.Background(), Options{
		Source:    src,
		Externals: map[string]values.Value{"$x": values.Int(10)},
	})
	require.NoError(t, err)
	require.Equal(t, []int{11, 12}, collect(t, c, "v"))
	require.NoError(t, c.Close())

	_, err = p.Execute(context.Background(), Options{
		Source:    src,
		Externals: map[string]values.Value{"$y": values.Int(10)},
	})
	require.Error(t, err)

	var reported []plan.ErrorKind
	c, err = p.Execute(context.Background(), Options{
		Source: src,
		Diagnostics: plan.DiagnosticsFunc(func(kind plan.ErrorKind, _ plan.Location, _ error) {
			reported = append(reported, kind)
		}),
	})
	require.NoError(t, err)
	_, _, err = c.Next()
	qe, ok := plan.AsQueryError(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, plan.UnboundVariable, qe.Kind)
	require.Equal(t, []plan.ErrorKind{plan.UnboundVariable}, reported)
	// the error sticks
	_, _, err2 := c.Next()
	require.Equal(t, err, err2)
	_, err = c.ContinuationKey()
	require.Error(t, err)
	require.NoError(t, c.Close())
}

func TestExecuteWithoutSource(t *testing.T) {
	p := prepare(t, newEngine(t, DefaultConfig()), scanPlan())
	_, err := p.Execute(context.Background(), Options{})
	require.Error(t, err)
}

// resumeAll runs p with the given budget until
// it stops handing out continuation keys.
func resumeAll(t *testing.T, p *Prepared, src partition.Source) (vals []int, executions int) {
	var key []byte
	for {
		executions++
		require.Less(t, executions, 100, "no progress")
		c, err := p.Execute(context.Background(), Options{Source: src, ContinuationKey: key})
		require.NoError(t, err)
		vals = append(vals, collect(t, c, "n")...)
		require.NoError(t, c.Close())
		key, err = c.ContinuationKey()
		require.NoError(t, err)
		if key == nil {
			require.False(t, c.Suspended())
			return vals, executions
		}
	}
}

func TestContinuation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFetches = 1
	p := prepare(t, newEngine(t, cfg), scanPlan())
	src := partition.NewMemory().
		AddRows(0, 2, rows(1, 2, 3)...).
		AddRows(1, 1, rows(4, 5)...)
	vals, n := resumeAll(t, p, src)
	require.Equal(t, []int{1, 2, 3, 4, 5}, vals)
	require.Equal(t, 4, n)
}

func TestContinuationNoRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFetches = 1
	p := prepare(t, newEngine(t, cfg), scanPlan())
	src := partition.NewMemory().AddPages(0, nil, nil, rows(1))

	c, err := p.Execute(context.Background(), Options{Source: src})
	require.NoError(t, err)
	require.Empty(t, collect(t, c, "n"))
	require.True(t, c.Suspended())
	key, err := c.ContinuationKey()
	require.NoError(t, err)
	require.NotNil(t, key)
	require.NoError(t, c.Close())

	vals, _ := resumeAll(t, p, src)
	require.Equal(t, []int{1}, vals)
}

// A key taken between rows resumes right
// after the last row returned.
func TestContinuationMidStream(t *testing.T) {
	p := prepare(t, newEngine(t, DefaultConfig()), scanPlan())
	src := partition.NewMemory().
		AddRows(0, 3, rows(1, 2, 3, 4)...).
		AddRows(1, 3, rows(5)...)
	var got []int
	var key []byte
	for {
		c, err := p.Execute(context.Background(), Options{Source: src, ContinuationKey: key})
		require.NoError(t, err)
		row, ok, err := c.Next()
		require.NoError(t, err)
		if ok {
			v, _ := row.(*values.Map).Get("n")
			got = append(got, int(v.(values.Int)))
		}
		key, err = c.ContinuationKey()
		require.NoError(t, err)
		require.NoError(t, c.Close())
		if key == nil {
			break
		}
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestNotResumable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFetches = 1
	p := prepare(t, newEngine(t, cfg), sortedPlan())
	require.False(t, p.Resumable())
	src := partition.NewMemory().
		AddRows(0, 1, rows(3, 1)...).
		AddRows(1, 1, rows(2)...)

	c, err := p.Execute(context.Background(), Options{Source: src})
	require.NoError(t, err)
	row, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, values.Equal(rows(1)[0], row))
	_, err = c.ContinuationKey()
	require.ErrorIs(t, err, ErrNotResumable)
	// the fetch budget does not apply below a sort
	require.Equal(t, []int{2, 3}, collect(t, c, "n"))
	key, err := c.ContinuationKey()
	require.NoError(t, err)
	require.Nil(t, key)
	require.NoError(t, c.Close())

	_, err = p.Execute(context.Background(), Options{Source: src, ContinuationKey: EncodeContinuation(nil)})
	require.ErrorIs(t, err, ErrNotResumable)
}

func TestConcurrentExecutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Registerer = reg
	e := newEngine(t, cfg)
	p := prepare(t, e, addPlan())
	src := partition.NewMemory().
		AddRows(0, 2, rows(1, 2, 3)...).
		AddRows(1, 2, rows(4, 5)...)

	const parallel = 8
	var eg errgroup.Group
	for i := 0; i < parallel; i++ {
		i := i
		eg.Go(func() error {
			c, err := p.Execute(context.Background(), Options{
				Source:    src,
				Externals: map[string]values.Value{"$x": values.Int(100 * i)},
			})
			if err != nil {
				return err
			}
			defer c.Close()
			for want := 1; ; want++ {
				row, ok, err := c.Next()
				if err != nil {
					return err
				}
				if !ok {
					if want != 6 {
						return fmt.Errorf("execution %d: %d rows", i, want-1)
					}
					return nil
				}
				v, _ := row.(*values.Map).Get("v")
				if !values.Equal(v, values.Int(want+100*i)) {
					return fmt.Errorf("execution %d: row %d is %s", i, want, v)
				}
			}
		})
	}
	require.NoError(t, eg.Wait())
	m := e.metrics
	require.Equal(t, float64(parallel), testutil.ToFloat64(m.executions.WithLabelValues(outcomeCompleted)))
	require.Equal(t, float64(parallel*5), testutil.ToFloat64(m.rows))
	require.Equal(t, float64(parallel*3), testutil.ToFloat64(m.pages))
}

func TestCancelledExecution(t *testing.T) {
	p := prepare(t, newEngine(t, DefaultConfig()), scanPlan())
	ctx, cancel := context.WithCancel(context.Background())
	c, err := p.Execute(ctx, Options{Source: partition.NewMemory().AddRows(0, 0, rows(1)...)})
	require.NoError(t, err)
	cancel()
	_, _, err = c.Next()
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, c.Close())
}

func TestTraceDecode(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceDecode = true
	cfg.Logger = log.NewLogfmtLogger(&buf)
	prepare(t, newEngine(t, cfg), scanPlan())
	require.Contains(t, buf.String(), "kind=RECV")
	require.Contains(t, buf.String(), "component=decoder")
	require.Contains(t, buf.String(), "plan prepared")
}
