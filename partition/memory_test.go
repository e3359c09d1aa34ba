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

package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nosqlx/planexec/values"
)

func ints(vs ...int) []values.Value {
	out := make([]values.Value, len(vs))
	for i, v := range vs {
		out[i] = values.Int(v)
	}
	return out
}

func TestMemoryPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory().AddRows(7, 2, ints(1, 2, 3, 4, 5)...)
	ids, err := m.Partitions(ctx, Table{}, AllPartitions)
	require.NoError(t, err)
	require.Equal(t, []ID{7}, ids)

	var got []values.Value
	var total Capacity
	req := &Request{Partition: 7}
	for {
		p, err := m.Fetch(ctx, req)
		require.NoError(t, err)
		got = append(got, p.Rows...)
		total.Add(p.Consumed)
		if p.Continuation == nil {
			break
		}
		req.Continuation = p.Continuation
	}
	require.Equal(t, ints(1, 2, 3, 4, 5), got)
	require.Equal(t, 3, m.Fetches(7))
	require.Equal(t, int64(5), total.ReadUnits)
}

func TestMemorySinglePartition(t *testing.T) {
	m := NewMemory().AddPages(1, ints(1)).AddPages(2, ints(2))
	ids, err := m.Partitions(context.Background(), Table{}, SinglePartition)
	require.NoError(t, err)
	require.Equal(t, []ID{1}, ids)
}

func TestMemoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().AddPages(1, ints(1)).Fetch(ctx, &Request{Partition: 1})
	require.ErrorIs(t, err, context.Canceled)
}
