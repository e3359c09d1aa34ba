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
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"

	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// Memory is a Source serving pre-paginated
// rows from memory. It is safe for concurrent use.
type Memory struct {
	// ReadUnitsPerRow is the read capacity
	// charged for each returned row;
	// every fetch costs at least one unit.
	ReadUnitsPerRow int64
	// Fail, if set, is consulted before each
	// fetch and its error returned.
	Fail func(req *Request) error

	mu      sync.Mutex
	order   []ID
	pages   map[ID][][]values.Value
	fetches map[ID]int
}

// NewMemory returns an empty Memory source.
func NewMemory() *Memory {
	return &Memory{
		ReadUnitsPerRow: 1,
		pages:           make(map[ID][][]values.Value),
		fetches:         make(map[ID]int),
	}
}

// AddPages appends pages to partition id.
// Empty pages are preserved; they model a
// server that stopped early but has more rows.
func (m *Memory) AddPages(id ID, pages ...[]values.Value) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[id]; !ok {
		m.order = append(m.order, id)
	}
	m.pages[id] = append(m.pages[id], pages...)
	return m
}

// AddRows appends rows to partition id,
// split into pages of at most size rows.
func (m *Memory) AddRows(id ID, size int, rows ...values.Value) *Memory {
	if size <= 0 {
		size = len(rows)
	}
	var pages [][]values.Value
	for len(rows) > size {
		pages = append(pages, rows[:size])
		rows = rows[size:]
	}
	pages = append(pages, rows)
	return m.AddPages(id, pages...)
}

// Fetches returns the number of pages
// fetched from partition id so far.
func (m *Memory) Fetches(id ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[id]
}

// Partitions implements Source.Partitions.
func (m *Memory) Partitions(ctx context.Context, t Table, d Distribution) ([]ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil, nil
	}
	if d == SinglePartition {
		return m.order[:1:1], nil
	}
	return slices.Clone(m.order), nil
}

// Fetch implements Source.Fetch.
func (m *Memory) Fetch(ctx context.Context, req *Request) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Fail != nil {
		if err := m.Fail(req); err != nil {
			return nil, err
		}
	}
	idx := 0
	if req.Continuation != nil {
		i, err := wire.NewReader(req.Continuation).ReadPackedInt()
		if err != nil {
			return nil, errors.Wrapf(err, "partition %d: bad continuation", req.Partition)
		}
		idx = int(i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pages, ok := m.pages[req.Partition]
	if !ok {
		return nil, errors.Newf("unknown partition %d", req.Partition)
	}
	if idx < 0 || idx >= len(pages) {
		return nil, errors.Newf("partition %d: page %d out of range", req.Partition, idx)
	}
	m.fetches[req.Partition]++
	p := &Page{
		Rows: slices.Clone(pages[idx]),
	}
	units := int64(len(p.Rows)) * m.ReadUnitsPerRow
	if units < 1 {
		units = 1
	}
	p.Consumed = Capacity{ReadUnits: units, ReadKB: units}
	if idx+1 < len(pages) {
		var w wire.Writer
		w.WritePackedInt(int32(idx + 1))
		p.Continuation = w.Bytes()
	}
	return p, nil
}
