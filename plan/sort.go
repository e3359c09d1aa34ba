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
	"golang.org/x/exp/slices"

	"github.com/nosqlx/planexec/heap"
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// Sort materializes all of its input MAP rows
// and yields them ordered by Key. The order is
// stable: rows with equal keys keep their
// input order.
type Sort struct {
	Header
	Input Iter
	Key   sorting.Key
}

// Sort2 produces the same order as Sort, but
// sorts its input in runs of
// ExecContext.SortRunSize rows that are merged
// while rows are yielded.
type Sort2 struct {
	Sort
	// CountMemory counts buffered rows
	// against ExecContext.MaxMemory.
	CountMemory bool
}

// rowSorter is the buffering strategy of a sort.
type rowSorter interface {
	add(row values.Value)
	// sort is called once after the last add.
	sort() error
	next() (values.Value, bool, error)
	release()
}

type sortState struct {
	iterState
	sorter rowSorter
	sorted bool
	mem    int64
}

func (s *Sort) Kind() Kind       { return KindSort }
func (s *Sort) Children() []Iter { return []Iter{s.Input} }
func (s *Sort) input() Iter      { return s.Input }
func (s *Sort) validate() error  { return validateSortKey(&s.Key) }

func validateSortKey(k *sorting.Key) error {
	if k.Empty() {
		return errors.New("no sort fields")
	}
	return k.Validate()
}

func (s *Sort) Open(ec *ExecContext) error {
	return sortOpen(ec, s, s.Input, &fullSorter{key: &s.Key})
}

func (s *Sort) Next(ec *ExecContext) (bool, error) {
	return sortNext(ec, s, s.Input, false)
}

func (s *Sort) Reset(ec *ExecContext) error {
	return sortReset(ec, s, s.Input, &fullSorter{key: &s.Key})
}

func (s *Sort) Close(ec *ExecContext) error { return sortClose(ec, s, s.Input) }

func (s *Sort) describe(dst *strings.Builder, indent int) {
	describeKey(dst, indent, s.Key.Fields, s.Key.Specs)
	describeIter(dst, indent, "input iterator", s.Input)
}

func (s *Sort) encode(w *wire.Writer) {
	encodeIter(w, s.Input)
	encodeKey(w, &s.Key)
}

func (s *Sort2) Kind() Kind { return KindSort2 }

func (s *Sort2) newSorter(ec *ExecContext) rowSorter {
	return &runSorter{key: &s.Key, runSize: ec.sortRunSize()}
}

func (s *Sort2) Open(ec *ExecContext) error {
	return sortOpen(ec, s, s.Input, s.newSorter(ec))
}

func (s *Sort2) Next(ec *ExecContext) (bool, error) {
	return sortNext(ec, s, s.Input, s.CountMemory)
}

func (s *Sort2) Reset(ec *ExecContext) error {
	return sortReset(ec, s, s.Input, s.newSorter(ec))
}

func (s *Sort2) Close(ec *ExecContext) error { return sortClose(ec, s, s.Input) }

func (s *Sort2) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "count memory : %t\n", s.CountMemory)
	s.Sort.describe(dst, indent)
}

func (s *Sort2) encode(w *wire.Writer) {
	s.Sort.encode(w)
	w.WriteBool(s.CountMemory)
}

func sortOpen(ec *ExecContext, it, input Iter, sorter rowSorter) error {
	ec.initState(it, &sortState{sorter: sorter})
	return input.Open(ec)
}

func sortNext(ec *ExecContext, it, input Iter, countMem bool) (bool, error) {
	st, err := stateOf[*sortState](ec, it)
	if err != nil || st.isDone() {
		return false, err
	}
	if !st.sorted {
		for {
			more, err := input.Next(ec)
			if err != nil {
				return false, err
			}
			if !more {
				break
			}
			row, err := ec.Value(input)
			if err != nil {
				return false, err
			}
			if _, ok := row.(*values.Map); !ok {
				return false, ec.userError(it, TypeMismatch, errors.Wrapf(sorting.ErrNotARecord, "got %s", row.Type()))
			}
			if countMem {
				n := values.SizeOf(row)
				st.mem += n
				if err := ec.grow(it, n); err != nil {
					return false, err
				}
			}
			st.sorter.add(row)
		}
		if err := st.sorter.sort(); err != nil {
			return false, ec.evalError(it, err)
		}
		st.sorted = true
	}
	row, ok, err := st.sorter.next()
	if err != nil {
		return false, ec.evalError(it, err)
	}
	if !ok {
		sortRelease(ec, st)
		st.setDone()
		return false, nil
	}
	ec.setReg(it.ResultReg(), row)
	st.running()
	return true, nil
}

func sortRelease(ec *ExecContext, st *sortState) {
	st.sorter.release()
	ec.shrink(st.mem)
	st.mem = 0
}

func sortReset(ec *ExecContext, it, input Iter, sorter rowSorter) error {
	st, err := stateOf[*sortState](ec, it)
	if err != nil {
		return err
	}
	sortRelease(ec, st)
	st.sorter, st.sorted = sorter, false
	if err := input.Reset(ec); err != nil {
		return err
	}
	return ec.resetState(it)
}

func sortClose(ec *ExecContext, it, input Iter) error {
	if ec.closeState(it) {
		sortRelease(ec, ec.states[it.StatePos()].(*sortState))
	}
	return input.Close(ec)
}

// sortRows sorts rows stably by key and returns
// the first comparison error, if any.
func sortRows(key *sorting.Key, rows []values.Value) error {
	var err error
	slices.SortStableFunc(rows, func(a, b values.Value) int {
		c, e := key.Compare(a, b)
		if e != nil && err == nil {
			err = e
		}
		return c
	})
	return err
}

// fullSorter sorts all rows at once.
type fullSorter struct {
	key  *sorting.Key
	rows []values.Value
	pos  int
}

func (f *fullSorter) add(row values.Value) { f.rows = append(f.rows, row) }
func (f *fullSorter) sort() error          { return sortRows(f.key, f.rows) }
func (f *fullSorter) release()             { f.rows, f.pos = nil, 0 }

func (f *fullSorter) next() (values.Value, bool, error) {
	if f.pos >= len(f.rows) {
		return nil, false, nil
	}
	row := f.rows[f.pos]
	f.rows[f.pos] = nil
	f.pos++
	return row, true, nil
}

// runSorter sorts fixed-size runs as they fill
// up and merges the runs through a heap.
type runSorter struct {
	key     *sorting.Key
	runSize int
	cur     []values.Value
	runs    [][]values.Value
	merge   *heap.Heap[runHead]
	err     error
}

type runHead struct {
	run int
	row values.Value
}

func (r *runSorter) add(row values.Value) {
	r.cur = append(r.cur, row)
	if len(r.cur) >= r.runSize {
		r.flush()
	}
}

func (r *runSorter) flush() {
	if len(r.cur) == 0 {
		return
	}
	if err := sortRows(r.key, r.cur); err != nil && r.err == nil {
		r.err = err
	}
	r.runs = append(r.runs, r.cur)
	r.cur = nil
}

func (r *runSorter) sort() error {
	r.flush()
	if r.err != nil {
		return r.err
	}
	r.merge = heap.New(func(x, y runHead) (int, error) {
		return r.key.Compare(x.row, y.row)
	}, func(x, y runHead) bool {
		// earlier runs hold earlier input rows
		return x.run < y.run
	})
	for i := range r.runs {
		r.advance(i)
	}
	return r.merge.Err()
}

// advance pushes the next row of run i.
func (r *runSorter) advance(i int) {
	if run := r.runs[i]; len(run) > 0 {
		r.merge.Push(runHead{run: i, row: run[0]})
		r.runs[i] = run[1:]
	}
}

func (r *runSorter) next() (values.Value, bool, error) {
	if r.merge == nil || r.merge.Len() == 0 {
		return nil, false, nil
	}
	h := r.merge.Pop()
	r.advance(h.run)
	if err := r.merge.Err(); err != nil {
		return nil, false, err
	}
	return h.row, true, nil
}

func (r *runSorter) release() {
	r.cur, r.runs = nil, nil
	if r.merge != nil {
		r.merge.Reset()
	}
}
