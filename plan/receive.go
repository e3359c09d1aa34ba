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
	"github.com/go-kit/log/level"

	"github.com/nosqlx/planexec/heap"
	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// Receive yields the rows of every partition a
// query reads, fetching them page by page from
// ExecContext.Source. When Key is set each
// partition's rows arrive ordered by it and the
// partitions are merged; otherwise partitions are
// concatenated in the order the source lists them.
//
// A partition whose buffered page runs dry is
// refetched before the merge selects another row,
// so no row is yielded ahead of unfetched rows
// that sort before it.
type Receive struct {
	Header
	Distribution partition.Distribution
	Key          sorting.Key
	// PrimaryKey, if non-nil, names the
	// fields by which duplicate rows are
	// dropped.
	PrimaryKey []string
}

// stream is the read position within one partition.
type stream struct {
	id    partition.ID
	index int
	// token fetched the buffered page;
	// next fetches the page after it.
	token    []byte
	next     []byte
	rows     []values.Value
	pos      int
	skip     int
	fetched  bool
	finished bool
}

func (s *stream) head() values.Value { return s.rows[s.pos] }
func (s *stream) ready() bool        { return s.pos < len(s.rows) }

func (s *stream) position() partition.Position {
	p := partition.Position{Partition: s.id}
	switch {
	case s.finished || (s.fetched && !s.ready() && s.next == nil):
		p.Finished = true
	case !s.fetched:
		p.Token, p.Skip = s.token, s.skip
	case !s.ready() && s.next != nil:
		p.Token = s.next
	default:
		p.Token, p.Skip = s.token, s.pos
	}
	return p
}

type receiveState struct {
	iterState
	started bool
	streams []*stream
	cur     int
	merge   *heap.Heap[*stream]
	// refill is a stream popped from merge
	// that could not be refilled yet.
	refill *stream
	seen   map[uint64][]values.Value
	// final holds the positions at Close.
	final []partition.Position
}

func (r *Receive) Kind() Kind       { return KindReceive }
func (r *Receive) Children() []Iter { return nil }

// Dedup reports whether duplicate rows
// are dropped by primary key.
func (r *Receive) Dedup() bool { return r.PrimaryKey != nil }

// Sorted reports whether partitions are merged.
func (r *Receive) Sorted() bool { return !r.Key.Empty() }

func (r *Receive) validate() error {
	if r.Distribution < 0 || r.Distribution >= partition.NumDistributions {
		return errors.Newf("invalid distribution %d", r.Distribution)
	}
	if r.Key.Fields != nil || r.Key.Specs != nil {
		return r.Key.Validate()
	}
	return nil
}

func (r *Receive) Open(ec *ExecContext) error {
	ec.initState(r, &receiveState{})
	return nil
}

func (r *Receive) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*receiveState](ec, r)
	if err != nil || st.isDone() {
		return false, err
	}
	if !st.started {
		ok, err := r.start(ec, st)
		if err != nil || !ok {
			return r.stop(ec, st, ok, err)
		}
	}
	for {
		row, ok, err := r.nextRow(ec, st)
		if err != nil || row == nil {
			return r.stop(ec, st, ok, err)
		}
		if r.Dedup() {
			dup, err := r.duplicate(ec, st, row)
			if err != nil {
				return false, err
			}
			if dup {
				continue
			}
		}
		ec.setReg(r.Result, row)
		st.running()
		return true, nil
	}
}

// stop ends the iteration; ok is false when
// it ends because the fetch budget ran out.
func (r *Receive) stop(ec *ExecContext, st *receiveState, ok bool, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if !ok {
		ec.suspended = true
		level.Debug(ec.logger()).Log("msg", "fetch budget exhausted", "fetches", ec.Stats.Fetches)
	}
	st.setDone()
	return false, nil
}

// start lists the partitions and, for a merge,
// loads the first row of each into the heap.
func (r *Receive) start(ec *ExecContext, st *receiveState) (bool, error) {
	if !st.started {
		if ec.Source == nil {
			return false, errors.AssertionFailedf("%s iterator executed without a partition source", r.Kind())
		}
		ids, err := ec.Source.Partitions(ec.Context, ec.Table, r.Distribution)
		if err != nil {
			return false, errors.Wrap(err, "listing partitions")
		}
		st.streams = make([]*stream, len(ids))
		for i, id := range ids {
			s := &stream{id: id, index: i}
			if pos, ok := ec.resumeFrom(id); ok {
				s.finished, s.token, s.skip = pos.Finished, pos.Token, pos.Skip
			}
			st.streams[i] = s
		}
		st.started = true
		if r.Sorted() {
			st.merge = heap.New(func(x, y *stream) (int, error) {
				return r.Key.Compare(x.head(), y.head())
			}, func(x, y *stream) bool {
				return x.index < y.index
			})
		}
	}
	if !r.Sorted() {
		return true, nil
	}
	for _, s := range st.streams {
		if s.ready() || s.finished {
			continue
		}
		ok, err := r.fill(ec, s)
		if err != nil || !ok {
			return ok, err
		}
		if s.ready() {
			st.merge.Push(s)
		}
	}
	return true, ec.evalError(r, st.merge.Err())
}

// nextRow returns the next row, or nil when there are
// no more rows; ok is false if the fetch budget ran out.
func (r *Receive) nextRow(ec *ExecContext, st *receiveState) (row values.Value, ok bool, err error) {
	if !r.Sorted() {
		for st.cur < len(st.streams) {
			s := st.streams[st.cur]
			if ok, err := r.fill(ec, s); err != nil || !ok {
				return nil, ok, err
			}
			if s.ready() {
				row = s.head()
				s.pos++
				return row, true, nil
			}
			st.cur++
		}
		return nil, true, nil
	}
	if s := st.refill; s != nil {
		if ok, err := r.fill(ec, s); err != nil || !ok {
			return nil, ok, err
		}
		st.refill = nil
		if s.ready() {
			st.merge.Push(s)
		}
		if err := st.merge.Err(); err != nil {
			return nil, false, ec.evalError(r, err)
		}
	}
	if st.merge.Len() == 0 {
		return nil, true, nil
	}
	s := st.merge.Pop()
	row = s.head()
	s.pos++
	ok, err = r.fill(ec, s)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		// yield row; the next call refetches s first
		st.refill = s
		return row, true, nil
	}
	if s.ready() {
		st.merge.Push(s)
	}
	if err := st.merge.Err(); err != nil {
		return nil, false, ec.evalError(r, err)
	}
	return row, true, nil
}

// fill fetches pages of s until it has an
// unconsumed row or is finished. It returns
// false if the fetch budget ran out first.
func (r *Receive) fill(ec *ExecContext, s *stream) (bool, error) {
	for !s.finished && !s.ready() {
		if s.fetched && s.next == nil {
			s.finished = true
			s.rows, s.pos = nil, 0
			break
		}
		if err := ec.Context.Err(); err != nil {
			return false, err
		}
		if !ec.canFetch() {
			return false, nil
		}
		token := s.token
		if s.fetched {
			token = s.next
		}
		page, err := ec.Source.Fetch(ec.Context, &partition.Request{
			Table:        ec.Table,
			Distribution: r.Distribution,
			Partition:    s.id,
			Continuation: token,
		})
		if err != nil {
			return false, errors.Wrapf(err, "fetching partition %d", s.id)
		}
		ec.Stats.observe(page)
		level.Debug(ec.logger()).Log("msg", "page fetched", "partition", s.id, "rows", len(page.Rows), "more", page.Continuation != nil)
		s.token, s.next, s.rows, s.pos, s.fetched = token, page.Continuation, page.Rows, 0, true
		if s.skip > 0 {
			s.pos = min(s.skip, len(s.rows))
			s.skip = 0
		}
	}
	return true, nil
}

func (r *Receive) duplicate(ec *ExecContext, st *receiveState, row values.Value) (bool, error) {
	m, ok := row.(*values.Map)
	if !ok {
		return false, ec.userError(r, TypeMismatch, errors.Wrapf(sorting.ErrNotARecord, "got %s", row.Type()))
	}
	key := make(values.Array, len(r.PrimaryKey))
	for i, f := range r.PrimaryKey {
		v, ok := m.Get(f)
		if !ok {
			v = values.Empty
		}
		key[i] = v
	}
	h := values.HashTuple(key)
	for _, k := range st.seen[h] {
		if values.Equal(k, key) {
			return true, nil
		}
	}
	if st.seen == nil {
		st.seen = make(map[uint64][]values.Value)
	}
	st.seen[h] = append(st.seen[h], key)
	return false, nil
}

// Positions returns the resume position of every
// partition: the rows consumed so far are exactly
// the rows before the positions.
func (r *Receive) Positions(ec *ExecContext) ([]partition.Position, error) {
	st, err := stateOf[*receiveState](ec, r)
	if err != nil {
		return nil, err
	}
	switch {
	case st.final != nil:
		return st.final, nil
	case !st.started:
		return append([]partition.Position(nil), ec.resume...), nil
	}
	return positions(st), nil
}

func positions(st *receiveState) []partition.Position {
	pos := make([]partition.Position, len(st.streams))
	for i, s := range st.streams {
		pos[i] = s.position()
	}
	return pos
}

// Exhausted reports whether every partition
// has been read to its end.
func (r *Receive) Exhausted(ec *ExecContext) bool {
	pos, err := r.Positions(ec)
	if err != nil {
		return false
	}
	st := ec.states[r.State].(*receiveState)
	if !st.started && st.final == nil {
		return false
	}
	for i := range pos {
		if !pos[i].Finished {
			return false
		}
	}
	return true
}

func (r *Receive) release(st *receiveState) {
	st.streams, st.merge, st.refill, st.seen = nil, nil, nil, nil
	st.started, st.cur = false, 0
}

func (r *Receive) Reset(ec *ExecContext) error {
	st, err := stateOf[*receiveState](ec, r)
	if err != nil {
		return err
	}
	r.release(st)
	st.final = nil
	return ec.resetState(r)
}

func (r *Receive) Close(ec *ExecContext) error {
	if ec.closeState(r) {
		st := ec.states[r.State].(*receiveState)
		if st.started {
			st.final = positions(st)
		}
		r.release(st)
	}
	return nil
}

func (r *Receive) describe(dst *strings.Builder, indent int) {
	tabfprintf(dst, indent, "distribution : %s\n", r.Distribution)
	describeKey(dst, indent, r.Key.Fields, r.Key.Specs)
	if r.PrimaryKey != nil {
		tabfprintf(dst, indent, "primary key : %s\n", strings.Join(r.PrimaryKey, ", "))
	}
}

func (r *Receive) encode(w *wire.Writer) {
	w.WriteShort(int16(r.Distribution))
	encodeKey(w, &r.Key)
	w.WriteStringArray(r.PrimaryKey)
}
