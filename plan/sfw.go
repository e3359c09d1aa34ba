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

	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// SFW evaluates a SELECT-FROM-WHERE block.
//
// The FROM iterators are evaluated as nested
// loops, left to right; each binds its value to
// the register of the FROM variable of the same
// index. Every tuple of bindings accepted by Where
// is projected to a MAP of Columns (or, with
// SelectStar, to the FROM variables themselves).
//
// With NumGroupBy >= 0 the input is grouped: the
// first NumGroupBy columns form the group key and
// the rest must be aggregate functions. Tuples
// must arrive sorted by the key.
type SFW struct {
	Header
	From        []Iter
	FromVars    []string
	Where       Iter
	Columns     []Iter
	ColumnNames []string
	// NumGroupBy is the number of grouping
	// columns, or -1 if the block does not group.
	NumGroupBy int
	SelectStar bool
	Offset     Iter
	Limit      Iter
}

type sfwState struct {
	iterState
	level    int
	offset   int64
	limit    int64
	skipped  int64
	produced int64

	// grouping
	key       values.Array
	pending   bool
	inputDone bool
	emitted   bool
}

func (s *SFW) Kind() Kind { return KindSFW }

func (s *SFW) Children() []Iter {
	its := appendIters(nil, s.From...)
	its = appendIters(its, s.Where)
	its = appendIters(its, s.Columns...)
	return appendIters(its, s.Offset, s.Limit)
}

func (s *SFW) grouping() bool { return s.NumGroupBy >= 0 }

func (s *SFW) validate() error {
	if len(s.From) == 0 {
		return errors.New("no FROM iterators")
	}
	if len(s.FromVars) != len(s.From) {
		return errors.Newf("%d FROM variables for %d FROM iterators", len(s.FromVars), len(s.From))
	}
	if len(s.ColumnNames) != len(s.Columns) {
		return errors.Newf("%d column names for %d columns", len(s.ColumnNames), len(s.Columns))
	}
	if s.SelectStar && s.grouping() {
		return errors.New("SELECT * cannot group")
	}
	if s.NumGroupBy > len(s.Columns) {
		return errors.Newf("%d grouping columns of %d columns", s.NumGroupBy, len(s.Columns))
	}
	if s.grouping() {
		for _, c := range s.Columns[s.NumGroupBy:] {
			if _, ok := c.(Aggregator); !ok {
				return errors.Newf("grouped column %s is not an aggregate", c.Kind())
			}
		}
	}
	return nil
}

func (s *SFW) Open(ec *ExecContext) error {
	st := &sfwState{limit: -1}
	ec.initState(s, st)
	if err := openAll(ec, s.From...); err != nil {
		return err
	}
	if err := openAll(ec, s.Where); err != nil {
		return err
	}
	if err := openAll(ec, s.Columns...); err != nil {
		return err
	}
	var err error
	if s.Offset != nil {
		if st.offset, err = s.count(ec, s.Offset, "OFFSET"); err != nil {
			return err
		}
	}
	if s.Limit != nil {
		if st.limit, err = s.count(ec, s.Limit, "LIMIT"); err != nil {
			return err
		}
	}
	return nil
}

// count evaluates an OFFSET or LIMIT expression.
func (s *SFW) count(ec *ExecContext, it Iter, what string) (int64, error) {
	if err := it.Open(ec); err != nil {
		return 0, err
	}
	more, err := it.Next(ec)
	if err != nil {
		return 0, err
	}
	if !more {
		return 0, ec.userErrorf(it, InvalidArgument, "%s has no value", what)
	}
	v, err := ec.Value(it)
	if err != nil {
		return 0, err
	}
	var n int64
	switch v := v.(type) {
	case values.Int:
		n = int64(v)
	case values.Long:
		n = int64(v)
	default:
		return 0, ec.userErrorf(it, InvalidArgument, "%s must be an integer, not %s", what, v.Type())
	}
	if n < 0 {
		return 0, ec.userErrorf(it, InvalidArgument, "%s must not be negative: %d", what, n)
	}
	return n, nil
}

func (s *SFW) Next(ec *ExecContext) (bool, error) {
	st, err := stateOf[*sfwState](ec, s)
	if err != nil || st.isDone() {
		return false, err
	}
	for {
		if st.limit >= 0 && st.produced >= st.limit {
			st.setDone()
			return false, nil
		}
		var row values.Value
		var ok bool
		if s.grouping() {
			row, ok, err = s.nextGroup(ec, st)
		} else {
			row, ok, err = s.nextTuple(ec, st)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			st.setDone()
			return false, nil
		}
		if st.skipped < st.offset {
			st.skipped++
			continue
		}
		st.produced++
		ec.setReg(s.Result, row)
		st.running()
		return true, nil
	}
}

// bind advances the FROM iterators to the next
// tuple of bindings. Advancing an outer iterator
// restarts every iterator inside it.
func (s *SFW) bind(ec *ExecContext, st *sfwState) (bool, error) {
	last := len(s.From) - 1
	for {
		more, err := s.From[st.level].Next(ec)
		if err != nil {
			return false, err
		}
		switch {
		case !more && st.level == 0:
			return false, nil
		case !more:
			st.level--
		case st.level == last:
			return true, nil
		default:
			st.level++
			if err := s.From[st.level].Reset(ec); err != nil {
				return false, err
			}
		}
	}
}

// accept evaluates the WHERE condition.
func (s *SFW) accept(ec *ExecContext) (bool, error) {
	if s.Where == nil {
		return true, nil
	}
	v, ok, err := s.eval(ec, s.Where)
	if err != nil || !ok {
		return false, err
	}
	if b, ok := v.(values.Bool); ok {
		return bool(b), nil
	}
	if values.IsNull(v) {
		return false, nil
	}
	return false, ec.userErrorf(s.Where, TypeMismatch, "WHERE condition is %s, not a boolean", v.Type())
}

// eval restarts it and returns its first value,
// or false if it has none.
func (s *SFW) eval(ec *ExecContext, it Iter) (values.Value, bool, error) {
	if err := it.Reset(ec); err != nil {
		return nil, false, err
	}
	more, err := it.Next(ec)
	if err != nil || !more {
		return nil, false, err
	}
	v, err := ec.Value(it)
	if err != nil {
		return nil, false, err
	}
	if v.Type() == values.TypeEmpty {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *SFW) nextTuple(ec *ExecContext, st *sfwState) (values.Value, bool, error) {
	for {
		more, err := s.bind(ec, st)
		if err != nil || !more {
			return nil, false, err
		}
		ok, err := s.accept(ec)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		row, err := s.project(ec)
		return row, err == nil, err
	}
}

func (s *SFW) project(ec *ExecContext) (values.Value, error) {
	if s.SelectStar {
		if len(s.From) == 1 {
			return ec.Value(s.From[0])
		}
		m := values.NewMap(len(s.From))
		for i, f := range s.From {
			v, err := ec.Value(f)
			if err != nil {
				return nil, err
			}
			m.Put(s.FromVars[i], v)
		}
		return m, nil
	}
	m := values.NewMap(len(s.Columns))
	for i, c := range s.Columns {
		v, ok, err := s.eval(ec, c)
		if err != nil {
			return nil, err
		}
		if !ok {
			v = values.Null
		}
		m.Put(s.ColumnNames[i], v)
	}
	return m, nil
}

// nextGroup streams over contiguous groups of
// accepted tuples. Seeing the first tuple of a
// new group finishes the pending one; the new
// tuple is aggregated right away, so the new
// group is already in progress when the finished
// one is returned.
func (s *SFW) nextGroup(ec *ExecContext, st *sfwState) (values.Value, bool, error) {
	if st.inputDone {
		return nil, false, nil
	}
	for {
		more, err := s.bind(ec, st)
		if err != nil {
			return nil, false, err
		}
		if !more {
			st.inputDone = true
			if st.pending || (s.NumGroupBy == 0 && !st.emitted) {
				row, err := s.finishGroup(ec, st)
				return row, err == nil, err
			}
			return nil, false, nil
		}
		ok, err := s.accept(ec)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		key, ok, err := s.groupKey(ec)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if st.pending && !sameKey(st.key, key) {
			row, err := s.finishGroup(ec, st)
			if err != nil {
				return nil, false, err
			}
			if err := s.startGroup(ec, st, key); err != nil {
				return nil, false, err
			}
			return row, true, nil
		}
		if !st.pending {
			if err := s.startGroup(ec, st, key); err != nil {
				return nil, false, err
			}
			continue
		}
		if err := s.aggregate(ec); err != nil {
			return nil, false, err
		}
	}
}

// groupKey evaluates the grouping columns; a
// column without a value excludes the tuple.
func (s *SFW) groupKey(ec *ExecContext) (values.Array, bool, error) {
	key := make(values.Array, s.NumGroupBy)
	for i := range key {
		v, ok, err := s.eval(ec, s.Columns[i])
		if err != nil || !ok {
			return nil, false, err
		}
		key[i] = v
	}
	return key, true, nil
}

func (s *SFW) startGroup(ec *ExecContext, st *sfwState, key values.Array) error {
	st.key = key
	st.pending = true
	return s.aggregate(ec)
}

// aggregate feeds the current tuple to
// every aggregate column.
func (s *SFW) aggregate(ec *ExecContext) error {
	for _, c := range s.Columns[s.NumGroupBy:] {
		if err := c.Reset(ec); err != nil {
			return err
		}
		if _, err := c.Next(ec); err != nil {
			return err
		}
	}
	return nil
}

// groupRow projects the current group. With
// reset set the aggregates start over.
func (s *SFW) groupRow(ec *ExecContext, st *sfwState, reset bool) (values.Value, error) {
	m := values.NewMap(len(s.Columns))
	for i := 0; i < s.NumGroupBy; i++ {
		m.Put(s.ColumnNames[i], st.key[i])
	}
	for i := s.NumGroupBy; i < len(s.Columns); i++ {
		v, err := AggrValue(ec, s.Columns[i], reset)
		if err != nil {
			return nil, err
		}
		m.Put(s.ColumnNames[i], v)
	}
	return m, nil
}

// finishGroup produces the row of the pending
// group and resets the aggregates.
func (s *SFW) finishGroup(ec *ExecContext, st *sfwState) (values.Value, error) {
	m, err := s.groupRow(ec, st, true)
	if err != nil {
		return nil, err
	}
	st.key, st.pending, st.emitted = nil, false, true
	return m, nil
}

// PendingGroup returns the group in progress in
// ec, with the values its aggregates hold so far,
// or false if no group is in progress. The first
// tuple of a group is consumed while the previous
// group is finished, so right after a group is
// returned by Next the next one is already pending.
func (s *SFW) PendingGroup(ec *ExecContext) (values.Value, bool, error) {
	st, err := stateOf[*sfwState](ec, s)
	if err != nil || !s.grouping() || !st.pending {
		return nil, false, err
	}
	m, err := s.groupRow(ec, st, false)
	return m, err == nil, err
}

func (s *SFW) Reset(ec *ExecContext) error {
	st, err := stateOf[*sfwState](ec, s)
	if err != nil {
		return err
	}
	if err := resetAll(ec, s.From...); err != nil {
		return err
	}
	if err := resetAll(ec, s.Where); err != nil {
		return err
	}
	if err := resetAll(ec, s.Columns...); err != nil {
		return err
	}
	if s.grouping() {
		// drop the partial aggregates
		for _, c := range s.Columns[s.NumGroupBy:] {
			if _, err := AggrValue(ec, c, true); err != nil {
				return err
			}
		}
	}
	st.level, st.skipped, st.produced = 0, 0, 0
	st.key, st.pending, st.inputDone, st.emitted = nil, false, false, false
	return ec.resetState(s)
}

func (s *SFW) Close(ec *ExecContext) error {
	if ec.closeState(s) {
		st := ec.states[s.State].(*sfwState)
		st.key, st.pending = nil, false
	}
	return closeAll(ec, s.Children()...)
}

func (s *SFW) describe(dst *strings.Builder, indent int) {
	for i, f := range s.From {
		describeIter(dst, indent, "FROM variable "+s.FromVars[i], f)
	}
	describeIter(dst, indent, "WHERE", s.Where)
	if s.SelectStar {
		tabline(dst, indent, "SELECT *")
	}
	for i, c := range s.Columns {
		describeIter(dst, indent, "SELECT "+s.ColumnNames[i], c)
	}
	if s.grouping() {
		tabfprintf(dst, indent, "grouping columns : %d\n", s.NumGroupBy)
	}
	describeIter(dst, indent, "OFFSET", s.Offset)
	describeIter(dst, indent, "LIMIT", s.Limit)
}

func (s *SFW) encode(w *wire.Writer) {
	encodeIters(w, s.From)
	w.WriteStringArray(s.FromVars)
	encodeIter(w, s.Where)
	encodeIters(w, s.Columns)
	w.WriteStringArray(s.ColumnNames)
	w.WriteInt(int32(s.NumGroupBy))
	w.WriteBool(s.SelectStar)
	encodeIter(w, s.Offset)
	encodeIter(w, s.Limit)
}
