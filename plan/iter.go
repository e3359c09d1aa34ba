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

	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// Iter is one operator of a plan tree.
//
// An Iter is immutable once decoded; every bit of
// per-execution state lives in the ExecContext
// passed to its methods, in the register and the
// state slot named by its Header. The protocol is
// Open once, Next until it returns false, then
// Close; Reset restarts the iterator without a
// full Close/Open cycle. After Next returns false
// it keeps returning false until Reset. Close is
// idempotent and may be called at any point.
//
// The set of Iter implementations is closed:
// it is exactly the set of types in this package
// that have a Kind.
type Iter interface {
	Kind() Kind
	// FuncCode is the function implemented by
	// the iterator, or zero.
	FuncCode() FuncCode
	// ResultReg is the register the iterator
	// writes its results to, or -1.
	ResultReg() int
	StatePos() int
	Location() Location
	// Children returns the child iterators in
	// the order they are encoded.
	Children() []Iter

	Open(ec *ExecContext) error
	Next(ec *ExecContext) (bool, error)
	Reset(ec *ExecContext) error
	Close(ec *ExecContext) error
	IsDone(ec *ExecContext) bool

	header() *Header
	validate() error
	describe(dst *strings.Builder, indent int)
	encode(w *wire.Writer)
}

// Header holds the fields common
// to every iterator.
type Header struct {
	// Result is the result register;
	// -1 means the iterator has none.
	Result int
	// State is the state slot.
	State int
	Loc   Location
}

func (h *Header) ResultReg() int     { return h.Result }
func (h *Header) StatePos() int      { return h.State }
func (h *Header) Location() Location { return h.Loc }
func (h *Header) FuncCode() FuncCode { return 0 }
func (h *Header) header() *Header    { return h }

// IsDone reports whether the iterator is done
// or closed in ec.
func (h *Header) IsDone(ec *ExecContext) bool {
	s := ec.states[h.State]
	return s != nil && s.state().isDone()
}

// Aggregator is implemented by iterators
// that accumulate their input.
type Aggregator interface {
	Iter
	// AggrValue returns the value accumulated
	// so far. If reset is set, the accumulator
	// starts over afterwards.
	AggrValue(ec *ExecContext, reset bool) (values.Value, error)
}

// AggrValue returns the aggregate value of it,
// which fails with an internal error if it
// is not an Aggregator.
func AggrValue(ec *ExecContext, it Iter, reset bool) (values.Value, error) {
	a, ok := it.(Aggregator)
	if !ok {
		return nil, notImplemented(it, "AggrValue")
	}
	return a.AggrValue(ec, reset)
}

type singleInput interface {
	input() Iter
}

// InputIter returns the single input of it,
// which fails with an internal error if it
// does not have exactly one input.
func InputIter(it Iter) (Iter, error) {
	s, ok := it.(singleInput)
	if !ok {
		return nil, notImplemented(it, "InputIter")
	}
	return s.input(), nil
}

// Walk calls fn for it and every iterator
// below it, parents first, until fn returns false.
func Walk(it Iter, fn func(Iter) bool) bool {
	if it == nil {
		return true
	}
	if !fn(it) {
		return false
	}
	for _, c := range it.Children() {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}

func appendIters(dst []Iter, its ...Iter) []Iter {
	for _, it := range its {
		if it != nil {
			dst = append(dst, it)
		}
	}
	return dst
}

func openAll(ec *ExecContext, its ...Iter) error {
	for _, it := range its {
		if it == nil {
			continue
		}
		if err := it.Open(ec); err != nil {
			return err
		}
	}
	return nil
}

func resetAll(ec *ExecContext, its ...Iter) error {
	for _, it := range its {
		if it == nil {
			continue
		}
		if err := it.Reset(ec); err != nil {
			return err
		}
	}
	return nil
}

// closeAll closes every iterator in its,
// returning the first error encountered.
func closeAll(ec *ExecContext, its ...Iter) error {
	var err error
	for _, it := range its {
		if it == nil {
			continue
		}
		if e := it.Close(ec); e != nil && err == nil {
			err = e
		}
	}
	return err
}
