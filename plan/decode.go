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
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
	"github.com/nosqlx/planexec/wire"
)

// Serial versions of the plan protocol
// understood by Decode.
const (
	MinVersion     int16 = 1
	CurrentVersion int16 = 2
)

// DecodeOption configures Decode.
type DecodeOption func(d *decoder)

// WithTrace logs every iterator as it is decoded.
func WithTrace(logger log.Logger) DecodeOption {
	return func(d *decoder) {
		d.trace = logger
	}
}

type decoder struct {
	r       *wire.Reader
	version int16
	trace   log.Logger
	depth   int
}

// Decode decodes a plan serialized with the given
// protocol version. It returns either a complete,
// validated Plan or an error; errors are marked
// with ErrMalformedPlan, except for unknown
// iterator kinds, which are internal errors.
func Decode(buf []byte, version int16, opts ...DecodeOption) (*Plan, error) {
	if version < MinVersion || version > CurrentVersion {
		return nil, malformedf("unsupported plan version %d", version)
	}
	d := decoder{r: wire.NewReader(buf), version: version}
	for _, opt := range opts {
		opt(&d)
	}
	root, err := d.iter()
	if err != nil {
		return nil, d.fail(err)
	}
	if root == nil {
		return nil, malformedf("plan has no root iterator")
	}
	if n := d.r.Len(); n != 0 {
		return nil, malformedf("%d trailing bytes after plan", n)
	}
	return New(root, version)
}

func (d *decoder) fail(err error) error {
	err = errors.Wrapf(err, "decoding plan (offset %d)", d.r.Offset())
	if errors.HasAssertionFailure(err) {
		return err
	}
	return errors.Mark(err, ErrMalformedPlan)
}

func (d *decoder) iter() (Iter, error) {
	off := d.r.Offset()
	tag, err := d.r.ReadInt8()
	if err != nil {
		return nil, err
	}
	if tag == -1 {
		return nil, nil
	}
	kind := Kind(tag)
	if _, ok := kindNames[kind]; !ok {
		return nil, errors.AssertionFailedf("unknown iterator kind %d at offset %d", tag, off)
	}
	if d.trace != nil {
		level.Debug(d.trace).Log("msg", "decoding iterator", "kind", kind, "offset", off, "depth", d.depth)
	}
	h, err := d.header()
	if err != nil {
		return nil, errors.Wrapf(err, "%s header", kind)
	}
	d.depth++
	it, err := d.payload(kind, h)
	d.depth--
	if err != nil {
		return nil, errors.Wrapf(err, "%s at offset %d", kind, off)
	}
	return it, nil
}

func (d *decoder) payload(kind Kind, h Header) (Iter, error) {
	switch kind {
	case KindConst:
		v, err := values.Read(d.r)
		if err != nil {
			return nil, err
		}
		return &Const{Header: h, Value: v}, nil
	case KindVarRef:
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return &VarRef{Header: h, Name: name}, nil
	case KindExternalVarRef:
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		id, err := d.r.ReadPackedInt()
		if err != nil {
			return nil, err
		}
		if id < 0 {
			return nil, malformedf("negative external variable id %d", id)
		}
		return &ExternalVarRef{Header: h, Name: name, ID: int(id)}, nil
	case KindFieldStep:
		input, err := d.input()
		if err != nil {
			return nil, err
		}
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		return &FieldStep{Header: h, Input: input, Field: name}, nil
	case KindArithOp:
		code, err := d.funcCode()
		if err != nil {
			return nil, err
		}
		args, err := d.iters()
		if err != nil {
			return nil, err
		}
		ops, err := d.name()
		if err != nil {
			return nil, err
		}
		return &Arith{Header: h, Code: code, Args: args, Ops: ops}, nil
	case KindFnSize:
		input, err := d.input()
		if err != nil {
			return nil, err
		}
		return &Size{Header: h, Input: input}, nil
	case KindFnSum:
		input, err := d.input()
		if err != nil {
			return nil, err
		}
		return &FuncSum{Header: h, Input: input}, nil
	case KindFnMinMax:
		code, err := d.funcCode()
		if err != nil {
			return nil, err
		}
		input, err := d.input()
		if err != nil {
			return nil, err
		}
		return &FuncMinMax{Header: h, Code: code, Input: input}, nil
	case KindFnCollect:
		distinct, err := d.r.ReadBool()
		if err != nil {
			return nil, err
		}
		input, err := d.input()
		if err != nil {
			return nil, err
		}
		return &FuncCollect{Header: h, Distinct: distinct, Input: input}, nil
	case KindSort, KindSort2:
		return d.sort(kind, h)
	case KindGroup:
		return d.group(h)
	case KindSFW:
		return d.sfw(h)
	case KindReceive:
		return d.receive(h)
	}
	return nil, errors.AssertionFailedf("no decoder for %s iterator", kind)
}

func (d *decoder) sort(kind Kind, h Header) (Iter, error) {
	if kind == KindSort2 && d.version < 2 {
		return nil, malformedf("%s requires plan version 2, have %d", kind, d.version)
	}
	input, err := d.input()
	if err != nil {
		return nil, err
	}
	key, err := d.sortKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, malformedf("missing sort key")
	}
	if kind == KindSort {
		return &Sort{Header: h, Input: input, Key: *key}, nil
	}
	countMem, err := d.r.ReadBool()
	if err != nil {
		return nil, err
	}
	return &Sort2{Sort: Sort{Header: h, Input: input, Key: *key}, CountMemory: countMem}, nil
}

func (d *decoder) group(h Header) (Iter, error) {
	g := &Group{Header: h}
	var err error
	if g.Input, err = d.input(); err != nil {
		return nil, err
	}
	if g.NumGroupBy, err = d.int(false); err != nil {
		return nil, err
	}
	if g.Columns, err = d.r.ReadStringArray(); err != nil {
		return nil, err
	}
	if g.Aggregates, err = d.funcCodes(); err != nil {
		return nil, err
	}
	if g.Distinct, err = d.r.ReadBool(); err != nil {
		return nil, err
	}
	if g.RemoveProducedResult, err = d.r.ReadBool(); err != nil {
		return nil, err
	}
	if g.CountMemory, err = d.r.ReadBool(); err != nil {
		return nil, err
	}
	return g, nil
}

func (d *decoder) sfw(h Header) (Iter, error) {
	s := &SFW{Header: h}
	var err error
	if s.From, err = d.iters(); err != nil {
		return nil, err
	}
	if s.FromVars, err = d.r.ReadStringArray(); err != nil {
		return nil, err
	}
	if s.Where, err = d.iter(); err != nil {
		return nil, err
	}
	if s.Columns, err = d.iters(); err != nil {
		return nil, err
	}
	if s.ColumnNames, err = d.r.ReadStringArray(); err != nil {
		return nil, err
	}
	if s.NumGroupBy, err = d.int(true); err != nil {
		return nil, err
	}
	if s.SelectStar, err = d.r.ReadBool(); err != nil {
		return nil, err
	}
	if s.Offset, err = d.iter(); err != nil {
		return nil, err
	}
	if s.Limit, err = d.iter(); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *decoder) receive(h Header) (Iter, error) {
	dist, err := d.ordinal(partition.NumDistributions)
	if err != nil {
		return nil, err
	}
	r := &Receive{Header: h, Distribution: partition.Distribution(dist)}
	key, err := d.sortKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		r.Key = *key
	}
	if r.PrimaryKey, err = d.r.ReadStringArray(); err != nil {
		return nil, err
	}
	return r, nil
}

// header reads the fields common to every iterator.
func (d *decoder) header() (Header, error) {
	var h Header
	var err error
	if h.Result, err = d.int(true); err != nil {
		return h, err
	}
	if h.State, err = d.int(false); err != nil {
		return h, err
	}
	for _, p := range []*int{&h.Loc.StartLine, &h.Loc.StartColumn, &h.Loc.EndLine, &h.Loc.EndColumn} {
		if *p, err = d.int(false); err != nil {
			return h, err
		}
	}
	return h, nil
}

// int reads a fixed-width int that must be
// non-negative, or -1 if allowNegOne is set.
func (d *decoder) int(allowNegOne bool) (int, error) {
	v, err := d.r.ReadInt()
	if err != nil {
		return 0, err
	}
	if v < -1 || (v == -1 && !allowNegOne) {
		return 0, malformedf("unexpected negative value %d", v)
	}
	return int(v), nil
}

// ordinal reads a short that must lie in [0, n).
func (d *decoder) ordinal(n int) (int16, error) {
	v, err := d.r.ReadShort()
	if err != nil {
		return 0, err
	}
	if v < 0 || int(v) >= n {
		return 0, malformedf("ordinal %d out of range [0, %d)", v, n)
	}
	return v, nil
}

func (d *decoder) name() (string, error) {
	s, ok, err := d.r.ReadString()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", malformedf("missing name")
	}
	return s, nil
}

func (d *decoder) input() (Iter, error) {
	it, err := d.iter()
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, malformedf("missing input iterator")
	}
	return it, nil
}

// iters reads a sequence of iterators;
// an absent sequence is nil.
func (d *decoder) iters() ([]Iter, error) {
	n, err := d.r.ReadSequenceLength()
	if err != nil || n < 0 {
		return nil, err
	}
	its := make([]Iter, n)
	for i := range its {
		if its[i], err = d.input(); err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
	}
	return its, nil
}

func (d *decoder) funcCode() (FuncCode, error) {
	v, err := d.r.ReadShort()
	if err != nil {
		return 0, err
	}
	fc := FuncCode(v)
	if !fc.valid() {
		return 0, malformedf("unknown function code %d", v)
	}
	return fc, nil
}

func (d *decoder) funcCodes() ([]FuncCode, error) {
	n, err := d.r.ReadSequenceLength()
	if err != nil || n < 0 {
		return nil, err
	}
	codes := make([]FuncCode, n)
	for i := range codes {
		if codes[i], err = d.funcCode(); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

// sortKey reads sort field names followed by
// sort specs. It returns nil if both are absent.
func (d *decoder) sortKey() (*sorting.Key, error) {
	fields, err := d.r.ReadStringArray()
	if err != nil {
		return nil, err
	}
	n, err := d.r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if fields == nil && n < 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, malformedf("%d sort fields without sort specs", len(fields))
	}
	specs := make([]sorting.Spec, n)
	for i := range specs {
		desc, err := d.r.ReadBool()
		if err != nil {
			return nil, err
		}
		nullsFirst, err := d.r.ReadBool()
		if err != nil {
			return nil, err
		}
		specs[i] = sorting.NewSpec(desc, nullsFirst)
	}
	return &sorting.Key{Fields: fields, Specs: specs}, nil
}
