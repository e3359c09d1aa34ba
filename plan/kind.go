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

import "fmt"

// Kind is the operator kind of an Iter.
// Kind values are the tag bytes used on
// the wire and must never be renumbered.
type Kind int8

const (
	KindConst          Kind = 0
	KindVarRef         Kind = 1
	KindExternalVarRef Kind = 2
	KindArithOp        Kind = 8
	KindFieldStep      Kind = 11
	KindSFW            Kind = 14
	KindFnSize         Kind = 15
	KindReceive        Kind = 17
	KindFnSum          Kind = 39
	KindFnMinMax       Kind = 41
	KindSort           Kind = 47
	KindGroup          Kind = 65
	KindSort2          Kind = 66
	KindFnCollect      Kind = 78
)

var kindNames = map[Kind]string{
	KindConst:          "CONST",
	KindVarRef:         "VAR_REF",
	KindExternalVarRef: "EXTERNAL_VAR_REF",
	KindArithOp:        "ARITH_OP",
	KindFieldStep:      "FIELD_STEP",
	KindSFW:            "SFW",
	KindFnSize:         "FN_SIZE",
	KindReceive:        "RECV",
	KindFnSum:          "FN_SUM",
	KindFnMinMax:       "FN_MIN_MAX",
	KindSort:           "SORT",
	KindGroup:          "GROUP",
	KindSort2:          "SORT2",
	KindFnCollect:      "FN_COLLECT",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int8(k))
}

// aggregate reports whether iterators of kind k
// accumulate their input and implement Aggregator.
func (k Kind) aggregate() bool {
	return k == KindFnSum || k == KindFnMinMax || k == KindFnCollect
}

// FuncCode is the secondary tag of iterators that
// implement a family of related functions.
// The zero FuncCode means "no function".
type FuncCode int16

const (
	OpAddSub               FuncCode = 14
	OpMultDiv              FuncCode = 15
	FnCountStar            FuncCode = 42
	FnCount                FuncCode = 43
	FnCountNumbers         FuncCode = 44
	FnSum                  FuncCode = 45
	FnMin                  FuncCode = 47
	FnMax                  FuncCode = 48
	FnArrayCollect         FuncCode = 91
	FnArrayCollectDistinct FuncCode = 92
)

var funcNames = map[FuncCode]string{
	OpAddSub:               "OP_ADD_SUB",
	OpMultDiv:              "OP_MULT_DIV",
	FnCountStar:            "FN_COUNT_STAR",
	FnCount:                "FN_COUNT",
	FnCountNumbers:         "FN_COUNT_NUMBERS",
	FnSum:                  "FN_SUM",
	FnMin:                  "FN_MIN",
	FnMax:                  "FN_MAX",
	FnArrayCollect:         "FN_ARRAY_COLLECT",
	FnArrayCollectDistinct: "FN_ARRAY_COLLECT_DISTINCT",
}

func (f FuncCode) String() string {
	if s, ok := funcNames[f]; ok {
		return s
	}
	return fmt.Sprintf("FuncCode(%d)", int16(f))
}

func (f FuncCode) valid() bool {
	_, ok := funcNames[f]
	return ok
}

// IsAggregate reports whether f names an
// aggregate function (every code except
// the two arithmetic operator families).
func (f FuncCode) IsAggregate() bool {
	return f.valid() && f != OpAddSub && f != OpMultDiv
}
