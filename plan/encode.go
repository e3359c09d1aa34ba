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
	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/wire"
)

// Encode serializes the tree rooted at it in the
// format read by Decode.
func Encode(it Iter) []byte {
	var w wire.Writer
	encodeIter(&w, it)
	return w.Bytes()
}

func encodeIter(w *wire.Writer, it Iter) {
	if it == nil {
		w.WriteInt8(-1)
		return
	}
	w.WriteInt8(int8(it.Kind()))
	h := it.header()
	w.WriteInt(int32(h.Result))
	w.WriteInt(int32(h.State))
	w.WriteInt(int32(h.Loc.StartLine))
	w.WriteInt(int32(h.Loc.StartColumn))
	w.WriteInt(int32(h.Loc.EndLine))
	w.WriteInt(int32(h.Loc.EndColumn))
	it.encode(w)
}

func encodeIters(w *wire.Writer, its []Iter) {
	if its == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(its))
	for _, it := range its {
		encodeIter(w, it)
	}
}

func encodeFuncCodes(w *wire.Writer, codes []FuncCode) {
	if codes == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(codes))
	for _, c := range codes {
		w.WriteShort(int16(c))
	}
}

func encodeKey(w *wire.Writer, k *sorting.Key) {
	w.WriteStringArray(k.Fields)
	if k.Specs == nil {
		w.WriteSequenceLength(-1)
		return
	}
	w.WriteSequenceLength(len(k.Specs))
	for _, s := range k.Specs {
		w.WriteBool(s.Desc())
		w.WriteBool(s.NullsFirst())
	}
}
