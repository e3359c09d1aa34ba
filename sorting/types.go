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

package sorting

import (
	"github.com/cockroachdb/errors"

	"github.com/nosqlx/planexec/values"
)

// Direction encodes a sorting direction of column (SQL: ASC/DESC)
type Direction int

const (
	Ascending  Direction = 1  // Sort ascending
	Descending Direction = -1 // Sort descending
)

// NullsOrder encodes order of null values (SQL: NULL FIRST/NULLS LAST)
type NullsOrder int

const (
	NullsFirst NullsOrder = iota // Null values goes first
	NullsLast                    // Null values goes last
)

// Spec is the ordering of one sort column.
// The zero Spec is invalid; use NewSpec.
type Spec struct {
	Direction Direction
	Nulls     NullsOrder
}

// NewSpec returns the Spec for the
// wire flags (isDesc, nullsFirst).
func NewSpec(desc, nullsFirst bool) Spec {
	s := Spec{Direction: Ascending, Nulls: NullsLast}
	if desc {
		s.Direction = Descending
	}
	if nullsFirst {
		s.Nulls = NullsFirst
	}
	return s
}

// Desc reports whether the column sorts descending.
func (s Spec) Desc() bool { return s.Direction == Descending }

// NullsFirst reports whether NULL, JSON null
// and EMPTY values sort before everything else.
func (s Spec) NullsFirst() bool { return s.Nulls == NullsFirst }

func (s Spec) String() string {
	str := "ASC"
	if s.Desc() {
		str = "DESC"
	}
	if s.NullsFirst() {
		return str + " NULLS FIRST"
	}
	return str + " NULLS LAST"
}

// Compare orders two column values under spec s.
// Null-like values are placed according to the null
// ordering regardless of direction; everything
// else follows values.Compare in the given direction.
func Compare(a, b values.Value, s Spec) (int, error) {
	an, bn := values.IsNullish(a), values.IsNullish(b)
	if an || bn {
		if an && bn {
			c, _ := values.Compare(a, b)
			return c, nil
		}
		c := 1
		if an {
			c = -1
		}
		if !s.NullsFirst() {
			c = -c
		}
		return c, nil
	}
	c, err := values.Compare(a, b)
	if err != nil {
		return 0, err
	}
	return c * int(s.Direction), nil
}

// ErrNotARecord is returned when a row
// ordered by field name is not a MAP.
var ErrNotARecord = errors.New("sorted row is not a record")

// Key orders records by a list of named fields.
// Fields missing from a record compare as EMPTY.
type Key struct {
	Fields []string
	Specs  []Spec
}

// Empty reports whether the key has no columns;
// such a key imposes no order.
func (k *Key) Empty() bool { return k == nil || len(k.Fields) == 0 }

// Compare orders two records by the key columns.
func (k *Key) Compare(a, b values.Value) (int, error) {
	ma, ok := a.(*values.Map)
	if !ok {
		return 0, errors.Wrapf(ErrNotARecord, "got %s", a.Type())
	}
	mb, ok := b.(*values.Map)
	if !ok {
		return 0, errors.Wrapf(ErrNotARecord, "got %s", b.Type())
	}
	for i, f := range k.Fields {
		c, err := Compare(field(ma, f), field(mb, f), k.Specs[i])
		if err != nil {
			return 0, errors.Wrapf(err, "sort field %q", f)
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

func field(m *values.Map, name string) values.Value {
	if v, ok := m.Get(name); ok {
		return v
	}
	return values.Empty
}

// Validate checks that the key has one
// spec per field and that every spec is valid.
func (k *Key) Validate() error {
	if len(k.Fields) != len(k.Specs) {
		return errors.Newf("%d sort fields but %d sort specs", len(k.Fields), len(k.Specs))
	}
	for i := range k.Specs {
		d := k.Specs[i].Direction
		if d != Ascending && d != Descending {
			return errors.Newf("sort spec %d: invalid direction %d", i, d)
		}
	}
	return nil
}
