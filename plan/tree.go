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
	"fmt"
	"strings"

	"github.com/nosqlx/planexec/sorting"
)

func tabify(n int, dst *strings.Builder) {
	for n > 0 {
		dst.WriteByte('\t')
		n--
	}
}

func tabfprintf(dst *strings.Builder, indent int, f string, args ...interface{}) {
	tabify(indent, dst)
	fmt.Fprintf(dst, f, args...)
}

func tabline(dst *strings.Builder, indent int, line string) {
	tabify(indent, dst)
	dst.WriteString(line)
	dst.WriteByte('\n')
}

// Display renders the tree rooted at it
// for diagnostics.
func Display(it Iter) string {
	var dst strings.Builder
	display(&dst, 0, it)
	return strings.TrimSuffix(dst.String(), "\n")
}

func display(dst *strings.Builder, indent int, it Iter) {
	name := it.Kind().String()
	if fc := it.FuncCode(); fc != 0 {
		name = fc.String()
	}
	tabfprintf(dst, indent, "%s([%d])\n", name, it.ResultReg())
	tabline(dst, indent, "[")
	it.describe(dst, indent+1)
	tabline(dst, indent, "]")
}

func describeIter(dst *strings.Builder, indent int, label string, it Iter) {
	if it == nil {
		return
	}
	tabline(dst, indent, label+" :")
	display(dst, indent, it)
}

func describeIters(dst *strings.Builder, indent int, label string, its []Iter) {
	for i, it := range its {
		describeIter(dst, indent, fmt.Sprintf("%s %d", label, i), it)
	}
}

func describeKey(dst *strings.Builder, indent int, fields []string, specs []sorting.Spec) {
	for i := range fields {
		tabfprintf(dst, indent, "sort field : %s %s\n", fields[i], specs[i])
	}
}
