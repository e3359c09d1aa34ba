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

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/query"
)

// runFixture executes p against the fixture
// at path and writes the rows to w, followed
// by a summary line.
func runFixture(ctx context.Context, w io.Writer, p *query.Prepared, path string) error {
	fx, err := loadFixture(path)
	if err != nil {
		return err
	}
	src, err := fx.source()
	if err != nil {
		return err
	}
	ext, err := fx.externals()
	if err != nil {
		return err
	}
	warn := color.New(color.FgYellow)
	opts := query.Options{
		Externals: ext,
		Source:    src,
		Table:     fx.table(),
		Diagnostics: plan.DiagnosticsFunc(func(kind plan.ErrorKind, loc plan.Location, err error) {
			warn.Fprintf(w, "%s at %s: %s\n", kind, loc, err)
		}),
	}
	var total plan.ExecStats
	var rows int
	executions := 0
	for {
		executions++
		c, err := p.Execute(ctx, opts)
		if err != nil {
			return err
		}
		for {
			row, ok, err := c.Next()
			if err != nil {
				c.Close()
				return err
			}
			if !ok {
				break
			}
			rows++
			fmt.Fprintln(w, row)
		}
		if err := c.Close(); err != nil {
			return err
		}
		st := c.Stats()
		total.Add(&st)
		key, err := c.ContinuationKey()
		if err != nil {
			return err
		}
		if key == nil {
			break
		}
		if !dashresume {
			warn.Fprintf(w, "more results available (continuation key %x)\n", key)
			break
		}
		opts.ContinuationKey = key
	}
	color.New(color.FgCyan).Fprintf(w, "%d rows, %d executions, %d pages, %d read units, %d read KB\n",
		rows, executions, total.Fetches, total.Consumed.ReadUnits, total.Consumed.ReadKB)
	return nil
}
