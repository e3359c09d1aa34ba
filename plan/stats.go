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

import "github.com/nosqlx/planexec/partition"

// ExecStats is a collection
// of statistics that are aggregated
// during the execution of a query.
type ExecStats struct {
	// Consumed is the total read and write
	// capacity charged for every page fetched.
	Consumed partition.Capacity
	// Fetches is the number of pages fetched.
	Fetches int
	// RowsFetched is the number of rows
	// in the pages fetched.
	RowsFetched int64
}

func (e *ExecStats) observe(p *partition.Page) {
	e.Consumed.Add(p.Consumed)
	e.Fetches++
	e.RowsFetched += int64(len(p.Rows))
}

// Add adds the statistics of e2 to e.
func (e *ExecStats) Add(e2 *ExecStats) {
	e.Consumed.Add(e2.Consumed)
	e.Fetches += e2.Fetches
	e.RowsFetched += e2.RowsFetched
}
