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
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/values"
)

// fixture describes the partitions a plan
// is run against, as read from YAML:
//
//	table: users
//	externals:
//	  $x: 10
//	partitions:
//	  - id: 0
//	    pages:
//	      - [{id: 1}, {id: 2}]
//	      - [{id: 3}]
//
// Fixtures are parsed as YAML 1.1, so unquoted
// keys such as y, n, on and off are booleans
// and become the fields "true" and "false".
// Quote them to keep them as strings.
type fixture struct {
	Namespace   string         `json:"namespace"`
	Table       string         `json:"table"`
	PrimaryKey  []string       `json:"primary_key"`
	Externals   map[string]any `json:"externals"`
	UnitsPerRow int64          `json:"units_per_row"`
	Partitions  []struct {
		ID    int32   `json:"id"`
		Pages [][]any `json:"pages"`
	} `json:"partitions"`
}

func loadFixture(path string) (*fixture, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseFixture(buf)
}

func parseFixture(buf []byte) (*fixture, error) {
	f := new(fixture)
	if err := yaml.UnmarshalStrict(buf, f); err != nil {
		return nil, errors.Wrap(err, "parsing fixture")
	}
	return f, nil
}

func (f *fixture) table() partition.Table {
	return partition.Table{Namespace: f.Namespace, Name: f.Table, PrimaryKey: f.PrimaryKey}
}

// source returns a fresh in-memory source
// holding the fixture partitions.
func (f *fixture) source() (*partition.Memory, error) {
	m := partition.NewMemory()
	if f.UnitsPerRow > 0 {
		m.ReadUnitsPerRow = f.UnitsPerRow
	}
	seen := make(map[int32]bool)
	for i := range f.Partitions {
		p := &f.Partitions[i]
		if seen[p.ID] {
			return nil, errors.Newf("partition %d listed twice", p.ID)
		}
		seen[p.ID] = true
		pages := make([][]values.Value, len(p.Pages))
		for j, page := range p.Pages {
			pages[j] = make([]values.Value, len(page))
			for k, row := range page {
				v, err := values.FromGo(row)
				if err != nil {
					return nil, errors.Wrapf(err, "partition %d page %d row %d", p.ID, j, k)
				}
				pages[j][k] = v
			}
		}
		m.AddPages(partition.ID(p.ID), pages...)
	}
	return m, nil
}

func (f *fixture) externals() (map[string]values.Value, error) {
	names := maps.Keys(f.Externals)
	slices.Sort(names)
	out := make(map[string]values.Value, len(names))
	for _, name := range names {
		v, err := values.FromGo(f.Externals[name])
		if err != nil {
			return nil, errors.Wrapf(err, "external %s", name)
		}
		out[name] = v
	}
	return out, nil
}
