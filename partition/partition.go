// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package partition defines the collaborator
// that executes sub-plans against individual
// partitions or shards and returns their rows
// one page at a time.
package partition

import (
	"context"
	"strconv"

	"github.com/nosqlx/planexec/values"
)

// ID identifies a partition or shard.
type ID int32

// Distribution describes how the rows
// of a query are spread over partitions.
// The numeric values are part of the plan
// wire format.
type Distribution int16

const (
	SinglePartition Distribution = iota
	AllPartitions
	AllShards
)

// NumDistributions is the number of valid
// Distribution values.
const NumDistributions = 3

func (d Distribution) String() string {
	switch d {
	case SinglePartition:
		return "SINGLE_PARTITION"
	case AllPartitions:
		return "ALL_PARTITIONS"
	case AllShards:
		return "ALL_SHARDS"
	}
	return "Distribution(" + strconv.Itoa(int(d)) + ")"
}

// Table is the metadata of the queried table.
type Table struct {
	Namespace  string
	Name       string
	PrimaryKey []string
}

// Capacity is an amount of read and write
// throughput consumed by a request.
type Capacity struct {
	ReadUnits  int64
	ReadKB     int64
	WriteUnits int64
	WriteKB    int64
}

// Add adds c2 to c.
func (c *Capacity) Add(c2 Capacity) {
	c.ReadUnits += c2.ReadUnits
	c.ReadKB += c2.ReadKB
	c.WriteUnits += c2.WriteUnits
	c.WriteKB += c2.WriteKB
}

// Request asks for the next page of one partition.
type Request struct {
	Table        Table
	Distribution Distribution
	Partition    ID
	// Continuation is nil for the first page
	// and otherwise the continuation returned
	// with the previous page of this partition.
	Continuation []byte
}

// Page is one batch of rows from a partition.
type Page struct {
	Rows []values.Value
	// Continuation is non-nil when the
	// partition has more rows.
	Continuation []byte
	Consumed     Capacity
}

// Source fetches pages of partition results.
// Fetch may block; it is the only place where
// query execution waits on the network.
type Source interface {
	// Partitions lists the partitions a query
	// with the given distribution must read.
	Partitions(ctx context.Context, t Table, d Distribution) ([]ID, error)
	// Fetch returns the next page of one partition.
	Fetch(ctx context.Context, req *Request) (*Page, error)
}

// Position is the resume point of one partition.
type Position struct {
	Partition ID
	// Finished is set once every row of
	// the partition has been consumed.
	Finished bool
	// Token is the continuation that fetches
	// the page the partition resumes in
	// (nil for the first page).
	Token []byte
	// Skip is the number of rows of that
	// page that have already been consumed.
	Skip int
}
