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
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/google/uuid"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/values"
)

// DefaultSortRunSize is the number of rows per
// sorted run used by SORT2 when
// ExecContext.SortRunSize is not set.
const DefaultSortRunSize = 1024

// ExecContext holds all of the mutable state of
// one execution of a Plan. The Plan itself is
// never written to, so any number of contexts
// may drive the same Plan concurrently; a single
// ExecContext must only be used by one goroutine.
type ExecContext struct {
	// Context indicates the cancellation scope
	// of the execution. It is passed to the
	// partition source on every fetch.
	Context context.Context
	// ID identifies the execution in logs.
	ID uuid.UUID
	// Logger receives debug and warning events.
	// If Logger is nil, nothing is logged. Events
	// do not carry ID; attach it with log.With.
	Logger log.Logger
	// Diagnostics, if non-nil, receives every
	// user-facing error.
	Diagnostics Diagnostics
	// Source supplies partition pages to RECV.
	Source partition.Source
	// Table is passed to Source with every request.
	Table partition.Table
	// MaxMemory is the number of bytes that
	// memory-counting iterators may buffer.
	// Zero means no limit.
	MaxMemory int64
	// SortRunSize is the run length used by SORT2.
	SortRunSize int
	// MaxFetches is the number of pages that may
	// be fetched before the execution suspends.
	// Zero means no limit.
	MaxFetches int
	// Stats are collected during execution.
	Stats ExecStats

	plan      *Plan
	regs      []values.Value
	states    []stateful
	externals []values.Value
	resume    []partition.Position
	suspended bool
	memory    int64
}

// NewExecContext returns a fresh context for
// executing p.
func NewExecContext(ctx context.Context, p *Plan) *ExecContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ExecContext{
		Context:   ctx,
		ID:        uuid.New(),
		plan:      p,
		regs:      make([]values.Value, p.NumRegs),
		states:    make([]stateful, p.NumStates),
		externals: make([]values.Value, p.numExternals),
	}
}

// Plan returns the plan ec executes.
func (ec *ExecContext) Plan() *Plan { return ec.plan }

func (ec *ExecContext) logger() log.Logger {
	if ec.Logger == nil {
		return log.NewNopLogger()
	}
	return ec.Logger
}

// Reg returns the value in register i.
func (ec *ExecContext) Reg(i int) values.Value {
	if i < 0 || i >= len(ec.regs) {
		return nil
	}
	return ec.regs[i]
}

// Value returns the value it produced on its
// last successful Next.
func (ec *ExecContext) Value(it Iter) (values.Value, error) {
	v := ec.Reg(it.ResultReg())
	if v == nil {
		return nil, errors.AssertionFailedf("%s iterator at %s left register %d unset", it.Kind(), it.Location(), it.ResultReg())
	}
	return v, nil
}

func (ec *ExecContext) setReg(i int, v values.Value) {
	if i >= 0 {
		ec.regs[i] = v
	}
}

// SetExternal binds the external variable name to v.
func (ec *ExecContext) SetExternal(name string, v values.Value) error {
	id, ok := ec.plan.externals[name]
	if !ok {
		return errors.Newf("query has no external variable %q", name)
	}
	ec.externals[id] = v
	return nil
}

// SetExternalID binds the external variable
// with the given id to v.
func (ec *ExecContext) SetExternalID(id int, v values.Value) error {
	if id < 0 || id >= len(ec.externals) {
		return errors.Newf("external variable id %d out of range", id)
	}
	ec.externals[id] = v
	return nil
}

// Resume sets the partition positions RECV
// resumes from. It must be called before Open.
func (ec *ExecContext) Resume(pos []partition.Position) {
	ec.resume = pos
}

func (ec *ExecContext) resumeFrom(id partition.ID) (partition.Position, bool) {
	for i := range ec.resume {
		if ec.resume[i].Partition == id {
			return ec.resume[i], true
		}
	}
	return partition.Position{}, false
}

// Suspended reports whether the execution stopped
// early because its fetch budget ran out.
// A suspended execution has more rows to produce.
func (ec *ExecContext) Suspended() bool { return ec.suspended }

// MemoryUsed returns the number of bytes currently
// accounted to memory-counting iterators.
func (ec *ExecContext) MemoryUsed() int64 { return ec.memory }

// grow accounts n more bytes to it.
func (ec *ExecContext) grow(it Iter, n int64) error {
	ec.memory += n
	if ec.MaxMemory > 0 && ec.memory > ec.MaxMemory {
		return ec.userErrorf(it, MemoryLimitExceeded, "%d bytes buffered exceeds limit of %d", ec.memory, ec.MaxMemory)
	}
	return nil
}

func (ec *ExecContext) shrink(n int64) {
	ec.memory -= n
	if ec.memory < 0 {
		ec.memory = 0
	}
}

func (ec *ExecContext) canFetch() bool {
	return ec.MaxFetches <= 0 || ec.Stats.Fetches < ec.MaxFetches
}

func (ec *ExecContext) sortRunSize() int {
	if ec.SortRunSize <= 0 {
		return DefaultSortRunSize
	}
	return ec.SortRunSize
}
