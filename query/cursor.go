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

package query

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log/level"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/values"
)

// ErrCursorClosed is returned by Next
// after the cursor has been closed.
var ErrCursorClosed = errors.New("cursor is closed")

// Cursor iterates over the result rows of one
// execution. A Cursor must only be used by
// one goroutine.
type Cursor struct {
	p     *Prepared
	ec    *plan.ExecContext
	start time.Time
	rows  int64

	done   bool
	closed bool
	err    error
}

func newCursor(p *Prepared, ec *plan.ExecContext) *Cursor {
	return &Cursor{p: p, ec: ec, start: time.Now()}
}

// Next returns the next result row.
// It returns false once the results are
// exhausted or an error has occurred.
func (c *Cursor) Next() (values.Value, bool, error) {
	if c.closed {
		return nil, false, ErrCursorClosed
	}
	if c.err != nil {
		return nil, false, c.err
	}
	if c.done {
		return nil, false, nil
	}
	root := c.p.plan.Root
	more, err := root.Next(c.ec)
	if err != nil {
		c.fail(err)
		return nil, false, err
	}
	if !more {
		c.done = true
		return nil, false, nil
	}
	v, err := c.ec.Value(root)
	if err != nil {
		c.fail(err)
		return nil, false, err
	}
	c.rows++
	return v, true, nil
}

func (c *Cursor) fail(err error) {
	c.err = err
	c.p.eng.metrics.executions.WithLabelValues(outcomeFailed).Inc()
	switch _, user := plan.AsQueryError(err); {
	case plan.IsInternal(err):
		level.Error(c.ec.Logger).Log("msg", "execution failed", "err", err)
	case user:
		// already logged where it was raised
		level.Debug(c.ec.Logger).Log("msg", "execution failed", "err", err)
	default:
		level.Warn(c.ec.Logger).Log("msg", "execution failed", "err", err)
	}
}

// Err returns the error that stopped the cursor.
func (c *Cursor) Err() error { return c.err }

// Close releases the resources of the execution.
// Calling Close more than once is harmless.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.p.plan.Root.Close(c.ec)
	m := c.p.eng.metrics
	elapsed := time.Since(c.start)
	m.finish(&c.ec.Stats, c.rows, elapsed)
	if c.err == nil {
		if c.ec.Suspended() {
			m.executions.WithLabelValues(outcomeSuspended).Inc()
		} else if c.done {
			m.executions.WithLabelValues(outcomeCompleted).Inc()
		}
	}
	used := c.ec.Stats.Consumed
	level.Debug(c.ec.Logger).Log("msg", "execution finished", "rows", c.rows,
		"pages", c.ec.Stats.Fetches, "read_units", used.ReadUnits, "read_kb", used.ReadKB,
		"write_units", used.WriteUnits, "write_kb", used.WriteKB,
		"suspended", c.ec.Suspended(), "elapsed", elapsed)
	return err
}

// Capacity returns the capacity consumed
// so far by the execution.
func (c *Cursor) Capacity() partition.Capacity { return c.ec.Stats.Consumed }

// Stats returns the execution statistics.
func (c *Cursor) Stats() plan.ExecStats { return c.ec.Stats }

// Suspended reports whether the execution
// stopped because its fetch budget ran out.
func (c *Cursor) Suspended() bool { return c.ec.Suspended() }

// ContinuationKey returns the key that resumes
// the query after the last row returned by Next,
// or nil if no rows remain. A key can be taken
// mid-stream only from resumable plans; other
// plans return ErrNotResumable until they are
// exhausted.
func (c *Cursor) ContinuationKey() ([]byte, error) {
	if c.err != nil {
		return nil, errors.Wrap(c.err, "execution failed")
	}
	recv := c.p.plan.Receive()
	if c.done && !c.ec.Suspended() {
		return nil, nil
	}
	if !c.p.plan.Resumable() {
		return nil, ErrNotResumable
	}
	if recv.Exhausted(c.ec) {
		return nil, nil
	}
	pos, err := recv.Positions(c.ec)
	if err != nil {
		return nil, err
	}
	return EncodeContinuation(pos), nil
}
