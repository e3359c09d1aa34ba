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

	"github.com/cockroachdb/errors"
)

// Phase is the lifecycle phase of an iterator
// within one execution.
type Phase uint8

const (
	PhaseUninit Phase = iota
	PhaseOpen
	PhaseRunning
	PhaseDone
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninit:
		return "uninit"
	case PhaseOpen:
		return "open"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// stateful is implemented by every state
// stored in an ExecContext state slot.
// Kind-specific states embed iterState.
type stateful interface {
	state() *iterState
}

type iterState struct {
	phase Phase
}

func (s *iterState) state() *iterState { return s }

func (s *iterState) running()        { s.phase = PhaseRunning }
func (s *iterState) setDone()        { s.phase = PhaseDone }
func (s *iterState) reset()          { s.phase = PhaseOpen }
func (s *iterState) close()          { s.phase = PhaseClosed }
func (s *iterState) isClosed() bool  { return s.phase == PhaseClosed }
func (s *iterState) isDone() bool    { return s.phase == PhaseDone || s.phase == PhaseClosed }
func (s *iterState) isStarted() bool { return s.phase == PhaseRunning || s.isDone() }

// initState installs st as the state of it,
// replacing whatever state was there before.
func (ec *ExecContext) initState(it Iter, st stateful) {
	st.state().phase = PhaseOpen
	ec.states[it.StatePos()] = st
}

// stateOf returns the state of it, which
// must have been opened with a T.
func stateOf[T stateful](ec *ExecContext, it Iter) (T, error) {
	var zero T
	s := ec.states[it.StatePos()]
	if s == nil {
		return zero, errors.AssertionFailedf("%s iterator at state %d used before open", it.Kind(), it.StatePos())
	}
	t, ok := s.(T)
	if !ok {
		return zero, errors.AssertionFailedf("%s iterator at state %d has state %T", it.Kind(), it.StatePos(), s)
	}
	return t, nil
}

// resetState returns the state of it to the
// just-opened phase.
func (ec *ExecContext) resetState(it Iter) error {
	s := ec.states[it.StatePos()]
	if s == nil {
		return errors.AssertionFailedf("reset of %s iterator at state %d before open", it.Kind(), it.StatePos())
	}
	if s.state().isClosed() {
		return errors.AssertionFailedf("reset of closed %s iterator at state %d", it.Kind(), it.StatePos())
	}
	s.state().reset()
	return nil
}

// closeState marks the state of it closed and
// reports whether it was not closed already.
func (ec *ExecContext) closeState(it Iter) bool {
	s := ec.states[it.StatePos()]
	if s == nil || s.state().isClosed() {
		return false
	}
	s.state().close()
	return true
}
