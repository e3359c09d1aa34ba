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
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Plan is a validated, immutable iterator tree.
// A Plan may be executed by any number of
// ExecContexts concurrently.
type Plan struct {
	// Root is the iterator producing query results.
	Root Iter
	// Version is the protocol version
	// the plan was decoded with.
	Version int16
	// NumRegs is the number of registers
	// the plan writes to.
	NumRegs int
	// NumStates is the number of state slots.
	NumStates int

	externals    map[string]int
	numExternals int
	recv         *Receive
	resumable    bool
}

// New validates the tree rooted at root and
// returns it as a Plan. State slots must be
// unique and dense; registers may be shared.
func New(root Iter, version int16) (*Plan, error) {
	if root == nil {
		return nil, malformedf("plan has no root iterator")
	}
	p := &Plan{
		Root:      root,
		Version:   version,
		externals: make(map[string]int),
	}
	seen := make(map[int]Iter)
	var err error
	Walk(root, func(it Iter) bool {
		err = p.check(it, seen)
		return err == nil
	})
	if err == nil {
		err = checkScope(root, nil, false)
	}
	if err != nil {
		if errors.HasAssertionFailure(err) {
			return nil, err
		}
		return nil, errors.Mark(err, ErrMalformedPlan)
	}
	p.NumStates = len(seen)
	for i := 0; i < p.NumStates; i++ {
		if _, ok := seen[i]; !ok {
			return nil, malformedf("state slots are not dense: %d iterators but slot %d is unused", p.NumStates, i)
		}
	}
	p.resumable = p.computeResumable()
	return p, nil
}

func (p *Plan) check(it Iter, seen map[int]Iter) error {
	if err := it.validate(); err != nil {
		return errors.Wrapf(err, "%s iterator at %s", it.Kind(), it.Location())
	}
	h := it.header()
	if h.State < 0 {
		return errors.Newf("%s iterator has negative state slot %d", it.Kind(), h.State)
	}
	if prev, ok := seen[h.State]; ok {
		return errors.Newf("%s and %s iterators share state slot %d", prev.Kind(), it.Kind(), h.State)
	}
	seen[h.State] = it
	if h.Result < -1 || (h.Result == -1 && !it.Kind().aggregate()) {
		return errors.Newf("%s iterator has invalid result register %d", it.Kind(), h.Result)
	}
	if h.Result >= p.NumRegs {
		p.NumRegs = h.Result + 1
	}
	switch it := it.(type) {
	case *ExternalVarRef:
		if id, ok := p.externals[it.Name]; ok && id != it.ID {
			return errors.Newf("external variable %q bound to ids %d and %d", it.Name, id, it.ID)
		}
		p.externals[it.Name] = it.ID
		if it.ID >= p.numExternals {
			p.numExternals = it.ID + 1
		}
	case *Sort2:
		if p.Version < 2 {
			return errors.Newf("%s requires plan version 2, have %d", it.Kind(), p.Version)
		}
	case *Receive:
		if p.recv != nil {
			return errors.Newf("plan has more than one %s iterator", it.Kind())
		}
		p.recv = it
	}
	return nil
}

// binding is a FROM variable in scope
// and the register it is bound to.
type binding struct {
	name string
	reg  int
}

// checkScope verifies that every VAR_REF reads the
// register of a FROM variable of an enclosing SFW
// that is bound before it is evaluated. Only the
// aggregate columns of a grouping SFW, which are
// read through AggrValue, may lack a register.
func checkScope(it Iter, scope []binding, aggrColumn bool) error {
	if it.ResultReg() < 0 && !aggrColumn {
		return errors.Newf("%s iterator at %s has no result register", it.Kind(), it.Location())
	}
	switch it := it.(type) {
	case *VarRef:
		for i := len(scope) - 1; i >= 0; i-- {
			if scope[i].name != it.Name {
				continue
			}
			if scope[i].reg != it.Result {
				return errors.Newf("variable %s at %s reads register %d but is bound to register %d",
					it.Name, it.Location(), it.Result, scope[i].reg)
			}
			return nil
		}
		return errors.Newf("variable %s at %s is not bound by an enclosing FROM", it.Name, it.Location())
	case *SFW:
		inner := scope[:len(scope):len(scope)]
		for i, f := range it.From {
			if err := checkScope(f, inner, false); err != nil {
				return err
			}
			inner = append(inner, binding{name: it.FromVars[i], reg: f.ResultReg()})
		}
		if it.Where != nil {
			if err := checkScope(it.Where, inner, false); err != nil {
				return err
			}
		}
		for i, c := range it.Columns {
			if err := checkScope(c, inner, it.grouping() && i >= it.NumGroupBy); err != nil {
				return err
			}
		}
		// OFFSET and LIMIT are evaluated on Open,
		// before anything is bound
		for _, c := range []Iter{it.Offset, it.Limit} {
			if c == nil {
				continue
			}
			if err := checkScope(c, nil, false); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range it.Children() {
		if err := checkScope(c, scope, false); err != nil {
			return err
		}
	}
	return nil
}

// computeResumable reports whether every row
// the root produces corresponds to exactly the
// RECV rows consumed so far, which is what lets
// a continuation key be taken between rows.
// That holds when every iterator between the
// root and RECV is a non-grouping, unpaginated
// SFW over RECV as its only FROM source.
func (p *Plan) computeResumable() bool {
	if p.recv == nil || p.recv.Dedup() {
		return false
	}
	it := p.Root
	for it != p.recv {
		s, ok := it.(*SFW)
		if !ok || len(s.From) != 1 || s.grouping() || s.Offset != nil || s.Limit != nil {
			return false
		}
		it = s.From[0]
	}
	return true
}

// Receive returns the RECV iterator
// of the plan, or nil.
func (p *Plan) Receive() *Receive { return p.recv }

// Resumable reports whether execution can be
// suspended and resumed between any two rows.
func (p *Plan) Resumable() bool { return p.resumable }

// Externals returns the names of the external
// variables the plan reads, sorted.
func (p *Plan) Externals() []string {
	names := maps.Keys(p.externals)
	slices.Sort(names)
	return names
}

// Display renders the plan for diagnostics.
func (p *Plan) Display() string { return Display(p.Root) }

// Encode serializes the plan.
func (p *Plan) Encode() []byte { return Encode(p.Root) }
