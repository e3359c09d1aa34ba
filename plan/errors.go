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
	"github.com/go-kit/log/level"

	"github.com/nosqlx/planexec/sorting"
	"github.com/nosqlx/planexec/values"
)

// ErrMalformedPlan marks every error
// returned for a structurally invalid plan.
var ErrMalformedPlan = errors.New("malformed query plan")

// ErrorKind classifies a user-facing error.
type ErrorKind int

const (
	DivisionByZero ErrorKind = iota + 1
	UnboundVariable
	TypeMismatch
	MemoryLimitExceeded
	InvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case DivisionByZero:
		return "division by zero"
	case UnboundVariable:
		return "unbound variable"
	case TypeMismatch:
		return "type mismatch"
	case MemoryLimitExceeded:
		return "memory limit exceeded"
	case InvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// QueryError is an error caused by the query
// or its input rather than by the engine.
// Location points at the query text span of
// the operator that failed.
type QueryError struct {
	Kind     ErrorKind
	Location Location
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Location, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Diagnostics receives every user-facing
// error before it is returned to the caller.
type Diagnostics interface {
	Report(kind ErrorKind, loc Location, err error)
}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(kind ErrorKind, loc Location, err error)

func (f DiagnosticsFunc) Report(kind ErrorKind, loc Location, err error) {
	f(kind, loc, err)
}

// IsInternal reports whether err is an internal
// error: a malformed plan, an unknown tag code or
// an iterator used against its contract.
func IsInternal(err error) bool {
	return errors.HasAssertionFailure(err) || errors.Is(err, ErrMalformedPlan)
}

// AsQueryError returns the QueryError in
// the chain of err, if there is one.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

func notImplemented(it Iter, method string) error {
	return errors.AssertionFailedf("%s not implemented for %s iterator", method, it.Kind())
}

func malformedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedPlan)
}

// userError builds a QueryError located at it
// and reports it to the diagnostics sink.
func (ec *ExecContext) userError(it Iter, kind ErrorKind, err error) error {
	qe := &QueryError{Kind: kind, Location: it.Location(), Err: err}
	if ec.Diagnostics != nil {
		ec.Diagnostics.Report(kind, qe.Location, err)
	}
	level.Warn(ec.logger()).Log("msg", "query error", "iter", it.Kind(), "kind", kind, "loc", qe.Location, "err", err)
	return qe
}

func (ec *ExecContext) userErrorf(it Iter, kind ErrorKind, format string, args ...interface{}) error {
	return ec.userError(it, kind, errors.Newf(format, args...))
}

// evalError classifies an error returned by the
// value system while evaluating it.
func (ec *ExecContext) evalError(it Iter, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsQueryError(err); ok || IsInternal(err) {
		return err
	}
	switch {
	case errors.Is(err, values.ErrDivisionByZero):
		return ec.userError(it, DivisionByZero, err)
	case errors.Is(err, values.ErrTypeMismatch),
		errors.Is(err, values.ErrIncomparable),
		errors.Is(err, sorting.ErrNotARecord):
		return ec.userError(it, TypeMismatch, err)
	}
	return ec.userError(it, InvalidArgument, err)
}
