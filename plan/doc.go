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

// Package plan is the query plan runtime.
//
// Decode turns the binary plan produced by the
// server into a Plan: an immutable tree of Iters.
// Each execution of a Plan gets its own
// ExecContext, which owns the registers and
// state slots the iterators read and write, so
// one Plan can be executed by many goroutines
// at once.
package plan
