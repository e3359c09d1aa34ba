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

// Package heap implements a generic min-heap
// used for k-way merges of ordered streams.
package heap

// Heap is a min-heap ordered by a comparison
// function that may fail. Once a comparison
// has failed, the heap stops reordering and
// Err returns the first error; callers must
// check Err after Push, Pop and Fix.
type Heap[T any] struct {
	items []T
	cmp   func(x, y T) (int, error)
	err   error
}

// New returns an empty heap ordered by cmp.
// Ties are broken by tie, if non-nil, which
// lets callers make merges stable.
func New[T any](cmp func(x, y T) (int, error), tie func(x, y T) bool) *Heap[T] {
	h := &Heap[T]{}
	h.cmp = func(x, y T) (int, error) {
		c, err := cmp(x, y)
		if err != nil || c != 0 || tie == nil {
			return c, err
		}
		if tie(x, y) {
			return -1, nil
		}
		if tie(y, x) {
			return 1, nil
		}
		return 0, nil
	}
	return h
}

// Len returns the number of items in the heap.
func (h *Heap[T]) Len() int { return len(h.items) }

// Err returns the first comparison error, if any.
func (h *Heap[T]) Err() error { return h.err }

// Peek returns the smallest item without removing it.
// Peek panics on an empty heap.
func (h *Heap[T]) Peek() T { return h.items[0] }

// Push adds x to the heap.
func (h *Heap[T]) Push(x T) {
	h.items = append(h.items, x)
	h.up(len(h.items) - 1)
}

// Pop removes and returns the smallest item.
// Pop panics on an empty heap.
func (h *Heap[T]) Pop() T {
	ret := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	var zero T
	h.items[last] = zero
	h.items = h.items[:last]
	if len(h.items) > 0 {
		h.down(0)
	}
	return ret
}

// Fix restores the heap ordering after the
// smallest item has been modified in place.
func (h *Heap[T]) Fix() {
	if len(h.items) > 0 {
		h.down(0)
	}
}

// Reset removes every item, keeping the
// allocated storage.
func (h *Heap[T]) Reset() {
	var zero T
	for i := range h.items {
		h.items[i] = zero
	}
	h.items = h.items[:0]
	h.err = nil
}

func (h *Heap[T]) less(i, j int) bool {
	if h.err != nil {
		return false
	}
	c, err := h.cmp(h.items[i], h.items[j])
	if err != nil {
		h.err = err
		return false
	}
	return c < 0
}

func (h *Heap[T]) up(index int) {
	x := h.items
	for index > 0 {
		p := (index - 1) / 2
		if !h.less(index, p) {
			break
		}
		x[p], x[index] = x[index], x[p]
		index = p
	}
}

func (h *Heap[T]) down(index int) {
	x := h.items
	for {
		left := (index * 2) + 1
		right := left + 1
		if left >= len(x) {
			break
		}
		c := left
		if len(x) > right && h.less(right, left) {
			c = right
		}
		if !h.less(c, index) {
			break
		}
		x[c], x[index] = x[index], x[c]
		index = c
	}
}
