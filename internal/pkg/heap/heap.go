// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package heap implements the pointer operations of SPEC_FULL.md §4.B:
// a finite, monotonically-addressed mapping from addresses to values,
// threaded through every evaluation step. It is the generalization of
// the teacher's earpointer.Reference/field-map bookkeeping
// (internal/pkg/earpointer/heap.go, analysis.go's
// processAddressToValue/getValueReference) from "points-to relation
// between SSA registers" to "address-indexed store of abstract values".
package heap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Heap is the address-indexed store. The zero value is not usable; use
// New.
type Heap struct {
	cells map[int]value.Value
	next  int
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{cells: map[int]value.Value{}}
}

// Clone returns a shallow copy of h. Since Value variants are
// immutable by convention (mutation always goes through Set on a
// specific address), a shallow copy of the address->value map is
// sufficient to give the copy independent mutation history.
func (h *Heap) Clone() *Heap {
	cells := make(map[int]value.Value, len(h.cells))
	for k, v := range h.cells {
		cells[k] = v
	}
	return &Heap{cells: cells, next: h.next}
}

// NewCell allocates a fresh address holding init (Null if init is nil)
// and returns it.
func (h *Heap) NewCell(init value.Value) int {
	if init == nil {
		init = value.Null{}
	}
	addr := h.next
	h.next++
	h.cells[addr] = init
	return addr
}

// Get returns heap[addr], treating a missing address conservatively as
// Null (SPEC_FULL.md §4.B).
func (h *Heap) Get(addr int) value.Value {
	if v, ok := h.cells[addr]; ok {
		return v
	}
	return value.Null{}
}

// Set replaces heap[addr] with v.
func (h *Heap) Set(addr int, v value.Value) {
	h.cells[addr] = v
}

// Chase performs a single-step indirection: if v is a Ptr, returns
// heap[a]; otherwise returns v unchanged. It does not chase multiple
// levels (SPEC_FULL.md §4.B: "Single step only").
func (h *Heap) Chase(v value.Value) value.Value {
	if p, ok := v.(value.Ptr); ok {
		return h.Get(p.Addr)
	}
	return v
}

// ChaseAll dereferences every address in a Ref and returns the stored
// values, not unified, one per address in ascending address order; a Ptr
// yields its single cell and any other value is returned as the only
// element.
func (h *Heap) ChaseAll(v value.Value) []value.Value {
	switch v := v.(type) {
	case value.Ptr:
		return []value.Value{h.Get(v.Addr)}
	case value.Ref:
		addrs := make([]int, 0, len(v.Addrs))
		for a := range v.Addrs {
			addrs = append(addrs, a)
		}
		sort.Ints(addrs)
		vals := make([]value.Value, len(addrs))
		for i, a := range addrs {
			vals[i] = h.Get(a)
		}
		return vals
	default:
		return []value.Value{v}
	}
}

// Addrs returns the set of addresses reachable directly from v (used
// by the unifier to union the address sets of two Ptr/Ref values).
func Addrs(v value.Value) []int {
	switch v := v.(type) {
	case value.Ptr:
		return []int{v.Addr}
	case value.Ref:
		out := make([]int, 0, len(v.Addrs))
		for a := range v.Addrs {
			out = append(out, a)
		}
		sort.Ints(out)
		return out
	}
	return nil
}

// String dumps the heap for diagnostics, addresses in ascending order.
// Cyclic Ptr graphs cannot make this loop (each entry is printed once,
// independently of its contents), matching the teacher's own
// deterministic, non-recursive heap dump style in
// internal/pkg/debug/dump/dump.go.
func (h *Heap) String() string {
	addrs := make([]int, 0, len(h.cells))
	for a := range h.cells {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)
	var b strings.Builder
	for _, a := range addrs {
		fmt.Fprintf(&b, "%d: %s\n", a, h.cells[a])
	}
	return b.String()
}

// Len returns the number of allocated cells.
func (h *Heap) Len() int { return len(h.cells) }
