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

// Package unify implements the unifier of SPEC_FULL.md §4.C: merging
// two abstract values (or the heap cells they address) into a sound
// upper bound per rules 1-11. It generalizes the teacher's
// union-find-of-aliasing-references approach in
// internal/pkg/earpointer/state.go (Unify/UnifyReps/mergeFieldMap) from
// "merge two alias partitions, field by field" to "merge two full
// tagged-union values, recursively" — our lattice needs to merge entire
// values, not just points-to sets, so the algorithm is structural
// recursion with a visited set rather than pure union-find.
package unify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

type unifier struct {
	h       *heap.Heap
	visited map[string]bool
}

// Unify merges v1 and v2 into a sound upper bound, threading any heap
// mutations needed along the way (e.g. when two Ptrs to different
// addresses are unified, both addresses' contents are unified in
// place). It is terminating on cyclic heaps: a visited set of address
// sets (each the union of both sides' addresses) short-circuits
// re-entry, returning a reference to that union without recursing
// further (SPEC_FULL.md §4.C).
func Unify(h *heap.Heap, v1, v2 value.Value) (*heap.Heap, value.Value) {
	u := &unifier{h: h, visited: map[string]bool{}}
	v := u.unify(v1, v2)
	return u.h, v
}

func (u *unifier) unify(v1, v2 value.Value) value.Value {
	// Rule 1: structural equality.
	if value.Equal(v1, v2) {
		return v1
	}
	// Rule 2: Any absorbs everything.
	if _, ok := v1.(value.Any); ok {
		return value.Any{}
	}
	if _, ok := v2.(value.Any); ok {
		return value.Any{}
	}

	// Rule 10: taint folds via Sum before any other structural rule
	// applies, so that taint is never silently discarded by a
	// same-type-literal or Ptr/Ref merge.
	if t, ok := foldTaint(v1, v2); ok {
		return t
	}

	// Rules 3-4: literal vs same-type literal/AbstractType widening.
	if w, ok := widenLiteral(v1, v2); ok {
		return w
	}

	// Rule 5: Ptr/Ref unify by address, recursively unifying contents.
	if isAddr(v1) || isAddr(v2) {
		if isAddr(v1) && isAddr(v2) {
			return u.unifyAddrs(v1, v2)
		}
		// one side is not an address at all: no sound merge other than Sum.
		return value.NewSum(v1, v2)
	}

	// Rules 6-7: Record/Object field-wise union; Method id merge.
	if r1, ok := v1.(value.Record); ok {
		if r2, ok2 := v2.(value.Record); ok2 {
			return value.Record{Fields: u.unifyFieldMap(r1.Fields, r2.Fields)}
		}
	}
	if o1, ok := v1.(value.Object); ok {
		if o2, ok2 := v2.(value.Object); ok2 && o1.Class == o2.Class {
			return value.Object{Class: o1.Class, Members: u.unifyFieldMap(o1.Members, o2.Members)}
		}
	}
	if m1, ok := v1.(value.Method); ok {
		if m2, ok2 := v2.(value.Method); ok2 {
			return u.unifyMethod(m1, m2)
		}
	}

	// Rule 8: Map U Map.
	if m1, ok := v1.(value.Map); ok {
		if m2, ok2 := v2.(value.Map); ok2 {
			return value.Map{Key: u.unify(m1.Key, m2.Key), Elem: u.unify(m1.Elem, m2.Elem)}
		}
	}

	// Rule 9 (+ the natural Array/Map extension): Array U Array widens
	// to Map; Array U Map widens the array side and unifies elementwise.
	if a1, ok := v1.(value.Array); ok {
		if a2, ok2 := v2.(value.Array); ok2 {
			return u.unifyArrays(a1, a2)
		}
		if m2, ok2 := v2.(value.Map); ok2 {
			return value.Map{Key: u.unify(value.AbstractType{Kind: value.KindInt}, m2.Key), Elem: u.unify(u.arrayElemUnion(a1), m2.Elem)}
		}
	}
	if m1, ok := v1.(value.Map); ok {
		if a2, ok2 := v2.(value.Array); ok2 {
			return value.Map{Key: u.unify(m1.Key, value.AbstractType{Kind: value.KindInt}), Elem: u.unify(m1.Elem, u.arrayElemUnion(a2))}
		}
	}

	// Rule 11: otherwise, flat Sum. v1 — the accumulator side in every
	// pairwise-fold caller (arrayElemSummary, evalForeach, evalTernary,
	// etc., all of which call Unify(acc, next)) — widens its own literal
	// kind first (scenario 2, SPEC_FULL.md §8): once a value has been
	// merged across a branch of genuinely different shape, it no longer
	// carries a single precise literal. v2, the newly-folded-in
	// contributor, keeps its own precision until some later fold widens
	// it in turn.
	return value.NewSum(widenOwnLiteral(v1), v2)
}

// widenOwnLiteral replaces a precise Bool/Int/Float/String literal with
// its AbstractType, leaving every other value shape untouched.
func widenOwnLiteral(v value.Value) value.Value {
	switch v := v.(type) {
	case value.Bool:
		return value.AbstractType{Kind: value.KindBool}
	case value.Int:
		return value.AbstractType{Kind: value.KindInt}
	case value.Float:
		return value.AbstractType{Kind: value.KindFloat}
	case value.String:
		return value.AbstractType{Kind: value.KindString}
	default:
		return v
	}
}

// foldTaint implements rule 10: if either side carries taint, the
// result is a Sum that preserves the taint label(s) alongside whatever
// the other side was (so taint is never lost to a narrower merge rule).
func foldTaint(v1, v2 value.Value) (value.Value, bool) {
	_, t1 := v1.(value.Taint)
	_, t2 := v2.(value.Taint)
	if !t1 && !t2 {
		return nil, false
	}
	return value.NewSum(v1, v2), true
}

func widenLiteral(v1, v2 value.Value) (value.Value, bool) {
	kindOf := func(v value.Value) (value.AbstractKind, bool) {
		switch v.(type) {
		case value.Bool:
			return value.KindBool, true
		case value.Int:
			return value.KindInt, true
		case value.Float:
			return value.KindFloat, true
		case value.String:
			return value.KindString, true
		}
		return 0, false
	}
	k1, ok1 := kindOf(v1)
	k2, ok2 := kindOf(v2)
	if ok1 && ok2 {
		if k1 == k2 {
			// Rule 3: same concrete type, different content (Equal already
			// ruled out identical content above).
			return value.AbstractType{Kind: k1}, true
		}
		return nil, false
	}
	if ok1 {
		if a2, ok := v2.(value.AbstractType); ok && a2.Kind == k1 {
			// Rule 4: literal vs AbstractType of same underlying type.
			return a2, true
		}
		return nil, false
	}
	if ok2 {
		if a1, ok := v1.(value.AbstractType); ok && a1.Kind == k2 {
			return a1, true
		}
	}
	return nil, false
}

func isAddr(v value.Value) bool {
	switch v.(type) {
	case value.Ptr, value.Ref:
		return true
	}
	return false
}

// unifyAddrs implements rule 5. It unions the address sets of v1/v2,
// and — unless this exact address set is already being unified further
// up the call stack (the cyclic-heap guard) — unifies the contents at
// every address in the union, writing the combined content back to each
// address so that subsequent reads through any of them observe the
// merged value.
func (u *unifier) unifyAddrs(v1, v2 value.Value) value.Value {
	all := map[int]bool{}
	for _, a := range heap.Addrs(v1) {
		all[a] = true
	}
	for _, a := range heap.Addrs(v2) {
		all[a] = true
	}
	if len(all) == 1 {
		for a := range all {
			return value.Ptr{Addr: a}
		}
	}

	key := addrSetKey(all)
	if u.visited[key] {
		return refOrPtr(all)
	}
	u.visited[key] = true

	addrs := sortedAddrs(all)
	var combined value.Value
	for i, a := range addrs {
		c := u.h.Get(a)
		if i == 0 {
			combined = c
		} else {
			combined = u.unify(combined, c)
		}
	}
	for _, a := range addrs {
		u.h.Set(a, combined)
	}
	return refOrPtr(all)
}

func refOrPtr(addrs map[int]bool) value.Value {
	if len(addrs) == 1 {
		for a := range addrs {
			return value.Ptr{Addr: a}
		}
	}
	return value.Ref{Addrs: addrs}
}

func sortedAddrs(addrs map[int]bool) []int {
	out := make([]int, 0, len(addrs))
	for a := range addrs {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

func addrSetKey(addrs map[int]bool) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range sortedAddrs(addrs) {
		parts = append(parts, strconv.Itoa(a))
	}
	return strings.Join(parts, ",")
}

// unifyFieldMap implements the "missing fields on one side unify with
// Null" rule shared by Record U Record and Object U Object. A field
// present on only one side is unified as Null U v whichever side it came
// from, so the Null side is the one rule 11 widens and v keeps its
// precision.
func (u *unifier) unifyFieldMap(f1, f2 map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(f1)+len(f2))
	for k, v1 := range f1 {
		v2, ok := f2[k]
		if !ok {
			out[k] = u.unify(value.Null{}, v1)
			continue
		}
		out[k] = u.unify(v1, v2)
	}
	for k, v2 := range f2 {
		if _, ok := f1[k]; ok {
			continue
		}
		out[k] = u.unify(value.Null{}, v2)
	}
	return out
}

// unifyMethod merges two dispatchable bundles: receivers unify like any
// other value, and the id-keyed closure maps merge via disjoint-key
// union — ids were minted fresh at class-construction time
// (SPEC_FULL.md §4.H), so distinct override targets remain
// distinguishable after unification (§3.1 invariant 4).
func (u *unifier) unifyMethod(m1, m2 value.Method) value.Value {
	ids := make(map[string]value.Closure, len(m1.Ids)+len(m2.Ids))
	for id, c := range m1.Ids {
		ids[id] = c
	}
	for id, c := range m2.Ids {
		ids[id] = c
	}
	return value.Method{Receiver: u.unify(m1.Receiver, m2.Receiver), Ids: ids}
}

// unifyArrays implements rule 9: both arrays promote to
// Map(AbstractType(Int), unify-of-elements).
func (u *unifier) unifyArrays(a1, a2 value.Array) value.Value {
	elem := u.unify(u.arrayElemUnion(a1), u.arrayElemUnion(a2))
	return value.Map{Key: value.AbstractType{Kind: value.KindInt}, Elem: elem}
}

// arrayElemUnion folds an Array's elements into a single summary value.
// An empty array contributes Null, since it carries no element
// information to unify with.
func (u *unifier) arrayElemUnion(a value.Array) value.Value {
	if len(a.Elems) == 0 {
		return value.Null{}
	}
	acc := a.Elems[0]
	for _, e := range a.Elems[1:] {
		acc = u.unify(acc, e)
	}
	return acc
}
