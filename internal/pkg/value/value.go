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

// Package value defines the abstract value domain: the semi-lattice
// described in SPEC_FULL.md §3.1. A Value is one of a fixed set of
// tagged variants. This mirrors the teacher's Reference taxonomy in
// internal/pkg/earpointer/heap.go (an interface with several concrete
// implementors), generalized from "kinds of heap reference" to "kinds
// of abstract value".
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Value is the interface implemented by every variant of the value
// lattice. It is deliberately minimal: type-switch on the concrete type
// to interpret a Value, matching how the teacher type-switches on
// concrete ssa instruction/value types throughout interp/interpreter.go
// and earpointer/analysis.go.
type Value interface {
	fmt.Stringer
	isValue()
}

// AbstractKind names the known-type-unknown-content variants.
type AbstractKind int

const (
	KindInt AbstractKind = iota
	KindBool
	KindFloat
	KindString
	KindXhp
)

func (k AbstractKind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindBool:
		return "Bool"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindXhp:
		return "Xhp"
	}
	return "?"
}

// Any is top: no information.
type Any struct{}

func (Any) isValue()      {}
func (Any) String() string { return "Any" }

// Null is the distinguished null value.
type Null struct{}

func (Null) isValue()       {}
func (Null) String() string { return "Null" }

// AbstractType is a known type with unknown content.
type AbstractType struct{ Kind AbstractKind }

func (AbstractType) isValue() {}
func (a AbstractType) String() string {
	return a.Kind.String()
}

// Bool is a known literal boolean.
type Bool struct{ V bool }

func (Bool) isValue()       {}
func (b Bool) String() string { return fmt.Sprintf("Bool(%v)", b.V) }

// Int is a known literal integer.
type Int struct{ V int64 }

func (Int) isValue()       {}
func (i Int) String() string { return fmt.Sprintf("Int(%d)", i.V) }

// Float is a known literal float.
type Float struct{ V float64 }

func (Float) isValue()       {}
func (f Float) String() string { return fmt.Sprintf("Float(%g)", f.V) }

// String is a known literal string.
type String struct{ V string }

func (String) isValue()       {}
func (s String) String() string { return fmt.Sprintf("String(%q)", s.V) }

// Ptr is an indirection to a single heap address.
type Ptr struct{ Addr int }

func (Ptr) isValue()       {}
func (p Ptr) String() string { return fmt.Sprintf("Ptr(%d)", p.Addr) }

// Ref is a multi-target reference: the set of possible addresses,
// always of size >= 1 (a singleton Ref is never constructed; use Ptr).
type Ref struct{ Addrs map[int]bool }

func (Ref) isValue() {}
func (r Ref) String() string {
	addrs := make([]int, 0, len(r.Addrs))
	for a := range r.Addrs {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("%d", a)
	}
	return fmt.Sprintf("Ref({%s})", strings.Join(parts, ","))
}

// NewRef builds a Ref from a variadic address list.
func NewRef(addrs ...int) Ref {
	m := make(map[int]bool, len(addrs))
	for _, a := range addrs {
		m[a] = true
	}
	return Ref{Addrs: m}
}

// Record is a string-keyed map with statically known keys.
type Record struct{ Fields map[string]Value }

func (Record) isValue() {}
func (r Record) String() string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, r.Fields[k])
	}
	return fmt.Sprintf("Record{%s}", strings.Join(parts, ", "))
}

// Array is a positional list of values, typically small.
type Array struct{ Elems []Value }

func (Array) isValue() {}
func (a Array) String() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.String()
	}
	return fmt.Sprintf("Array[%s]", strings.Join(parts, ", "))
}

// Map is an abstract, unbounded associative container: one summary key
// and one summary element, as described in SPEC_FULL.md §3.1.
type Map struct {
	Key  Value
	Elem Value
}

func (Map) isValue() {}
func (m Map) String() string {
	return fmt.Sprintf("Map(%s -> %s)", m.Key, m.Elem)
}

// Object is a class instance: field and method names map to values;
// method entries are Method values.
type Object struct {
	Class   string
	Members map[string]Value
}

func (Object) isValue() {}
func (o Object) String() string {
	keys := make([]string, 0, len(o.Members))
	for k := range o.Members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, o.Members[k])
	}
	return fmt.Sprintf("Object<%s>{%s}", o.Class, strings.Join(parts, ", "))
}

// Closure is a single concrete dispatch target bound to a function
// name; Method.Ids maps a disambiguating id to a Closure.
type Closure struct {
	FuncName string
}

// Method is a dispatchable bundle: a receiver value (Null for
// statically-bound dispatch) plus an id-keyed map of concrete closures,
// so that unification-driven merges of overriding methods keep distinct
// targets distinguishable by id (SPEC_FULL.md §3.1 invariant 4, §4.G).
type Method struct {
	Receiver Value
	Ids      map[string]Closure
}

func (Method) isValue() {}
func (m Method) String() string {
	ids := make([]string, 0, len(m.Ids))
	for id := range m.Ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s->%s", id, m.Ids[id].FuncName)
	}
	return fmt.Sprintf("Method(%s){%s}", m.Receiver, strings.Join(parts, ", "))
}

// Sum is a flat, deduplicated union of at least two distinct
// alternatives (invariant 1 in SPEC_FULL.md §3.1 / §8).
type Sum struct{ Alts []Value }

func (Sum) isValue() {}
func (s Sum) String() string {
	parts := make([]string, len(s.Alts))
	for i, a := range s.Alts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("Sum[%s]", strings.Join(parts, ", "))
}

// Taint is a taint sentinel carrying a label describing its origin.
type Taint struct{ Label string }

func (Taint) isValue()       {}
func (t Taint) String() string { return fmt.Sprintf("Taint(%s)", t.Label) }

// NewSum flattens and deduplicates alternatives per invariant 1, and
// collapses to the single alternative if only one distinct value
// remains.
func NewSum(alts ...Value) Value {
	var flat []Value
	for _, a := range alts {
		if s, ok := a.(Sum); ok {
			flat = append(flat, s.Alts...)
		} else {
			flat = append(flat, a)
		}
	}
	var deduped []Value
	for _, a := range flat {
		dup := false
		for _, d := range deduped {
			if Equal(a, d) {
				dup = true
				break
			}
		}
		if !dup {
			deduped = append(deduped, a)
		}
	}
	if len(deduped) == 1 {
		return deduped[0]
	}
	return Sum{Alts: deduped}
}

// Equal reports structural equality where decidable. Ptr/Ref are
// compared by address set; Object/Record/Method are compared
// recursively; anything not decidably equal (e.g. two Anys always
// compare equal, but two distinct Objects with cyclic members are
// compared shallowly) returns false rather than risking non-termination
// — callers that need cycle safety go through unify.Unify instead,
// which carries a visited set.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case Any:
		_, ok := b.(Any)
		return ok
	case Null:
		_, ok := b.(Null)
		return ok
	case AbstractType:
		bb, ok := b.(AbstractType)
		return ok && a.Kind == bb.Kind
	case Bool:
		bb, ok := b.(Bool)
		return ok && a.V == bb.V
	case Int:
		bb, ok := b.(Int)
		return ok && a.V == bb.V
	case Float:
		bb, ok := b.(Float)
		return ok && a.V == bb.V
	case String:
		bb, ok := b.(String)
		return ok && a.V == bb.V
	case Ptr:
		bb, ok := b.(Ptr)
		return ok && a.Addr == bb.Addr
	case Ref:
		bb, ok := b.(Ref)
		if !ok || len(a.Addrs) != len(bb.Addrs) {
			return false
		}
		for addr := range a.Addrs {
			if !bb.Addrs[addr] {
				return false
			}
		}
		return true
	case Record:
		bb, ok := b.(Record)
		if !ok || len(a.Fields) != len(bb.Fields) {
			return false
		}
		for k, v := range a.Fields {
			bv, ok := bb.Fields[k]
			if !ok || !Equal(v, bv) {
				return false
			}
		}
		return true
	case Array:
		bb, ok := b.(Array)
		if !ok || len(a.Elems) != len(bb.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], bb.Elems[i]) {
				return false
			}
		}
		return true
	case Map:
		bb, ok := b.(Map)
		return ok && Equal(a.Key, bb.Key) && Equal(a.Elem, bb.Elem)
	case Object:
		bb, ok := b.(Object)
		if !ok || a.Class != bb.Class || len(a.Members) != len(bb.Members) {
			return false
		}
		for k, v := range a.Members {
			bv, ok := bb.Members[k]
			if !ok || !Equal(v, bv) {
				return false
			}
		}
		return true
	case Method:
		bb, ok := b.(Method)
		if !ok || !Equal(a.Receiver, bb.Receiver) || len(a.Ids) != len(bb.Ids) {
			return false
		}
		for id, c := range a.Ids {
			bc, ok := bb.Ids[id]
			if !ok || bc.FuncName != c.FuncName {
				return false
			}
		}
		return true
	case Sum:
		bb, ok := b.(Sum)
		if !ok || len(a.Alts) != len(bb.Alts) {
			return false
		}
		for _, av := range a.Alts {
			found := false
			for _, bv := range bb.Alts {
				if Equal(av, bv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case Taint:
		bb, ok := b.(Taint)
		return ok && a.Label == bb.Label
	}
	return false
}

// IsTainted reports whether v carries taint anywhere at its top level
// (a Taint value itself, or a Sum containing one). It does not recurse
// into Record/Object fields — callers that need field-sensitive taint
// detection use internal/pkg/taint's heap-aware traversal instead.
func IsTainted(v Value) bool {
	switch v := v.(type) {
	case Taint:
		return true
	case Sum:
		for _, a := range v.Alts {
			if IsTainted(a) {
				return true
			}
		}
	}
	return false
}
