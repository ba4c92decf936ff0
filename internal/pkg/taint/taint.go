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

// Package taint implements the pluggable taint-hook interface of
// SPEC_FULL.md §4.I: recognizing taint sources (the reserved
// superglobals and configured source classes/fields), sinks (render
// calls), and sanitizers, and deciding whether a sink's arguments
// still carry a source's taint after however many unifications and
// heap indirections separate them. It is grounded on the teacher's
// internal/pkg/earpointer/taint.go (srcRefs/canReach/heapTraversal),
// generalized from alias-set reachability over a points-to partition
// to direct reachability over our tagged-union Value lattice, since
// our values embed taint explicitly (via Taint/Sum) rather than via a
// separate alias side-table. Matcher classification itself is
// delegated to internal/pkg/config, a direct rename of the teacher's
// config.Matcher/sourceMatcher/funcMatcher types.
package taint

import (
	"github.com/dynscript/absinterp/internal/pkg/config"
	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Reserved superglobal sources: these never go through a
// config.SourceMatcher because every object-language program agrees on
// their taintedness (SPEC_FULL.md §4.I).
var Superglobals = map[string]bool{
	"$_GET":     true,
	"$_POST":    true,
	"$_REQUEST": true,
}

// Finding records that a tainted value reached a sink (SPEC_FULL.md
// §6.2), mirroring the shape of the teacher's SourceSinkTrace while
// naming fields after our own Sink/Source/Label vocabulary rather than
// ssa.Instruction/source.Source.
type Finding struct {
	Sink   string // "<class>::<name>" or "<name>" for a free function
	Source string // the superglobal name or configured source class.field that originated the taint
	Label  string // the Taint.Label carried by the offending value
}

// Hook is the pluggable classification surface the evaluator consults
// on every call (SPEC_FULL.md §4.I); it is satisfied by *config.Config
// directly; a test stand-in can implement it without touching YAML.
type Hook interface {
	IsSource(class string) bool
	IsSourceField(class, field string) bool
	IsSink(class, name string) bool
	IsSanitizer(class, name string) bool
	IsExcluded(class, name string) bool
}

// SourceValue returns the tainted value bound to a reserved superglobal
// or to a configured source field on first reference.
func SourceValue(label string) value.Value {
	return value.Taint{Label: label}
}

// Reaches reports whether v — dereferenced through the heap as needed —
// still carries taint, recursing into Record/Object/Map/Array
// composite structure the way the teacher's heapTraversal recurses into
// struct/slice/map fields to find tainted sub-elements. It is
// cycle-safe: each address is visited at most once.
func Reaches(h *heap.Heap, v value.Value) bool {
	return reaches(h, v, map[int]bool{})
}

func reaches(h *heap.Heap, v value.Value, visited map[int]bool) bool {
	switch v := v.(type) {
	case value.Taint:
		return true
	case value.Sum:
		for _, alt := range v.Alts {
			if reaches(h, alt, visited) {
				return true
			}
		}
		return false
	case value.Ptr:
		if visited[v.Addr] {
			return false
		}
		visited[v.Addr] = true
		return reaches(h, h.Get(v.Addr), visited)
	case value.Ref:
		for a := range v.Addrs {
			if visited[a] {
				continue
			}
			visited[a] = true
			if reaches(h, h.Get(a), visited) {
				return true
			}
		}
		return false
	case value.Record:
		for _, f := range v.Fields {
			if reaches(h, f, visited) {
				return true
			}
		}
		return false
	case value.Object:
		for _, m := range v.Members {
			if reaches(h, m, visited) {
				return true
			}
		}
		return false
	case value.Map:
		return reaches(h, v.Elem, visited)
	case value.Array:
		for _, e := range v.Elems {
			if reaches(h, e, visited) {
				return true
			}
		}
		return false
	case value.Method:
		return reaches(h, v.Receiver, visited)
	default:
		return false
	}
}

// Label returns the first Taint label reachable from v, or "" if none.
// Used to populate Finding.Label with a representative source when a
// sink's argument is found tainted.
func Label(h *heap.Heap, v value.Value) string {
	label, _ := label(h, v, map[int]bool{})
	return label
}

func label(h *heap.Heap, v value.Value, visited map[int]bool) (string, bool) {
	switch v := v.(type) {
	case value.Taint:
		return v.Label, true
	case value.Sum:
		for _, alt := range v.Alts {
			if l, ok := label(h, alt, visited); ok {
				return l, true
			}
		}
	case value.Ptr:
		if visited[v.Addr] {
			return "", false
		}
		visited[v.Addr] = true
		return label(h, h.Get(v.Addr), visited)
	case value.Ref:
		for a := range v.Addrs {
			if visited[a] {
				continue
			}
			visited[a] = true
			if l, ok := label(h, h.Get(a), visited); ok {
				return l, true
			}
		}
	case value.Record:
		for _, f := range v.Fields {
			if l, ok := label(h, f, visited); ok {
				return l, true
			}
		}
	case value.Object:
		for _, m := range v.Members {
			if l, ok := label(h, m, visited); ok {
				return l, true
			}
		}
	case value.Map:
		return label(h, v.Elem, visited)
	case value.Array:
		for _, e := range v.Elems {
			if l, ok := label(h, e, visited); ok {
				return l, true
			}
		}
	case value.Method:
		return label(h, v.Receiver, visited)
	}
	return "", false
}

// Sanitize returns v with its top-level taint removed: a bare Taint
// becomes Null, and Taint alternatives are dropped from a Sum (Null if
// none remain), leaving the Sum's non-taint members intact. Taint nested
// inside a Map, Array, Record or Object, or stored behind a Ptr or Ref,
// is left in place. Used by the evaluator on a configured sanitizer
// call's return value (SPEC_FULL.md §4.I).
func Sanitize(v value.Value) value.Value {
	switch v := v.(type) {
	case value.Taint:
		return value.Null{}
	case value.Sum:
		kept := make([]value.Value, 0, len(v.Alts))
		for _, alt := range v.Alts {
			if _, ok := alt.(value.Taint); ok {
				continue
			}
			kept = append(kept, Sanitize(alt))
		}
		if len(kept) == 0 {
			return value.Null{}
		}
		return value.NewSum(kept...)
	default:
		return v
	}
}

var _ Hook = (*config.Config)(nil)
