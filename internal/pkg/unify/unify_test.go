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

package unify

import (
	"testing"

	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

func TestUnifyIdentical(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Int{V: 3}, value.Int{V: 3})
	if !value.Equal(got, value.Int{V: 3}) {
		t.Errorf("Unify(3,3) = %v, want Int(3)", got)
	}
}

func TestUnifyAnyAbsorbs(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Any{}, value.Int{V: 3})
	if _, ok := got.(value.Any); !ok {
		t.Errorf("Unify(Any, Int) = %v, want Any", got)
	}
}

func TestUnifyLiteralWidening(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Int{V: 1}, value.Int{V: 2})
	want := value.AbstractType{Kind: value.KindInt}
	if !value.Equal(got, want) {
		t.Errorf("Unify(1,2) = %v, want %v", got, want)
	}
}

func TestUnifyLiteralVsAbstract(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Int{V: 1}, value.AbstractType{Kind: value.KindInt})
	want := value.AbstractType{Kind: value.KindInt}
	if !value.Equal(got, want) {
		t.Errorf("Unify(1, AbstractInt) = %v, want %v", got, want)
	}
}

// scenario 2 from spec.md §8: if/else assigning Int then String widens
// to a Sum of AbstractType(Int) and the String literal.
func TestUnifyIfElseScenario(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Int{V: 1}, value.String{V: "a"})
	want := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "a"})
	if !value.Equal(got, want) {
		t.Errorf("Unify(1, \"a\") = %v, want %v", got, want)
	}
}

func TestUnifyPtrsDifferentAddrsMergeContent(t *testing.T) {
	h := heap.New()
	a := h.NewCell(value.Int{V: 1})
	b := h.NewCell(value.String{V: "s"})

	h, got := Unify(h, value.Ptr{Addr: a}, value.Ptr{Addr: b})
	ref, ok := got.(value.Ref)
	if !ok {
		t.Fatalf("Unify(Ptr,Ptr) = %v (%T), want Ref", got, got)
	}
	if !ref.Addrs[a] || !ref.Addrs[b] {
		t.Fatalf("Ref %v missing one of %d,%d", got, a, b)
	}
	want := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "s"})
	if !value.Equal(h.Get(a), want) || !value.Equal(h.Get(b), want) {
		t.Errorf("both addresses should hold merged content, got a=%v b=%v want %v", h.Get(a), h.Get(b), want)
	}
}

func TestUnifyRecordFieldWise(t *testing.T) {
	h := heap.New()
	r1 := value.Record{Fields: map[string]value.Value{"k": value.Int{V: 1}, "only1": value.Bool{V: true}}}
	r2 := value.Record{Fields: map[string]value.Value{"k": value.String{V: "s"}}}

	_, got := Unify(h, r1, r2)
	rec, ok := got.(value.Record)
	if !ok {
		t.Fatalf("Unify(Record,Record) = %v, want Record", got)
	}
	wantK := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "s"})
	if !value.Equal(rec.Fields["k"], wantK) {
		t.Errorf("field k = %v, want %v", rec.Fields["k"], wantK)
	}
	wantOnly1 := value.NewSum(value.Null{}, value.Bool{V: true})
	if !value.Equal(rec.Fields["only1"], wantOnly1) {
		t.Errorf("field only1 = %v, want %v", rec.Fields["only1"], wantOnly1)
	}
}

// scenario 6 from spec.md §8: array("k" => 1) then assigned a string
// gives Record{"k" -> Sum(AbstractType(Int), String("s"))}, the Int side
// widened by rule 11.
func TestUnifyRecordWideningScenario(t *testing.T) {
	h := heap.New()
	r1 := value.Record{Fields: map[string]value.Value{"k": value.Int{V: 1}}}
	r2 := value.Record{Fields: map[string]value.Value{"k": value.String{V: "s"}}}
	_, got := Unify(h, r1, r2)
	rec := got.(value.Record)
	want := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "s"})
	if !value.Equal(rec.Fields["k"], want) {
		t.Errorf("got %v, want %v", rec.Fields["k"], want)
	}
}

func TestUnifyArraysPromoteToMap(t *testing.T) {
	h := heap.New()
	a1 := value.Array{Elems: []value.Value{value.Int{V: 1}, value.Int{V: 2}}}
	a2 := value.Array{Elems: []value.Value{value.String{V: "s"}}}
	_, got := Unify(h, a1, a2)
	m, ok := got.(value.Map)
	if !ok {
		t.Fatalf("Unify(Array,Array) = %v, want Map", got)
	}
	if !value.Equal(m.Key, value.AbstractType{Kind: value.KindInt}) {
		t.Errorf("key = %v, want AbstractType(Int)", m.Key)
	}
}

func TestUnifyObjectSameClass(t *testing.T) {
	h := heap.New()
	o1 := value.Object{Class: "A", Members: map[string]value.Value{"x": value.Int{V: 1}}}
	o2 := value.Object{Class: "A", Members: map[string]value.Value{"x": value.Int{V: 2}}}
	_, got := Unify(h, o1, o2)
	o, ok := got.(value.Object)
	if !ok {
		t.Fatalf("got %v, want Object", got)
	}
	if !value.Equal(o.Members["x"], value.AbstractType{Kind: value.KindInt}) {
		t.Errorf("x = %v, want AbstractType(Int)", o.Members["x"])
	}
}

func TestUnifyObjectDifferentClassFallsToSum(t *testing.T) {
	h := heap.New()
	o1 := value.Object{Class: "A", Members: map[string]value.Value{}}
	o2 := value.Object{Class: "B", Members: map[string]value.Value{}}
	_, got := Unify(h, o1, o2)
	if _, ok := got.(value.Sum); !ok {
		t.Errorf("got %T, want Sum for differently-classed objects", got)
	}
}

func TestUnifyMethodMergesDisjointIds(t *testing.T) {
	h := heap.New()
	m1 := value.Method{Receiver: value.Null{}, Ids: map[string]value.Closure{"id1": {FuncName: "f"}}}
	m2 := value.Method{Receiver: value.Null{}, Ids: map[string]value.Closure{"id2": {FuncName: "g"}}}
	_, got := Unify(h, m1, m2)
	m, ok := got.(value.Method)
	if !ok {
		t.Fatalf("got %v, want Method", got)
	}
	if len(m.Ids) != 2 {
		t.Errorf("got %d ids, want 2: %v", len(m.Ids), m.Ids)
	}
}

func TestUnifyTaintFoldsIntoSum(t *testing.T) {
	h := heap.New()
	_, got := Unify(h, value.Taint{Label: "$_GET"}, value.String{V: "s"})
	s, ok := got.(value.Sum)
	if !ok {
		t.Fatalf("got %T, want Sum", got)
	}
	found := false
	for _, a := range s.Alts {
		if t, ok := a.(value.Taint); ok && t.Label == "$_GET" {
			found = true
		}
	}
	if !found {
		t.Errorf("taint label lost in %v", got)
	}
}

func TestUnifyCyclicHeapTerminates(t *testing.T) {
	h := heap.New()
	a := h.NewCell(nil)
	b := h.NewCell(nil)
	h.Set(a, value.Ptr{Addr: b})
	h.Set(b, value.Ptr{Addr: a})

	done := make(chan struct{})
	go func() {
		Unify(h, value.Ptr{Addr: a}, value.Ptr{Addr: b})
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	// The real assertion is simply that Unify returns (no panic/hang);
	// the select above is advisory only since this test intentionally
	// avoids a timeout dependency. Call again synchronously to prove it
	// returns within this goroutine's stack.
	_, got := Unify(h, value.Ptr{Addr: a}, value.Ptr{Addr: b})
	if got == nil {
		t.Fatal("Unify returned nil on cyclic heap")
	}
}

func TestUnifyIdempotent(t *testing.T) {
	h := heap.New()
	v := value.Record{Fields: map[string]value.Value{"x": value.Int{V: 1}}}
	_, got := Unify(h, v, v)
	if !value.Equal(got, v) {
		t.Errorf("Unify(v,v) = %v, want %v", got, v)
	}
}
