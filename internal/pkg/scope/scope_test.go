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

package scope

import (
	"testing"

	"github.com/dynscript/absinterp/internal/pkg/db"
	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

func newTestEnv() *Env {
	return NewEnv(db.NewMapDatabase(), heap.New(), map[string]int{}, "main", "", "test.hack", nil)
}

func TestIsVariable(t *testing.T) {
	cases := map[string]bool{
		"$x":   true,
		"x":    false,
		"":     false,
		"$":    true,
	}
	for name, want := range cases {
		if got := IsVariable(name); got != want {
			t.Errorf("IsVariable(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGetAllocatesOnceAndIsStable(t *testing.T) {
	e := newTestEnv()
	a1, fresh1 := e.Get("$x")
	if !fresh1 {
		t.Fatal("first Get should report fresh")
	}
	a2, fresh2 := e.Get("$x")
	if fresh2 {
		t.Fatal("second Get should not report fresh")
	}
	if a1 != a2 {
		t.Fatalf("Get should return stable address, got %d then %d", a1, a2)
	}
	if got := e.Heap.Get(a1); !value.Equal(got, value.Null{}) {
		t.Errorf("fresh cell should be Null, got %v", got)
	}
}

func TestBindOverridesAddress(t *testing.T) {
	e := newTestEnv()
	addr := e.Heap.NewCell(value.Int{V: 7})
	e.Bind("$x", addr)
	got, ok := e.Lookup("$x")
	if !ok || got != addr {
		t.Fatalf("Lookup(\"$x\") = %d,%v want %d,true", got, ok, addr)
	}
}

func TestChildSharesGlobalsAndHeapNotLocals(t *testing.T) {
	e := newTestEnv()
	e.Get("$x")
	child := e.Child("helper", "")
	if _, ok := child.Lookup("$x"); ok {
		t.Error("child Env should not inherit parent locals")
	}
	if child.Heap != e.Heap {
		t.Error("child Env should share the heap")
	}
	if len(child.Stack()) != 1 || child.Stack()[0] != "helper" {
		t.Errorf("child stack = %v, want [helper]", child.Stack())
	}
}

func TestDepthCountsRecursion(t *testing.T) {
	e := newTestEnv()
	c1 := e.Child("f", "")
	c2 := c1.Child("f", "")
	c3 := c2.Child("f", "")
	if got := c3.Depth("f"); got != 3 {
		t.Errorf("Depth(f) = %d, want 3", got)
	}
}

func TestSaveRestoreGlobal(t *testing.T) {
	e := newTestEnv()
	e.GlobalAddr(SelfVar)
	e.Heap.Set(e.GlobalAddr(SelfVar), value.String{V: "Outer"})

	restore := e.SaveRestoreGlobal(SelfVar, value.String{V: "Inner"})
	if got := e.Heap.Get(e.GlobalAddr(SelfVar)); !value.Equal(got, value.String{V: "Inner"}) {
		t.Fatalf("self = %v during call, want Inner", got)
	}
	restore()
	if got := e.Heap.Get(e.GlobalAddr(SelfVar)); !value.Equal(got, value.String{V: "Outer"}) {
		t.Fatalf("self = %v after restore, want Outer", got)
	}
}

func TestStaticKeyNamespacesByFunction(t *testing.T) {
	e := newTestEnv()
	if got, want := e.StaticKey("$count"), "main**$count"; got != want {
		t.Errorf("StaticKey = %q, want %q", got, want)
	}
}

func TestWithClassSharesVars(t *testing.T) {
	e := newTestEnv()
	e.Get("$x")
	withCls := e.WithClass("Foo")
	if withCls.CurrentClass() != "Foo" {
		t.Errorf("CurrentClass() = %q, want Foo", withCls.CurrentClass())
	}
	if _, ok := withCls.Lookup("$x"); !ok {
		t.Error("WithClass should share vars with the original Env")
	}
}
