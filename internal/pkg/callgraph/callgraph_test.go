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

package callgraph

import (
	"strings"
	"testing"
)

func TestNodeString(t *testing.T) {
	cases := []struct {
		n    Node
		want string
	}{
		{Root, "FakeRoot"},
		{FileNode("a.hack"), "File:a.hack"},
		{FuncNode("f"), "Function:f"},
		{MethodNode("Foo", "bar"), "Method:Foo::bar"},
	}
	for _, tt := range cases {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAddEdgeAndCallees(t *testing.T) {
	g := New()
	g.AddEdge(Root, FuncNode("main"))
	g.AddEdge(FuncNode("main"), FuncNode("helper"))
	g.AddEdge(FuncNode("main"), MethodNode("Foo", "bar"))

	callees := g.Callees(FuncNode("main"))
	if len(callees) != 2 {
		t.Fatalf("got %d callees, want 2: %v", len(callees), callees)
	}
	if callees[0].String() > callees[1].String() {
		t.Error("Callees should be sorted")
	}
}

func TestDOTRendersEdgesAndColors(t *testing.T) {
	g := New()
	g.AddEdge(FuncNode("main"), FuncNode("render"))
	dot := DOT(g, func(Node) bool { return false }, func(Node) bool { return false }, func(n Node) bool {
		return n.Name == "render"
	})
	if !strings.Contains(dot, `"Function:main" -> "Function:render"`) {
		t.Errorf("DOT missing edge:\n%s", dot)
	}
	if !strings.Contains(dot, "fillcolor=blue") {
		t.Errorf("DOT missing sink color:\n%s", dot)
	}
}

func TestSelfEdgeRecursion(t *testing.T) {
	g := New()
	g.AddEdge(FuncNode("f"), FuncNode("f"))
	if len(g.Callees(FuncNode("f"))) != 1 {
		t.Error("self-edge should be recorded once")
	}
}
