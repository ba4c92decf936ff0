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

// Package callgraph builds the call graph SPEC_FULL.md §6.2 names as
// an analysis output: a node per reachable function/method plus a
// synthetic fake root, edges for every call the call engine (component
// G) resolves. It generalizes the teacher's SSA-referrer/operand graph
// (internal/pkg/debug/graph/graph.go, debug/node/node.go's
// CanonicalName) from "per-function instruction dependency graph" to
// "whole-program function/method call graph", and its DOT rendering is
// a direct adaptation of internal/pkg/graphprinter/graphprinter.go.
package callgraph

import (
	"bytes"
	"fmt"
	"sort"
)

// Kind distinguishes the four node shapes SPEC_FULL.md §6.2 names.
type Kind int

const (
	FakeRoot Kind = iota
	File
	Function
	Method
)

// Node identifies a call graph vertex. Class is only meaningful for
// Method nodes.
type Node struct {
	Kind  Kind
	Class string
	Name  string
}

// Root is the single synthetic entry point used when -extract_paths
// sweeps every analyzed program (SPEC_FULL.md §4.G/§6.2): every
// top-level program statement list is treated as called from Root.
var Root = Node{Kind: FakeRoot, Name: "*root*"}

// FileNode names a single analyzed source file as a call graph vertex,
// the parent of its top-level statements under the fake-root sweep.
func FileNode(path string) Node { return Node{Kind: File, Name: path} }

// FuncNode names a free function.
func FuncNode(name string) Node { return Node{Kind: Function, Name: name} }

// MethodNode names a class method.
func MethodNode(class, name string) Node { return Node{Kind: Method, Class: class, Name: name} }

// String renders a Node using the canonical naming scheme of
// SPEC_FULL.md §6.2: "Function:<name>" / "Method:<class>::<name>",
// generalizing debug/node.go's CanonicalName to our coarser call-graph
// granularity.
func (n Node) String() string {
	switch n.Kind {
	case FakeRoot:
		return "FakeRoot"
	case File:
		return fmt.Sprintf("File:%s", n.Name)
	case Method:
		return fmt.Sprintf("Method:%s::%s", n.Class, n.Name)
	default:
		return fmt.Sprintf("Function:%s", n.Name)
	}
}

// Graph is an adjacency set: Graph[a][b] means a calls b.
type Graph map[Node]map[Node]bool

// New returns an empty Graph.
func New() Graph { return Graph{} }

// AddEdge records that from calls to, creating both nodes' adjacency
// sets as needed. Self-edges (direct recursion) are recorded like any
// other edge; the call engine's recursion bound lives in
// internal/pkg/scope (Env.Depth) and internal/pkg/eval
// (invokeFunction), not here.
func (g Graph) AddEdge(from, to Node) {
	if g[from] == nil {
		g[from] = map[Node]bool{}
	}
	g[from][to] = true
	if g[to] == nil {
		g[to] = map[Node]bool{}
	}
}

// Callees returns the sorted-by-string successors of n.
func (g Graph) Callees(n Node) []Node {
	out := make([]Node, 0, len(g[n]))
	for c := range g[n] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DOT renders the graph as DOT source, coloring nodes the predicates
// select — a direct generalization of graphprinter.Print, string-keyed
// the same way but operating on our Node type instead of raw strings.
func DOT(g Graph, isSource, isSanitizer, isSink func(Node) bool) string {
	var b bytes.Buffer
	b.WriteString("digraph {\n")

	nodes := make([]Node, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })

	for _, src := range nodes {
		if isSource(src) {
			fmt.Fprintf(&b, "%q [style=filled fillcolor=red];\n", src.String())
		}
		for _, dst := range g.Callees(src) {
			if isSanitizer(dst) {
				fmt.Fprintf(&b, "%q [style=filled fillcolor=green];\n", dst.String())
			}
			if isSink(dst) {
				fmt.Fprintf(&b, "%q [style=filled fillcolor=blue];\n", dst.String())
			}
			fmt.Fprintf(&b, "%q -> %q;\n", src.String(), dst.String())
		}
	}

	b.WriteString("}\n")
	return b.String()
}
