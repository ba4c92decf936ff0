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

// Package eval implements the expression evaluator (SPEC_FULL.md
// §4.E), statement evaluator (§4.F), call engine (§4.G), and class
// builder (§4.H) as a single package, the way the teacher keeps
// instruction-stepping (analyzeInstructions), call handling
// (handleCall/handleSinkCall/handleSanitizerCall), and block traversal
// (analyzeBlock) together in one interp package
// (internal/pkg/interp/interpreter.go) rather than splitting them
// across packages that would need to import each other cyclically —
// expression evaluation calls into the call engine for Call/New nodes,
// the call engine calls back into statement evaluation to run a
// callee's body, and the class builder evaluates constant/field
// initializer expressions, so all four live together here.
package eval

import (
	"github.com/dynscript/absinterp/internal/pkg/callgraph"
	"github.com/dynscript/absinterp/internal/pkg/debug"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/taint"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Ctx holds the process-wide state SPEC_FULL.md §5 names as owned by
// the top-level driver: analysis-mode flags, the accumulating call
// graph, and the checkpoint recorder. It is threaded by reference
// through every Expr/Stmt call but never copied per-call, unlike Env
// (scope.Env), which is rebuilt fresh for every call frame.
type Ctx struct {
	Hook     taint.Hook
	Graph    callgraph.Graph
	Debug    *debug.Recorder
	Strict   bool
	MaxDepth int

	// TaintMode gates the taint hook (SPEC_FULL.md §4.I/§6.3); when
	// false, checkSink/applySanitizer are identity/no-op regardless of
	// Hook.
	TaintMode bool

	// Findings accumulates every sink reached by tainted data over the
	// run (SPEC_FULL.md §6.2), in discovery order.
	Findings []taint.Finding

	// classes memoizes force_class results by class name: the flattened
	// method/field/constant view of a class and its ancestors, built at
	// most once per analysis run (SPEC_FULL.md §4.H).
	classes map[string]*ClassInfo

	// clean records, per function name, the latest taint-free return
	// value of a call to it — the "safe" cache of SPEC_FULL.md §4.G.
	// invokeFunction writes it after each evaluated call; no lookup
	// reads it back to skip evaluating a body.
	clean map[string]value.Value
}

// NewCtx returns a ready-to-use Ctx.
func NewCtx(hook taint.Hook, strict bool, maxDepth int, taintMode bool) *Ctx {
	return &Ctx{
		Hook:      hook,
		Graph:     callgraph.New(),
		Debug:     debug.NewRecorder(),
		Strict:    strict,
		MaxDepth:  maxDepth,
		TaintMode: taintMode,
		classes:   map[string]*ClassInfo{},
		clean:     map[string]value.Value{},
	}
}

// addEdge records a call graph edge from the Env's current function
// (or FakeRoot, or File, depending on context) to callee, whether or
// not callee resolved (SPEC_FULL.md §6.2).
func (c *Ctx) addEdge(env *scope.Env, callee callgraph.Node) {
	from := callerNode(env)
	c.Graph.AddEdge(from, callee)
}

func callerNode(env *scope.Env) callgraph.Node {
	if env.CurrentClass() != "" {
		return callgraph.MethodNode(env.CurrentClass(), env.CurrentFunc())
	}
	if env.CurrentFunc() != "" {
		return callgraph.FuncNode(env.CurrentFunc())
	}
	if env.Path() != "" {
		return callgraph.FileNode(env.Path())
	}
	return callgraph.Root
}
