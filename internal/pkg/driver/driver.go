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

// Package driver is the top-level entry point SPEC_FULL.md §5/§6
// describes: it owns the process-wide state (the call graph, the
// checkpoint recorder, the accumulated taint findings) that a single
// analysis run produces, loads the taint matcher configuration, and
// either evaluates a database's programs directly or sweeps every one
// of them from a synthetic fake root when -extract_paths is set. It is
// grounded on the teacher's internal/pkg/levee/levee.go: a single
// Analyzer.Run composing sub-analyzer results into one report, adapted
// here from "one analysis.Pass over one Go package" to "one sweep over
// every program in the code database".
package driver

import (
	"fmt"

	"github.com/dynscript/absinterp/internal/pkg/ast"
	"github.com/dynscript/absinterp/internal/pkg/callgraph"
	"github.com/dynscript/absinterp/internal/pkg/config"
	"github.com/dynscript/absinterp/internal/pkg/db"
	"github.com/dynscript/absinterp/internal/pkg/debug"
	"github.com/dynscript/absinterp/internal/pkg/eval"
	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/taint"
)

// Result collects everything a run produces (SPEC_FULL.md §6.2).
type Result struct {
	Graph    callgraph.Graph
	Findings []taint.Finding
	Debug    *debug.Recorder
}

// Run loads the taint matcher configuration and evaluates every
// program in d. With -extract_paths set, each program's top-level
// executable statements run under a fake-root sweep (Root -> File(path)
// edges feed the call graph); otherwise the programs still run, just
// without the synthetic root/file bookkeeping, matching spec.md §6.3's
// description of extract_paths as purely additive instrumentation.
func Run(d db.Database) (*Result, error) {
	conf, err := config.ReadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading analysis config: %w", err)
	}
	ctx := eval.NewCtx(conf, config.Strict(), config.MaxDepth(), config.TaintMode())

	h := heap.New()
	globals := map[string]int{}

	for _, prog := range d.Programs() {
		env := scope.NewEnv(d, h, globals, "", "", prog.Path, nil)
		if config.ExtractPaths() {
			ctx.Graph.AddEdge(callgraph.Root, callgraph.FileNode(prog.Path))
		}
		if err := runProgram(ctx, env, prog); err != nil {
			if config.Strict() {
				return nil, fmt.Errorf("%s: %w", prog.Path, err)
			}
		}
	}

	return &Result{Graph: ctx.Graph, Findings: ctx.Findings, Debug: ctx.Debug}, nil
}

// runProgram evaluates a program's executable top-level statements,
// skipping the definitions the code database already indexed
// (AddProgram), the same split the teacher's source.Analyzer/
// fieldpropagator.Analyzer draw between declarations and the
// instructions that run.
func runProgram(c *eval.Ctx, env *scope.Env, prog *ast.Program) error {
	for _, s := range prog.Stmts {
		switch s.(type) {
		case *ast.FuncDef, *ast.ClassDef, *ast.GlobalConstDef:
			continue
		}
		if _, err := eval.Stmt(c, env, s); err != nil {
			return err
		}
	}
	return nil
}

// DOT renders r's call graph as Graphviz source, highlighting source/
// sink/sanitizer nodes, directly adapted from
// internal/pkg/graphprinter/graphprinter.go's %q -> %q emission.
func DOT(r *Result, hook taint.Hook) string {
	isSource := func(n callgraph.Node) bool { return hook.IsSource(n.Class) }
	isSink := func(n callgraph.Node) bool { return hook.IsSink(n.Class, n.Name) }
	isSanitizer := func(n callgraph.Node) bool { return hook.IsSanitizer(n.Class, n.Name) }
	return callgraph.DOT(r.Graph, isSource, isSanitizer, isSink)
}
