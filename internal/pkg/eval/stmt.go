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

package eval

import (
	"github.com/dynscript/absinterp/internal/pkg/ast"
	"github.com/dynscript/absinterp/internal/pkg/interperr"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/unify"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// signal is the non-nil control-flow result of evaluating a statement:
// a return/break/continue/throw that must unwind to the nearest
// construct that handles it, implementing SPEC_FULL.md §4.F's
// fall-through semantics without exceptions.
type signal struct {
	kind  signalKind
	value value.Value // Return's value, or Throw's thrown value
}

type signalKind int

const (
	sigNone signalKind = iota
	sigReturn
	sigBreak
	sigContinue
	sigThrow
)

// Block evaluates every statement in b in sequence. break/continue/
// throw do not stop evaluation of the statements that follow them in
// the same block — SPEC_FULL.md §4.F states they "evaluate their
// sub-expression (if any) and fall through: control-flow effects are
// ignored" (§9: throw has "no control-flow discontinuity") — so the
// last such signal encountered is carried to the caller (for a loop to
// absorb, a switch case to stop on, or a try/catch to react to) without
// skipping any later statement's effects. return still stops the block
// immediately: its value is read back out of this signal by the call
// engine, and nothing in the source language runs a statement after its
// own return.
func Block(c *Ctx, env *scope.Env, b *ast.Block) (signal, error) {
	if b == nil {
		return signal{}, nil
	}
	var last signal
	for _, s := range b.Stmts {
		sig, err := Stmt(c, env, s)
		if err != nil {
			return signal{}, err
		}
		if sig.kind == sigReturn {
			return sig, nil
		}
		if sig.kind != sigNone {
			last = sig
		}
	}
	return last, nil
}

// Stmt evaluates one statement (SPEC_FULL.md §4.F). Control is
// flow-insensitive: both arms of a conditional are always evaluated
// into the same heap, and loop bodies run exactly once.
func Stmt(c *Ctx, env *scope.Env, s ast.Stmt) (signal, error) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		_, err := Expr(c, env, s.X)
		return signal{}, err

	case *ast.Block:
		return Block(c, env, s)

	case *ast.If:
		return evalIf(c, env, s)

	case *ast.While:
		preBindBranchLocals(env, s.Body)
		sig, err := Block(c, env, s.Body)
		return loopSignal(sig), err

	case *ast.DoWhile:
		preBindBranchLocals(env, s.Body)
		sig, err := Block(c, env, s.Body)
		return loopSignal(sig), err

	case *ast.For:
		if s.Init != nil {
			if _, err := Expr(c, env, s.Init); err != nil {
				return signal{}, err
			}
		}
		preBindBranchLocals(env, s.Body)
		sig, err := Block(c, env, s.Body)
		if err != nil || sig.kind != sigNone {
			return loopSignal(sig), err
		}
		if s.Post != nil {
			if _, err := Expr(c, env, s.Post); err != nil {
				return signal{}, err
			}
		}
		return signal{}, nil

	case *ast.Foreach:
		return evalForeach(c, env, s)

	case *ast.Switch:
		return evalSwitch(c, env, s)

	case *ast.Return:
		if s.X == nil {
			return signal{kind: sigReturn, value: value.Null{}}, nil
		}
		v, err := Expr(c, env, s.X)
		if err != nil {
			return signal{}, err
		}
		return signal{kind: sigReturn, value: v}, nil

	case *ast.Break:
		return signal{kind: sigBreak}, nil

	case *ast.Continue:
		return signal{kind: sigContinue}, nil

	case *ast.Throw:
		v, err := Expr(c, env, s.X)
		if err != nil {
			return signal{}, err
		}
		return signal{kind: sigThrow, value: v}, nil

	case *ast.TryCatch:
		return evalTryCatch(c, env, s)

	case *ast.GlobalDecl:
		for _, name := range s.Names {
			env.Bind(name, env.GlobalAddr(name))
		}
		return signal{}, nil

	case *ast.StaticDecl:
		key := env.StaticKey(s.Name)
		_, alreadyInitialized := env.Globals[key]
		addr := env.GlobalAddr(key)
		if !alreadyInitialized && s.Init != nil {
			v, err := Expr(c, env, s.Init)
			if err != nil {
				return signal{}, err
			}
			env.Heap.Set(addr, v)
		}
		env.Bind(s.Name, addr)
		return signal{}, nil

	case *ast.FuncDef, *ast.ClassDef:
		// Nested definitions are resolved up front by the code database
		// (SPEC_FULL.md §6.1); encountering one mid-body means the source
		// nested a definition where this analysis does not expect one.
		if c.Strict {
			return signal{}, interperr.NewImpossible("nested function/class definition", nil)
		}
		return signal{}, nil

	case *ast.GlobalConstDef:
		return signal{}, nil
	}
	return signal{}, nil
}

// loopSignal absorbs a break/continue at the loop it targets and
// passes return/throw further up.
func loopSignal(sig signal) signal {
	if sig.kind == sigBreak || sig.kind == sigContinue {
		return signal{}
	}
	return sig
}

// evalIf evaluates both branches unconditionally into the same
// environment, matching the teacher's flow-insensitive
// analyzeInstructions treatment of ssa.If (SPEC_FULL.md §4.F, §8
// scenario 2): the condition is evaluated for its side effects and
// discarded, since neither branch is more "reachable" than the other
// under this analysis's soundness model.
func evalIf(c *Ctx, env *scope.Env, s *ast.If) (signal, error) {
	if _, err := Expr(c, env, s.Cond); err != nil {
		return signal{}, err
	}
	preBindBranchLocals(env, s.Then)
	preBindBranchLocals(env, s.Else)

	thenSig, err := Block(c, env, s.Then)
	if err != nil {
		return signal{}, err
	}
	elseSig, err := Block(c, env, s.Else)
	if err != nil {
		return signal{}, err
	}
	return mergeSignals(thenSig, elseSig), nil
}

// mergeSignals combines the two branches' control outcomes: a signal
// that escapes both branches always escapes; a signal raised by only
// one branch is conservatively dropped, since the other branch's
// fall-through path is equally possible (SPEC_FULL.md §4.F).
func mergeSignals(a, b signal) signal {
	if a.kind != sigNone && a.kind == b.kind {
		return a
	}
	return signal{}
}

// preBindBranchLocals implements the pre-pass described in
// SPEC_FULL.md §4.F: any variable a branch introduces is bound to a
// fresh Null cell before the branch runs, so that code after the
// conditional sees a defined (possibly-null) variable instead of an
// allocate-on-first-use surprise that would depend on which branch ran.
func preBindBranchLocals(env *scope.Env, b *ast.Block) {
	if b == nil {
		return
	}
	for _, name := range assignedNames(b) {
		env.Get(name)
	}
}

// assignedNames collects every variable name directly assigned within
// b, without descending into nested function/class definitions.
func assignedNames(b *ast.Block) []string {
	var names []string
	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	walkExpr = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.Assign:
			if id, ok := e.Lhs.(*ast.Id); ok && scope.IsVariable(id.Name) {
				names = append(names, id.Name)
			}
			walkExpr(e.Rhs)
		case *ast.ListAssign:
			for _, l := range e.Lhs {
				if id, ok := l.(*ast.Id); ok && scope.IsVariable(id.Name) {
					names = append(names, id.Name)
				}
			}
		}
	}
	walkStmt = func(s ast.Stmt) {
		switch s := s.(type) {
		case *ast.ExprStmt:
			walkExpr(s.X)
		case *ast.Block:
			for _, st := range s.Stmts {
				walkStmt(st)
			}
		case *ast.If:
			walkExpr(s.Cond)
			walkStmt(s.Then)
			walkStmt(s.Else)
		case *ast.While:
			walkStmt(s.Body)
		case *ast.DoWhile:
			walkStmt(s.Body)
		case *ast.For:
			walkStmt(s.Body)
		case *ast.Foreach:
			if s.KeyVar != "" {
				names = append(names, s.KeyVar)
			}
			names = append(names, s.ValVar)
			walkStmt(s.Body)
		case *ast.Switch:
			for _, cs := range s.Cases {
				walkStmt(cs.Body)
			}
		case *ast.TryCatch:
			walkStmt(s.Try)
			for _, cc := range s.Catches {
				names = append(names, cc.VarName)
				walkStmt(cc.Body)
			}
			walkStmt(s.Finally)
		}
	}
	walkStmt(b)
	return names
}

// evalForeach runs the loop body exactly once, against the
// element/key summary of the collection (SPEC_FULL.md §4.F): Array
// unifies all elements first, Map/Record contribute their summary
// value(s) directly.
func evalForeach(c *Ctx, env *scope.Env, s *ast.Foreach) (signal, error) {
	collVal, err := Expr(c, env, s.Collection)
	if err != nil {
		return signal{}, err
	}
	collVal = env.Heap.Chase(collVal)

	var keyVal, elemVal value.Value
	switch coll := collVal.(type) {
	case value.Array:
		keyVal = value.AbstractType{Kind: value.KindInt}
		if len(coll.Elems) == 0 {
			elemVal = value.Null{}
		} else {
			elemVal = coll.Elems[0]
			for _, e := range coll.Elems[1:] {
				_, elemVal = unify.Unify(env.Heap, elemVal, e)
			}
		}
	case value.Map:
		keyVal, elemVal = coll.Key, coll.Elem
	case value.Record:
		keyVal = value.AbstractType{Kind: value.KindString}
		first := true
		for _, f := range coll.Fields {
			if first {
				elemVal, first = f, false
			} else {
				_, elemVal = unify.Unify(env.Heap, elemVal, f)
			}
		}
		if first {
			elemVal = value.Null{}
		}
	default:
		keyVal = value.Any{}
		elemVal = value.Any{}
	}

	if s.KeyVar != "" {
		addr, _ := env.Get(s.KeyVar)
		env.Heap.Set(addr, keyVal)
	}
	valAddr, _ := env.Get(s.ValVar)
	env.Heap.Set(valAddr, elemVal)

	preBindBranchLocals(env, s.Body)
	sig, err := Block(c, env, s.Body)
	if err != nil {
		return signal{}, err
	}
	return loopSignal(sig), nil
}

// evalSwitch lowers to sequential case-body evaluation, matching
// SPEC_FULL.md §4.F: every case runs once (no real fall-through
// simulation beyond what the source already encodes per-case). A break
// ends only its own case body; a continue, throw or return from a case
// body ends the switch and is passed up.
func evalSwitch(c *Ctx, env *scope.Env, s *ast.Switch) (signal, error) {
	if _, err := Expr(c, env, s.Tag); err != nil {
		return signal{}, err
	}
	for _, cs := range s.Cases {
		for _, v := range cs.Values {
			if _, err := Expr(c, env, v); err != nil {
				return signal{}, err
			}
		}
		preBindBranchLocals(env, cs.Body)
		sig, err := Block(c, env, cs.Body)
		if err != nil {
			return signal{}, err
		}
		if sig.kind == sigBreak {
			continue
		}
		if sig.kind != sigNone {
			return sig, nil
		}
	}
	return signal{}, nil
}

// evalTryCatch evaluates the try body, then every catch clause in turn
// unconditionally — SPEC_FULL.md §4.F: "try/catch evaluates the body
// and each catch body in sequence against the same heap", with no
// gating on whether the try body actually threw (without regard to the
// thrown value's class matching ClassNames, since doing so soundly
// would require a runtime type test this analysis does not model
// precisely); the finally block always runs last. Each clause's
// exception variable is bound to the try body's thrown value when it
// threw, or Null when it didn't — a catch clause still sees a defined
// variable either way.
func evalTryCatch(c *Ctx, env *scope.Env, s *ast.TryCatch) (signal, error) {
	trySig, err := Block(c, env, s.Try)
	if err != nil {
		return signal{}, err
	}

	outSig := trySig
	caught := trySig.value
	if trySig.kind != sigThrow {
		caught = value.Null{}
	}
	for _, cc := range s.Catches {
		addr, _ := env.Get(cc.VarName)
		env.Heap.Set(addr, caught)
		sig, err := Block(c, env, cc.Body)
		if err != nil {
			return signal{}, err
		}
		if sig.kind != sigNone {
			outSig = sig
		}
	}

	if s.Finally != nil {
		finSig, err := Block(c, env, s.Finally)
		if err != nil {
			return signal{}, err
		}
		if finSig.kind != sigNone {
			outSig = finSig
		}
	}
	return outSig, nil
}
