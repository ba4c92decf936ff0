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

// Package scope implements the variable environment of SPEC_FULL.md
// §4.D: the per-call mapping from variable names to heap cells, plus
// the ambient bookkeeping (current function, current class context,
// call stack) threaded through evaluation. It generalizes the
// teacher's interpreterState (internal/pkg/interp/interpreter.go),
// which copies a flat map at every branch point, to an explicit,
// addressable store of variable cells shared with the heap so that
// by-ref parameters and global aliasing are representable.
package scope

import (
	"github.com/dynscript/absinterp/internal/pkg/db"
	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Reserved local names with fixed meaning (SPEC_FULL.md §4.D). The
// magic `*return*`/`*array*`/`*myobj*` scratch names spec.md describes
// are realized here as Go-native mechanisms instead of named heap
// cells: `*return*` is the `signal{kind: sigReturn}` a call's Block
// evaluation produces (eval/stmt.go), `*array*` is the `[]value.Value`
// accumulator evalArrayLit builds directly (eval/expr.go), and
// `*myobj*` is the `objPtr`/`receiver` value.Ptr threaded explicitly
// through evalNew/invokeFunction/bindParams (eval/call.go) rather than
// stashed under a reserved variable name — idiomatic Go favors a typed
// return value and explicit parameters over a scratch namespace.
const (
	BuildMethod = "*BUILD*"
	SelfVar     = "self"
	ParentVar   = "parent"
	ThisVar     = "$this"
)

// Env is the per-call variable environment: an address-indexed set of
// local variable cells, layered over the process-wide globals and
// backed by a code Database for name resolution. A new Env is created
// per call (Child); it is never shared across calls, matching the
// teacher's per-analyzeFunction interpreterState.
type Env struct {
	DB      db.Database
	Heap    *heap.Heap
	Globals map[string]int // name -> heap address, process-wide

	vars map[string]int // name -> heap address, local to this call
	cfun string         // current function/method name, for StaticDecl keys
	class string        // current class context (self::), "" outside methods
	path  string         // current source file path, for diagnostics
	stack []string       // call stack of function names, for recursion bound (component G)
}

// NewEnv creates a fresh call environment. globals is shared, mutable
// process-wide state; it must not be nil.
func NewEnv(d db.Database, h *heap.Heap, globals map[string]int, cfun, class, path string, stack []string) *Env {
	return &Env{
		DB:      d,
		Heap:    h,
		Globals: globals,
		vars:    map[string]int{},
		cfun:    cfun,
		class:   class,
		path:    path,
		stack:   stack,
	}
}

// IsVariable reports whether name syntactically denotes a variable
// (the sigil convention of the object language: "$foo") as opposed to
// a function, class, or constant name. Ast.Id nodes carrying a
// non-variable name are resolved against Env.DB instead of Env.vars.
func IsVariable(name string) bool {
	return len(name) > 0 && name[0] == '$'
}

// Get returns the address of name's cell, allocating a fresh
// Null-initialized cell on first reference within this Env
// (SPEC_FULL.md §4.D: variables spring into existence on first use).
// fresh reports whether the cell was just allocated.
func (e *Env) Get(name string) (addr int, fresh bool) {
	if a, ok := e.vars[name]; ok {
		return a, false
	}
	a := e.Heap.NewCell(value.Null{})
	e.vars[name] = a
	return a, true
}

// Bind forces name to address addr (used for by-ref parameter binding
// and `global`/`static` aliasing, where the cell must be shared rather
// than freshly allocated).
func (e *Env) Bind(name string, addr int) {
	e.vars[name] = addr
}

// Lookup returns name's address without allocating, reporting whether
// it is already bound in this Env.
func (e *Env) Lookup(name string) (int, bool) {
	a, ok := e.vars[name]
	return a, ok
}

// Locals returns every local variable bound in this Env, resolved to
// its current heap value, for the `checkpoint()` debug hook
// (SPEC_FULL.md §4.E/§6.2) to snapshot.
func (e *Env) Locals() map[string]value.Value {
	out := make(map[string]value.Value, len(e.vars))
	for name, addr := range e.vars {
		out[name] = e.Heap.Get(addr)
	}
	return out
}

// GlobalAddr returns the process-wide address for name, allocating one
// in Globals on first reference (mirrors Get but against the shared
// globals map rather than this call's locals).
func (e *Env) GlobalAddr(name string) int {
	if a, ok := e.Globals[name]; ok {
		return a
	}
	a := e.Heap.NewCell(value.Null{})
	e.Globals[name] = a
	return a
}

// StaticKey returns the per-function key under which a `static $x;`
// declaration's cell is stored in Globals, namespaced by the current
// function so that statics of same-named locals in different
// functions do not collide.
func (e *Env) StaticKey(name string) string {
	return e.cfun + "**" + name
}

// CurrentFunc returns the name of the function/method currently
// executing in this Env.
func (e *Env) CurrentFunc() string { return e.cfun }

// CurrentClass returns the class context for `self::`/`parent::`
// resolution, or "" if not inside a method body.
func (e *Env) CurrentClass() string { return e.class }

// Path returns the source file path this Env is evaluating within.
func (e *Env) Path() string { return e.path }

// Stack returns the call stack of function names active above this
// Env, oldest first; the call engine (component G) uses it to bound
// recursion depth.
func (e *Env) Stack() []string { return e.stack }

// Depth returns how many times funcName already appears on the call
// stack, used by the call engine's recursion cap (n >= 2).
func (e *Env) Depth(funcName string) int {
	n := 0
	for _, f := range e.stack {
		if f == funcName {
			n++
		}
	}
	return n
}

// Child derives the Env for a call to callee (function or method)
// within class cls, pushing callee onto the call stack. Locals are
// never inherited; globals and the heap are shared (SPEC_FULL.md §4.D,
// §5 — this is the Push half of the scoped-acquisition discipline).
func (e *Env) Child(callee, cls string) *Env {
	return NewEnv(e.DB, e.Heap, e.Globals, callee, cls, e.path, append(append([]string{}, e.stack...), callee))
}

// WithClass returns a shallow copy of e with CurrentClass overridden,
// so that self::/parent:: resolve against cls rather than e's class
// (SPEC_FULL.md §4.H). The call engine does not use it: method calls
// get their class through Child. The returned Env shares vars, so it must only
// be used for the duration of the call it was derived for — it is not
// a Child, it is the same call with borrowed names rebound.
func (e *Env) WithClass(cls string) *Env {
	clone := *e
	clone.class = cls
	return &clone
}

// SaveRestoreGlobal pushes a new value onto the shared global cell for
// name and returns a restore closure that puts the previous value
// back, following the teacher's scoped-acquisition-via-defer pattern
// used around self/parent context switches (earpointer/analysis.go's
// per-call Context threading). Callers write:
//
//	restore := env.SaveRestoreGlobal("self", value.String{V: cls})
//	defer restore()
func (e *Env) SaveRestoreGlobal(name string, v value.Value) func() {
	addr := e.GlobalAddr(name)
	prev := e.Heap.Get(addr)
	e.Heap.Set(addr, v)
	return func() { e.Heap.Set(addr, prev) }
}
