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
	"sort"
	"strings"

	"github.com/dynscript/absinterp/internal/pkg/ast"
	"github.com/dynscript/absinterp/internal/pkg/callgraph"
	"github.com/dynscript/absinterp/internal/pkg/debug"
	"github.com/dynscript/absinterp/internal/pkg/interperr"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/taint"
	"github.com/dynscript/absinterp/internal/pkg/unify"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// reservedSink is the call name reserved as a sink regardless of any
// configured matcher, the way the superglobals are reserved sources
// regardless of a configured SourceMatcher (SPEC_FULL.md §4.I): every
// call to a function or method with this name has its arguments
// checked by checkSink.
const reservedSink = "render"

// evalCall dispatches a Call node to direct-function, method, or
// static-method handling, or to a fully dynamic callee otherwise
// (SPEC_FULL.md §4.G).
func evalCall(c *Ctx, env *scope.Env, e *ast.Call) (value.Value, error) {
	switch callee := e.Callee.(type) {
	case *ast.Id:
		if !scope.IsVariable(callee.Name) {
			return evalDirectCall(c, env, callee.Name, e.Args)
		}
	case *ast.ObjGet:
		return evalMethodCall(c, env, callee, e.Args)
	case *ast.ClassGet:
		return evalStaticCall(c, env, callee, e.Args)
	}

	calleeVal, err := Expr(c, env, e.Callee)
	if err != nil {
		return nil, err
	}
	return evalDynamicCall(c, env, env.Heap.Chase(calleeVal), e.Args)
}

func evalArgs(c *Ctx, env *scope.Env, args []ast.Arg) ([]value.Value, error) {
	var vals []value.Value
	for _, a := range args {
		v, err := Expr(c, env, a.Value)
		if err != nil {
			return nil, err
		}
		v = env.Heap.Chase(v)
		if a.Spread {
			if arr, ok := v.(value.Array); ok {
				vals = append(vals, arr.Elems...)
				continue
			}
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// sinkName renders a class/name pair for Finding.Sink: a bare function
// name for free functions (class == ""), "class::name" for methods.
func sinkName(class, name string) string {
	if class == "" {
		return name
	}
	return methodID(class, name)
}

// checkSink records a Finding for every tainted argument when
// class.name (class "" for a free function) is a configured sink or
// the reserved render sink (SPEC_FULL.md §4.I/§6.2), shared by every
// call form so a sink match fires the same way whether it's called
// directly, as a method, or statically. A no-op when taint_mode is off
// (SPEC_FULL.md §6.3/§4.I: "When disabled, its operations are
// identity/no-op").
func checkSink(c *Ctx, env *scope.Env, class, name string, argVals []value.Value) {
	if !c.TaintMode {
		return
	}
	isSink := name == reservedSink || (c.Hook != nil && c.Hook.IsSink(class, name))
	if !isSink {
		return
	}
	for _, av := range argVals {
		if taint.Reaches(env.Heap, av) {
			label := taint.Label(env.Heap, av)
			c.Findings = append(c.Findings, taint.Finding{
				Sink:   sinkName(class, name),
				Source: label,
				Label:  label,
			})
		}
	}
}

// applySanitizer strips taint from ret when class.name is a configured
// sanitizer. A no-op when taint_mode is off.
func applySanitizer(c *Ctx, class, name string, ret value.Value) value.Value {
	if c.TaintMode && c.Hook != nil && c.Hook.IsSanitizer(class, name) {
		return taint.Sanitize(ret)
	}
	return ret
}

// unknownCallSummary is the result of a call this analysis cannot
// resolve to a body: taint-free arguments produce a fresh Any, but if
// any argument is tainted the result also carries a Taint (labelled
// "unknown-call"), since an unknown function might simply return one
// of its arguments.
func unknownCallSummary(argVals []value.Value) value.Value {
	for _, v := range argVals {
		if value.IsTainted(v) {
			return value.NewSum(value.Any{}, value.Taint{Label: "unknown-call"})
		}
	}
	return value.Any{}
}

func evalDirectCall(c *Ctx, env *scope.Env, name string, args []ast.Arg) (value.Value, error) {
	switch name {
	case "id":
		return evalIdentityCall(c, env, args)
	case "show":
		return evalShowCall(c, env, args)
	case "checkpoint":
		return evalCheckpointCall(c, env, args)
	}

	c.addEdge(env, callgraph.FuncNode(name))
	fdef, ok := env.DB.Fun(name)
	if !ok {
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		if c.Strict {
			return nil, &interperr.UnknownFunction{Name: name}
		}
		return unknownCallSummary(argVals), nil
	}
	argVals, err := evalArgs(c, env, args)
	if err != nil {
		return nil, err
	}
	checkSink(c, env, "", name, argVals)
	ret, err := invokeFunction(c, env, name, "", "", fdef, argVals, args, value.Null{})
	if err != nil {
		return nil, err
	}
	return applySanitizer(c, "", name, ret), nil
}

// evalIdentityCall implements the hardcoded `id(x)` identity
// (SPEC_FULL.md §4.E): a call to id is replaced by its single
// argument's value, as if the call were never there.
func evalIdentityCall(c *Ctx, env *scope.Env, args []ast.Arg) (value.Value, error) {
	if len(args) == 0 {
		return value.Null{}, nil
	}
	return Expr(c, env, args[0].Value)
}

// evalShowCall implements the hardcoded `show(x)` debug hook
// (SPEC_FULL.md §4.E): every argument is evaluated, for whatever side
// effects and taint propagation that causes, and the result discarded.
func evalShowCall(c *Ctx, env *scope.Env, args []ast.Arg) (value.Value, error) {
	for _, a := range args {
		if _, err := Expr(c, env, a.Value); err != nil {
			return nil, err
		}
	}
	return value.Null{}, nil
}

// evalCheckpointCall implements the hardcoded `checkpoint()` debug hook
// (SPEC_FULL.md §4.E/§6.2): it captures (heap, vars) into the
// test-inspectable Ctx.Debug slot. An optional first argument supplies
// the checkpoint's label.
func evalCheckpointCall(c *Ctx, env *scope.Env, args []ast.Arg) (value.Value, error) {
	label := ""
	if len(args) > 0 {
		v, err := Expr(c, env, args[0].Value)
		if err != nil {
			return nil, err
		}
		if s, ok := env.Heap.Chase(v).(value.String); ok {
			label = s.V
		}
	}
	if c.Debug != nil {
		c.Debug.Record(debug.NewCheckpoint(label, env.Heap, env.Locals()))
	}
	return value.Null{}, nil
}

// invokeFunction runs fdef's body in a fresh child Env, applying the
// recursion and depth bounds of SPEC_FULL.md §4.G: a function already
// n>=2 deep on the stack short-circuits to Any without evaluating its
// body again, and a clean call (no argument reaches taint) made once
// the stack reaches MaxDepth does the same. A taint-free result is
// recorded in c.clean under name.
func invokeFunction(c *Ctx, env *scope.Env, name, class, selfClass string, fdef *ast.FuncDef, argVals []value.Value, argExprs []ast.Arg, receiver value.Value) (value.Value, error) {
	if env.Depth(name) >= 2 {
		return value.Any{}, nil
	}
	clean := true
	for _, av := range argVals {
		if taint.Reaches(env.Heap, av) {
			clean = false
			break
		}
	}
	if clean && c.MaxDepth > 0 && len(env.Stack()) >= c.MaxDepth {
		return value.Any{}, nil
	}

	child := env.Child(name, class)
	if selfClass != "" {
		restoreSelf := child.SaveRestoreGlobal(scope.SelfVar, value.String{V: selfClass})
		defer restoreSelf()
		if info, err := ForceClass(c, env, selfClass); err == nil && info.Parent != nil {
			restoreParent := child.SaveRestoreGlobal(scope.ParentVar, value.String{V: info.Parent.Name})
			defer restoreParent()
		}
	}
	if _, ok := receiver.(value.Null); !ok {
		if p, ok := receiver.(value.Ptr); ok {
			child.Bind(scope.ThisVar, p.Addr)
		}
	}

	bindParams(c, env, child, fdef.Params, argVals, argExprs)

	sig, err := Block(c, child, fdef.Body)
	if err != nil {
		return nil, err
	}
	ret := value.Value(value.Null{})
	if sig.kind == sigReturn {
		ret = sig.value
	}
	if !taint.Reaches(env.Heap, ret) {
		c.clean[name] = ret
	}
	return ret, nil
}

// bindParams binds fdef's parameters into callee, applying defaults
// for missing trailing arguments, collecting variadic tails into an
// Array, and aliasing by-ref parameters directly to the caller's
// lvalue cell rather than copying a value (SPEC_FULL.md §4.D/§4.G).
func bindParams(c *Ctx, callerEnv, callee *scope.Env, params []ast.Param, argVals []value.Value, argExprs []ast.Arg) {
	for i, p := range params {
		if p.IsVariadic {
			var rest []value.Value
			if i < len(argVals) {
				rest = append(rest, argVals[i:]...)
			}
			addr, _ := callee.Get(p.Name)
			callee.Heap.Set(addr, value.Array{Elems: rest})
			return
		}
		if p.ByRef && i < len(argExprs) {
			if addr, fresh, err := LValue(c, callerEnv, argExprs[i].Value); err == nil {
				_ = fresh
				callee.Bind(p.Name, addr)
				continue
			}
		}
		var v value.Value
		switch {
		case i < len(argVals):
			v = argVals[i]
		case p.Default != nil:
			dv, err := Expr(c, callee, p.Default)
			if err == nil {
				v = dv
			} else {
				v = value.Null{}
			}
		default:
			v = value.Null{}
		}
		addr, _ := callee.Get(p.Name)
		callee.Heap.Set(addr, v)
	}
}

// evalMethodCall handles `$obj->name(...)`.
func evalMethodCall(c *Ctx, env *scope.Env, og *ast.ObjGet, args []ast.Arg) (value.Value, error) {
	objVal, err := Expr(c, env, og.Obj)
	if err != nil {
		return nil, err
	}
	objVal = env.Heap.Chase(objVal)

	name, err := memberName(c, env, og)
	if err != nil {
		return nil, err
	}

	obj, ok := objVal.(value.Object)
	if !ok {
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		if value.IsTainted(objVal) {
			return unknownCallSummary(append(argVals, objVal)), nil
		}
		if c.Strict {
			return nil, &interperr.UnknownObject{Expr: name}
		}
		return unknownCallSummary(argVals), nil
	}

	member, ok := obj.Members[name]
	if !ok {
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		if c.Strict {
			return nil, &interperr.UnknownMethod{Name: name, Class: obj.Class, Candidates: memberNames(obj)}
		}
		return unknownCallSummary(argVals), nil
	}

	m, ok := env.Heap.Chase(member).(value.Method)
	if !ok {
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		return unknownCallSummary(argVals), nil
	}

	argVals, err := evalArgs(c, env, args)
	if err != nil {
		return nil, err
	}

	checkSink(c, env, obj.Class, name, argVals)

	ret, err := callMethodValue(c, env, m, argVals, args)
	if err != nil {
		return nil, err
	}
	return applySanitizer(c, obj.Class, name, ret), nil
}

func memberName(c *Ctx, env *scope.Env, og *ast.ObjGet) (string, error) {
	if og.Dynamic == nil {
		return og.Name, nil
	}
	v, err := Expr(c, env, og.Dynamic)
	if err != nil {
		return "", err
	}
	if s, ok := env.Heap.Chase(v).(value.String); ok {
		return s.V, nil
	}
	return "", &interperr.Impossible{Condition: "dynamic member name is not a string"}
}

func memberNames(obj value.Object) []string {
	names := make([]string, 0, len(obj.Members))
	for n := range obj.Members {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// callMethodValue dispatches a Method value: every distinct closure
// target in m.Ids is invoked and the results unify pairwise, matching
// the teacher's own merge-then-dispatch handling for interfaces with
// multiple implementors (SPEC_FULL.md §4.G, §3.1 invariant 4).
func callMethodValue(c *Ctx, env *scope.Env, m value.Method, argVals []value.Value, argExprs []ast.Arg) (value.Value, error) {
	ids := make([]string, 0, len(m.Ids))
	for id := range m.Ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result value.Value
	for i, id := range ids {
		v, err := dispatchClosure(c, env, id, m.Receiver, argVals, argExprs)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = v
		} else {
			_, result = unify.Unify(env.Heap, result, v)
		}
	}
	if result == nil {
		return value.Null{}, nil
	}
	return result, nil
}

// dispatchClosure invokes the function a fully-qualified "Class::name"
// (or bare function) closure id names.
func dispatchClosure(c *Ctx, env *scope.Env, id string, receiver value.Value, argVals []value.Value, argExprs []ast.Arg) (value.Value, error) {
	class, name, isMethod := strings.Cut(id, "::")
	if !isMethod {
		c.addEdge(env, callgraph.FuncNode(id))
		fdef, ok := env.DB.Fun(id)
		if !ok {
			if c.Strict {
				return nil, &interperr.UnknownFunction{Name: id}
			}
			return unknownCallSummary(argVals), nil
		}
		return invokeFunction(c, env, id, "", "", fdef, argVals, argExprs, value.Null{})
	}
	c.addEdge(env, callgraph.MethodNode(class, name))
	info, err := ForceClass(c, env, class)
	if err != nil {
		return nil, err
	}
	fdef, ok := info.Methods[name]
	if !ok {
		if c.Strict {
			return nil, &interperr.UnknownMethod{Name: name, Class: class}
		}
		return unknownCallSummary(argVals), nil
	}
	owner := info.Owner[name]
	return invokeFunction(c, env, name, class, owner, fdef, argVals, argExprs, receiver)
}

// evalStaticCall handles `Class::name(...)`, including the self::/
// parent:: forms resolved against the calling Env's current class.
func evalStaticCall(c *Ctx, env *scope.Env, cg *ast.ClassGet, args []ast.Arg) (value.Value, error) {
	class, err := resolveStaticClassName(c, env, cg.ClassName)
	if err != nil {
		return nil, err
	}
	argVals, err := evalArgs(c, env, args)
	if err != nil {
		return nil, err
	}
	info, err := ForceClass(c, env, class)
	if err != nil {
		return nil, err
	}
	c.addEdge(env, callgraph.MethodNode(class, cg.Name))
	fdef, ok := info.Methods[cg.Name]
	if !ok {
		if c.Strict {
			return nil, &interperr.UnknownMethod{Name: cg.Name, Class: class, Candidates: methodNames(info)}
		}
		return unknownCallSummary(argVals), nil
	}
	receiver := value.Value(value.Null{})
	if addr, ok := env.Lookup(scope.ThisVar); ok {
		receiver = value.Ptr{Addr: addr}
	}
	checkSink(c, env, class, cg.Name, argVals)
	ret, err := invokeFunction(c, env, cg.Name, class, info.Owner[cg.Name], fdef, argVals, args, receiver)
	if err != nil {
		return nil, err
	}
	return applySanitizer(c, class, cg.Name, ret), nil
}

func methodNames(info *ClassInfo) []string {
	names := make([]string, 0, len(info.Methods))
	for n := range info.Methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolveStaticClassName resolves self/parent against the calling
// Env's bound class context, and otherwise takes the name literally.
func resolveStaticClassName(c *Ctx, env *scope.Env, name string) (string, error) {
	switch name {
	case scope.SelfVar:
		if v, ok := lookupGlobalString(env, scope.SelfVar); ok {
			return v, nil
		}
		return env.CurrentClass(), nil
	case scope.ParentVar:
		if v, ok := lookupGlobalString(env, scope.ParentVar); ok {
			return v, nil
		}
		info, err := ForceClass(c, env, env.CurrentClass())
		if err != nil {
			return "", err
		}
		if info.Parent == nil {
			return "", &interperr.UnknownClass{Name: "parent of " + env.CurrentClass()}
		}
		return info.Parent.Name, nil
	}
	return name, nil
}

func lookupGlobalString(env *scope.Env, name string) (string, bool) {
	addr, ok := env.Globals[name]
	if !ok {
		return "", false
	}
	if s, ok := env.Heap.Get(addr).(value.String); ok {
		return s.V, true
	}
	return "", false
}

// evalDynamicCall handles a Call whose callee expression evaluated to
// a value rather than naming a function/method syntactically
// (SPEC_FULL.md §4.G): a String re-enters by name, a Method dispatches
// as a method value would, taint propagates, and anything else falls
// back to the unknown-call summary.
func evalDynamicCall(c *Ctx, env *scope.Env, calleeVal value.Value, args []ast.Arg) (value.Value, error) {
	switch cv := calleeVal.(type) {
	case value.String:
		return evalDirectCall(c, env, cv.V, args)
	case value.Method:
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		return callMethodValue(c, env, cv, argVals, args)
	default:
		argVals, err := evalArgs(c, env, args)
		if err != nil {
			return nil, err
		}
		if value.IsTainted(calleeVal) {
			return unknownCallSummary(append(argVals, calleeVal)), nil
		}
		return unknownCallSummary(argVals), nil
	}
}

// evalNew constructs an instance of a (possibly dynamically named)
// class: its flattened fields are initialized, its flattened methods
// become Method-valued members bound to the new object's address, and
// if a constructor exists it runs against them before the object is
// returned (SPEC_FULL.md §4.H).
func evalNew(c *Ctx, env *scope.Env, e *ast.New) (value.Value, error) {
	class, err := resolveClassName(c, env, e.ClassExpr)
	if err != nil {
		return nil, err
	}
	info, err := ForceClass(c, env, class)
	if err != nil {
		return nil, err
	}

	addr := env.Heap.NewCell(value.Null{})
	objPtr := value.Ptr{Addr: addr}

	classEnv := env.Child(scope.BuildMethod, class)
	members := map[string]value.Value{}
	for _, f := range info.Fields {
		if init, ok := info.FieldInit[f]; ok && init != nil {
			v, err := Expr(c, classEnv, init)
			if err != nil {
				return nil, err
			}
			members[f] = v
		} else {
			members[f] = value.Null{}
		}
	}
	for name := range info.Methods {
		id := methodID(class, name)
		members[name] = value.Method{Receiver: objPtr, Ids: map[string]value.Closure{id: {FuncName: id}}}
	}
	env.Heap.Set(addr, value.Object{Class: class, Members: members})

	if ctor, ok := info.Methods["__construct"]; ok {
		argVals, err := evalArgs(c, env, e.Args)
		if err != nil {
			return nil, err
		}
		c.addEdge(env, callgraph.MethodNode(class, "__construct"))
		if _, err := invokeFunction(c, env, "__construct", class, info.Owner["__construct"], ctor, argVals, e.Args, objPtr); err != nil {
			return nil, err
		}
	}
	return objPtr, nil
}
