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

// LValue resolves e to a heap address suitable for direct aliasing —
// currently only plain variables qualify, since every other
// assignment target (array index, object field, static property)
// mutates a whole container value in place rather than addressing an
// independent cell (SPEC_FULL.md §4.D). Callers that need it only for
// by-reference parameter binding treat a non-nil error as "fall back
// to pass-by-value".
func LValue(c *Ctx, env *scope.Env, e ast.Expr) (addr int, fresh bool, err error) {
	id, ok := e.(*ast.Id)
	if !ok || !scope.IsVariable(id.Name) {
		return 0, false, interperr.NewImpossible("not a by-reference-capable lvalue", nil)
	}
	addr, fresh = env.Get(id.Name)
	return addr, fresh, nil
}

// assignTo writes v into lhs, applying the fresh-flag-gated
// unify-or-overwrite rule for plain variables (SPEC_FULL.md §4.E): the
// very first binding of a variable simply stores v, but a variable
// already referenced in this Env — possibly by another branch this
// flow-insensitive pass already walked — unifies its existing content
// with v instead of discarding it.
func assignTo(c *Ctx, env *scope.Env, lhs ast.Expr, v value.Value) (value.Value, error) {
	switch lhs := lhs.(type) {
	case *ast.Id:
		if !scope.IsVariable(lhs.Name) {
			return nil, interperr.NewImpossible("assignment to non-variable identifier "+lhs.Name, nil)
		}
		addr, fresh := env.Get(lhs.Name)
		if fresh {
			env.Heap.Set(addr, v)
		} else {
			_, merged := unify.Unify(env.Heap, env.Heap.Get(addr), v)
			env.Heap.Set(addr, merged)
		}
		return v, nil

	case *ast.Index:
		return assignIndex(c, env, lhs, v)

	case *ast.ObjGet:
		return assignObjGet(c, env, lhs, v)

	case *ast.ClassGet:
		return assignClassGet(c, env, lhs, v)
	}
	return nil, interperr.NewImpossible("unsupported assignment target", nil)
}

func evalAssign(c *Ctx, env *scope.Env, e *ast.Assign) (value.Value, error) {
	rhsVal, err := Expr(c, env, e.Rhs)
	if err != nil {
		return nil, err
	}
	rhsVal = env.Heap.Chase(rhsVal)

	if e.Op != "" {
		curVal, err := Expr(c, env, e.Lhs)
		if err != nil {
			return nil, err
		}
		rhsVal = binOpValue(e.Op, env.Heap.Chase(curVal), rhsVal)
	}
	return assignTo(c, env, e.Lhs, rhsVal)
}

// evalListAssign destructures rhsVal positionally into e.Lhs, skipping
// nil slots (`list(, $b) = $pair`). An Array rhs binds each position to
// its own element; anything else (Map, or an abstract value this
// analysis cannot index precisely) binds every position to the same
// summary value (SPEC_FULL.md §4.E).
func evalListAssign(c *Ctx, env *scope.Env, e *ast.ListAssign) (value.Value, error) {
	rhsVal, err := Expr(c, env, e.Rhs)
	if err != nil {
		return nil, err
	}
	rhsVal = env.Heap.Chase(rhsVal)

	arr, isArray := rhsVal.(value.Array)
	var summary value.Value
	if m, ok := rhsVal.(value.Map); ok {
		summary = m.Elem
	} else if !isArray {
		summary = value.Any{}
	}

	for i, target := range e.Lhs {
		if target == nil {
			continue
		}
		var v value.Value
		switch {
		case isArray && i < len(arr.Elems):
			v = arr.Elems[i]
		case isArray:
			v = value.Null{}
		default:
			v = summary
		}
		if _, err := assignTo(c, env, target, v); err != nil {
			return nil, err
		}
	}
	return rhsVal, nil
}

// evalObjGet reads `$obj->name` (or `$obj->{dynamic}`), auto-vivifying
// a Null field on first reference the way scope.Env.Get auto-vivifies
// a fresh variable (SPEC_FULL.md §4.E invariant: every Object member
// access observes a defined value).
func evalObjGet(c *Ctx, env *scope.Env, e *ast.ObjGet) (value.Value, error) {
	rawVal, err := Expr(c, env, e.Obj)
	if err != nil {
		return nil, err
	}
	name, err := memberName(c, env, e)
	if err != nil {
		return nil, err
	}

	objVal := env.Heap.Chase(rawVal)
	obj, ok := objVal.(value.Object)
	if !ok {
		if value.IsTainted(objVal) {
			return objVal, nil
		}
		if c.Strict {
			return nil, &interperr.UnknownObject{Expr: name}
		}
		return value.Any{}, nil
	}
	if v, ok := obj.Members[name]; ok {
		return v, nil
	}

	if ptr, ok := rawVal.(value.Ptr); ok {
		members := cloneMembers(obj.Members)
		members[name] = value.Null{}
		env.Heap.Set(ptr.Addr, value.Object{Class: obj.Class, Members: members})
		return value.Null{}, nil
	}
	if c.Strict {
		return nil, &interperr.UnknownMethod{Name: name, Class: obj.Class, Candidates: memberNames(obj)}
	}
	return value.Null{}, nil
}

// evalClassGet reads `Class::name`: a class constant, a bare
// (uncalled) method reference bound with a null receiver, or
// otherwise a static property backed by a process-wide global cell
// keyed by "Class::name".
func evalClassGet(c *Ctx, env *scope.Env, e *ast.ClassGet) (value.Value, error) {
	class, err := resolveStaticClassName(c, env, e.ClassName)
	if err != nil {
		return nil, err
	}
	info, err := ForceClass(c, env, class)
	if err != nil {
		return nil, err
	}
	if cexpr, ok := info.Constants[e.Name]; ok {
		return Expr(c, env, cexpr)
	}
	if _, ok := info.Methods[e.Name]; ok {
		id := methodID(class, e.Name)
		return value.Method{Receiver: value.Null{}, Ids: map[string]value.Closure{id: {FuncName: id}}}, nil
	}
	addr := env.GlobalAddr(class + "::" + e.Name)
	return env.Heap.Get(addr), nil
}

func cloneMembers(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// assignIndex implements `$container[$key] = v` (and append form
// `$container[] = v` when e.Index is nil). Only a plain-variable
// container is addressable for write-back; anything else (the result
// of a chained expression) still evaluates the key for its side
// effects but cannot persist the mutation, consistent with this
// analysis's "degrade gracefully rather than reject" posture toward
// constructs it cannot model precisely (SPEC_FULL.md §4.E).
func assignIndex(c *Ctx, env *scope.Env, ix *ast.Index, v value.Value) (value.Value, error) {
	id, ok := ix.X.(*ast.Id)
	if !ok || !scope.IsVariable(id.Name) {
		if ix.Index != nil {
			if _, err := Expr(c, env, ix.Index); err != nil {
				return nil, err
			}
		}
		return v, nil
	}

	var keyVal value.Value
	if ix.Index != nil {
		kv, err := Expr(c, env, ix.Index)
		if err != nil {
			return nil, err
		}
		keyVal = env.Heap.Chase(kv)
	}

	addr, _ := env.Get(id.Name)
	cur := env.Heap.Get(addr)
	env.Heap.Set(addr, mutateIndexed(env, cur, ix.Index == nil, keyVal, v))
	return v, nil
}

// mutateIndexed computes the container value resulting from writing v
// at keyVal (or appending, if isAppend) into cur, following the same
// promotion rules the unifier uses for Array/Map/Record merges
// (SPEC_FULL.md §4.C, §4.E).
func mutateIndexed(env *scope.Env, cur value.Value, isAppend bool, keyVal, v value.Value) value.Value {
	switch cur := cur.(type) {
	case value.Null:
		if isAppend {
			return value.Array{Elems: []value.Value{v}}
		}
		if sk, ok := keyVal.(value.String); ok {
			return value.Record{Fields: map[string]value.Value{sk.V: v}}
		}
		return value.Map{Key: keyOrAny(keyVal), Elem: v}

	case value.Array:
		if isAppend {
			elems := make([]value.Value, len(cur.Elems)+1)
			copy(elems, cur.Elems)
			elems[len(cur.Elems)] = v
			return value.Array{Elems: elems}
		}
		_, elem := unify.Unify(env.Heap, arrayElemSummary(env, cur), v)
		_, key := unify.Unify(env.Heap, value.AbstractType{Kind: value.KindInt}, keyOrAny(keyVal))
		return value.Map{Key: key, Elem: elem}

	case value.Map:
		key := cur.Key
		if !isAppend {
			_, key = unify.Unify(env.Heap, cur.Key, keyOrAny(keyVal))
		}
		_, elem := unify.Unify(env.Heap, cur.Elem, v)
		return value.Map{Key: key, Elem: elem}

	case value.Record:
		if sk, ok := keyVal.(value.String); !isAppend && ok {
			fields := make(map[string]value.Value, len(cur.Fields)+1)
			for k, fv := range cur.Fields {
				fields[k] = fv
			}
			if existing, ok := fields[sk.V]; ok {
				_, fields[sk.V] = unify.Unify(env.Heap, existing, v)
			} else {
				fields[sk.V] = v
			}
			return value.Record{Fields: fields}
		}
		var keyAcc, elemAcc value.Value = value.AbstractType{Kind: value.KindString}, value.Null{}
		first := true
		for _, fv := range cur.Fields {
			if first {
				elemAcc, first = fv, false
			} else {
				_, elemAcc = unify.Unify(env.Heap, elemAcc, fv)
			}
		}
		_, elemAcc = unify.Unify(env.Heap, elemAcc, v)
		if !isAppend {
			_, keyAcc = unify.Unify(env.Heap, keyAcc, keyOrAny(keyVal))
		}
		return value.Map{Key: keyAcc, Elem: elemAcc}

	default:
		return value.NewSum(cur, value.Map{Key: keyOrAny(keyVal), Elem: v})
	}
}

func keyOrAny(keyVal value.Value) value.Value {
	if keyVal == nil {
		return value.Any{}
	}
	return keyVal
}

func arrayElemSummary(env *scope.Env, a value.Array) value.Value {
	if len(a.Elems) == 0 {
		return value.Null{}
	}
	acc := a.Elems[0]
	for _, e := range a.Elems[1:] {
		_, acc = unify.Unify(env.Heap, acc, e)
	}
	return acc
}

// assignObjGet implements `$obj->name = v`. Only a Ptr-valued receiver
// can be written back through (objects are always reached via Ptr per
// SPEC_FULL.md §3.1 invariant 2); anything else drops the mutation.
func assignObjGet(c *Ctx, env *scope.Env, og *ast.ObjGet, v value.Value) (value.Value, error) {
	rawVal, err := Expr(c, env, og.Obj)
	if err != nil {
		return nil, err
	}
	name, err := memberName(c, env, og)
	if err != nil {
		return nil, err
	}
	ptr, ok := rawVal.(value.Ptr)
	if !ok {
		return v, nil
	}
	obj, ok := env.Heap.Get(ptr.Addr).(value.Object)
	if !ok {
		return v, nil
	}
	members := cloneMembers(obj.Members)
	if existing, ok := members[name]; ok {
		_, members[name] = unify.Unify(env.Heap, existing, v)
	} else {
		members[name] = v
	}
	env.Heap.Set(ptr.Addr, value.Object{Class: obj.Class, Members: members})
	return v, nil
}

// assignClassGet implements `Class::$name = v` against the
// process-wide global cell keyed by "Class::name".
func assignClassGet(c *Ctx, env *scope.Env, cg *ast.ClassGet, v value.Value) (value.Value, error) {
	class, err := resolveStaticClassName(c, env, cg.ClassName)
	if err != nil {
		return nil, err
	}
	addr := env.GlobalAddr(class + "::" + cg.Name)
	if _, ok := env.Heap.Get(addr).(value.Null); ok {
		env.Heap.Set(addr, v)
	} else {
		_, merged := unify.Unify(env.Heap, env.Heap.Get(addr), v)
		env.Heap.Set(addr, merged)
	}
	return v, nil
}
