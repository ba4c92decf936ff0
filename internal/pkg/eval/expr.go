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

	"github.com/dynscript/absinterp/internal/pkg/ast"
	"github.com/dynscript/absinterp/internal/pkg/interperr"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/taint"
	"github.com/dynscript/absinterp/internal/pkg/unify"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Expr evaluates e in env and returns its value (SPEC_FULL.md §4.E).
func Expr(c *Ctx, env *scope.Env, e ast.Expr) (value.Value, error) {
	switch e := e.(type) {
	case *ast.Lit:
		return litValue(e), nil

	case *ast.Id:
		return evalID(c, env, e)

	case *ast.Interp:
		return evalInterp(c, env, e)

	case *ast.ArrayLit:
		return evalArrayLit(c, env, e)

	case *ast.BinOp:
		return evalBinOp(c, env, e)

	case *ast.UnOp:
		return evalUnOp(c, env, e)

	case *ast.Ternary:
		return evalTernary(c, env, e)

	case *ast.InstanceOf:
		if _, err := Expr(c, env, e.X); err != nil {
			return nil, err
		}
		return value.AbstractType{Kind: value.KindBool}, nil

	case *ast.Cast:
		return evalCast(c, env, e)

	case *ast.Call:
		return evalCall(c, env, e)

	case *ast.New:
		return evalNew(c, env, e)

	case *ast.ObjGet:
		return evalObjGet(c, env, e)

	case *ast.ClassGet:
		return evalClassGet(c, env, e)

	case *ast.Index:
		return evalIndex(c, env, e)

	case *ast.Assign:
		return evalAssign(c, env, e)

	case *ast.ListAssign:
		return evalListAssign(c, env, e)

	case *ast.Xhp:
		return evalXhp(c, env, e)
	}
	return value.Any{}, nil
}

func litValue(l *ast.Lit) value.Value {
	switch l.Kind {
	case ast.LitNull:
		return value.Null{}
	case ast.LitBool:
		return value.Bool{V: l.Bval}
	case ast.LitInt:
		return value.Int{V: l.Ival}
	case ast.LitFloat:
		return value.Float{V: l.Fval}
	case ast.LitString:
		return value.String{V: l.Sval}
	}
	return value.Null{}
}

// evalID resolves a bare identifier: a variable through the heap, or
// else a constant/function name through the code database
// (SPEC_FULL.md §4.D). Reserved superglobal sources are recognized
// here by literal name (SPEC_FULL.md §4.I).
func evalID(c *Ctx, env *scope.Env, e *ast.Id) (value.Value, error) {
	if taint.Superglobals[e.Name] {
		return value.Map{Key: value.Taint{Label: e.Name}, Elem: value.Taint{Label: e.Name}}, nil
	}
	if scope.IsVariable(e.Name) {
		addr, _ := env.Get(e.Name)
		return env.Heap.Get(addr), nil
	}
	if v, ok := env.DB.Const(e.Name); ok {
		return Expr(c, env, v)
	}
	if _, ok := env.DB.Fun(e.Name); ok {
		// bare reference to a function name without a call: treated as an
		// opaque, taint-free abstract value (no first-class closures beyond
		// Method/Closure produced by class construction).
		return value.AbstractType{Kind: value.KindString}, nil
	}
	if c.Strict {
		return nil, &interperr.UnknownConstant{Name: e.Name}
	}
	return value.Any{}, nil
}

func evalInterp(c *Ctx, env *scope.Env, e *ast.Interp) (value.Value, error) {
	vals := make([]value.Value, 0, len(e.Segments))
	for _, seg := range e.Segments {
		v, err := Expr(c, env, seg)
		if err != nil {
			return nil, err
		}
		vals = append(vals, env.Heap.Chase(v))
	}
	return foldConcat(vals), nil
}

// foldConcat implements string interpolation folding (SPEC_FULL.md
// §4.E/§4.I): precise if every segment is a precise String, tainted if
// any segment carries taint, else AbstractType(String).
func foldConcat(vals []value.Value) value.Value {
	allPrecise := true
	anyTaint := false
	s := ""
	for _, v := range vals {
		if value.IsTainted(v) {
			anyTaint = true
		}
		if str, ok := v.(value.String); ok {
			s += str.V
		} else {
			allPrecise = false
		}
	}
	var base value.Value
	if allPrecise {
		base = value.String{V: s}
	} else {
		base = value.AbstractType{Kind: value.KindString}
	}
	if anyTaint {
		return value.NewSum(base, value.Taint{Label: "interp"})
	}
	return base
}

// evalArrayLit implements SPEC_FULL.md §4.E's array construction with
// a local slice standing in for the *array* scratch variable: entries
// accumulate one at a time; the kind of the final structure
// (Array/Record/Map) falls out of what keys were seen.
func evalArrayLit(c *Ctx, env *scope.Env, e *ast.ArrayLit) (value.Value, error) {
	type entry struct {
		intKey    *int64
		stringKey *string
		val       value.Value
	}
	var entries []entry
	nextIdx := int64(0)
	for _, ent := range e.Entries {
		v, err := Expr(c, env, ent.Value)
		if err != nil {
			return nil, err
		}
		v = env.Heap.Chase(v)
		if ent.Key == nil {
			idx := nextIdx
			nextIdx++
			entries = append(entries, entry{intKey: &idx, val: v})
			continue
		}
		kv, err := Expr(c, env, ent.Key)
		if err != nil {
			return nil, err
		}
		switch kv := env.Heap.Chase(kv).(type) {
		case value.Int:
			k := kv.V
			if k >= nextIdx {
				nextIdx = k + 1
			}
			entries = append(entries, entry{intKey: &k, val: v})
		case value.String:
			k := kv.V
			entries = append(entries, entry{stringKey: &k, val: v})
		default:
			// Non-literal key: collapses the whole literal to a Map.
			entries = append(entries, entry{val: v})
		}
	}

	allInt, allString := true, true
	for _, en := range entries {
		if en.intKey == nil {
			allInt = false
		}
		if en.stringKey == nil {
			allString = false
		}
	}

	switch {
	case len(entries) == 0:
		return value.Array{}, nil
	case allInt:
		sort.Slice(entries, func(i, j int) bool { return *entries[i].intKey < *entries[j].intKey })
		elems := make([]value.Value, len(entries))
		for i, en := range entries {
			elems[i] = en.val
		}
		return value.Array{Elems: elems}, nil
	case allString:
		fields := map[string]value.Value{}
		for _, en := range entries {
			if existing, ok := fields[*en.stringKey]; ok {
				fields[*en.stringKey] = unifyValues(env, existing, en.val)
			} else {
				fields[*en.stringKey] = en.val
			}
		}
		return value.Record{Fields: fields}, nil
	default:
		var keyAcc, elemAcc value.Value
		for i, en := range entries {
			var k value.Value
			switch {
			case en.intKey != nil:
				k = value.Int{V: *en.intKey}
			case en.stringKey != nil:
				k = value.String{V: *en.stringKey}
			default:
				k = value.Any{}
			}
			if i == 0 {
				keyAcc, elemAcc = k, en.val
			} else {
				keyAcc = unifyValues(env, keyAcc, k)
				elemAcc = unifyValues(env, elemAcc, en.val)
			}
		}
		return value.Map{Key: keyAcc, Elem: elemAcc}, nil
	}
}

func unifyValues(env *scope.Env, a, b value.Value) value.Value {
	_, v := unify.Unify(env.Heap, a, b)
	return v
}

func evalBinOp(c *Ctx, env *scope.Env, e *ast.BinOp) (value.Value, error) {
	x, err := Expr(c, env, e.X)
	if err != nil {
		return nil, err
	}
	y, err := Expr(c, env, e.Y)
	if err != nil {
		return nil, err
	}
	return binOpValue(e.Op, env.Heap.Chase(x), env.Heap.Chase(y)), nil
}

// binOpValue applies a binary operator to already-evaluated operands,
// shared between plain BinOp expressions and compound assignment
// (`$x += $y`), which needs to combine a current value with a new one
// without re-walking an expression tree.
func binOpValue(op string, x, y value.Value) value.Value {
	switch op {
	case "&&", "||", "==", "!=", "<", ">", "<=", ">=":
		return value.AbstractType{Kind: value.KindBool}
	case ".":
		return foldConcat([]value.Value{x, y})
	default: // arithmetic: "+","-","*","/","%"
		if isIntShaped(x) && isIntShaped(y) {
			return value.AbstractType{Kind: value.KindInt}
		}
		return value.NewSum(value.Null{}, value.AbstractType{Kind: value.KindInt})
	}
}

func isIntShaped(v value.Value) bool {
	switch v := v.(type) {
	case value.Int:
		return true
	case value.AbstractType:
		return v.Kind == value.KindInt
	}
	return false
}

func evalUnOp(c *Ctx, env *scope.Env, e *ast.UnOp) (value.Value, error) {
	x, err := Expr(c, env, e.X)
	if err != nil {
		return nil, err
	}
	x = env.Heap.Chase(x)

	switch e.Op {
	case "-":
		if iv, ok := x.(value.Int); ok {
			return value.Int{V: -iv.V}, nil
		}
		if fv, ok := x.(value.Float); ok {
			return value.Float{V: -fv.V}, nil
		}
		if isIntShaped(x) {
			return value.AbstractType{Kind: value.KindInt}, nil
		}
		return value.NewSum(value.Null{}, value.AbstractType{Kind: value.KindInt}), nil
	case "!":
		return value.AbstractType{Kind: value.KindBool}, nil
	case "~":
		if isIntShaped(x) {
			return value.AbstractType{Kind: value.KindInt}, nil
		}
		return value.NewSum(value.Null{}, value.AbstractType{Kind: value.KindInt}), nil
	case "++", "--":
		// Resolved Open Question (SPEC_FULL.md §9): apply the same
		// unary-op narrowing rule rather than silently passing the
		// operand through, so taint/call-graph consumers stay sound.
		if iv, ok := x.(value.Int); ok {
			delta := int64(1)
			if e.Op == "--" {
				delta = -1
			}
			return value.Int{V: iv.V + delta}, nil
		}
		if isIntShaped(x) {
			return value.AbstractType{Kind: value.KindInt}, nil
		}
		return value.NewSum(value.Null{}, value.AbstractType{Kind: value.KindInt}), nil
	}
	return value.Any{}, nil
}

func evalTernary(c *Ctx, env *scope.Env, e *ast.Ternary) (value.Value, error) {
	condVal, err := Expr(c, env, e.Cond)
	if err != nil {
		return nil, err
	}
	if e.Then == nil {
		// null-coalescing: `x ?? els`
		els, err := Expr(c, env, e.Els)
		if err != nil {
			return nil, err
		}
		return unifyValues(env, env.Heap.Chase(condVal), els), nil
	}
	thenVal, err := Expr(c, env, e.Then)
	if err != nil {
		return nil, err
	}
	elsVal, err := Expr(c, env, e.Els)
	if err != nil {
		return nil, err
	}
	return unifyValues(env, thenVal, elsVal), nil
}

func evalCast(c *Ctx, env *scope.Env, e *ast.Cast) (value.Value, error) {
	x, err := Expr(c, env, e.X)
	if err != nil {
		return nil, err
	}
	x = env.Heap.Chase(x)
	var kind value.AbstractKind
	switch e.Type {
	case "int":
		kind = value.KindInt
	case "bool":
		kind = value.KindBool
	case "float":
		kind = value.KindFloat
	case "string":
		kind = value.KindString
	default:
		return x, nil
	}
	if value.IsTainted(x) {
		return value.NewSum(value.AbstractType{Kind: kind}, value.Taint{Label: taint.Label(env.Heap, x)}), nil
	}
	return value.AbstractType{Kind: kind}, nil
}

func evalIndex(c *Ctx, env *scope.Env, e *ast.Index) (value.Value, error) {
	x, err := Expr(c, env, e.X)
	if err != nil {
		return nil, err
	}
	x = env.Heap.Chase(x)
	switch x := x.(type) {
	case value.Array:
		if len(x.Elems) == 0 {
			return value.Null{}, nil
		}
		acc := x.Elems[0]
		for _, el := range x.Elems[1:] {
			acc = unifyValues(env, acc, el)
		}
		return acc, nil
	case value.Map:
		return x.Elem, nil
	case value.Record:
		if idxLit, ok := e.Index.(*ast.Lit); ok && idxLit.Kind == ast.LitString {
			if f, ok := x.Fields[idxLit.Sval]; ok {
				return f, nil
			}
		}
		var acc value.Value = value.Null{}
		first := true
		for _, f := range x.Fields {
			if first {
				acc, first = f, false
			} else {
				acc = unifyValues(env, acc, f)
			}
		}
		return acc, nil
	}
	return value.NewSum(value.Null{}, value.Any{}), nil
}

func evalXhp(c *Ctx, env *scope.Env, e *ast.Xhp) (value.Value, error) {
	names := make([]string, 0, len(e.Attrs))
	for n := range e.Attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	fields := map[string]value.Value{}
	anyTaint := false
	for _, n := range names {
		v, err := Expr(c, env, e.Attrs[n])
		if err != nil {
			return nil, err
		}
		v = env.Heap.Chase(v)
		if value.IsTainted(v) {
			anyTaint = true
		}
		fields[n] = v
	}
	for _, ch := range e.Children {
		v, err := Expr(c, env, ch)
		if err != nil {
			return nil, err
		}
		if value.IsTainted(env.Heap.Chase(v)) {
			anyTaint = true
		}
	}
	obj := value.Object{Class: "xhp:" + e.Tag, Members: fields}
	if anyTaint {
		return value.NewSum(obj, value.Taint{Label: "xhp:" + e.Tag}), nil
	}
	return obj, nil
}

// resolveClassName resolves the (possibly dynamic) class-naming
// expression of New/InstanceOf-like constructs: an Id naming a class
// directly, or any other expression evaluated to a String.
func resolveClassName(c *Ctx, env *scope.Env, e ast.Expr) (string, error) {
	if id, ok := e.(*ast.Id); ok && !scope.IsVariable(id.Name) {
		return id.Name, nil
	}
	v, err := Expr(c, env, e)
	if err != nil {
		return "", err
	}
	if s, ok := env.Heap.Chase(v).(value.String); ok {
		return s.V, nil
	}
	return "", &interperr.UnknownClass{Name: "<dynamic>"}
}
