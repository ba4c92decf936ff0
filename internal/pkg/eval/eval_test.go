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
	"testing"

	"github.com/dynscript/absinterp/internal/pkg/ast"
	"github.com/dynscript/absinterp/internal/pkg/db"
	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/scope"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// testHook is a minimal taint.Hook stand-in, mirroring the teacher's
// preference for hand-built test fixtures over loading a real YAML
// config file in unit tests (config/matcher_test.go does the same).
type testHook struct {
	sinks      map[string]bool // "class::name" or "name"
	sanitizers map[string]bool
}

func key(class, name string) string {
	if class == "" {
		return name
	}
	return class + "::" + name
}

func (h testHook) IsSource(class string) bool             { return false }
func (h testHook) IsSourceField(class, field string) bool  { return false }
func (h testHook) IsSink(class, name string) bool          { return h.sinks[key(class, name)] }
func (h testHook) IsSanitizer(class, name string) bool     { return h.sanitizers[key(class, name)] }
func (h testHook) IsExcluded(class, name string) bool      { return false }

func newTestCtx() *Ctx {
	return NewCtx(testHook{sinks: map[string]bool{}, sanitizers: map[string]bool{}}, true, 6, true)
}

func newTestEnv(d db.Database) *scope.Env {
	return scope.NewEnv(d, heap.New(), map[string]int{}, "", "", "test.hack", nil)
}

func id(name string) *ast.Id { return &ast.Id{Name: name} }

func lit(i int64) *ast.Lit { return &ast.Lit{Kind: ast.LitInt, Ival: i} }

func litStr(s string) *ast.Lit { return &ast.Lit{Kind: ast.LitString, Sval: s} }

func TestEvalLitAndVariable(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	if _, err := Expr(c, env, &ast.Assign{Lhs: id("$x"), Rhs: lit(3)}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, id("$x"))
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(got, value.Int{V: 3}) {
		t.Errorf("$x = %v, want Int(3)", got)
	}
}

func TestEvalVariableSpringsIntoNull(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, id("$undefined"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(value.Null); !ok {
		t.Errorf("first reference to $undefined = %v (%T), want Null", got, got)
	}
}

func TestEvalSuperglobalIsTainted(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, id("$_GET"))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.(value.Map)
	if !ok {
		t.Fatalf("$_GET = %v (%T), want Map", got, got)
	}
	if !value.IsTainted(m.Elem) {
		t.Errorf("$_GET element = %v, want tainted", m.Elem)
	}
}

func TestEvalBinOpArithmeticWidensToAbstractInt(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, &ast.BinOp{Op: "+", X: lit(1), Y: lit(2)})
	if err != nil {
		t.Fatal(err)
	}
	want := value.AbstractType{Kind: value.KindInt}
	if !value.Equal(got, want) {
		t.Errorf("1+2 = %v, want %v", got, want)
	}
}

func TestEvalConcatFoldsPreciseStrings(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, &ast.BinOp{Op: ".", X: litStr("a"), Y: litStr("b")})
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(got, value.String{V: "ab"}) {
		t.Errorf("\"a\".\"b\" = %v, want String(ab)", got)
	}
}

func TestEvalConcatTaintsWhenAnySegmentTainted(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	if _, err := Expr(c, env, &ast.Assign{Lhs: id("$tainted"), Rhs: id("$_GET")}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, &ast.BinOp{Op: ".", X: litStr("a"), Y: &ast.Index{X: id("$tainted"), Index: litStr("q")}})
	if err != nil {
		t.Fatal(err)
	}
	if !value.IsTainted(got) {
		t.Errorf("concat with tainted segment = %v, want tainted", got)
	}
}

func TestEvalArrayLitPromotion(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	// All-int keys (positional) promote to Array.
	arr, err := Expr(c, env, &ast.ArrayLit{Entries: []ast.ArrayEntry{
		{Value: lit(1)}, {Value: lit(2)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := arr.(value.Array); !ok {
		t.Errorf("positional literal = %v (%T), want Array", arr, arr)
	}

	// All-string keys promote to Record.
	rec, err := Expr(c, env, &ast.ArrayLit{Entries: []ast.ArrayEntry{
		{Key: litStr("a"), Value: lit(1)},
		{Key: litStr("b"), Value: litStr("x")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.(value.Record); !ok {
		t.Errorf("string-keyed literal = %v (%T), want Record", rec, rec)
	}

	// Mixed keys promote to Map.
	m, err := Expr(c, env, &ast.ArrayLit{Entries: []ast.ArrayEntry{
		{Key: litStr("a"), Value: lit(1)},
		{Key: lit(0), Value: lit(2)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(value.Map); !ok {
		t.Errorf("mixed-key literal = %v (%T), want Map", m, m)
	}
}

func TestEvalTernaryUnifiesBranches(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, &ast.Ternary{Cond: id("$cond"), Then: lit(1), Els: litStr("a")})
	if err != nil {
		t.Fatal(err)
	}
	want := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "a"})
	if !value.Equal(got, want) {
		t.Errorf("cond ? 1 : \"a\" = %v, want %v", got, want)
	}
}

func TestEvalNullCoalesce(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, &ast.Ternary{Cond: id("$maybe"), Els: lit(5)})
	if err != nil {
		t.Fatal(err)
	}
	want := value.NewSum(value.Null{}, value.Int{V: 5})
	if !value.Equal(got, want) {
		t.Errorf("$maybe ?? 5 = %v, want %v", got, want)
	}
}

func TestIfMergesBothBranchesFlowInsensitively(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	ifStmt := &ast.If{
		Cond: id("$cond"),
		Then: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{X: &ast.Assign{Lhs: id("$x"), Rhs: lit(1)}}}},
		Else: &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{X: &ast.Assign{Lhs: id("$x"), Rhs: litStr("a")}}}},
	}
	if _, err := Stmt(c, env, ifStmt); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, id("$x"))
	if err != nil {
		t.Fatal(err)
	}
	want := value.NewSum(value.AbstractType{Kind: value.KindInt}, value.String{V: "a"})
	if !value.Equal(got, want) {
		t.Errorf("$x after if/else = %v, want %v", got, want)
	}
}

func TestCallDirectFunction(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "double",
			Params: []ast.Param{{Name: "$n"}},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{X: &ast.BinOp{Op: "+", X: id("$n"), Y: id("$n")}},
			}},
		},
	}})
	c := newTestCtx()
	env := newTestEnv(d)

	got, err := Expr(c, env, &ast.Call{Callee: id("double"), Args: []ast.Arg{{Value: lit(4)}}})
	if err != nil {
		t.Fatal(err)
	}
	want := value.AbstractType{Kind: value.KindInt}
	if !value.Equal(got, want) {
		t.Errorf("double(4) = %v, want %v", got, want)
	}
}

func TestCallUnknownFunctionErrorsUnderStrict(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	_, err := Expr(c, env, &ast.Call{Callee: id("nope")})
	if err == nil {
		t.Fatal("expected an error calling an unresolved function under strict mode")
	}
}

func TestCallUnknownFunctionFallsBackToAnyNonStrict(t *testing.T) {
	c := NewCtx(testHook{sinks: map[string]bool{}, sanitizers: map[string]bool{}}, false, 6, true)
	env := newTestEnv(db.NewMapDatabase())

	got, err := Expr(c, env, &ast.Call{Callee: id("nope")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(value.Any); !ok {
		t.Errorf("non-strict unresolved call = %v (%T), want Any", got, got)
	}
}

func TestCallRecursionIsBounded(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name: "loop",
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{X: &ast.Call{Callee: id("loop")}},
			}},
		},
	}})
	c := newTestCtx()
	env := newTestEnv(d)

	// The recursion cap (n >= 2 into the same function) must make this
	// terminate; an unbounded cap would hang the test suite.
	if _, err := Expr(c, env, &ast.Call{Callee: id("loop")}); err != nil {
		t.Fatal(err)
	}
}

func TestClassFieldInheritanceAndConstruction(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.ClassDef{
			Name:      "Base",
			Fields:    []string{"x"},
			FieldInit: map[string]ast.Expr{"x": lit(1)},
		},
		&ast.ClassDef{
			Name:      "Sub",
			Parent:    "Base",
			Fields:    []string{"y"},
			FieldInit: map[string]ast.Expr{"y": litStr("s")},
		},
	}})
	c := newTestCtx()
	env := newTestEnv(d)

	obj, err := Expr(c, env, &ast.New{ClassExpr: id("Sub")})
	if err != nil {
		t.Fatal(err)
	}
	o, ok := env.Heap.Chase(obj).(value.Object)
	if !ok {
		t.Fatalf("new Sub() = %v (%T), want Object", obj, obj)
	}
	if !value.Equal(env.Heap.Chase(o.Members["x"]), value.Int{V: 1}) {
		t.Errorf("inherited field x = %v, want Int(1)", o.Members["x"])
	}
	if !value.Equal(env.Heap.Chase(o.Members["y"]), value.String{V: "s"}) {
		t.Errorf("own field y = %v, want String(s)", o.Members["y"])
	}
}

func TestMethodOverrideKeepsDistinctTargets(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.ClassDef{
			Name: "Base",
			Methods: []*ast.FuncDef{
				{Name: "greet", Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.Return{X: litStr("base")},
				}}},
			},
		},
		&ast.ClassDef{
			Name:   "Sub",
			Parent: "Base",
			Methods: []*ast.FuncDef{
				{Name: "greet", Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.Return{X: litStr("sub")},
				}}},
			},
		},
	}})
	c := newTestCtx()
	env := newTestEnv(d)

	if _, err := Expr(c, env, &ast.Assign{Lhs: id("$o"), Rhs: &ast.New{ClassExpr: id("Sub")}}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, &ast.Call{Callee: &ast.ObjGet{Obj: id("$o"), Name: "greet"}})
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(got, value.String{V: "sub"}) {
		t.Errorf("Sub()->greet() = %v, want String(sub)", got)
	}
}

func TestSinkReachedRecordsFinding(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.FuncDef{Name: "render", Params: []ast.Param{{Name: "$x"}}, Body: &ast.Block{}},
	}})
	hook := testHook{sinks: map[string]bool{"render": true}, sanitizers: map[string]bool{}}
	c := NewCtx(hook, true, 6, true)
	env := newTestEnv(d)

	if _, err := Expr(c, env, &ast.Call{Callee: id("render"), Args: []ast.Arg{{Value: id("$_GET")}}}); err != nil {
		t.Fatal(err)
	}
	if len(c.Findings) != 1 {
		t.Fatalf("Findings = %v, want exactly one finding", c.Findings)
	}
}

func TestSanitizerStripsTaint(t *testing.T) {
	d := db.NewMapDatabase()
	d.AddProgram(&ast.Program{Stmts: []ast.Stmt{
		&ast.FuncDef{Name: "sanitize", Params: []ast.Param{{Name: "$x"}}, Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{X: id("$x")},
		}}},
	}})
	hook := testHook{sinks: map[string]bool{}, sanitizers: map[string]bool{"sanitize": true}}
	c := NewCtx(hook, true, 6, true)
	env := newTestEnv(d)

	got, err := Expr(c, env, &ast.Call{Callee: id("sanitize"), Args: []ast.Arg{{Value: id("$_GET")}}})
	if err != nil {
		t.Fatal(err)
	}
	if value.IsTainted(got) {
		t.Errorf("sanitized result = %v, want untainted", got)
	}
}

func TestListAssignDestructures(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	arr := &ast.ArrayLit{Entries: []ast.ArrayEntry{{Value: lit(1)}, {Value: litStr("b")}}}
	if _, err := Expr(c, env, &ast.ListAssign{Lhs: []ast.Expr{id("$a"), id("$b")}, Rhs: arr}); err != nil {
		t.Fatal(err)
	}
	a, err := Expr(c, env, id("$a"))
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(a, value.Int{V: 1}) {
		t.Errorf("$a = %v, want Int(1)", a)
	}
	b, err := Expr(c, env, id("$b"))
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(b, value.String{V: "b"}) {
		t.Errorf("$b = %v, want String(b)", b)
	}
}

func TestCompoundAssignment(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	if _, err := Expr(c, env, &ast.Assign{Lhs: id("$x"), Rhs: lit(1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := Expr(c, env, &ast.Assign{Lhs: id("$x"), Op: "+", Rhs: lit(1)}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, id("$x"))
	if err != nil {
		t.Fatal(err)
	}
	want := value.AbstractType{Kind: value.KindInt}
	if !value.Equal(got, want) {
		t.Errorf("$x after += = %v, want %v", got, want)
	}
}

func TestIndexAppendAssignPromotesArray(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	// $a[] = 1 is the append form (Index == nil).
	if _, err := Expr(c, env, &ast.Assign{Lhs: &ast.Index{X: id("$a")}, Rhs: lit(1)}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, id("$a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := env.Heap.Chase(got).(value.Array); !ok {
		t.Errorf("$a after append assign = %v (%T), want Array", got, got)
	}
}

func TestIndexAssignOnUndefinedVarYieldsMap(t *testing.T) {
	c := newTestCtx()
	env := newTestEnv(db.NewMapDatabase())

	// $a[0] = 1 on a fresh variable: an explicit int key doesn't imply
	// a contiguous sequence, so this promotes to Map rather than Array.
	if _, err := Expr(c, env, &ast.Assign{Lhs: &ast.Index{X: id("$a"), Index: lit(0)}, Rhs: lit(1)}); err != nil {
		t.Fatal(err)
	}
	got, err := Expr(c, env, id("$a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := env.Heap.Chase(got).(value.Map); !ok {
		t.Errorf("$a after indexed assign = %v (%T), want Map", got, got)
	}
}
