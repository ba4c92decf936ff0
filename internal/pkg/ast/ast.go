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

// Package ast defines the simplified AST that the interpreter consumes.
// The lexer, parser, and AST simplifier that produce this tree are
// external collaborators and out of scope for this module; this package
// only declares the wire shape they are expected to hand over.
package ast

// Expr is any expression node in the simplified AST.
type Expr interface {
	exprNode()
}

// Stmt is any statement node in the simplified AST.
type Stmt interface {
	stmtNode()
}

// Lit is a literal of a known, precise type.
type Lit struct {
	Kind LitKind
	Bval bool
	Ival int64
	Fval float64
	Sval string
}

type LitKind int

const (
	LitNull LitKind = iota
	LitBool
	LitInt
	LitFloat
	LitString
)

func (*Lit) exprNode() {}

// Id is a bare identifier: a variable (if Name is a variable per
// scope.IsVariable), or else a constant/function/class name resolved
// via the code database.
type Id struct {
	Name string
}

func (*Id) exprNode() {}

// Interp is a string with interpolated sub-expressions, e.g. "hi $x".
type Interp struct {
	Segments []Expr
}

func (*Interp) exprNode() {}

// ArrayLit builds an array/record/map literal. Each entry may carry an
// explicit key (string or int constant expression) or none, in which
// case it is treated as the next positional index.
type ArrayLit struct {
	Entries []ArrayEntry
}

type ArrayEntry struct {
	Key   Expr // nil for purely positional entries
	Value Expr
}

func (*ArrayLit) exprNode() {}

type BinOp struct {
	Op    string // "+","-","*","/","%",".","&&","||","==","!=","<",">","<=",">="
	X, Y  Expr
}

func (*BinOp) exprNode() {}

type UnOp struct {
	Op string // "-","!","~","++","--"
	X  Expr
}

func (*UnOp) exprNode() {}

// Ternary models `cond ? then : els`, and `then == nil` models the
// null-coalescing form `x ?? els`.
type Ternary struct {
	Cond, Then, Els Expr
}

func (*Ternary) exprNode() {}

// InstanceOf models a runtime type test; it never refines control flow.
type InstanceOf struct {
	X         Expr
	ClassName string
}

func (*InstanceOf) exprNode() {}

// Cast narrows X to an abstract type tag.
type Cast struct {
	Type string // "int","bool","float","string"
	X    Expr
}

func (*Cast) exprNode() {}

// Call is both the direct (Id callee) and dynamic (any other callee
// expression) call form.
type Call struct {
	Callee Expr
	Args   []Arg
}

// Arg is a call argument; Spread marks a splat (`...$xs`) argument.
type Arg struct {
	Value  Expr
	Spread bool
}

func (*Call) exprNode() {}

// New constructs an instance of a (possibly dynamically named) class.
type New struct {
	ClassExpr Expr
	Args      []Arg
}

func (*New) exprNode() {}

// ObjGet is `$obj->name` (or `$obj->{expr}` when Dynamic is set).
type ObjGet struct {
	Obj     Expr
	Name    string
	Dynamic Expr // non-nil overrides Name
}

func (*ObjGet) exprNode() {}

// ClassGet is `Class::name` (static property/constant/method access).
type ClassGet struct {
	ClassName string
	Name      string
}

func (*ClassGet) exprNode() {}

// Index is `$a[$i]`.
type Index struct {
	X     Expr
	Index Expr
}

func (*Index) exprNode() {}

// Assign is `lhs op= rhs`; Op is "" for plain assignment, else one of
// the BinOp operators for a compound assignment.
type Assign struct {
	Lhs Expr
	Op  string
	Rhs Expr
}

func (*Assign) exprNode() {}

// ListAssign destructures Rhs positionally into Lhs (nil entries are
// skipped slots, as in `list(, $b) = $pair`).
type ListAssign struct {
	Lhs []Expr
	Rhs Expr
}

func (*ListAssign) exprNode() {}

// Xhp models an XHP-like markup literal; Children may themselves be Xhp
// or interpolated expressions.
type Xhp struct {
	Tag      string
	Attrs    map[string]Expr
	Children []Expr
}

func (*Xhp) exprNode() {}

// --- Statements ---

type ExprStmt struct{ X Expr }

func (*ExprStmt) stmtNode() {}

type Block struct{ Stmts []Stmt }

func (*Block) stmtNode() {}

type If struct {
	Cond       Expr
	Then, Else *Block
}

func (*If) stmtNode() {}

type While struct {
	Cond Expr
	Body *Block
}

func (*While) stmtNode() {}

type DoWhile struct {
	Body *Block
	Cond Expr
}

func (*DoWhile) stmtNode() {}

type For struct {
	Init, Post Expr
	Cond       Expr
	Body       *Block
}

func (*For) stmtNode() {}

// Foreach iterates a collection; KeyVar may be empty.
type Foreach struct {
	Collection   Expr
	KeyVar       string
	ValVar       string
	ValByRef     bool
	Body         *Block
}

func (*Foreach) stmtNode() {}

// Switch lowers to a sequence of single-pass case bodies (see
// SPEC_FULL.md §4.F).
type Switch struct {
	Tag   Expr
	Cases []SwitchCase
}

type SwitchCase struct {
	Values []Expr // empty means default
	Body   *Block
}

func (*Switch) stmtNode() {}

type Return struct{ X Expr } // X may be nil

func (*Return) stmtNode() {}

type Break struct{ X Expr }    // X is the (usually absent) break level/expr
func (*Break) stmtNode()    {}

type Continue struct{ X Expr }

func (*Continue) stmtNode() {}

type Throw struct{ X Expr }

func (*Throw) stmtNode() {}

type TryCatch struct {
	Try     *Block
	Catches []CatchClause
	Finally *Block
}

type CatchClause struct {
	ClassNames []string
	VarName    string
	Body       *Block
}

func (*TryCatch) stmtNode() {}

// GlobalDecl pulls names from the globals namespace into the local
// scope, e.g. `global $x;`.
type GlobalDecl struct{ Names []string }

func (*GlobalDecl) stmtNode() {}

// StaticDecl declares a per-function static variable with an optional
// initializer, keyed by "<cfun>**<name>" in the environment.
type StaticDecl struct {
	Name string
	Init Expr // may be nil
}

func (*StaticDecl) stmtNode() {}

// FuncDef is a top-level or method function definition.
type FuncDef struct {
	Name       string
	Params     []Param
	Body       *Block
	IsStatic   bool // methods only
	IsAbstract bool
}

func (*FuncDef) stmtNode() {}

type Param struct {
	Name      string
	Default   Expr // nil if required
	ByRef     bool
	IsVariadic bool
}

// ClassDef is a class declaration.
type ClassDef struct {
	Name      string
	Parent    string // "" if none
	Constants []ConstDecl
	Statics   []StaticDecl
	Fields    []string // non-static instance field names with no initializer beyond Null
	FieldInit map[string]Expr
	Methods   []*FuncDef
}

func (*ClassDef) stmtNode() {}

type ConstDecl struct {
	Name  string
	Value Expr
}

// GlobalConstDef declares a toplevel named constant.
type GlobalConstDef struct {
	Name  string
	Value Expr
}

func (*GlobalConstDef) stmtNode() {}

// Program is a single analyzed file: its toplevel statements plus the
// function/class/constant definitions extracted from it, in source
// order. The code database (internal/pkg/db) indexes all Programs in
// the analyzed set, not just one.
type Program struct {
	Path  string
	Stmts []Stmt
}
