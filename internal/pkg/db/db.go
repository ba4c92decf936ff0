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

// Package db declares the code database interface: the external,
// by-name lookup collaborator described in SPEC_FULL.md §6.1. It plays
// the same dependency-injected-result role for this interpreter that
// golang.org/x/tools/go/analysis.Pass.ResultOf plays for the teacher's
// analyzers, generalized from analyzer-keyed results to name-keyed
// function/class/constant definitions.
package db

import "github.com/dynscript/absinterp/internal/pkg/ast"

// Database is the read-only, external code database. Lookups that miss
// are reported via the boolean return, which callers turn into the
// UnknownFunction/UnknownClass/UnknownConstant errors (SPEC_FULL.md §7).
type Database interface {
	Fun(name string) (*ast.FuncDef, bool)
	Class(name string) (*ast.ClassDef, bool)
	Const(name string) (ast.Expr, bool)

	// Programs returns every analyzed file, in a stable order, used by
	// the fake-root sweep when extract_paths is enabled.
	Programs() []*ast.Program
}

// MapDatabase is a simple in-memory Database backed by maps, suitable
// for tests and for a driver that has already loaded/simplified an
// entire source tree.
type MapDatabase struct {
	Funs      map[string]*ast.FuncDef
	Classes   map[string]*ast.ClassDef
	Constants map[string]ast.Expr
	Progs     []*ast.Program
}

// NewMapDatabase returns an empty, ready-to-populate MapDatabase.
func NewMapDatabase() *MapDatabase {
	return &MapDatabase{
		Funs:      map[string]*ast.FuncDef{},
		Classes:   map[string]*ast.ClassDef{},
		Constants: map[string]ast.Expr{},
	}
}

func (d *MapDatabase) Fun(name string) (*ast.FuncDef, bool) {
	f, ok := d.Funs[name]
	return f, ok
}

func (d *MapDatabase) Class(name string) (*ast.ClassDef, bool) {
	c, ok := d.Classes[name]
	return c, ok
}

func (d *MapDatabase) Const(name string) (ast.Expr, bool) {
	c, ok := d.Constants[name]
	return c, ok
}

func (d *MapDatabase) Programs() []*ast.Program {
	return d.Progs
}

// AddProgram indexes a Program's top-level function/class/constant
// definitions and appends it to Progs.
func (d *MapDatabase) AddProgram(p *ast.Program) {
	d.Progs = append(d.Progs, p)
	for _, s := range p.Stmts {
		switch s := s.(type) {
		case *ast.FuncDef:
			d.Funs[s.Name] = s
		case *ast.ClassDef:
			d.Classes[s.Name] = s
		case *ast.GlobalConstDef:
			d.Constants[s.Name] = s.Value
		}
	}
}
