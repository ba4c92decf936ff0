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
)

// ClassInfo is the flattened view of a class and its ancestors that
// force_class builds once and caches (SPEC_FULL.md §4.H): single
// inheritance means flattening is a straight walk to the root, with a
// subclass entry always winning over an inherited one of the same
// name.
type ClassInfo struct {
	Name      string
	Parent    *ClassInfo
	Methods   map[string]*ast.FuncDef // flattened, own overrides inherited
	Owner     map[string]string       // method name -> declaring class, for parent:: resolution
	Fields    []string                // flattened instance field names, sorted by name
	FieldInit map[string]ast.Expr     // flattened initializers, own overrides inherited
	Constants map[string]ast.Expr     // flattened, own overrides inherited
}

// ForceClass lazily materializes and caches the flattened view of
// name, recursively forcing its parent first (SPEC_FULL.md §4.H). A
// second call for the same name returns the cached *ClassInfo without
// re-walking the inheritance chain.
func ForceClass(c *Ctx, env *scope.Env, name string) (*ClassInfo, error) {
	if info, ok := c.classes[name]; ok {
		return info, nil
	}
	def, ok := env.DB.Class(name)
	if !ok {
		return nil, &interperr.UnknownClass{Name: name}
	}

	info := &ClassInfo{
		Name:      name,
		Methods:   map[string]*ast.FuncDef{},
		Owner:     map[string]string{},
		FieldInit: map[string]ast.Expr{},
		Constants: map[string]ast.Expr{},
	}
	// Cache before recursing into the parent so a cyclic parent chain
	// (a malformed input this analysis does not need to tolerate
	// gracefully beyond not looping forever) terminates.
	c.classes[name] = info

	seenField := map[string]bool{}
	if def.Parent != "" {
		parent, err := ForceClass(c, env, def.Parent)
		if err != nil {
			return nil, err
		}
		info.Parent = parent
		for mname, fdef := range parent.Methods {
			info.Methods[mname] = fdef
			info.Owner[mname] = parent.Owner[mname]
		}
		for fname, fexpr := range parent.FieldInit {
			info.FieldInit[fname] = fexpr
		}
		for cname, cexpr := range parent.Constants {
			info.Constants[cname] = cexpr
		}
		for _, f := range parent.Fields {
			if !seenField[f] {
				seenField[f] = true
				info.Fields = append(info.Fields, f)
			}
		}
	}

	for _, f := range def.Fields {
		if !seenField[f] {
			seenField[f] = true
			info.Fields = append(info.Fields, f)
		}
		if _, ok := info.FieldInit[f]; !ok {
			info.FieldInit[f] = nil
		}
	}
	for fname, fexpr := range def.FieldInit {
		if !seenField[fname] {
			seenField[fname] = true
			info.Fields = append(info.Fields, fname)
		}
		info.FieldInit[fname] = fexpr
	}
	for _, m := range def.Methods {
		info.Methods[m.Name] = m
		info.Owner[m.Name] = name
	}
	for _, cd := range def.Constants {
		info.Constants[cd.Name] = cd.Value
	}

	sort.Strings(info.Fields)
	return info, nil
}

// methodID returns the fully-qualified id a Method.Ids entry uses for
// a method declared (or inherited) on class, matching the naming
// scheme call.go's dispatch logic splits back apart.
func methodID(class, name string) string { return class + "::" + name }
