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

// Package interperr defines the typed error taxonomy of SPEC_FULL.md
// §7. The teacher's own codebase reports analyzer failures via plain
// fmt.Errorf/errors.New (see earpointer/analysis.go's log.Fatalf uses
// and cfa/analyzer.go's bare error returns) with no wrapping library
// anywhere in the retrieved pack outside hashicorp/nomad, which is a
// different domain; these types follow that same stdlib-only
// convention, using errors.Is/As-compatible Unwrap so callers can still
// match on the underlying cause where one exists.
package interperr

import (
	"errors"
	"fmt"
)

// UnknownFunction is reported when a Call's callee resolves to a
// function name absent from the code database.
type UnknownFunction struct {
	Name string
}

func (e *UnknownFunction) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}

// UnknownConstant is reported when an Id resolves to neither a
// variable nor a known function, and is not found as a constant.
type UnknownConstant struct {
	Name string
}

func (e *UnknownConstant) Error() string {
	return fmt.Sprintf("unknown constant %q", e.Name)
}

// UnknownClass is reported when New, a static call, or ClassGet names a
// class absent from the code database.
type UnknownClass struct {
	Name string
}

func (e *UnknownClass) Error() string {
	return fmt.Sprintf("unknown class %q", e.Name)
}

// UnknownMethod is reported when an ObjGet/Call resolves to a method
// name absent from the receiver's (flattened) class, and lists the
// method names that were actually available, for diagnostics.
type UnknownMethod struct {
	Name       string
	Class      string
	Candidates []string
}

func (e *UnknownMethod) Error() string {
	return fmt.Sprintf("class %q has no method %q (has: %v)", e.Class, e.Name, e.Candidates)
}

// UnknownObject is reported when a method call or field access targets
// a value that unified away to something other than an Object
// (SPEC_FULL.md §3.1 invariant 2: only a Ptr may point to an Object).
type UnknownObject struct {
	Expr string
}

func (e *UnknownObject) Error() string {
	return fmt.Sprintf("expression %q is not an object", e.Expr)
}

// LostControl describes evaluation losing track of control flow. The
// evaluator in this module never returns it: break/continue/throw
// signals fall through, and a dynamic call whose target is neither a
// string nor a method gets the unknown-call summary.
type LostControl struct {
	Reason string
}

func (e *LostControl) Error() string {
	return fmt.Sprintf("lost control flow: %s", e.Reason)
}

// Impossible signals an invariant violation: a case the analysis
// believed could not occur given the invariants of SPEC_FULL.md §3.1.
// It wraps the violated condition so callers can log it without the
// whole process needing to panic.
type Impossible struct {
	Condition string
	Cause     error
}

func (e *Impossible) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("impossible: %s: %v", e.Condition, e.Cause)
	}
	return fmt.Sprintf("impossible: %s", e.Condition)
}

func (e *Impossible) Unwrap() error { return e.Cause }

// NewImpossible wraps cause (which may be nil) as an Impossible
// violation of condition.
func NewImpossible(condition string, cause error) error {
	return &Impossible{Condition: condition, Cause: cause}
}

// Is* helpers let callers use errors.As without importing every
// concrete type by hand in the common case of "was this an unknown
// name" classification.
func IsUnknownName(err error) bool {
	var f *UnknownFunction
	var c *UnknownConstant
	var cl *UnknownClass
	var m *UnknownMethod
	return errors.As(err, &f) || errors.As(err, &c) || errors.As(err, &cl) || errors.As(err, &m)
}
