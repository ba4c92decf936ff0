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

// Package debug implements the diagnostic checkpoint facility that
// backs the evaluator's hardcoded `checkpoint()` builtin
// (SPEC_FULL.md §4.E): a snapshot of the heap and the calling
// environment's locals at one program point, and a deterministic dump
// of it. It adapts the teacher's debug/dump/dump.go (which writes an
// SSA/DOT/CFG rendering to a file per function) from a file-per-
// function convention to an in-memory slot the driver exposes after a
// run, since a tree-walking interpreter over our AST has no SSA form
// to render and no natural "one file per function" boundary.
package debug

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

// Checkpoint is a snapshot taken at one `checkpoint()` call site: the
// full heap at that moment, plus the calling Env's local variable
// bindings (already resolved to their current values, not addresses,
// so the snapshot reads correctly even if the cells are later
// mutated).
type Checkpoint struct {
	Label string
	Heap  *heap.Heap
	Vars  map[string]value.Value
}

// NewCheckpoint captures a snapshot. The heap is cloned so later
// mutations to the live heap do not retroactively change the
// snapshot (Heap.Clone copies every cell).
func NewCheckpoint(label string, h *heap.Heap, vars map[string]value.Value) Checkpoint {
	frozen := make(map[string]value.Value, len(vars))
	for k, v := range vars {
		frozen[k] = v
	}
	return Checkpoint{Label: label, Heap: h.Clone(), Vars: frozen}
}

// String renders a checkpoint deterministically: variables in
// lexical order, followed by the heap dump, matching the teacher's
// preference for reproducible diagnostic output over insertion order.
func (c Checkpoint) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "checkpoint %q:\n", c.Label)

	names := make([]string, 0, len(c.Vars))
	for n := range c.Vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "  %s = %s\n", n, c.Vars[n])
	}

	b.WriteString("heap:\n")
	for _, line := range strings.Split(strings.TrimRight(c.Heap.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return b.String()
}

// Recorder accumulates every checkpoint taken during a run, in the
// order they were captured, for the driver to expose after analysis
// completes (SPEC_FULL.md §6.2).
type Recorder struct {
	checkpoints []Checkpoint
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Record appends a checkpoint.
func (r *Recorder) Record(c Checkpoint) { r.checkpoints = append(r.checkpoints, c) }

// Checkpoints returns every recorded checkpoint, oldest first.
func (r *Recorder) Checkpoints() []Checkpoint {
	return r.checkpoints
}
