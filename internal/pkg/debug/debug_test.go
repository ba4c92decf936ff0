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

package debug

import (
	"strings"
	"testing"

	"github.com/dynscript/absinterp/internal/pkg/heap"
	"github.com/dynscript/absinterp/internal/pkg/value"
)

func TestNewCheckpointFreezesHeap(t *testing.T) {
	h := heap.New()
	a := h.NewCell(value.Int{V: 1})

	cp := NewCheckpoint("before", h, map[string]value.Value{"$x": value.Ptr{Addr: a}})
	h.Set(a, value.Int{V: 2})

	if got := cp.Heap.Get(a); !value.Equal(got, value.Int{V: 1}) {
		t.Errorf("checkpoint heap should be frozen, got %v", got)
	}
	if got := h.Get(a); !value.Equal(got, value.Int{V: 2}) {
		t.Errorf("live heap should reflect the later mutation, got %v", got)
	}
}

func TestCheckpointStringIsDeterministic(t *testing.T) {
	h := heap.New()
	cp := NewCheckpoint("lbl", h, map[string]value.Value{"$b": value.Int{V: 2}, "$a": value.Int{V: 1}})
	s := cp.String()
	if strings.Index(s, "$a") > strings.Index(s, "$b") {
		t.Errorf("vars should be sorted lexically, got:\n%s", s)
	}
	if !strings.Contains(s, `checkpoint "lbl"`) {
		t.Errorf("missing label, got:\n%s", s)
	}
}

func TestRecorderAccumulatesInOrder(t *testing.T) {
	r := NewRecorder()
	h := heap.New()
	r.Record(NewCheckpoint("first", h, nil))
	r.Record(NewCheckpoint("second", h, nil))

	got := r.Checkpoints()
	if len(got) != 2 || got[0].Label != "first" || got[1].Label != "second" {
		t.Errorf("Checkpoints() = %v, want [first second]", got)
	}
}
