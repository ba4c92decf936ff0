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

// Package regexp wraps the standard regexp package so that a pattern
// can be declared as a plain quoted string in a YAML/JSON config file
// and unmarshal straight into a compiled matcher. This file recreates
// the teacher's internal/pkg/config/regexp package: only its test file
// survived retrieval, so the implementation here is grounded entirely
// on that test's expectations (compile-on-unmarshal, error on empty or
// malformed pattern, MatchString delegates to the compiled regexp).
package regexp

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Regexp is a compiled regular expression that knows how to unmarshal
// itself from a quoted string.
type Regexp struct {
	re *regexp.Regexp
}

// MustCompile panics if pattern does not compile; intended for
// built-in default matchers constructed from Go string literals.
func MustCompile(pattern string) Regexp {
	return Regexp{re: regexp.MustCompile(pattern)}
}

// UnmarshalJSON compiles the quoted pattern string into re. An empty
// or malformed pattern is reported as an error rather than silently
// matching nothing or everything.
func (r *Regexp) UnmarshalJSON(data []byte) error {
	var pattern string
	if err := json.Unmarshal(data, &pattern); err != nil {
		return fmt.Errorf("regexp: %w", err)
	}
	if pattern == "" {
		return fmt.Errorf("regexp: empty pattern")
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("regexp: %w", err)
	}
	r.re = compiled
	return nil
}

// MarshalJSON round-trips the source pattern as a quoted string.
func (r Regexp) MarshalJSON() ([]byte, error) {
	if r.re == nil {
		return json.Marshal("")
	}
	return json.Marshal(r.re.String())
}

// MatchString reports whether s matches the compiled pattern. An
// unset Regexp (zero value, or one whose pattern failed to compile)
// behaves like the empty pattern and matches everything, the same as
// regexp.MustCompile("").MatchString would.
func (r Regexp) MatchString(s string) bool {
	if r.re == nil {
		return true
	}
	return r.re.MatchString(s)
}

// String returns the source pattern, or "" for an unset Regexp.
func (r Regexp) String() string {
	if r.re == nil {
		return ""
	}
	return r.re.String()
}
