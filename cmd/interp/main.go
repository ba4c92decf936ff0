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

// Command interp is the thin entry point the driver package is built
// for, grounded on the teacher's cmd/levee/main.go (a handful of lines
// delegating everything to one Analyzer/Run). Parsing and simplifying
// the analyzed source tree into internal/pkg/ast/internal/pkg/db is an
// external collaborator out of scope for this module (SPEC_FULL.md
// §1/§6.1); this binary owns only flag parsing and reporting, and
// expects to be linked against a loader that populates a db.Database
// and calls driver.Run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dynscript/absinterp/internal/pkg/config"
	"github.com/dynscript/absinterp/internal/pkg/db"
	"github.com/dynscript/absinterp/internal/pkg/driver"
)

func main() {
	flag.CommandLine = &config.FlagSet
	flag.Parse()

	d := db.NewMapDatabase()
	if flag.NArg() == 0 {
		log.Println("interp: no program loader wired in; running with an empty code database")
	}

	result, err := driver.Run(d)
	if err != nil {
		log.Fatalf("interp: %v", err)
	}

	for _, f := range result.Findings {
		fmt.Printf("finding: %s -> %s (%s)\n", f.Source, f.Sink, f.Label)
	}
	if config.ExtractPaths() {
		conf, err := config.ReadConfig()
		if err != nil {
			log.Fatalf("interp: %v", err)
		}
		fmt.Fprint(os.Stdout, driver.DOT(result, conf))
	}
}
