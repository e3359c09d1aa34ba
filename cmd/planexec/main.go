// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command planexec inspects and runs
// serialized query plans.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/query"
)

var (
	dashv        bool
	dashh        bool
	dashhex      bool
	dashresume   bool
	dashversion  int
	dashparallel int
	dashconfig   string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose (debug logging)")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.BoolVar(&dashhex, "hex", false, "plan file is hex-encoded")
	flag.BoolVar(&dashresume, "resume", false, "follow continuation keys until the query is complete")
	flag.IntVar(&dashversion, "version", int(plan.CurrentVersion), "plan serial version")
	flag.IntVar(&dashparallel, "parallel", 4, "number of fixtures run at once")
	flag.StringVar(&dashconfig, "config", "", "YAML engine configuration file")
}

func exitf(f string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, f, args...)
	if !strings.HasSuffix(f, "\n") {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(1)
}

func logger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	if dashv {
		return level.NewFilter(l, level.AllowDebug())
	}
	return level.NewFilter(l, level.AllowWarn())
}

func engine() *query.Engine {
	cfg := query.DefaultConfig()
	if dashconfig != "" {
		var err error
		cfg, err = query.LoadConfig(dashconfig)
		if err != nil {
			exitf("%s", err)
		}
	}
	cfg.Logger = logger()
	e, err := query.NewEngine(cfg)
	if err != nil {
		exitf("%s", err)
	}
	return e
}

func readPlan(path string) []byte {
	var buf []byte
	var err error
	if path == "-" {
		buf, err = io.ReadAll(os.Stdin)
	} else {
		buf, err = os.ReadFile(path)
	}
	if err != nil {
		exitf("reading plan: %s", err)
	}
	if dashhex {
		buf, err = hex.DecodeString(strings.Join(strings.Fields(string(buf)), ""))
		if err != nil {
			exitf("decoding hex plan: %s", err)
		}
	}
	return buf
}

func prepare(e *query.Engine, path string) *query.Prepared {
	p, err := e.Prepare(readPlan(path), int16(dashversion))
	if err != nil {
		exitf("%s: %s", path, err)
	}
	return p
}

// entry point for 'planexec dump ...'
func dump(path string) {
	p := prepare(engine(), path)
	bold := color.New(color.Bold)
	bold.Printf("%s: %d registers, %d states", path, p.Plan().NumRegs, p.Plan().NumStates)
	if p.Resumable() {
		fmt.Print(", resumable")
	}
	if ext := p.Externals(); len(ext) > 0 {
		fmt.Printf(", externals %s", strings.Join(ext, " "))
	}
	fmt.Println()
	fmt.Println(p.Display())
}

// entry point for 'planexec run ...'
func run(path string, fixtures []string) {
	p := prepare(engine(), path)
	outs := make([]string, len(fixtures))
	failed := make([]bool, len(fixtures))
	var eg errgroup.Group
	eg.SetLimit(dashparallel)
	for i := range fixtures {
		i := i
		eg.Go(func() error {
			var b strings.Builder
			if err := runFixture(context.Background(), &b, p, fixtures[i]); err != nil {
				color.New(color.FgRed).Fprintf(&b, "error: %s\n", err)
				failed[i] = true
			}
			outs[i] = b.String()
			return nil
		})
	}
	eg.Wait()
	o := bufio.NewWriter(os.Stdout)
	status := 0
	for i := range outs {
		color.New(color.Bold).Fprintf(o, "%s:\n", fixtures[i])
		o.WriteString(outs[i])
		if failed[i] {
			status = 1
		}
	}
	if err := o.Flush(); err != nil {
		exitf("%s", err)
	}
	os.Exit(status)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s [-hex] [-version n] dump <plan>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        display the iterator tree of a plan\n")
		fmt.Fprintf(os.Stderr, "    %s [-hex] [-version n] [-config file] [-resume] [-parallel n] run <plan> <fixture.yaml>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        run a plan against the partitions of each fixture\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if dashparallel < 1 {
		dashparallel = 1
	}
	switch args[0] {
	case "dump":
		if len(args) != 2 {
			exitf("usage: dump <plan>")
		}
		dump(args[1])
	case "run":
		if len(args) < 3 {
			exitf("usage: run <plan> <fixture.yaml>...")
		}
		run(args[1], args[2:])
	default:
		exitf("unknown command %q", args[0])
	}
}
