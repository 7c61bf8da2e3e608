package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"ninecc/pkg/asm"
	"ninecc/pkg/compiler"
	"ninecc/pkg/cpu"
	"ninecc/pkg/utils"
)

type config struct {
	out          string
	toStdout     bool
	jobs         int
	verify       bool
	run          bool
	entry        string
	popDiscarded bool
	debug        bool
}

// fileResult collects everything one compilation wants to print, so output
// from parallel jobs can be written in input order.
type fileResult struct {
	path    string
	asm     []string
	value   int64
	ran     bool
	skipped bool
	diag    bytes.Buffer // diagnostics for stderr
	debug   bytes.Buffer // -debug dump
	err     error
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("ninecc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.out, "out", "", "output assembly path (single input only; default: input with .s extension)")
	fs.BoolVar(&cfg.toStdout, "stdout", false, "print assembly to stdout instead of writing .s files")
	fs.IntVar(&cfg.jobs, "j", 4, "number of files compiled in parallel")
	fs.BoolVar(&cfg.verify, "verify", false, "assemble the generated listing to check it")
	fs.BoolVar(&cfg.run, "run", false, "run the program in the emulator and exit with its result")
	fs.StringVar(&cfg.entry, "entry", "main", "function called by -run")
	fs.BoolVar(&cfg.popDiscarded, "pop-discarded", false, "pop the value of every expression statement")
	fs.BoolVar(&cfg.debug, "debug", false, "dump tokens, AST and symbol tables to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ninecc [flags] file...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	files := fs.Args()

	switch {
	case len(files) == 0:
		fs.Usage()
		return 2
	case cfg.out != "" && len(files) > 1:
		fmt.Fprintln(stderr, "-out needs exactly one input file")
		return 2
	case cfg.run && len(files) > 1:
		fmt.Fprintln(stderr, "-run needs exactly one input file")
		return 2
	case cfg.jobs < 1:
		fmt.Fprintln(stderr, "-j must be at least 1")
		return 2
	}

	results := compileAll(files, cfg)

	status := 0
	for _, res := range results {
		stderr.Write(res.debug.Bytes())
		stderr.Write(res.diag.Bytes())
		if res.skipped {
			continue
		}
		if res.err != nil {
			status = 1
			continue
		}
		if cfg.toStdout {
			for _, l := range res.asm {
				fmt.Fprintln(stdout, l)
			}
		}
		if res.ran {
			fmt.Fprintln(stdout, res.value)
			status = int(uint8(res.value))
		}
	}
	return status
}

// compileAll compiles every file, at most cfg.jobs at a time. The first
// failure stops files that have not started yet.
func compileAll(files []string, cfg config) []*fileResult {
	results := make([]*fileResult, len(files))
	for i, path := range files {
		results[i] = &fileResult{path: path}
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.jobs)
	for _, res := range results {
		res := res // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			if ctx.Err() != nil {
				res.skipped = true
				fmt.Fprintf(&res.diag, "%s: skipped\n", res.path)
				return nil
			}
			compileFile(res, cfg)
			return res.err
		})
	}
	_ = g.Wait() // failures are reported per file

	return results
}

func compileFile(res *fileResult, cfg config) {
	logger := log.New(io.Discard, "ninecc: ", 0)
	if cfg.debug {
		logger.SetOutput(&res.debug)
	}

	fullPath, _, err := utils.GetPathInfo(res.path)
	if err != nil {
		res.fail(err)
		return
	}
	logger.Printf("compiling %s", fullPath)

	lines, err := utils.ReadLines(res.path)
	if err != nil {
		res.fail(err)
		return
	}

	out, err := compiler.CompileDetailed(lines, compiler.Options{PopDiscarded: cfg.popDiscarded})
	dumpDebug(logger, out)
	if err != nil {
		res.err = err
		fmt.Fprintf(&res.diag, "%s:\n", res.path)
		compiler.Render(&res.diag, lines, err)
		return
	}
	res.asm = out.Asm

	if cfg.verify || cfg.run {
		prog, err := asm.Assemble(strings.Join(out.Asm, "\n"))
		if err != nil {
			res.fail(fmt.Errorf("assembly error: %w", err))
			return
		}
		logger.Printf("verified %d instructions", len(prog.Instrs))

		if cfg.run {
			m := cpu.NewMachine(prog)
			v, err := m.Call(cfg.entry)
			if err != nil {
				res.fail(fmt.Errorf("run error: %w", err))
				return
			}
			res.value, res.ran = v, true
		}
	}

	if cfg.toStdout {
		return
	}
	dst := cfg.out
	if dst == "" {
		dst = utils.OutputPath(res.path, ".s")
	}
	if err := os.WriteFile(dst, []byte(strings.Join(out.Asm, "\n")+"\n"), 0o644); err != nil {
		res.fail(err)
		return
	}
	logger.Printf("wrote %s", dst)
}

func (res *fileResult) fail(err error) {
	res.err = err
	fmt.Fprintf(&res.diag, "%s: %v\n", res.path, err)
}

// dumpDebug logs whatever stages of a compilation completed.
func dumpDebug(logger *log.Logger, out *compiler.Result) {
	if out == nil {
		return
	}
	if out.Tokens != nil {
		logger.Printf("tokens (%d)", len(out.Tokens))
		for _, tok := range out.Tokens {
			logger.Printf("  %s", tok)
		}
	}
	if out.Program != nil {
		for _, f := range out.Program.Funcs {
			logger.Printf("func %s", f)
			syms := compiler.NewSymbolTable()
			for _, name := range f.Locals {
				syms.Slot(name)
			}
			for _, l := range strings.Split(strings.TrimRight(syms.String(), "\n"), "\n") {
				logger.Printf("  %s", l)
			}
		}
	}
}
