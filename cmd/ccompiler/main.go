package main

import (
	"fmt"
	"io"
	"os"

	"ninecc/pkg/compiler"
	"ninecc/pkg/utils"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run compiles the single file named in args, writing assembly to stdout and
// a caret diagnostic to stderr. It returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: ccompiler <file>")
		return 1
	}

	lines, err := utils.ReadLines(args[0])
	if err != nil {
		fmt.Fprintln(stderr, "read error:", err)
		return 1
	}

	asm, err := compiler.Compile(lines, compiler.Options{})
	if err != nil {
		compiler.Render(stderr, lines, err)
		return 1
	}

	for _, l := range asm {
		fmt.Fprintln(stdout, l)
	}
	return 0
}
