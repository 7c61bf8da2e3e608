package compiler

// Result holds every intermediate product of one compilation.
type Result struct {
	Tokens  []Token
	Program *Program
	Asm     []string
}

// CompileDetailed runs lex, parse and generate over the source lines and
// keeps the intermediate results. The first error stops the pipeline; the
// stages completed so far are still returned.
func CompileDetailed(lines []string, opts Options) (*Result, error) {
	res := &Result{}

	tokens, err := TokenizeLines(lines)
	if err != nil {
		return res, err
	}
	res.Tokens = tokens

	prog, err := Parse(tokens)
	if err != nil {
		return res, err
	}
	res.Program = prog

	asm, err := Generate(prog, opts)
	if err != nil {
		return res, err
	}
	res.Asm = asm
	return res, nil
}

// Compile turns source lines into assembly lines.
func Compile(lines []string, opts Options) ([]string, error) {
	res, err := CompileDetailed(lines, opts)
	if err != nil {
		return nil, err
	}
	return res.Asm, nil
}
