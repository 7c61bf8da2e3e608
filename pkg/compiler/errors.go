package compiler

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Diagnostic is an error that points at a span of one source line.
type Diagnostic interface {
	error
	Position() (Loc, int)
	KindName() string
}

// TokenizeErrorKind enumerates lexer failures.
type TokenizeErrorKind int

const (
	NotNumber TokenizeErrorKind = iota
)

func (k TokenizeErrorKind) String() string {
	switch k {
	case NotNumber:
		return "NotNumber"
	}
	return fmt.Sprintf("TokenizeErrorKind(%d)", int(k))
}

// TokenizeError reports a numeric run that is not an unsigned 64-bit integer.
type TokenizeError struct {
	Kind   TokenizeErrorKind
	Loc    Loc
	Line   int
	Source string // the line being lexed
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("line %d: %s: %q is not a number", e.Line, e.Kind, e.lexeme())
}

func (e *TokenizeError) lexeme() string {
	if e.Loc.Start < 0 || e.Loc.End > len(e.Source) || e.Loc.Start > e.Loc.End {
		return ""
	}
	return e.Source[e.Loc.Start:e.Loc.End]
}

func (e *TokenizeError) Position() (Loc, int) { return e.Loc, e.Line }
func (e *TokenizeError) KindName() string     { return e.Kind.String() }

// ParseErrorKind enumerates parser failures.
type ParseErrorKind int

const (
	UnclosedParenth ParseErrorKind = iota
	NotPatternMatching
	RequireSemicolon
	RequireComma
	RequireLeftParenth
	// UndeclaredFunction fires when a top-level definition does not start
	// with an identifier. It is a syntactic check only.
	UndeclaredFunction
	EoF
)

var parseErrorNames = [...]string{
	UnclosedParenth:    "UnclosedParenth",
	NotPatternMatching: "NotPatternMatching",
	RequireSemicolon:   "RequireSemicolon",
	RequireComma:       "RequireComma",
	RequireLeftParenth: "RequireLeftParenth",
	UndeclaredFunction: "UndeclaredFunction",
	EoF:                "EoF",
}

var parseErrorMessages = [...]string{
	UnclosedParenth:    "expected ')'",
	NotPatternMatching: "unexpected token",
	RequireSemicolon:   "expected ';'",
	RequireComma:       "expected ','",
	RequireLeftParenth: "expected '('",
	UndeclaredFunction: "expected a function name",
	EoF:                "unexpected end of input",
}

func (k ParseErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(parseErrorNames) {
		return parseErrorNames[k]
	}
	return fmt.Sprintf("ParseErrorKind(%d)", int(k))
}

// ParseError reports a token that does not fit the grammar.
type ParseError struct {
	Kind ParseErrorKind
	Loc  Loc
	Line int
	Got  TokenKind
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %s, got %s", e.Line, e.Kind, e.message(), e.Got)
}

func (e *ParseError) message() string {
	if int(e.Kind) >= 0 && int(e.Kind) < len(parseErrorMessages) {
		return parseErrorMessages[e.Kind]
	}
	return "syntax error"
}

func (e *ParseError) Position() (Loc, int) { return e.Loc, e.Line }
func (e *ParseError) KindName() string     { return e.Kind.String() }

// GenerateErrorKind enumerates code generation failures.
type GenerateErrorKind int

const (
	NotLeftValue GenerateErrorKind = iota
)

func (k GenerateErrorKind) String() string {
	switch k {
	case NotLeftValue:
		return "NotLeftValue"
	}
	return fmt.Sprintf("GenerateErrorKind(%d)", int(k))
}

// GenerateError reports an address-of or assignment whose operand has no address.
type GenerateError struct {
	Kind GenerateErrorKind
	Pos  Pos  // the '&' or '=' that needed an address
	Node Node // the offending operand
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("line %d: %s: %s has no address", e.Pos.Line, e.Kind, e.Node)
}

func (e *GenerateError) Position() (Loc, int) { return e.Pos.Loc, e.Pos.Line }
func (e *GenerateError) KindName() string     { return e.Kind.String() }

// Render writes a caret diagnostic for err against the source lines:
//
//	x = 12a;
//	    ^^^ NotNumber: "12a" is not a number
//
// Errors that carry no position are written as a single line.
func Render(w io.Writer, lines []string, err error) {
	var d Diagnostic
	if !errors.As(err, &d) {
		fmt.Fprintln(w, err)
		return
	}

	loc, line := d.Position()
	src := ""
	if line >= 1 && line <= len(lines) {
		src = strings.TrimRight(lines[line-1], "\r\n")
	}

	width := loc.End - loc.Start
	if width < 1 {
		width = 1
	}
	start := loc.Start
	if start < 0 {
		start = 0
	}

	fmt.Fprintln(w, src)
	fmt.Fprintf(w, "%s%s %s: %s\n", padding(src, start), strings.Repeat("^", width), d.KindName(), detail(d))
}

// padding returns n columns of blanks that line up with src[:n], keeping
// its tabs so the caret lands under the same byte in a terminal.
func padding(src string, n int) string {
	pad := []byte(strings.Repeat(" ", n))
	for i := 0; i < n && i < len(src); i++ {
		if src[i] == '\t' {
			pad[i] = '\t'
		}
	}
	return string(pad)
}

func detail(d Diagnostic) string {
	switch e := d.(type) {
	case *TokenizeError:
		return fmt.Sprintf("%q is not a number", e.lexeme())
	case *ParseError:
		return e.message()
	case *GenerateError:
		return "expression has no address"
	}
	return d.Error()
}
