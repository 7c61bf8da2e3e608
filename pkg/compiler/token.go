package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	EOF TokenKind = iota // sentinel: end of input

	// Literals
	NUM   // unsigned 64-bit integer literal
	IDENT // variable / function name

	// Keywords
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	FOR    // "for"
	RETURN // "return"

	// Paired delimiters
	LPAREN // (
	RPAREN // )
	LBRACE // {
	RBRACE // }

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Arithmetic operators
	PLUS  // +
	MINUS // -
	STAR  // * (multiplication, or unary dereference)
	SLASH // /
	AMP   // & (unary address-of)
	NOT   // ! (lexed, never accepted by the grammar)

	// Assignment / comparison
	ASSIGN     // =
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:        "EOF",
	NUM:        "NUM",
	IDENT:      "IDENT",
	IF:         "IF",
	ELSE:       "ELSE",
	WHILE:      "WHILE",
	FOR:        "FOR",
	RETURN:     "RETURN",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	AMP:        "AMP",
	NOT:        "NOT",
	ASSIGN:     "ASSIGN",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	GREATER:    "GREATER",
	LESS_EQ:    "LESS_EQ",
	GREATER_EQ: "GREATER_EQ",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Loc is a half-open byte span [Start, End) within one source line.
type Loc struct {
	Start int
	End   int
}

// Token is a single lexical unit produced by the lexer.
type Token struct {
	Kind  TokenKind
	Loc   Loc
	Line  int    // 1-based source line
	Value uint64 // NUM only
	Text  string // IDENT only
}

func (t Token) String() string {
	switch t.Kind {
	case NUM:
		return fmt.Sprintf("%-10s %-14d  line %d [%d,%d)", t.Kind, t.Value, t.Line, t.Loc.Start, t.Loc.End)
	case IDENT:
		return fmt.Sprintf("%-10s %-14q  line %d [%d,%d)", t.Kind, t.Text, t.Line, t.Loc.Start, t.Loc.End)
	}
	return fmt.Sprintf("%-10s %-14s  line %d [%d,%d)", t.Kind, "", t.Line, t.Loc.Start, t.Loc.End)
}
