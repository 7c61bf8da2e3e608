package compiler

import (
	"strconv"
)

// keywords is tried in order at the start of every identifier run.
var keywords = []struct {
	text string
	kind TokenKind
}{
	{"if", IF},
	{"else", ELSE},
	{"while", WHILE},
	{"for", FOR},
	{"return", RETURN},
}

// punct maps single-byte operators and punctuation to their token kind.
var punct = map[byte]TokenKind{
	'+': PLUS,
	'-': MINUS,
	'*': STAR,
	'/': SLASH,
	'&': AMP,
	';': SEMICOLON,
	',': COMMA,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
}

// compareOps holds the one- and two-byte forms of operators that may be
// followed by '='.
var compareOps = map[byte][2]TokenKind{
	'<': {LESS, LESS_EQ},
	'>': {GREATER, GREATER_EQ},
	'=': {ASSIGN, EQUALS},
	'!': {NOT, NOT_EQ},
}

// Lexer holds all mutable state for scanning one source line.
type Lexer struct {
	src  []byte
	pos  int // index of the next byte to consume
	line int // 1-based line number stamped on every token
}

func newLexer(src []byte, line int) *Lexer {
	return &Lexer{src: src, line: line}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isWordByte(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isDelimiter reports whether b ends a number or identifier run.
func isDelimiter(b byte) bool {
	if isSpace(b) {
		return true
	}
	if _, ok := punct[b]; ok {
		return true
	}
	_, ok := compareOps[b]
	return ok
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
}

// scanRun consumes bytes up to the next delimiter and returns their span.
func (l *Lexer) scanRun() Loc {
	start := l.pos
	for l.pos < len(l.src) && !isDelimiter(l.src[l.pos]) {
		l.pos++
	}
	return Loc{Start: start, End: l.pos}
}

// scanNumber collects a numeric literal. The first digit must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	loc := l.scanRun()
	val, err := strconv.ParseUint(string(l.src[loc.Start:loc.End]), 10, 64)
	if err != nil {
		return Token{}, &TokenizeError{Kind: NotNumber, Loc: loc, Line: l.line, Source: string(l.src)}
	}
	return Token{Kind: NUM, Loc: loc, Line: l.line, Value: val}, nil
}

// scanWord produces a keyword when one matches as a prefix followed by a
// non-word byte, and an identifier over the whole run otherwise.
func (l *Lexer) scanWord() Token {
	rest := l.src[l.pos:]
	for _, kw := range keywords {
		n := len(kw.text)
		if len(rest) < n || string(rest[:n]) != kw.text {
			continue
		}
		if len(rest) > n && isWordByte(rest[n]) {
			continue
		}
		loc := Loc{Start: l.pos, End: l.pos + n}
		l.pos += n
		return Token{Kind: kw.kind, Loc: loc, Line: l.line}
	}

	loc := l.scanRun()
	return Token{Kind: IDENT, Loc: loc, Line: l.line, Text: string(l.src[loc.Start:loc.End])}
}

// nextToken skips whitespace and returns the next token; ok is false at end of line.
func (l *Lexer) nextToken() (tok Token, ok bool, err error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{}, false, nil
	}

	ch := l.peek()
	start := l.pos

	if kind, found := punct[ch]; found {
		l.pos++
		return Token{Kind: kind, Loc: Loc{Start: start, End: l.pos}, Line: l.line}, true, nil
	}

	if _, found := compareOps[ch]; found {
		kind := compareOps[ch][0]
		l.pos++
		if l.peek() == '=' { // lookahead: distinguish = vs ==
			kind = compareOps[ch][1]
			l.pos++
		}
		return Token{Kind: kind, Loc: Loc{Start: start, End: l.pos}, Line: l.line}, true, nil
	}

	if isDigit(ch) {
		tok, err := l.scanNumber()
		if err != nil {
			return Token{}, false, err
		}
		return tok, true, nil
	}

	return l.scanWord(), true, nil
}

// Tokenize lexes one source line. The result holds no EOF token.
func Tokenize(line []byte, lineNo int) ([]Token, error) {
	l := newLexer(line, lineNo)
	var tokens []Token
	for {
		tok, ok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

// TokenizeLines lexes every line (numbered from 1) and appends a single EOF
// token located just past the last token. Without tokens it sits at the end
// of the last line.
func TokenizeLines(lines []string) ([]Token, error) {
	var tokens []Token
	for i, line := range lines {
		toks, err := Tokenize([]byte(line), i+1)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, toks...)
	}

	eof := Token{Kind: EOF, Line: 1}
	if n := len(tokens); n > 0 {
		last := tokens[n-1]
		eof = Token{Kind: EOF, Loc: Loc{Start: last.Loc.End, End: last.Loc.End}, Line: last.Line}
	} else if n := len(lines); n > 0 {
		end := len(lines[n-1])
		eof = Token{Kind: EOF, Loc: Loc{Start: end, End: end}, Line: n}
	}
	return append(tokens, eof), nil
}
