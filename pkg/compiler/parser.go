package compiler

// MaxArgs is the number of integer argument registers in the System V ABI.
// Calls and definitions with more parameters are rejected.
const MaxArgs = 6

// Parser consumes the flat token slice produced by the lexer and builds an AST.
// It looks at one token at a time and never backtracks.
//
// Grammar:
//
//	program    = function*
//	function   = IDENT "(" (IDENT ("," IDENT)*)? ")" "{" stmt* "}"
//	stmt       = "return" expr ";"
//	           | "if" "(" expr ")" stmt ("else" stmt)?
//	           | "while" "(" expr ")" stmt
//	           | "for" "(" expr? ";" expr? ";" expr? ")" stmt
//	           | "{" stmt* "}"
//	           | expr ";"
//	expr       = assign
//	assign     = equality ("=" assign)?
//	equality   = relational (("==" | "!=") relational)*
//	relational = add (("<" | ">" | "<=" | ">=") add)*
//	add        = mul (("+" | "-") mul)*
//	mul        = unary (("*" | "/") unary)*
//	unary      = ("+" | "-")? primary | "*" primary | "&" primary
//	primary    = NUM | IDENT ("(" (unary ("," unary)*)? ")")? | "(" expr ")"
type Parser struct {
	tokens []Token
	pos    int
	syms   *SymbolTable // variables of the function being parsed
	labels *LabelAllocator
}

func newParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens, labels: &LabelAllocator{}}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		if n := len(p.tokens); n > 0 {
			last := p.tokens[n-1]
			return Token{Kind: EOF, Loc: Loc{Start: last.Loc.End, End: last.Loc.End}, Line: last.Line}
		}
		return Token{Kind: EOF, Line: 1}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// errorAt builds a ParseError pointing at tok. Running into EOF always
// reports EoF, whatever the production expected.
func (p *Parser) errorAt(kind ParseErrorKind, tok Token) error {
	if tok.Kind == EOF {
		kind = EoF
	}
	return &ParseError{Kind: kind, Loc: tok.Loc, Line: tok.Line, Got: tok.Kind}
}

// expect consumes the current token if it is of kind tk, otherwise reports errKind.
func (p *Parser) expect(tk TokenKind, errKind ParseErrorKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != tk {
		return tok, p.errorAt(errKind, tok)
	}
	return p.advance(), nil
}

// startsOperand reports whether tk can begin a unary expression.
func startsOperand(tk TokenKind) bool {
	switch tk {
	case NUM, IDENT, LPAREN, PLUS, MINUS, STAR, AMP:
		return true
	}
	return false
}

// listSeparator handles the token after an element of a parenthesised,
// comma-separated list. done is true once the closing ")" is consumed.
func (p *Parser) listSeparator() (done bool, err error) {
	tok := p.peek()
	switch {
	case tok.Kind == COMMA:
		p.advance()
		return false, nil
	case tok.Kind == RPAREN:
		p.advance()
		return true, nil
	case startsOperand(tok.Kind):
		return false, p.errorAt(RequireComma, tok)
	default:
		return false, p.errorAt(UnclosedParenth, tok)
	}
}

// Parse builds the program from a token stream ending in EOF.
func Parse(tokens []Token) (*Program, error) {
	p := newParser(tokens)
	prog := &Program{}
	for p.peek().Kind != EOF {
		f, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		prog.Funcs = append(prog.Funcs, f)
	}
	return prog, nil
}

// parseFunction parses  name(params) { body }  with a fresh symbol table.
func (p *Parser) parseFunction() (*FunctionDef, error) {
	nameTok := p.peek()
	if nameTok.Kind != IDENT {
		return nil, p.errorAt(UndeclaredFunction, nameTok)
	}
	p.advance()

	if _, err := p.expect(LPAREN, RequireLeftParenth); err != nil {
		return nil, err
	}

	p.syms = NewSymbolTable()
	defer func() { p.syms = nil }()

	params := 0
	if p.peek().Kind == RPAREN {
		p.advance()
	} else {
		for {
			tok := p.peek()
			if tok.Kind != IDENT || params == MaxArgs {
				return nil, p.errorAt(NotPatternMatching, tok)
			}
			if _, seen := p.syms.Lookup(tok.Text); seen {
				// a repeated name would leave two parameters sharing one slot
				return nil, p.errorAt(NotPatternMatching, tok)
			}
			p.advance()
			p.syms.Slot(tok.Text)
			params++

			done, err := p.listSeparator()
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	}

	if _, err := p.expect(LBRACE, NotPatternMatching); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &FunctionDef{
		Name:       nameTok.Text,
		ParamCount: params,
		LocalCount: p.syms.Len(),
		Locals:     p.syms.Names(),
		Body:       body,
	}, nil
}

// parseBlock parses  stmt* "}". The leading "{" has already been consumed.
func (p *Parser) parseBlock() (*Block, error) {
	block := &Block{}
	for p.peek().Kind != RBRACE {
		if p.peek().Kind == EOF {
			return nil, p.errorAt(EoF, p.peek())
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.advance()
	return block, nil
}

// parseStatement dispatches on the leading token.
func (p *Parser) parseStatement() (Node, error) {
	switch p.peek().Kind {
	case RETURN:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON, RequireSemicolon); err != nil {
			return nil, err
		}
		return &Return{Expr: expr}, nil

	case IF:
		p.advance()
		return p.parseIf()

	case WHILE:
		p.advance()
		return p.parseWhile()

	case FOR:
		p.advance()
		return p.parseFor()

	case LBRACE:
		p.advance()
		return p.parseBlock()
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, RequireSemicolon); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseCondition parses  "(" expr ")"  after if and while.
func (p *Parser) parseCondition() (Node, error) {
	if _, err := p.expect(LPAREN, RequireLeftParenth); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN, UnclosedParenth); err != nil {
		return nil, err
	}
	return cond, nil
}

// parseIf parses  ( cond ) body [ else elseBody ]. The id is drawn before the
// body is parsed, so an if nested in the body always gets a larger id.
func (p *Parser) parseIf() (Node, error) {
	id := p.labels.NextIf()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	if p.peek().Kind != ELSE {
		return &If{ID: id, Cond: cond, Body: body}, nil
	}
	p.advance()
	elseBody, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &IfElse{ID: id, Cond: cond, Then: body, Else: elseBody}, nil
}

// parseWhile parses  ( cond ) body
func (p *Parser) parseWhile() (Node, error) {
	id := p.labels.NextWhile()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &While{ID: id, Cond: cond, Body: body}, nil
}

// parseFor parses  ( init? ; cond? ; update? ) body
func (p *Parser) parseFor() (Node, error) {
	id := p.labels.NextFor()
	if _, err := p.expect(LPAREN, RequireLeftParenth); err != nil {
		return nil, err
	}

	f := &For{ID: id}
	var err error

	if p.peek().Kind != SEMICOLON {
		if f.Init, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON, RequireSemicolon); err != nil {
		return nil, err
	}

	if p.peek().Kind != SEMICOLON {
		if f.Cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON, RequireSemicolon); err != nil {
		return nil, err
	}

	if p.peek().Kind != RPAREN {
		if f.Update, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN, UnclosedParenth); err != nil {
		return nil, err
	}

	if f.Body, err = p.parseStatement(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseExpr is the entry point for expression parsing.
func (p *Parser) parseExpr() (Node, error) {
	return p.parseAssign()
}

// parseAssign handles = (right-associative).
func (p *Parser) parseAssign() (Node, error) {
	lhs, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != ASSIGN {
		return lhs, nil
	}
	op := p.advance()
	rhs, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &BinaryOp{Kind: Assign, LHS: lhs, RHS: rhs, Pos: Pos{Loc: op.Loc, Line: op.Line}}, nil
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Node, error) {
	expr, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var kind BinaryKind
		switch p.peek().Kind {
		case EQUALS:
			kind = Equal
		case NOT_EQ:
			kind = NotEqual
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		expr = &BinaryOp{Kind: kind, LHS: expr, RHS: rhs}
	}
}

// parseRelational handles < <= > >=. The greater-than forms are rewritten
// with swapped operands so only LessThan and LessEqual reach codegen.
func (p *Parser) parseRelational() (Node, error) {
	expr, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().Kind
		if op != LESS && op != LESS_EQ && op != GREATER && op != GREATER_EQ {
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		switch op {
		case LESS:
			expr = &BinaryOp{Kind: LessThan, LHS: expr, RHS: rhs}
		case LESS_EQ:
			expr = &BinaryOp{Kind: LessEqual, LHS: expr, RHS: rhs}
		case GREATER:
			expr = &BinaryOp{Kind: LessThan, LHS: rhs, RHS: expr}
		case GREATER_EQ:
			expr = &BinaryOp{Kind: LessEqual, LHS: rhs, RHS: expr}
		}
	}
}

// parseAdd handles + and -
func (p *Parser) parseAdd() (Node, error) {
	expr, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		var kind BinaryKind
		switch p.peek().Kind {
		case PLUS:
			kind = Add
		case MINUS:
			kind = Sub
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		expr = &BinaryOp{Kind: kind, LHS: expr, RHS: rhs}
	}
}

// parseMul handles * and /
func (p *Parser) parseMul() (Node, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var kind BinaryKind
		switch p.peek().Kind {
		case STAR:
			kind = Mul
		case SLASH:
			kind = Div
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryOp{Kind: kind, LHS: expr, RHS: rhs}
	}
}

// parseUnary handles prefix + - * &. Each applies to a primary, not to
// another unary, so "**p" and "--x" do not parse.
func (p *Parser) parseUnary() (Node, error) {
	switch p.peek().Kind {
	case PLUS:
		p.advance()
		return p.parsePrimary()

	case MINUS:
		p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Kind: Sub, LHS: &NumberLiteral{Value: 0}, RHS: operand}, nil

	case STAR:
		p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Dereference{Operand: operand}, nil

	case AMP:
		op := p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &AddressOf{Operand: operand, Pos: Pos{Loc: op.Loc, Line: op.Line}}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles literals, variables, calls and parenthesised expressions.
func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case NUM:
		p.advance()
		return &NumberLiteral{Value: tok.Value}, nil

	case IDENT:
		p.advance()
		if p.peek().Kind == LPAREN {
			p.advance()
			return p.parseCall(tok.Text)
		}
		return &Identifier{Name: tok.Text, Slot: p.syms.Slot(tok.Text)}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN, UnclosedParenth); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.errorAt(NotPatternMatching, tok)
}

// parseCall parses the argument list after "name(". An empty list gives a
// FunctionRef; a seventh argument is rejected.
func (p *Parser) parseCall(name string) (Node, error) {
	if p.peek().Kind == RPAREN {
		p.advance()
		return &FunctionRef{Name: name}, nil
	}

	var args []Node
	for {
		if len(args) == MaxArgs {
			return nil, p.errorAt(NotPatternMatching, p.peek())
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		done, err := p.listSeparator()
		if err != nil {
			return nil, err
		}
		if done {
			return &CallExpr{Name: name, Args: args}, nil
		}
	}
}
