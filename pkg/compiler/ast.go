package compiler

import (
	"fmt"
	"strings"
)

// Node is implemented by every AST variant. Each node owns its children
// exclusively; the tree has no sharing and no parent links.
type Node interface {
	node()
	String() string
}

// Pos locates the operator token that produced a node.
type Pos struct {
	Loc  Loc
	Line int
}

//  Expression nodes

// NumberLiteral is an integer constant.
type NumberLiteral struct {
	Value uint64
}

func (*NumberLiteral) node()            {}
func (n *NumberLiteral) String() string { return fmt.Sprintf("%d", n.Value) }

// Identifier is a reference to a local variable or parameter.
//
//	x = y + 1;
//	^   ^
//	|   Identifier{Name: "y", Slot: 2}
//	Identifier{Name: "x", Slot: 1}
type Identifier struct {
	Name string
	Slot int // 1-based frame slot; the variable lives at rbp - Slot*8
}

func (*Identifier) node()            {}
func (i *Identifier) String() string { return fmt.Sprintf("%s@%d", i.Name, i.Slot) }

// FunctionRef is a call written with an empty argument list, used as a value.
type FunctionRef struct {
	Name string
}

func (*FunctionRef) node()            {}
func (f *FunctionRef) String() string { return fmt.Sprintf("(call %s)", f.Name) }

// CallExpr is a call with between one and six arguments.
type CallExpr struct {
	Name string
	Args []Node
}

func (*CallExpr) node() {}
func (c *CallExpr) String() string {
	parts := make([]string, 0, len(c.Args)+2)
	parts = append(parts, "call", c.Name)
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// AddressOf is &Operand. Operand must be addressable.
type AddressOf struct {
	Operand Node
	Pos     Pos
}

func (*AddressOf) node()            {}
func (a *AddressOf) String() string { return fmt.Sprintf("(& %s)", a.Operand) }

// Dereference is *Operand.
type Dereference struct {
	Operand Node
}

func (*Dereference) node()            {}
func (d *Dereference) String() string { return fmt.Sprintf("(* %s)", d.Operand) }

// BinaryKind is the operator of a BinaryOp. There is no greater-than kind:
// the parser swaps the operands of > and >= instead.
type BinaryKind int

const (
	Add BinaryKind = iota
	Sub
	Mul
	Div
	LessThan
	LessEqual
	Equal
	NotEqual
	Assign
)

var binaryNames = [...]string{
	Add:       "+",
	Sub:       "-",
	Mul:       "*",
	Div:       "/",
	LessThan:  "<",
	LessEqual: "<=",
	Equal:     "==",
	NotEqual:  "!=",
	Assign:    "=",
}

func (k BinaryKind) String() string {
	if int(k) >= 0 && int(k) < len(binaryNames) {
		return binaryNames[k]
	}
	return fmt.Sprintf("BinaryKind(%d)", int(k))
}

// BinaryOp represents LHS Kind RHS.
//
//	a > b   parses as   BinaryOp{Kind: LessThan, LHS: b, RHS: a}
type BinaryOp struct {
	Kind BinaryKind
	LHS  Node
	RHS  Node
	Pos  Pos // set for Assign only
}

func (*BinaryOp) node() {}
func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Kind, b.LHS, b.RHS)
}

//  Statement nodes

// Return represents  return Expr;
type Return struct {
	Expr Node
}

func (*Return) node()            {}
func (r *Return) String() string { return fmt.Sprintf("(return %s)", r.Expr) }

// Block represents { stmt ... }
type Block struct {
	Stmts []Node
}

func (*Block) node() {}
func (b *Block) String() string {
	parts := make([]string, 0, len(b.Stmts)+1)
	parts = append(parts, "block")
	for _, s := range b.Stmts {
		parts = append(parts, s.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// If represents if (Cond) Body
type If struct {
	ID   int
	Cond Node
	Body Node
}

func (*If) node() {}
func (i *If) String() string {
	return fmt.Sprintf("(if#%d %s %s)", i.ID, i.Cond, i.Body)
}

// IfElse represents if (Cond) Then else Else
type IfElse struct {
	ID   int
	Cond Node
	Then Node
	Else Node
}

func (*IfElse) node() {}
func (i *IfElse) String() string {
	return fmt.Sprintf("(if#%d %s %s %s)", i.ID, i.Cond, i.Then, i.Else)
}

// While represents while (Cond) Body
type While struct {
	ID   int
	Cond Node
	Body Node
}

func (*While) node() {}
func (w *While) String() string {
	return fmt.Sprintf("(while#%d %s %s)", w.ID, w.Cond, w.Body)
}

// For represents for (Init; Cond; Update) Body. Each clause may be nil.
type For struct {
	ID     int
	Init   Node
	Cond   Node
	Update Node
	Body   Node
}

func (*For) node() {}
func (f *For) String() string {
	return fmt.Sprintf("(for#%d %s %s %s %s)", f.ID, orNil(f.Init), orNil(f.Cond), orNil(f.Update), f.Body)
}

func orNil(n Node) string {
	if n == nil {
		return "_"
	}
	return n.String()
}

// FunctionDef represents name(params) { body }. Parameters occupy slots
// 1..ParamCount of the function's frame, so LocalCount >= ParamCount.
type FunctionDef struct {
	Name       string
	ParamCount int
	LocalCount int
	Locals     []string // variable names in slot order
	Body       *Block
}

func (*FunctionDef) node() {}
func (f *FunctionDef) String() string {
	return fmt.Sprintf("(def %s params=%d locals=%d %s)", f.Name, f.ParamCount, f.LocalCount, f.Body)
}

// Program is a compilation unit: function definitions in source order.
type Program struct {
	Funcs []*FunctionDef
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, f := range p.Funcs {
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
