package compiler

import (
	"fmt"
	"math"
)

// argRegs are the System V integer argument registers, in order.
var argRegs = [MaxArgs]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Options tunes code generation.
type Options struct {
	// PopDiscarded drops the value an expression statement leaves on the
	// stack. Off by default: results then pile up until the epilogue
	// resets rsp, and a loop body grows the stack on every iteration.
	PopDiscarded bool
}

// CodeGen walks an AST and emits x86-64 assembly, one line per element.
// The machine stack doubles as the operand stack: every expression pushes
// exactly one 8-byte value and pops exactly what its children pushed.
type CodeGen struct {
	out  []string
	opts Options
}

func newCodeGen(opts Options) *CodeGen {
	return &CodeGen{opts: opts}
}

// line emits one indented instruction.
func (cg *CodeGen) line(format string, args ...any) {
	cg.out = append(cg.out, "  "+fmt.Sprintf(format, args...))
}

// label emits an unindented label definition.
func (cg *CodeGen) label(format string, args ...any) {
	cg.out = append(cg.out, fmt.Sprintf(format, args...)+":")
}

func (cg *CodeGen) epilogue() {
	cg.line("mov rsp, rbp")
	cg.line("pop rbp")
	cg.line("ret")
}

// genAddress pushes the address of an addressable expression. at is the
// position of the '&' or '=' that asked for it.
func (cg *CodeGen) genAddress(n Node, at Pos) error {
	switch e := n.(type) {
	case *Identifier:
		cg.line("mov rax, rbp")
		cg.line("sub rax, %d", e.Slot*8)
		cg.line("push rax")
		return nil

	case *Dereference:
		// the operand's value is the address
		return cg.genExpr(e.Operand)
	}
	return &GenerateError{Kind: NotLeftValue, Pos: at, Node: n}
}

// load replaces the address on top of the stack with the value it points to.
func (cg *CodeGen) load() {
	cg.line("pop rax")
	cg.line("mov rax, [rax]")
	cg.line("push rax")
}

func (cg *CodeGen) genExpr(n Node) error {
	switch e := n.(type) {
	case *NumberLiteral:
		if e.Value <= math.MaxInt32 {
			cg.line("push %d", e.Value)
		} else {
			// push only takes a sign-extended 32-bit immediate
			cg.line("mov rax, %d", e.Value)
			cg.line("push rax")
		}
		return nil

	case *Identifier:
		if err := cg.genAddress(e, Pos{}); err != nil {
			return err
		}
		cg.load()
		return nil

	case *AddressOf:
		return cg.genAddress(e.Operand, e.Pos)

	case *Dereference:
		if err := cg.genExpr(e.Operand); err != nil {
			return err
		}
		cg.load()
		return nil

	case *FunctionRef:
		cg.line("call %s", e.Name)
		cg.line("push rax")
		return nil

	case *CallExpr:
		return cg.genCall(e)

	case *BinaryOp:
		if e.Kind == Assign {
			return cg.genAssign(e)
		}
		return cg.genBinary(e)
	}
	return fmt.Errorf("codegen: %T is not an expression", n)
}

// genCall evaluates every argument first and only then pops them into the
// argument registers, so a nested call cannot clobber an earlier argument.
func (cg *CodeGen) genCall(c *CallExpr) error {
	if len(c.Args) > MaxArgs {
		return fmt.Errorf("codegen: call to %s has %d arguments", c.Name, len(c.Args))
	}
	for _, arg := range c.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
	}
	for i := len(c.Args) - 1; i >= 0; i-- {
		cg.line("pop %s", argRegs[i])
	}
	cg.line("call %s", c.Name)
	cg.line("push rax")
	return nil
}

// genAssign stores RHS through the address of LHS. Nothing is pushed
// afterwards, so an assignment yields no value.
func (cg *CodeGen) genAssign(b *BinaryOp) error {
	if err := cg.genAddress(b.LHS, b.Pos); err != nil {
		return err
	}
	if err := cg.genExpr(b.RHS); err != nil {
		return err
	}
	cg.line("pop rdi")
	cg.line("pop rax")
	cg.line("mov [rax], rdi")
	return nil
}

var setcc = map[BinaryKind]string{
	LessThan:  "setl",
	LessEqual: "setle",
	Equal:     "sete",
	NotEqual:  "setne",
}

func (cg *CodeGen) genBinary(b *BinaryOp) error {
	if err := cg.genExpr(b.LHS); err != nil {
		return err
	}
	if err := cg.genExpr(b.RHS); err != nil {
		return err
	}
	cg.line("pop rdi")
	cg.line("pop rax")

	switch b.Kind {
	case Add:
		cg.line("add rax, rdi")
	case Sub:
		cg.line("sub rax, rdi")
	case Mul:
		cg.line("imul rax, rdi")
	case Div:
		cg.line("cqo")
		cg.line("idiv rdi")
	case LessThan, LessEqual, Equal, NotEqual:
		cg.line("cmp rax, rdi")
		cg.line("%s al", setcc[b.Kind])
		cg.line("movzb rax, al")
	default:
		return fmt.Errorf("codegen: unknown operator %s", b.Kind)
	}

	cg.line("push rax")
	return nil
}

// leavesValue reports whether an expression statement pushes a result.
func leavesValue(n Node) bool {
	b, ok := n.(*BinaryOp)
	return !ok || b.Kind != Assign
}

// genDiscarded generates an expression whose value nobody reads.
func (cg *CodeGen) genDiscarded(n Node) error {
	if err := cg.genExpr(n); err != nil {
		return err
	}
	if cg.opts.PopDiscarded && leavesValue(n) {
		cg.line("add rsp, 8")
	}
	return nil
}

// condJump evaluates cond and jumps to target when it is zero.
func (cg *CodeGen) condJump(cond Node, target string) error {
	if err := cg.genExpr(cond); err != nil {
		return err
	}
	cg.line("pop rax")
	cg.line("cmp rax, 0")
	cg.line("je %s", target)
	return nil
}

func (cg *CodeGen) genStmt(n Node) error {
	switch s := n.(type) {
	case *Return:
		if err := cg.genExpr(s.Expr); err != nil {
			return err
		}
		cg.line("pop rax")
		cg.epilogue()

	case *Block:
		for _, stmt := range s.Stmts {
			if err := cg.genStmt(stmt); err != nil {
				return err
			}
		}

	case *If:
		end := fmt.Sprintf(".Lend_if%d", s.ID)
		if err := cg.condJump(s.Cond, end); err != nil {
			return err
		}
		if err := cg.genStmt(s.Body); err != nil {
			return err
		}
		cg.label("%s", end)

	case *IfElse:
		elseLabel := fmt.Sprintf(".Lelse_if%d", s.ID)
		end := fmt.Sprintf(".Lend_if%d", s.ID)
		if err := cg.condJump(s.Cond, elseLabel); err != nil {
			return err
		}
		if err := cg.genStmt(s.Then); err != nil {
			return err
		}
		cg.line("jmp %s", end)
		cg.label("%s", elseLabel)
		if err := cg.genStmt(s.Else); err != nil {
			return err
		}
		cg.label("%s", end)

	case *While:
		begin := fmt.Sprintf(".Lbegin_while%d", s.ID)
		end := fmt.Sprintf(".Lend_while%d", s.ID)
		cg.label("%s", begin)
		if err := cg.condJump(s.Cond, end); err != nil {
			return err
		}
		if err := cg.genStmt(s.Body); err != nil {
			return err
		}
		cg.line("jmp %s", begin)
		cg.label("%s", end)

	case *For:
		begin := fmt.Sprintf(".Lbegin_for%d", s.ID)
		end := fmt.Sprintf(".Lend_for%d", s.ID)
		if s.Init != nil {
			if err := cg.genDiscarded(s.Init); err != nil {
				return err
			}
		}
		cg.label("%s", begin)
		if s.Cond != nil {
			if err := cg.condJump(s.Cond, end); err != nil {
				return err
			}
		}
		if err := cg.genStmt(s.Body); err != nil {
			return err
		}
		if s.Update != nil {
			if err := cg.genDiscarded(s.Update); err != nil {
				return err
			}
		}
		cg.line("jmp %s", begin)
		cg.label("%s", end)

	default:
		return cg.genDiscarded(n)
	}
	return nil
}

func (cg *CodeGen) genFunction(f *FunctionDef) error {
	if f.ParamCount > MaxArgs {
		return fmt.Errorf("codegen: %s has %d parameters", f.Name, f.ParamCount)
	}

	cg.label("%s", f.Name)
	cg.line("push rbp")
	cg.line("mov rbp, rsp")
	cg.line("sub rsp, %d", f.LocalCount*8)

	// parameters occupy slots 1..ParamCount
	for i := 0; i < f.ParamCount; i++ {
		cg.line("mov [rbp-%d], %s", (i+1)*8, argRegs[i])
	}

	if err := cg.genStmt(f.Body); err != nil {
		return err
	}

	// falling off the end returns whatever rax holds
	cg.epilogue()
	return nil
}

// Generate emits the assembly listing for prog.
func Generate(prog *Program, opts Options) ([]string, error) {
	cg := newCodeGen(opts)
	cg.out = append(cg.out, ".intel_syntax noprefix", ".global main")
	for _, f := range prog.Funcs {
		if err := cg.genFunction(f); err != nil {
			return nil, err
		}
	}
	return cg.out, nil
}
