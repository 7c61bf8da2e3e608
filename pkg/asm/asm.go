package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reg names a general purpose register. The 8-bit forms alias the low byte
// of their 64-bit register.
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	AL
	CL
	DL
	BL
)

// NumRegs is the number of 64-bit registers.
const NumRegs = 16

var regNames = [...]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
	AL: "al", CL: "cl", DL: "dl", BL: "bl",
}

var regByName = func() map[string]Reg {
	m := make(map[string]Reg, len(regNames))
	for r, name := range regNames {
		m[name] = Reg(r)
	}
	return m
}()

func (r Reg) String() string {
	if int(r) >= 0 && int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// Is8 reports whether r is a byte register.
func (r Reg) Is8() bool { return r >= AL }

// Full returns the 64-bit register that r is part of.
func (r Reg) Full() Reg {
	switch r {
	case AL:
		return RAX
	case CL:
		return RCX
	case DL:
		return RDX
	case BL:
		return RBX
	}
	return r
}

// OperandKind classifies an instruction operand.
type OperandKind int

const (
	RegOperand OperandKind = 1 << iota
	ImmOperand
	MemOperand
	LabelOperand
)

// Operand is one argument of an instruction.
//
//	rax        {Kind: RegOperand, Reg: RAX}
//	42         {Kind: ImmOperand, Imm: 42}
//	[rbp-16]   {Kind: MemOperand, Reg: RBP, Imm: -16}
//	.Lend_if0  {Kind: LabelOperand, Label: ".Lend_if0"}
type Operand struct {
	Kind  OperandKind
	Reg   Reg    // register, or base of a memory operand
	Imm   int64  // immediate, or displacement of a memory operand
	Label string // jump or call target
}

func (o Operand) String() string {
	switch o.Kind {
	case RegOperand:
		return o.Reg.String()
	case ImmOperand:
		return strconv.FormatInt(o.Imm, 10)
	case MemOperand:
		switch {
		case o.Imm > 0:
			return fmt.Sprintf("[%s+%d]", o.Reg, o.Imm)
		case o.Imm < 0:
			return fmt.Sprintf("[%s%d]", o.Reg, o.Imm)
		}
		return fmt.Sprintf("[%s]", o.Reg)
	case LabelOperand:
		return o.Label
	}
	return "?"
}

// Instr is one parsed instruction.
type Instr struct {
	Op   string // lower-case mnemonic
	Args []Operand
	Line int // 1-based line in the listing
}

func (in Instr) String() string {
	if len(in.Args) == 0 {
		return in.Op
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	return in.Op + " " + strings.Join(args, ", ")
}

// Program is an assembled listing.
type Program struct {
	Instrs    []Instr
	Labels    map[string]int // label -> index of the instruction it precedes
	Globals   []string       // names from .global / .globl
	Externs   []string       // call targets with no label in the listing
	SourceMap map[int]int    // instruction index -> listing line
}

// argument masks per mnemonic; every operand must match its position's mask
const (
	rm  = RegOperand | MemOperand
	rmi = RegOperand | MemOperand | ImmOperand
)

var shapes = map[string][]OperandKind{
	"ret":   {},
	"cqo":   {},
	"push":  {rmi},
	"pop":   {rm},
	"idiv":  {rm},
	"mov":   {rm, rmi},
	"add":   {rm, rmi},
	"sub":   {rm, rmi},
	"cmp":   {rm, rmi},
	"imul":  {RegOperand, rmi},
	"movzb": {RegOperand, RegOperand},
	"sete":  {RegOperand},
	"setne": {RegOperand},
	"setl":  {RegOperand},
	"setle": {RegOperand},
	"jmp":   {LabelOperand},
	"je":    {LabelOperand},
	"call":  {LabelOperand},
}

// Assembler resolves labels across the two passes.
type Assembler struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo    int
	labels    []string
	directive string
	mnemonic  string
	operands  []string
}

func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// Assemble parses an Intel-syntax listing.
func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	return a.pass2(lines)
}

// pass1 records the instruction index of every label.
func (a *Assembler) pass1(lines []string) error {
	index := 0
	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = index
		}

		if p.mnemonic == "" {
			continue
		}
		if _, ok := shapes[p.mnemonic]; !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		index++
	}
	return nil
}

// pass2 parses operands, checks them against the instruction shapes and
// resolves jump targets.
func (a *Assembler) pass2(lines []string) (*Program, error) {
	prog := &Program{
		Labels:    a.labels,
		SourceMap: make(map[int]int),
	}
	externs := make(map[string]bool)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		switch p.directive {
		case "":
		case ".intel_syntax", ".text":
			continue
		case ".global", ".globl":
			if len(p.operands) == 0 {
				return nil, fmt.Errorf("%s expects a symbol on line %d", p.directive, lineNo)
			}
			prog.Globals = append(prog.Globals, p.operands...)
			continue
		default:
			return nil, fmt.Errorf("unknown directive on line %d: %s", lineNo, p.directive)
		}

		if p.mnemonic == "" {
			continue
		}

		in, err := parseInstr(p)
		if err != nil {
			return nil, err
		}

		switch in.Op {
		case "jmp", "je":
			if _, ok := a.labels[in.Args[0].Label]; !ok {
				return nil, fmt.Errorf("undefined label '%s' on line %d", in.Args[0].Label, lineNo)
			}
		case "call":
			target := in.Args[0].Label
			if _, ok := a.labels[target]; !ok && !externs[target] {
				externs[target] = true
				prog.Externs = append(prog.Externs, target)
			}
		}

		prog.SourceMap[len(prog.Instrs)] = lineNo
		prog.Instrs = append(prog.Instrs, in)
	}

	return prog, nil
}

func parseInstr(p parsedLine) (Instr, error) {
	shape := shapes[p.mnemonic]
	if len(p.operands) != len(shape) {
		return Instr{}, fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, len(shape), p.lineNo)
	}

	in := Instr{Op: p.mnemonic, Line: p.lineNo, Args: make([]Operand, len(shape))}
	for i, tok := range p.operands {
		op, err := parseOperand(tok, shape[i], p.lineNo)
		if err != nil {
			return Instr{}, err
		}
		in.Args[i] = op
	}

	if err := checkInstr(in); err != nil {
		return Instr{}, err
	}
	return in, nil
}

// checkInstr enforces the encoding limits the operand masks cannot express.
func checkInstr(in Instr) error {
	args := in.Args
	for i, arg := range args {
		if arg.Kind == RegOperand && arg.Reg.Is8() && !byteOperand(in.Op, i) {
			return fmt.Errorf("%s: byte register %s not allowed on line %d", in.Op, arg.Reg, in.Line)
		}
		if arg.Kind == RegOperand && !arg.Reg.Is8() && byteOperand(in.Op, i) {
			return fmt.Errorf("%s: expected a byte register, got %s on line %d", in.Op, arg.Reg, in.Line)
		}
	}

	if len(args) == 2 && args[0].Kind == MemOperand && args[1].Kind == MemOperand {
		return fmt.Errorf("%s: two memory operands on line %d", in.Op, in.Line)
	}

	for i, arg := range args {
		if arg.Kind != ImmOperand {
			continue
		}
		// only mov into a register takes a full 64-bit immediate
		wide := in.Op == "mov" && i == 1 && args[0].Kind == RegOperand
		if !wide && (arg.Imm < math.MinInt32 || arg.Imm > math.MaxInt32) {
			return fmt.Errorf("%s: immediate %d does not fit in 32 bits on line %d", in.Op, arg.Imm, in.Line)
		}
	}
	return nil
}

// byteOperand reports whether operand i of op is an 8-bit register.
func byteOperand(op string, i int) bool {
	switch op {
	case "sete", "setne", "setl", "setle":
		return true
	case "movzb":
		return i == 1
	}
	return false
}

func parseOperand(tok string, allowed OperandKind, lineNo int) (Operand, error) {
	var op Operand
	var err error

	switch {
	case strings.HasSuffix(tok, "]"):
		op, err = parseMemory(tok, lineNo)
	case isRegister(tok):
		op = Operand{Kind: RegOperand, Reg: regByName[tok]}
	case allowed&LabelOperand != 0:
		op, err = parseTarget(tok, lineNo)
	default:
		op, err = parseImmediate(tok, lineNo)
	}
	if err != nil {
		return Operand{}, err
	}

	if op.Kind&allowed == 0 {
		return Operand{}, fmt.Errorf("invalid operand '%s' on line %d", tok, lineNo)
	}
	return op, nil
}

// parseTarget reads a jump or call target.
func parseTarget(tok string, lineNo int) (Operand, error) {
	if !isLabel(tok) {
		return Operand{}, fmt.Errorf("invalid label '%s' on line %d", tok, lineNo)
	}
	return Operand{Kind: LabelOperand, Label: tok}, nil
}

func isRegister(tok string) bool {
	_, ok := regByName[tok]
	return ok
}

// parseMemory reads [reg], [reg+disp] or [reg-disp], optionally prefixed
// with "qword ptr".
func parseMemory(tok string, lineNo int) (Operand, error) {
	tok = strings.TrimSpace(strings.TrimPrefix(tok, "qword ptr"))
	if !strings.HasPrefix(tok, "[") {
		return Operand{}, fmt.Errorf("invalid memory operand '%s' on line %d", tok, lineNo)
	}
	inner := strings.TrimSpace(tok[1 : len(tok)-1])

	base, disp := inner, ""
	if i := strings.IndexAny(inner, "+-"); i >= 0 {
		base, disp = strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i:])
	}

	reg, ok := regByName[base]
	if !ok || reg.Is8() {
		return Operand{}, fmt.Errorf("invalid base register '%s' on line %d", base, lineNo)
	}

	op := Operand{Kind: MemOperand, Reg: reg}
	if disp != "" {
		sign := int64(1)
		if disp[0] == '-' {
			sign = -1
		}
		n, err := strconv.ParseInt(strings.TrimSpace(disp[1:]), 0, 32)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", disp, lineNo)
		}
		op.Imm = sign * n
	}
	return op, nil
}

// parseImmediate accepts any integer that fits in 64 bits, signed or not.
func parseImmediate(tok string, lineNo int) (Operand, error) {
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return Operand{Kind: ImmOperand, Imm: v}, nil
	}
	if v, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return Operand{Kind: ImmOperand, Imm: int64(v)}, nil
	}
	return Operand{}, fmt.Errorf("invalid immediate '%s' on line %d", tok, lineNo)
}

// Resolve returns the instruction index a jump target refers to.
func (p *Program) Resolve(label string) (int, bool) {
	idx, ok := p.Labels[label]
	return idx, ok
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t[,") {
			break
		}
		if !isLabel(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	head, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		head, rest = line[:i], strings.TrimSpace(line[i+1:])
	}
	head = strings.ToLower(head)

	var operands []string
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			operands = append(operands, op)
		}
	}

	if strings.HasPrefix(head, ".") {
		p.directive = head
	} else {
		p.mnemonic = head
	}
	p.operands = operands
	return p, nil
}

func stripComments(line string) string {
	if cut := strings.IndexByte(line, '#'); cut >= 0 {
		return line[:cut]
	}
	return line
}

// isLabel accepts the symbol characters used by GNU as: letters, digits,
// '_', '.' and '$', not starting with a digit.
func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.', c == '$':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
