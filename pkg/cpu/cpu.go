package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"ninecc/pkg/asm"
)

const (
	// StackTop is the initial rsp. The stack grows down from here.
	StackTop int64 = 0x7fff_0000_0000

	DefaultStackSize = 1 << 20
	DefaultMaxSteps  = 1_000_000

	// returnSentinel is pushed as the return address of the outermost
	// frame; returning to it halts the machine.
	returnSentinel int64 = -1
)

var (
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrStackOverflow   = errors.New("stack overflow")
	ErrBadAddress      = errors.New("memory access out of bounds")
	ErrDivideByZero    = errors.New("division by zero")
	ErrDivideOverflow  = errors.New("division overflow")
	ErrUnknownFunction = errors.New("unknown function")
	ErrBadPC           = errors.New("pc out of range")
)

// ArgRegs are the System V integer argument registers, in order.
var ArgRegs = [6]asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}

// Extern implements a function that the listing calls but does not define.
// Its result is placed in rax.
type Extern func(m *Machine) int64

// Machine executes an assembled listing.
type Machine struct {
	Regs [asm.NumRegs]int64
	PC   int // index into prog.Instrs

	// flags as set by add, sub, cmp and imul
	ZF, SF, OF, CF bool

	Halted bool
	Steps  int

	// MaxSteps bounds one Run; zero means no limit.
	MaxSteps int

	Externs map[string]Extern

	// Trace, if set, receives one line per executed instruction.
	Trace io.Writer

	prog  *asm.Program
	stack []byte
	minSP int64
}

func NewMachine(prog *asm.Program) *Machine {
	return &Machine{
		prog:     prog,
		stack:    make([]byte, DefaultStackSize),
		MaxSteps: DefaultMaxSteps,
		Externs:  make(map[string]Extern),
		minSP:    StackTop,
	}
}

// Arg returns the i-th integer argument register.
func (m *Machine) Arg(i int) int64 {
	return m.Regs[ArgRegs[i]]
}

// MaxStackDepth is the largest number of stack bytes in use at any point
// since the last Call.
func (m *Machine) MaxStackDepth() int64 {
	return StackTop - m.minSP
}

// Call runs the function labelled name with up to six arguments and
// returns the value it leaves in rax.
func (m *Machine) Call(name string, args ...int64) (int64, error) {
	entry, ok := m.prog.Resolve(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) > len(ArgRegs) {
		return 0, fmt.Errorf("call %s: %d arguments, at most %d fit in registers", name, len(args), len(ArgRegs))
	}

	m.Regs = [asm.NumRegs]int64{}
	m.ZF, m.SF, m.OF, m.CF = false, false, false, false
	m.Regs[asm.RSP] = StackTop
	m.minSP = StackTop
	for i, v := range args {
		m.Regs[ArgRegs[i]] = v
	}
	if err := m.push(returnSentinel); err != nil {
		return 0, err
	}

	m.PC = entry
	m.Halted = false
	m.Steps = 0
	if err := m.Run(); err != nil {
		return 0, fmt.Errorf("call %s: %w", name, err)
	}
	return m.Regs[asm.RAX], nil
}

// Run steps until the outermost frame returns or an error occurs.
func (m *Machine) Run() error {
	for !m.Halted {
		if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
			return ErrStepLimit
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction.
func (m *Machine) Step() error {
	if m.Halted {
		return nil
	}
	if m.PC < 0 || m.PC >= len(m.prog.Instrs) {
		return fmt.Errorf("%w: %d", ErrBadPC, m.PC)
	}

	pc := m.PC
	in := m.prog.Instrs[pc]
	m.PC++
	m.Steps++

	if err := m.exec(in); err != nil {
		return fmt.Errorf("line %d: %s: %w", m.SourceLine(pc), in, err)
	}
	if m.Trace != nil {
		fmt.Fprintf(m.Trace, "%4d  %-28s rax=%d rsp=%#x\n", m.SourceLine(pc), in, m.Regs[asm.RAX], m.Regs[asm.RSP])
	}
	return nil
}

// SourceLine returns the listing line of the instruction at pc, or 0 when
// the program carries no source map for it.
func (m *Machine) SourceLine(pc int) int {
	return m.prog.SourceMap[pc]
}

func (m *Machine) exec(in asm.Instr) error {
	args := in.Args

	switch in.Op {
	case "push":
		v, err := m.read(args[0])
		if err != nil {
			return err
		}
		return m.push(v)

	case "pop":
		v, err := m.pop()
		if err != nil {
			return err
		}
		return m.write(args[0], v)

	case "mov":
		v, err := m.read(args[1])
		if err != nil {
			return err
		}
		return m.write(args[0], v)

	case "add", "sub", "cmp", "imul":
		a, err := m.read(args[0])
		if err != nil {
			return err
		}
		b, err := m.read(args[1])
		if err != nil {
			return err
		}
		var r int64
		switch in.Op {
		case "add":
			r = m.addFlags(a, b)
		case "imul":
			r = m.mulFlags(a, b)
		default:
			r = m.subFlags(a, b)
		}
		if in.Op == "cmp" {
			return nil
		}
		return m.write(args[0], r)

	case "cqo":
		m.Regs[asm.RDX] = m.Regs[asm.RAX] >> 63

	case "idiv":
		d, err := m.read(args[0])
		if err != nil {
			return err
		}
		return m.idiv(d)

	case "sete", "setne", "setl", "setle":
		var b int64
		if m.condition(in.Op) {
			b = 1
		}
		return m.write(args[0], b)

	case "movzb":
		v, err := m.read(args[1])
		if err != nil {
			return err
		}
		m.Regs[args[0].Reg.Full()] = v & 0xff

	case "jmp":
		return m.jump(args[0].Label)

	case "je":
		if m.ZF {
			return m.jump(args[0].Label)
		}

	case "call":
		return m.call(args[0].Label)

	case "ret":
		v, err := m.pop()
		if err != nil {
			return err
		}
		if v == returnSentinel {
			m.Halted = true
			return nil
		}
		m.PC = int(v)

	default:
		return fmt.Errorf("unsupported instruction %s", in.Op)
	}
	return nil
}

// condition evaluates the flags for a setcc mnemonic.
func (m *Machine) condition(op string) bool {
	switch op {
	case "sete":
		return m.ZF
	case "setne":
		return !m.ZF
	case "setl":
		return m.SF != m.OF
	case "setle":
		return m.ZF || m.SF != m.OF
	}
	return false
}

func (m *Machine) addFlags(a, b int64) int64 {
	r := a + b
	m.ZF, m.SF = r == 0, r < 0
	m.OF = (a^r)&(b^r) < 0
	m.CF = uint64(r) < uint64(a)
	return r
}

func (m *Machine) subFlags(a, b int64) int64 {
	r := a - b
	m.ZF, m.SF = r == 0, r < 0
	m.OF = (a^b)&(a^r) < 0
	m.CF = uint64(a) < uint64(b)
	return r
}

func (m *Machine) mulFlags(a, b int64) int64 {
	r := a * b
	overflow := a != 0 && (r/a != b || (a == -1 && b == math.MinInt64))
	m.OF, m.CF = overflow, overflow
	return r
}

// idiv divides rdx:rax by d. Only dividends that fit in rax are supported,
// which is what cqo produces.
func (m *Machine) idiv(d int64) error {
	if d == 0 {
		return ErrDivideByZero
	}
	rax, rdx := m.Regs[asm.RAX], m.Regs[asm.RDX]
	if rdx != rax>>63 {
		return fmt.Errorf("%w: rdx is not the sign extension of rax", ErrDivideOverflow)
	}
	if rax == math.MinInt64 && d == -1 {
		return ErrDivideOverflow
	}
	m.Regs[asm.RAX] = rax / d
	m.Regs[asm.RDX] = rax % d
	return nil
}

func (m *Machine) jump(label string) error {
	idx, ok := m.prog.Resolve(label)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, label)
	}
	m.PC = idx
	return nil
}

func (m *Machine) call(name string) error {
	if idx, ok := m.prog.Resolve(name); ok {
		if err := m.push(int64(m.PC)); err != nil {
			return err
		}
		m.PC = idx
		return nil
	}
	fn, ok := m.Externs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	m.Regs[asm.RAX] = fn(m)
	return nil
}

func (m *Machine) read(op asm.Operand) (int64, error) {
	switch op.Kind {
	case asm.RegOperand:
		v := m.Regs[op.Reg.Full()]
		if op.Reg.Is8() {
			v &= 0xff
		}
		return v, nil
	case asm.ImmOperand:
		return op.Imm, nil
	case asm.MemOperand:
		return m.Load(m.Regs[op.Reg] + op.Imm)
	}
	return 0, fmt.Errorf("cannot read operand %s", op)
}

func (m *Machine) write(op asm.Operand, v int64) error {
	switch op.Kind {
	case asm.RegOperand:
		full := op.Reg.Full()
		if op.Reg.Is8() {
			v = m.Regs[full]&^0xff | v&0xff
		}
		m.Regs[full] = v
		if full == asm.RSP {
			m.noteSP()
		}
		return nil
	case asm.MemOperand:
		return m.Store(m.Regs[op.Reg]+op.Imm, v)
	}
	return fmt.Errorf("cannot write operand %s", op)
}

// offset maps a stack address to an index into the stack memory.
func (m *Machine) offset(addr int64) (int, error) {
	low := StackTop - int64(len(m.stack))
	if addr < low || addr > StackTop-8 {
		return 0, fmt.Errorf("%w: %#x", ErrBadAddress, addr)
	}
	return int(addr - low), nil
}

// Load reads the 8-byte little-endian value at addr.
func (m *Machine) Load(addr int64) (int64, error) {
	off, err := m.offset(addr)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(m.stack[off:])), nil
}

// Store writes v as 8 little-endian bytes at addr.
func (m *Machine) Store(addr, v int64) error {
	off, err := m.offset(addr)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.stack[off:], uint64(v))
	return nil
}

func (m *Machine) push(v int64) error {
	sp := m.Regs[asm.RSP] - 8
	if sp < StackTop-int64(len(m.stack)) {
		return ErrStackOverflow
	}
	m.Regs[asm.RSP] = sp
	m.noteSP()
	return m.Store(sp, v)
}

func (m *Machine) pop() (int64, error) {
	sp := m.Regs[asm.RSP]
	v, err := m.Load(sp)
	if err != nil {
		return 0, err
	}
	m.Regs[asm.RSP] = sp + 8
	return v, nil
}

func (m *Machine) noteSP() {
	if sp := m.Regs[asm.RSP]; sp < m.minSP {
		m.minSP = sp
	}
}
