package compiler

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"ninecc/pkg/asm"
	"ninecc/pkg/cpu"
)

// load compiles src and loads the listing into a fresh machine.
func load(t *testing.T, src string, opts Options) *cpu.Machine {
	t.Helper()
	lines, err := Compile(strings.Split(src, "\n"), opts)
	if err != nil {
		t.Fatalf("Compile failed: %v\nSource:\n%s", err, src)
	}
	prog, err := asm.Assemble(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("Assemble failed: %v\nAssembly:\n%s", err, strings.Join(lines, "\n"))
	}
	return cpu.NewMachine(prog)
}

// runCode compiles src, runs entry and returns its result.
func runCode(t *testing.T, src, entry string) int64 {
	t.Helper()
	m := load(t, src, Options{})
	v, err := m.Call(entry)
	if err != nil {
		t.Fatalf("Call(%s) failed: %v\nSource:\n%s", entry, err, src)
	}
	return v
}

func TestEndToEnd(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		entry string
		want  int64
	}{
		{"Arithmetic", "a(){ return 1+2*3; }", "a", 7},
		{"While", "a(){ x=1; while(x<5) x=x+1; return x; }", "a", 5},
		{"If Else", "a(){ if (0) return 1; else return 2; }", "a", 2},
		{"For", "a(){ x=0; for (i=0;i<3;i=i+1) x=x+1; return x; }", "a", 3},
		{"Call", "add(b,c){ return b+c; } main(){ return add(3,4); }", "main", 7},
		{"Pointer", "a(){ x=5; y=&x; return *y; }", "a", 5},

		{"Negative", "a(){ return -3 * 4; }", "a", -12},
		{"Truncating Division", "a(){ return (0-7)/2; }", "a", -3},
		{"Comparisons", "a(){ return (1<2) + (2<=2)*10 + (3==3)*100 + (3!=3)*1000 + (5>4)*10000 + (4>=5)*100000; }", "a", 10111},
		{"Store Through Pointer", "a(){ x = 1; p = &x; *p = 9; return x; }", "a", 9},
		{"Nested Blocks", "a(){ x = 0; { x = x + 1; { x = x + 2; } } return x; }", "a", 3},
		{"If Without Else Falls Through", "a(){ x = 4; if (x == 3) return 1; return x; }", "a", 4},
		{"For Without Condition", "a(){ for (i = 0;; i = i + 1) if (i == 6) return i; }", "a", 6},
		{"Nested Loops", "a(){ s = 0; for (i = 0; i < 4; i = i + 1) for (j = 0; j < 3; j = j + 1) s = s + 1; return s; }", "a", 12},
		{"Recursion", "fib(n){ if (n < 2) return n; return fib((n-1)) + fib((n-2)); } main(){ return fib(10); }", "main", 55},
		{"Six Parameters", "s(a,b,c,d,e,f){ return a*100000+b*10000+c*1000+d*100+e*10+f; } main(){ return s(1,2,3,4,5,6); }", "main", 123456},
		{"Call Inside Arguments", "sub(a,b){ return a-b; } two(){ return 2; } main(){ return sub(10, two()); }", "main", 8},
		{"Wide Literal", "a(){ return 4294967296 / 2; }", "a", 2147483648},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src, tt.entry); got != tt.want {
				t.Errorf("%s() = %d, want %d", tt.entry, got, tt.want)
			}
		})
	}
}

// genExpr builds a random expression over + - * / and parentheses and
// returns its source and value. Divisors are non-zero literals.
func genExpr(r *rand.Rand, depth int) (string, int64) {
	if depth == 0 || r.Intn(4) == 0 {
		v := int64(r.Intn(50))
		return fmt.Sprint(v), v
	}
	ls, lv := genExpr(r, depth-1)
	switch r.Intn(5) {
	case 0:
		rs, rv := genExpr(r, depth-1)
		return ls + "+" + rs, lv + rv
	case 1:
		rs, rv := genExpr(r, depth-1)
		return "(" + ls + ")-(" + rs + ")", lv - rv
	case 2:
		rs, rv := genExpr(r, depth-1)
		return "(" + ls + ")*(" + rs + ")", lv * rv
	case 3:
		d := int64(r.Intn(9) + 1)
		return fmt.Sprintf("(%s)/%d", ls, d), lv / d
	}
	return "(" + ls + ")", lv
}

func TestArithmeticMatchesGo(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	for i := 0; i < 200; i++ {
		expr, want := genExpr(r, 4)
		src := fmt.Sprintf("a(){ return %s; }", expr)
		if got := runCode(t, src, "a"); got != want {
			t.Fatalf("%s = %d, want %d", expr, got, want)
		}
	}
}

func TestLeftAssociativity(t *testing.T) {
	tests := map[string]int64{
		"100-10-1":   89,
		"100/10/2":   5,
		"2*3-4*5":    -14,
		"8/3*3":      6,
		"1-2+3":      2,
		"(1-2)*(3-4)": 1,
	}
	for expr, want := range tests {
		src := fmt.Sprintf("a(){ return %s; }", expr)
		if got := runCode(t, src, "a"); got != want {
			t.Errorf("%s = %d, want %d", expr, got, want)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 42, 123456, 2147483647} {
		direct := runCode(t, fmt.Sprintf("a(){ x = %d; return x; }", v), "a")
		through := runCode(t, fmt.Sprintf("a(){ x = %d; return *(&x); }", v), "a")
		if direct != through || direct != v {
			t.Errorf("x = %d: direct %d, through address %d", v, direct, through)
		}
	}
}

func TestSixArgumentsLandInRegisters(t *testing.T) {
	m := load(t, "main(){ return f(1, 2, g(), 4, 5, 6); }", Options{})

	var got []int64
	m.Externs["g"] = func(m *cpu.Machine) int64 { return 3 }
	m.Externs["f"] = func(m *cpu.Machine) int64 {
		for i := 0; i < 6; i++ {
			got = append(got, m.Arg(i))
		}
		return 99
	}

	v, err := m.Call("main")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if v != 99 {
		t.Errorf("main() = %d, want 99", v)
	}
	want := []int64{1, 2, 3, 4, 5, 6}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("arguments = %v, want %v", got, want)
	}
}

func TestUnresolvedCall(t *testing.T) {
	m := load(t, "main(){ return missing(1); }", Options{})
	_, err := m.Call("main")
	if !errors.Is(err, cpu.ErrUnknownFunction) {
		t.Errorf("expected ErrUnknownFunction, got %v", err)
	}
}

func TestRunawayLoop(t *testing.T) {
	m := load(t, "a(){ while (1) x = 1; }", Options{})
	m.MaxSteps = 10_000
	_, err := m.Call("a")
	if !errors.Is(err, cpu.ErrStepLimit) {
		t.Errorf("expected ErrStepLimit, got %v", err)
	}
}

func TestDivisionByZero(t *testing.T) {
	m := load(t, "a(){ x = 0; return 1 / x; }", Options{})
	_, err := m.Call("a")
	if !errors.Is(err, cpu.ErrDivideByZero) {
		t.Errorf("expected ErrDivideByZero, got %v", err)
	}
}

func TestDiscardedValuesGrowStack(t *testing.T) {
	src := "a(){ i = 0; while (i < 1000) { i; i = i + 1; } return i; }"

	kept := load(t, src, Options{})
	if v, err := kept.Call("a"); err != nil || v != 1000 {
		t.Fatalf("default: a() = %d, %v", v, err)
	}
	if depth := kept.MaxStackDepth(); depth < 8000 {
		t.Errorf("default: peak stack %d bytes, expected growth of 8 bytes per iteration", depth)
	}

	popped := load(t, src, Options{PopDiscarded: true})
	if v, err := popped.Call("a"); err != nil || v != 1000 {
		t.Fatalf("PopDiscarded: a() = %d, %v", v, err)
	}
	if depth := popped.MaxStackDepth(); depth > 64 {
		t.Errorf("PopDiscarded: peak stack %d bytes, expected a bounded frame", depth)
	}
}
