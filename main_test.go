package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runMain(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := realMain(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestStdout(t *testing.T) {
	path := writeSource(t, t.TempDir(), "a.c", "a(){ return 1+2*3; }\n")
	code, out, errOut := runMain("-stdout", path)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, errOut)
	}
	if !strings.HasPrefix(out, ".intel_syntax noprefix\n.global main\na:\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWritesAssemblyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "prog.c", "main(){ return 0; }\n")
	if code, _, errOut := runMain(path); code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, errOut)
	}
	data, err := os.ReadFile(filepath.Join(dir, "prog.s"))
	if err != nil {
		t.Fatalf("expected prog.s: %v", err)
	}
	if !strings.Contains(string(data), "main:\n") {
		t.Errorf("prog.s does not define main:\n%s", data)
	}
}

func TestOutFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "prog.c", "main(){ return 0; }\n")
	dst := filepath.Join(dir, "custom.asm")
	if code, _, errOut := runMain("-out", dst, path); code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, errOut)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("expected %s: %v", dst, err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "add.c", "add(b,c){ return b+c; }\nmain(){ return add(3,4); }\n")

	code, out, errOut := runMain("-run", path)
	if code != 7 {
		t.Fatalf("exit %d, want 7; stderr:\n%s", code, errOut)
	}
	if out != "7\n" {
		t.Errorf("stdout = %q, want %q", out, "7\n")
	}

	code, out, _ = runMain("-run", "-entry", "add", path)
	if code != 0 || out != "0\n" {
		t.Errorf("-entry add: exit %d, stdout %q", code, out)
	}
}

func TestRunExitStatusIsLowByte(t *testing.T) {
	path := writeSource(t, t.TempDir(), "big.c", "main(){ return 258; }\n")
	code, out, _ := runMain("-run", path)
	if code != 2 || out != "258\n" {
		t.Errorf("exit %d, stdout %q; want 2 and 258", code, out)
	}
}

func TestPopDiscardedRun(t *testing.T) {
	path := writeSource(t, t.TempDir(), "loop.c", "main(){ i = 0; while (i < 5000) { i; i = i + 1; } return i - 4990; }\n")
	code, out, errOut := runMain("-run", "-pop-discarded", path)
	if code != 10 || out != "10\n" {
		t.Errorf("exit %d, stdout %q, stderr %s", code, out, errOut)
	}
}

func TestVerify(t *testing.T) {
	path := writeSource(t, t.TempDir(), "v.c", "a(){ x = 0; for (i = 0; i < 3; i = i + 1) if (i == 1) x = x + 1; return x; }\n")
	if code, _, errOut := runMain("-verify", "-stdout", path); code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, errOut)
	}
}

func TestCompileError(t *testing.T) {
	path := writeSource(t, t.TempDir(), "bad.c", "a(){\n  x = 12a;\n}\n")
	code, out, errOut := runMain("-stdout", path)
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if out != "" {
		t.Errorf("unexpected stdout %q", out)
	}
	want := path + ":\n  x = 12a;\n      ^^^ NotNumber"
	if !strings.Contains(errOut, want) {
		t.Errorf("stderr %q does not contain %q", errOut, want)
	}
}

func TestMissingFile(t *testing.T) {
	code, _, errOut := runMain(filepath.Join(t.TempDir(), "nope.c"))
	if code != 1 || !strings.Contains(errOut, "nope.c") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestParallelOutputKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"f0", "f1", "f2", "f3", "f4", "f5"} {
		paths = append(paths, writeSource(t, dir, name+".c", name+"(){ return 1; }\n"))
	}

	code, out, errOut := runMain(append([]string{"-j", "3", "-stdout"}, paths...)...)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, errOut)
	}
	last := -1
	for i := 0; i < 6; i++ {
		idx := strings.Index(out, "f"+string(rune('0'+i))+":\n")
		if idx < 0 || idx < last {
			t.Fatalf("f%d out of order in:\n%s", i, out)
		}
		last = idx
	}
}

func TestFailureSkipsQueuedFiles(t *testing.T) {
	dir := t.TempDir()
	bad := writeSource(t, dir, "bad.c", "a(){ return 1 }\n")
	good := writeSource(t, dir, "good.c", "b(){ return 2; }\n")

	code, _, errOut := runMain("-j", "1", bad, good)
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if !strings.Contains(errOut, "RequireSemicolon") {
		t.Errorf("stderr missing diagnostic: %q", errOut)
	}
	if !strings.Contains(errOut, good+": skipped\n") {
		t.Errorf("stderr does not report %s as skipped: %q", good, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "good.s")); !os.IsNotExist(err) {
		t.Errorf("good.s should not be written after an earlier failure (stat: %v)", err)
	}
}

func TestDebugDump(t *testing.T) {
	path := writeSource(t, t.TempDir(), "d.c", "a(b){ c = b; return c; }\n")
	code, _, errOut := runMain("-debug", "-stdout", path)
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	for _, want := range []string{"ninecc: compiling ", "ninecc: tokens (", "ninecc: func (def a params=1 locals=2", "Slot: 2 (Offset: -16)"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("debug output missing %q:\n%s", want, errOut)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.c", "a(){ return 1; }\n")
	b := writeSource(t, dir, "b.c", "b(){ return 1; }\n")

	tests := []struct {
		name string
		args []string
	}{
		{"No Files", nil},
		{"Out With Two Files", []string{"-out", "x.s", a, b}},
		{"Run With Two Files", []string{"-run", a, b}},
		{"Zero Jobs", []string{"-j", "0", a}},
		{"Unknown Flag", []string{"-nope", a}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runMain(tt.args...); code != 2 {
				t.Errorf("exit %d, want 2", code)
			}
		})
	}
}
