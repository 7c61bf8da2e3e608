package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		code   int
		stdout string
		stderr string
	}{
		{
			name:   "Compiles",
			src:    "a(){ return 1; }\n",
			code:   0,
			stdout: ".intel_syntax noprefix\n.global main\na:\n  push rbp\n",
		},
		{
			name:   "Caret Diagnostic",
			src:    "a(){\n  return 1\n}\n",
			code:   1,
			stderr: "}\n^ RequireSemicolon",
		},
		{
			name:   "Not A Number",
			src:    "a(){ x = 3z; }\n",
			code:   1,
			stderr: "         ^^ NotNumber",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "in.c")
			if err := os.WriteFile(path, []byte(tt.src), 0o644); err != nil {
				t.Fatal(err)
			}

			var stdout, stderr bytes.Buffer
			if code := run([]string{path}, &stdout, &stderr); code != tt.code {
				t.Fatalf("exit %d, want %d; stderr:\n%s", code, tt.code, stderr.String())
			}
			if !strings.HasPrefix(stdout.String(), tt.stdout) {
				t.Errorf("stdout:\n%s\nwant prefix:\n%s", stdout.String(), tt.stdout)
			}
			if !strings.Contains(stderr.String(), tt.stderr) {
				t.Errorf("stderr:\n%s\nwant:\n%s", stderr.String(), tt.stderr)
			}
		})
	}
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"a.c", "b.c"}} {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != 1 {
			t.Errorf("run(%v) = %d, want 1", args, code)
		}
		if !strings.Contains(stderr.String(), "Usage: ccompiler <file>") {
			t.Errorf("missing usage line: %q", stderr.String())
		}
	}
}

func TestReadError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{filepath.Join(t.TempDir(), "missing.c")}, &stdout, &stderr); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if !strings.HasPrefix(stderr.String(), "read error:") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
