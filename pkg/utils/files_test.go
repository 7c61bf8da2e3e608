package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"Trailing Newline", "a\nb\n", []string{"a", "b"}},
		{"No Trailing Newline", "a\nb", []string{"a", "b"}},
		{"CRLF", "a\r\nb\r\n", []string{"a", "b"}},
		{"Blank Lines", "\n\nx\n", []string{"", "", "x"}},
		{"Empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "in.c")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadLines(path)
			if err != nil {
				t.Fatalf("ReadLines failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	path := filepath.Join(t.TempDir(), "long.c")
	if err := os.WriteFile(path, []byte(long+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(got) != 1 || len(got[0]) != len(long) {
		t.Errorf("got %d lines", len(got))
	}
}

func TestReadLinesMissing(t *testing.T) {
	if _, err := ReadLines(filepath.Join(t.TempDir(), "nope.c")); !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"x.c":           "x.s",
		"dir/prog.c":    "dir/prog.s",
		"noext":         "noext.s",
		"a.b/c.txt":     "a.b/c.s",
		"archive.tar.c": "archive.tar.s",
	}
	for in, want := range tests {
		if got := OutputPath(in, ".s"); got != want {
			t.Errorf("OutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetPathInfo(t *testing.T) {
	dir := t.TempDir()
	full, parent, err := GetPathInfo(filepath.Join(dir, "sub", "..", "f.c"))
	if err != nil {
		t.Fatal(err)
	}
	if full != filepath.Join(dir, "f.c") {
		t.Errorf("fullPath = %q", full)
	}
	if parent != dir {
		t.Errorf("parentDir = %q, want %q", parent, dir)
	}
}
