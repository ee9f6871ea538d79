package source

import (
	"testing"
)

func TestParse_LineInvariant(t *testing.T) {
	f, err := ParseString("main.c", "int main(void) {\n  return 0;\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if f.LineCount != len(f.Lines) {
		t.Errorf("LineCount %d != len(Lines) %d", f.LineCount, len(f.Lines))
	}
	if f.LineCount != 4 {
		t.Errorf("expected 4 lines (trailing newline yields an empty line), got %d", f.LineCount)
	}
	root := f.Root()
	if root == nil {
		t.Fatal("expected a root node")
	}
	if int(root.EndByte()) > len(f.Text) {
		t.Errorf("root span %d exceeds text length %d", root.EndByte(), len(f.Text))
	}
	if root.Type() != "translation_unit" {
		t.Errorf("expected translation_unit, got %q", root.Type())
	}
}

func TestParse_Language(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.c", "c"},
		{"a.h", "c"},
		{"a.cpp", "cpp"},
		{"A.CC", "cpp"},
		{"a.txt", "c"},
	}
	for _, tt := range tests {
		f, err := ParseString(tt.path, "int x;")
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if f.Language != tt.want {
			t.Errorf("%s: expected language %q, got %q", tt.path, tt.want, f.Language)
		}
		f.Close()
	}
}

func TestFile_Line(t *testing.T) {
	f, err := ParseString("a.c", "int a;\nint b;")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.Line(2); got != "int b;" {
		t.Errorf("Line(2) = %q", got)
	}
	if got := f.Line(0); got != "" {
		t.Errorf("Line(0) = %q, want empty", got)
	}
	if got := f.Line(3); got != "" {
		t.Errorf("Line(3) = %q, want empty", got)
	}
}

func TestIsCFamily(t *testing.T) {
	for _, p := range []string{"x.c", "x.H", "dir/x.cxx"} {
		if !IsCFamily(p) {
			t.Errorf("expected %s to be C-family", p)
		}
	}
	for _, p := range []string{"x.go", "Makefile", "x.py"} {
		if IsCFamily(p) {
			t.Errorf("expected %s not to be C-family", p)
		}
	}
}

func TestFile_NilRoot(t *testing.T) {
	var f *File
	if f.Root() != nil {
		t.Error("expected nil root for nil file")
	}
	f.Close()
}
