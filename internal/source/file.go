// Package source turns C source text into parsed translation units that
// rules can query without re-reading the file.
package source

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// File is one parsed translation unit. It is immutable after Parse returns
// and may be read from several goroutines at once.
type File struct {
	Path      string
	Text      []byte
	Lines     []string
	LineCount int
	Tree      *sitter.Tree
	Language  string
	// Encoding records how the bytes were decoded; it is informational.
	Encoding string
}

// Parse builds a File from already-decoded text. Files with an unknown
// extension are parsed with the C grammar.
func Parse(ctx context.Context, path string, text []byte, encoding string) (*File, error) {
	lang, name, ok := Detect(path)
	if !ok {
		lang, name = c.GetLanguage(), "c"
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	lines := strings.Split(string(text), "\n")
	if encoding == "" {
		encoding = "utf-8"
	}
	return &File{
		Path:      path,
		Text:      text,
		Lines:     lines,
		LineCount: len(lines),
		Tree:      tree,
		Language:  name,
		Encoding:  encoding,
	}, nil
}

// ParseString is a convenience wrapper for tests and in-memory sources.
func ParseString(path, text string) (*File, error) {
	return Parse(context.Background(), path, []byte(text), "utf-8")
}

// Root returns the root node, or nil for a file without a tree.
func (f *File) Root() *sitter.Node {
	if f == nil || f.Tree == nil {
		return nil
	}
	return f.Tree.RootNode()
}

// Line returns the 1-based line n, or "" when out of range.
func (f *File) Line(n int) string {
	if n < 1 || n > len(f.Lines) {
		return ""
	}
	return f.Lines[n-1]
}

// Close releases the syntax tree.
func (f *File) Close() {
	if f != nil && f.Tree != nil {
		f.Tree.Close()
	}
}
