// Package query holds the tree-walking helpers shared by every rule. All
// functions accept nil nodes and partially recovered trees; they return
// fewer results rather than failing.
package query

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Walk performs a depth-first pre-order traversal starting at node.
// Returning false from fn skips the node's children.
func Walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil || node.IsNull() {
		return
	}
	if !fn(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		Walk(node.Child(i), fn)
	}
}

// FindByType collects every node under root (inclusive) whose type is one of
// types, in document order.
func FindByType(root *sitter.Node, types ...string) []*sitter.Node {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*sitter.Node
	Walk(root, func(n *sitter.Node) bool {
		if want[n.Type()] {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Text returns the exact source bytes covered by node.
func Text(node *sitter.Node, src []byte) string {
	if node == nil || node.IsNull() {
		return ""
	}
	start, end := int(node.StartByte()), int(node.EndByte())
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// Ancestor returns the nearest proper ancestor whose type is in types.
func Ancestor(node *sitter.Node, types ...string) *sitter.Node {
	if node == nil {
		return nil
	}
	for p := node.Parent(); p != nil && !p.IsNull(); p = p.Parent() {
		for _, t := range types {
			if p.Type() == t {
				return p
			}
		}
	}
	return nil
}

// IsInside reports whether any ancestor of node has one of the given types.
func IsInside(node *sitter.Node, types ...string) bool {
	return Ancestor(node, types...) != nil
}

// EnclosingFunction returns the function definition containing node.
func EnclosingFunction(node *sitter.Node) *sitter.Node {
	return Ancestor(node, "function_definition")
}

var conditionParents = []string{
	"if_statement",
	"while_statement",
	"for_statement",
	"do_statement",
	"conditional_expression",
	"parenthesized_expression",
}

// IsInCondition reports whether node sits under a conditional construct.
func IsInCondition(node *sitter.Node) bool {
	return IsInside(node, conditionParents...)
}

// IsInFunction reports whether node sits inside a function definition.
func IsInFunction(node *sitter.Node) bool {
	return EnclosingFunction(node) != nil
}

// Condition returns the condition sub-tree of an if, while, do or for
// statement.
func Condition(stmt *sitter.Node) *sitter.Node {
	if stmt == nil {
		return nil
	}
	switch stmt.Type() {
	case "if_statement", "while_statement", "do_statement", "for_statement", "switch_statement":
		return stmt.ChildByFieldName("condition")
	}
	return nil
}

// Within reports whether inner's byte span is contained in outer's.
func Within(inner, outer *sitter.Node) bool {
	if inner == nil || outer == nil {
		return false
	}
	return inner.StartByte() >= outer.StartByte() && inner.EndByte() <= outer.EndByte()
}

// Line returns the 1-based line on which node starts.
func Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Row) + 1
}

// EndLine returns the 1-based line on which node ends.
func EndLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.EndPoint().Row) + 1
}

// Column returns the 0-based column at which node starts.
func Column(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Column)
}

// Child returns the field child, falling back to the positional child when
// the grammar does not name the field.
func Child(node *sitter.Node, field string, index int) *sitter.Node {
	if node == nil {
		return nil
	}
	if c := node.ChildByFieldName(field); c != nil && !c.IsNull() {
		return c
	}
	if index >= 0 && index < int(node.ChildCount()) {
		return node.Child(index)
	}
	return nil
}

// IntLiteral parses an integer literal (decimal, hex, octal or binary with
// optional u/l suffixes), or a unary minus applied to one.
func IntLiteral(node *sitter.Node, src []byte) (int64, bool) {
	if node == nil {
		return 0, false
	}
	switch node.Type() {
	case "number_literal":
		return parseInt(Text(node, src))
	case "unary_expression":
		op := node.ChildByFieldName("operator")
		arg := node.ChildByFieldName("argument")
		if op == nil || arg == nil || arg.Type() != "number_literal" {
			return 0, false
		}
		v, ok := parseInt(Text(arg, src))
		if !ok {
			return 0, false
		}
		switch Text(op, src) {
		case "-":
			return -v, true
		case "+":
			return v, true
		}
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return IntLiteral(node.NamedChild(0), src)
		}
	}
	return 0, false
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), "uUlL")
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

// IsZeroLiteral reports whether node is a numeric literal with value zero,
// including floating forms such as 0.0.
func IsZeroLiteral(node *sitter.Node, src []byte) bool {
	if node == nil || node.Type() != "number_literal" {
		return false
	}
	s := strings.ToLower(Text(node, src))
	if v, ok := parseInt(s); ok {
		return v == 0
	}
	f, err := strconv.ParseFloat(strings.TrimRight(s, "lf"), 64)
	return err == nil && f == 0
}
