package query

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Function describes one function definition.
type Function struct {
	Node       *sitter.Node
	NameNode   *sitter.Node
	Declarator *sitter.Node
	Name       string
	StartLine  int
	EndLine    int
}

// Body returns the function's compound statement.
func (f Function) Body() *sitter.Node {
	return f.Node.ChildByFieldName("body")
}

// FindFunctionDefinitions locates every function definition and the
// identifier naming it. Definitions whose name cannot be located are
// skipped.
func FindFunctionDefinitions(root *sitter.Node, src []byte) []Function {
	var out []Function
	for _, fn := range FindByType(root, "function_definition") {
		if f, ok := FunctionOf(fn, src); ok {
			out = append(out, f)
		}
	}
	return out
}

// FunctionOf resolves a single function_definition node.
func FunctionOf(fn *sitter.Node, src []byte) (Function, bool) {
	if fn == nil || fn.Type() != "function_definition" {
		return Function{}, false
	}
	decl := functionDeclarator(fn.ChildByFieldName("declarator"))
	if decl == nil {
		return Function{}, false
	}
	name := DeclaredName(decl.ChildByFieldName("declarator"))
	if name == nil {
		return Function{}, false
	}
	return Function{
		Node:       fn,
		NameNode:   name,
		Declarator: decl,
		Name:       Text(name, src),
		StartLine:  Line(fn),
		EndLine:    EndLine(fn),
	}, true
}

// functionDeclarator descends through pointer and parenthesized declarators
// to the function_declarator.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil && !n.IsNull() {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "parenthesized_declarator", "attributed_declarator", "reference_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

// DeclaredName unwraps a declarator (pointer, array, init, function or
// parenthesized) to the identifier it introduces.
func DeclaredName(n *sitter.Node) *sitter.Node {
	for depth := 0; n != nil && !n.IsNull() && depth < 32; depth++ {
		switch n.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return n
		case "pointer_declarator", "array_declarator", "init_declarator", "function_declarator",
			"attributed_declarator", "reference_declarator":
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			if n.NamedChildCount() == 0 {
				return nil
			}
			n = n.NamedChild(0)
		default:
			return nil
		}
	}
	return nil
}

// Variable describes a declared variable with an initializer.
type Variable struct {
	Node     *sitter.Node
	NameNode *sitter.Node
	Name     string
	Line     int
}

// FindVariableDeclarations returns declarations that contain an
// init_declarator naming an identifier.
func FindVariableDeclarations(root *sitter.Node, src []byte) []Variable {
	var out []Variable
	for _, decl := range FindByType(root, "declaration") {
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			child := decl.NamedChild(i)
			if child == nil || child.Type() != "init_declarator" {
				continue
			}
			name := DeclaredName(child)
			if name == nil || name.Type() != "identifier" {
				continue
			}
			out = append(out, Variable{
				Node:     decl,
				NameNode: name,
				Name:     Text(name, src),
				Line:     Line(decl),
			})
		}
	}
	return out
}

// DeclaredNames returns every identifier introduced by a declaration node,
// with or without an initializer.
func DeclaredNames(decl *sitter.Node) []*sitter.Node {
	if decl == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(decl.ChildCount()); i++ {
		if decl.FieldNameForChild(i) != "declarator" {
			continue
		}
		if name := DeclaredName(decl.Child(i)); name != nil && name.Type() == "identifier" {
			out = append(out, name)
		}
	}
	return out
}

// Call is a call expression with a resolved callee name.
type Call struct {
	Node *sitter.Node
	Name string
	Args []*sitter.Node
}

// FindCalls returns call expressions whose callee text is one of names, or
// every call when names is empty.
func FindCalls(root *sitter.Node, src []byte, names ...string) []Call {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Call
	for _, call := range FindByType(root, "call_expression") {
		fn := Child(call, "function", 0)
		if fn == nil {
			continue
		}
		name := Text(fn, src)
		if len(want) > 0 && !want[name] {
			continue
		}
		out = append(out, Call{Node: call, Name: name, Args: Arguments(call)})
	}
	return out
}

// Arguments returns the named argument expressions of a call.
func Arguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		if a != nil && a.Type() != "comment" {
			out = append(out, a)
		}
	}
	return out
}

// FindReferences returns identifier nodes under root whose text is name.
func FindReferences(root *sitter.Node, src []byte, name string) []*sitter.Node {
	var out []*sitter.Node
	for _, id := range FindByType(root, "identifier") {
		if Text(id, src) == name {
			out = append(out, id)
		}
	}
	return out
}
