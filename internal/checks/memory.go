package checks

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chris-regnier/ctrap/internal/query"
	"github.com/chris-regnier/ctrap/internal/rules"
)

var (
	allocFunctions     = []string{"malloc", "calloc", "realloc"}
	nullCheckFunctions = []string{"malloc", "calloc", "realloc", "strdup"}
)

// ---------------------------------------------------------------------------
// C001 array bounds
// ---------------------------------------------------------------------------

// ArrayBounds flags constant subscripts outside a statically known array
// size. Arrays whose size cannot be resolved from a literal declarator are
// skipped.
type ArrayBounds struct{ rules.Base }

func NewArrayBounds() *ArrayBounds { return &ArrayBounds{Base: base("C001")} }

func (r *ArrayBounds) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, sub := range query.FindByType(pass.Root(), "subscript_expression") {
		arr := query.Child(sub, "argument", 0)
		if arr == nil || arr.Type() != "identifier" {
			continue
		}
		index, ok := query.IntLiteral(query.Child(sub, "index", 2), src)
		if !ok {
			continue
		}
		name := query.Text(arr, src)
		size, ok := arraySize(sub, name, pass)
		if !ok {
			continue
		}
		if index >= size || index < 0 {
			pass.Report(sub,
				fmt.Sprintf("array '%s' has size %d but index %d is out of range", name, size, index),
				fmt.Sprintf("valid indexes for '%s' are 0 to %d", name, size-1))
		}
	}
}

// arraySize looks for the declaration of name with a literal first
// dimension, preferring the enclosing function over the whole file.
func arraySize(at *sitter.Node, name string, pass *rules.Pass) (int64, bool) {
	scopes := []*sitter.Node{}
	if fn := query.EnclosingFunction(at); fn != nil {
		scopes = append(scopes, fn)
	}
	scopes = append(scopes, pass.Root())
	src := pass.Source()
	for _, scope := range scopes {
		for _, decl := range query.FindByType(scope, "array_declarator") {
			inner := decl.ChildByFieldName("declarator")
			if inner == nil || inner.Type() != "identifier" || query.Text(inner, src) != name {
				continue
			}
			if size, ok := query.IntLiteral(decl.ChildByFieldName("size"), src); ok {
				return size, true
			}
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// C002 unchecked allocation
// ---------------------------------------------------------------------------

// NullCheck flags allocation calls whose result is not compared against
// NULL in the call's own if condition or in an if statement starting within
// a few lines after it.
type NullCheck struct{ rules.Base }

func NewNullCheck() *NullCheck { return &NullCheck{Base: base("C002")} }

func (r *NullCheck) Check(pass *rules.Pass) {
	src := pass.Source()
	window := pass.Int("window", 5)
	for _, call := range query.FindCalls(pass.Root(), src, pass.Strings("functions", nullCheckFunctions)...) {
		if checkedInCondition(call.Node, src) || checkedNearby(call.Node, src, pass.Root(), window) {
			continue
		}
		pass.Report(call.Node,
			fmt.Sprintf("return value of '%s' is not checked for NULL", call.Name),
			"")
	}
}

func checkedInCondition(call *sitter.Node, src []byte) bool {
	for n := query.Ancestor(call, "if_statement"); n != nil; n = query.Ancestor(n, "if_statement") {
		cond := query.Condition(n)
		if !query.Within(call, cond) {
			continue
		}
		text := query.Text(cond, src)
		return strings.Contains(text, "NULL") || strings.Contains(text, "!=")
	}
	return false
}

func checkedNearby(call *sitter.Node, src []byte, root *sitter.Node, window int) bool {
	scope := query.EnclosingFunction(call)
	if scope == nil {
		scope = root
	}
	line := query.Line(call)
	for _, stmt := range query.FindByType(scope, "if_statement") {
		d := query.Line(stmt) - line
		if d < 1 || d > window {
			continue
		}
		text := query.Text(query.Condition(stmt), src)
		if strings.Contains(text, "NULL") || strings.Contains(text, "!=") {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// C003 memory leak
// ---------------------------------------------------------------------------

// MemoryLeak compares allocation and free counts per function. It reports
// the first allocation of any function that allocates more than it frees.
type MemoryLeak struct{ rules.Base }

func NewMemoryLeak() *MemoryLeak { return &MemoryLeak{Base: base("C003")} }

func (r *MemoryLeak) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, fn := range query.FindFunctionDefinitions(pass.Root(), src) {
		allocs := query.FindCalls(fn.Node, src, allocFunctions...)
		frees := query.FindCalls(fn.Node, src, "free")
		if len(allocs) <= len(frees) {
			continue
		}
		pass.Report(allocs[0].Node,
			fmt.Sprintf("function '%s' may leak memory: %d allocations but %d calls to free",
				fn.Name, len(allocs), len(frees)),
			"")
	}
}

// ---------------------------------------------------------------------------
// C004 dangerous functions
// ---------------------------------------------------------------------------

var saferAlternatives = map[string]string{
	"strcpy":   "strncpy",
	"strcat":   "strncat",
	"sprintf":  "snprintf",
	"vsprintf": "vsnprintf",
	"scanf":    "fgets + sscanf",
	"gets":     "fgets",
}

// BufferOverflow flags calls to string functions that write without a
// bound.
type BufferOverflow struct{ rules.Base }

func NewBufferOverflow() *BufferOverflow { return &BufferOverflow{Base: base("C004")} }

func (r *BufferOverflow) Check(pass *rules.Pass) {
	alternatives := pass.StringMap("functions", saferAlternatives)
	names := make([]string, 0, len(alternatives))
	for name := range alternatives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, call := range query.FindCalls(pass.Root(), pass.Source(), names...) {
		pass.Report(call.Node,
			fmt.Sprintf("'%s' does not bound its output and can overflow the buffer", call.Name),
			fmt.Sprintf("use the safer alternative: %s", alternatives[call.Name]))
	}
}

// ---------------------------------------------------------------------------
// C005 use after free
// ---------------------------------------------------------------------------

// UseAfterFree flags references to a pointer that appear after it was
// passed to free in the same function. Assigning NULL or 0 to the pointer
// is not a use. One issue is reported per free call, at the first use.
type UseAfterFree struct{ rules.Base }

func NewUseAfterFree() *UseAfterFree { return &UseAfterFree{Base: base("C005")} }

func (r *UseAfterFree) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, fn := range query.FindFunctionDefinitions(pass.Root(), src) {
		for _, call := range query.FindCalls(fn.Node, src, "free") {
			name := freedVariable(call, src)
			if name == "" {
				continue
			}
			for _, ref := range query.FindReferences(fn.Node, src, name) {
				if ref.StartByte() < call.Node.EndByte() {
					continue
				}
				if isNullAssignment(ref, src) {
					continue
				}
				pass.Report(ref,
					fmt.Sprintf("pointer '%s' is used after being freed on line %d", name, query.Line(call.Node)),
					fmt.Sprintf("set '%s' to NULL after free(%s) and do not use it again", name, name))
				break
			}
		}
	}
}

func freedVariable(call query.Call, src []byte) string {
	for _, arg := range call.Args {
		if arg.Type() == "identifier" {
			return query.Text(arg, src)
		}
	}
	return ""
}

// isNullAssignment reports whether ref is the whole left-hand side of an
// assignment of NULL or 0. Any other assignment still touches the freed
// pointer.
func isNullAssignment(ref *sitter.Node, src []byte) bool {
	parent := ref.Parent()
	if parent == nil || parent.Type() != "assignment_expression" {
		return false
	}
	left := parent.ChildByFieldName("left")
	if left == nil || left.StartByte() != ref.StartByte() || left.EndByte() != ref.EndByte() {
		return false
	}
	switch query.Text(parent.ChildByFieldName("right"), src) {
	case "NULL", "0":
		return true
	}
	return false
}
