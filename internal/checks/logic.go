package checks

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/query"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// ---------------------------------------------------------------------------
// L001 assignment in condition
// ---------------------------------------------------------------------------

// AssignmentInCondition flags a plain '=' inside the condition of an if,
// while or for statement. An assignment wrapped in its own extra pair of
// parentheses is taken as intentional.
type AssignmentInCondition struct{ rules.Base }

func NewAssignmentInCondition() *AssignmentInCondition {
	return &AssignmentInCondition{Base: base("L001")}
}

func (r *AssignmentInCondition) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, stmt := range query.FindByType(pass.Root(), "if_statement", "while_statement", "for_statement") {
		cond := query.Condition(stmt)
		if cond == nil {
			continue
		}
		for _, assign := range query.FindByType(cond, "assignment_expression") {
			if query.Text(assign.ChildByFieldName("operator"), src) != "=" {
				continue
			}
			if parent := assign.Parent(); parent != nil && parent.Type() == "parenthesized_expression" && !sameNode(parent, cond) {
				continue
			}
			pass.Report(assign,
				fmt.Sprintf("assignment '%s' in %s condition, did you mean '=='?", query.Text(assign, src), keyword(stmt)),
				"")
		}
	}
}

func keyword(stmt *sitter.Node) string {
	return strings.TrimSuffix(stmt.Type(), "_statement")
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// ---------------------------------------------------------------------------
// L002 switch fallthrough
// ---------------------------------------------------------------------------

var fallthroughMarkers = []string{"fallthrough", "fall through", "falls through"}

// SwitchFallthrough flags case labels whose statements can run into the
// next label. A case is terminated by a return, or by a break that belongs
// to this switch, anywhere between its label and the next one. A comment
// announcing the fallthrough near the label silences the finding.
type SwitchFallthrough struct{ rules.Base }

func NewSwitchFallthrough() *SwitchFallthrough { return &SwitchFallthrough{Base: base("L002")} }

func (r *SwitchFallthrough) Check(pass *rules.Pass) {
	window := pass.Int("comment_window", 5)
	for _, sw := range query.FindByType(pass.Root(), "switch_statement") {
		body := sw.ChildByFieldName("body")
		if body == nil {
			continue
		}
		var cases []*sitter.Node
		for i := 0; i < int(body.NamedChildCount()); i++ {
			if c := body.NamedChild(i); c.Type() == "case_statement" {
				cases = append(cases, c)
			}
		}
		for i, c := range cases {
			if !hasStatements(c) {
				continue
			}
			end := body.EndByte()
			if i+1 < len(cases) {
				end = cases[i+1].StartByte()
			}
			if terminated(sw, c.StartByte(), end) {
				continue
			}
			if announcedFallthrough(pass.File.Lines, int(c.StartPoint().Row), window) {
				continue
			}
			pass.Report(c, fmt.Sprintf("%s falls through without a break", caseLabel(c, pass.Source())), "")
		}
	}
}

// hasStatements reports whether a case label carries code of its own, as
// opposed to being grouped with the label after it.
func hasStatements(c *sitter.Node) bool {
	value := c.ChildByFieldName("value")
	for i := 0; i < int(c.NamedChildCount()); i++ {
		n := c.NamedChild(i)
		if n.Type() == "comment" || sameNode(n, value) {
			continue
		}
		return true
	}
	return false
}

func terminated(sw *sitter.Node, start, end uint32) bool {
	found := false
	query.Walk(sw, func(n *sitter.Node) bool {
		if found || n.StartByte() >= end || n.EndByte() <= start {
			return false
		}
		if n.StartByte() >= start {
			switch n.Type() {
			case "return_statement":
				found = true
			case "break_statement":
				found = sameNode(query.Ancestor(n, "switch_statement", "while_statement", "for_statement", "do_statement"), sw)
			}
		}
		return !found
	})
	return found
}

func announcedFallthrough(lines []string, row, window int) bool {
	for i := row; i < row+window && i < len(lines); i++ {
		l := strings.ToLower(lines[i])
		for _, m := range fallthroughMarkers {
			if strings.Contains(l, m) {
				return true
			}
		}
	}
	return false
}

func caseLabel(c *sitter.Node, src []byte) string {
	if v := c.ChildByFieldName("value"); v != nil {
		return "case " + query.Text(v, src)
	}
	return "default"
}

// ---------------------------------------------------------------------------
// L003 unused variable
// ---------------------------------------------------------------------------

var typeKeywords = map[string]bool{
	"int": true, "char": true, "float": true, "double": true, "void": true,
	"long": true, "short": true, "unsigned": true, "signed": true, "const": true,
	"static": true, "extern": true, "volatile": true, "register": true, "auto": true,
	"struct": true, "union": true, "enum": true, "typedef": true, "bool": true,
	"size_t": true, "ssize_t": true, "uint8_t": true, "uint16_t": true,
	"uint32_t": true, "uint64_t": true, "int8_t": true, "int16_t": true,
	"int32_t": true, "int64_t": true,
}

// UnusedVariable flags locals declared in a function body and never
// referenced again in that function. Parameters are not considered.
type UnusedVariable struct{ rules.Base }

func NewUnusedVariable() *UnusedVariable { return &UnusedVariable{Base: base("L003")} }

func (r *UnusedVariable) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, fn := range query.FindFunctionDefinitions(pass.Root(), src) {
		body := fn.Body()
		if body == nil {
			continue
		}
		var declared []*sitter.Node
		isDecl := make(map[uint32]bool)
		for _, decl := range query.FindByType(body, "declaration") {
			for _, name := range query.DeclaredNames(decl) {
				if typeKeywords[query.Text(name, src)] {
					continue
				}
				if p := name.Parent(); p != nil && p.Type() == "function_declarator" {
					continue
				}
				declared = append(declared, name)
				isDecl[name.StartByte()] = true
			}
		}
		if len(declared) == 0 {
			continue
		}
		used := make(map[string]bool)
		for _, id := range query.FindByType(body, "identifier") {
			if !isDecl[id.StartByte()] {
				used[query.Text(id, src)] = true
			}
		}
		for _, name := range declared {
			v := query.Text(name, src)
			if used[v] {
				continue
			}
			pass.Report(name,
				fmt.Sprintf("variable '%s' is declared but never used", v),
				fmt.Sprintf("remove '%s' or use it", v))
		}
	}
}

// ---------------------------------------------------------------------------
// L004 unchecked return value
// ---------------------------------------------------------------------------

var failingFunctions = []string{
	"malloc", "calloc", "realloc", "fopen", "fread", "fwrite", "fclose",
	"scanf", "fscanf", "sscanf", "system", "exec", "fork",
}

// IgnoredReturn flags calls to functions that report failure through their
// result when the call is a statement on its own.
type IgnoredReturn struct{ rules.Base }

func NewIgnoredReturn() *IgnoredReturn { return &IgnoredReturn{Base: base("L004")} }

func (r *IgnoredReturn) Check(pass *rules.Pass) {
	for _, call := range query.FindCalls(pass.Root(), pass.Source(), pass.Strings("functions", failingFunctions)...) {
		if p := call.Node.Parent(); p == nil || p.Type() != "expression_statement" {
			continue
		}
		pass.Report(call.Node,
			fmt.Sprintf("return value of '%s' is ignored", call.Name),
			fmt.Sprintf("store the result of '%s' and check it for failure", call.Name))
	}
}

// ---------------------------------------------------------------------------
// L005 division by zero
// ---------------------------------------------------------------------------

// DivisionByZero flags '/' and '%' by a literal zero, and by a variable no
// earlier if statement in the function compares against zero. Other
// divisors are not examined.
type DivisionByZero struct{ rules.Base }

func NewDivisionByZero() *DivisionByZero { return &DivisionByZero{Base: base("L005")} }

func (r *DivisionByZero) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, bin := range query.FindByType(pass.Root(), "binary_expression") {
		op := query.Text(bin.ChildByFieldName("operator"), src)
		if op != "/" && op != "%" {
			continue
		}
		divisor := bin.ChildByFieldName("right")
		if divisor == nil {
			continue
		}
		switch {
		case query.IsZeroLiteral(divisor, src):
			pass.Report(bin, "division by zero", "")
		case divisor.Type() == "identifier" || divisor.Type() == "field_expression":
			v := query.Text(divisor, src)
			if guarded(bin, v, pass.Root(), src) {
				continue
			}
			pass.ReportSeverity(bin, lower(pass.Severity, issue.Warning),
				fmt.Sprintf("divisor '%s' may be zero", v),
				fmt.Sprintf("check that '%s' is not zero before dividing", v))
		}
	}
}

// guarded reports whether an if statement starting before at, in the same
// function, tests v against zero.
func guarded(at *sitter.Node, v string, root *sitter.Node, src []byte) bool {
	scope := query.EnclosingFunction(at)
	if scope == nil {
		scope = root
	}
	q := regexp.QuoteMeta(v)
	guard := regexp.MustCompile(`(^|[^\w.>])` + q + `\s*(!=|>)\s*0\b|\b0\s*!=\s*` + q + `($|[^\w])`)
	for _, stmt := range query.FindByType(scope, "if_statement") {
		if stmt.StartByte() >= at.StartByte() {
			break
		}
		if guard.MatchString(query.Text(query.Condition(stmt), src)) {
			return true
		}
	}
	return false
}

// lower returns the less severe of a and b.
func lower(a, b issue.Severity) issue.Severity {
	if a.Rank() < b.Rank() {
		return a
	}
	return b
}
