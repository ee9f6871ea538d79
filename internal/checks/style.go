package checks

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/query"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// ---------------------------------------------------------------------------
// S001 magic numbers
// ---------------------------------------------------------------------------

var allowedNumbers = []int64{0, 1, -1, 2, 10, 100, 1000}

// MagicNumber flags numeric literals in expressions and loop headers that
// are not in the allowed set. Literals in macros, enumerators, case labels
// and array declarators name themselves and are skipped.
type MagicNumber struct{ rules.Base }

func NewMagicNumber() *MagicNumber { return &MagicNumber{Base: base("S001")} }

func (r *MagicNumber) Check(pass *rules.Pass) {
	src := pass.Source()
	allowed := make(map[float64]bool)
	for _, v := range pass.Ints("allowed", allowedNumbers) {
		allowed[float64(v)] = true
	}
	for _, lit := range query.FindByType(pass.Root(), "number_literal") {
		node, value, ok := numericValue(lit, src)
		if !ok || allowed[value] || namedPosition(node) || !inExpression(node) {
			continue
		}
		text := query.Text(node, src)
		pass.Report(node,
			fmt.Sprintf("magic number %s", text),
			fmt.Sprintf("replace %s with a named constant", text))
	}
}

// numericValue returns the literal, or the unary minus applied to it, and
// its value.
func numericValue(lit *sitter.Node, src []byte) (*sitter.Node, float64, bool) {
	node := lit
	if p := lit.Parent(); p != nil && p.Type() == "unary_expression" && query.Text(p.ChildByFieldName("operator"), src) == "-" {
		node = p
	}
	if v, ok := query.IntLiteral(node, src); ok {
		return node, float64(v), true
	}
	text := strings.TrimRight(strings.ToLower(query.Text(lit, src)), "fl")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, 0, false
	}
	if node != lit {
		f = -f
	}
	return node, f, true
}

func namedPosition(n *sitter.Node) bool {
	if query.IsInside(n, "preproc_def", "preproc_function_def", "enumerator", "array_declarator") {
		return true
	}
	if c := query.Ancestor(n, "case_statement"); c != nil && query.Within(n, c.ChildByFieldName("value")) {
		return true
	}
	return false
}

func inExpression(n *sitter.Node) bool {
	if query.IsInside(n, "binary_expression") {
		return true
	}
	loop := query.Ancestor(n, "for_statement", "while_statement")
	return loop != nil && !query.Within(n, loop.ChildByFieldName("body"))
}

// ---------------------------------------------------------------------------
// S002 function length
// ---------------------------------------------------------------------------

// FunctionLength flags functions longer than warning_lines, and escalates
// to a warning beyond max_lines.
type FunctionLength struct{ rules.Base }

func NewFunctionLength() *FunctionLength { return &FunctionLength{Base: base("S002")} }

func (r *FunctionLength) Check(pass *rules.Pass) {
	maxLines := pass.Int("max_lines", 50)
	warnLines := pass.Int("warning_lines", 30)
	for _, fn := range query.FindFunctionDefinitions(pass.Root(), pass.Source()) {
		n := fn.EndLine - fn.StartLine + 1
		switch {
		case n > maxLines:
			pass.ReportSeverity(fn.Node, issue.Warning,
				fmt.Sprintf("function '%s' is %d lines long (max %d)", fn.Name, n, maxLines),
				"split the function into smaller functions")
		case n > warnLines:
			pass.Report(fn.Node,
				fmt.Sprintf("function '%s' is %d lines long, approaching the limit of %d", fn.Name, n, maxLines),
				"consider refactoring the function for readability")
		}
	}
}

// ---------------------------------------------------------------------------
// S003 naming
// ---------------------------------------------------------------------------

var (
	numberedName      = regexp.MustCompile(`^[a-z][0-9]+$`)
	defaultSingleChar = []string{"i", "j", "k", "n", "x", "y", "z"}
	defaultGeneric    = []string{"temp", "tmp", "data", "var", "val"}
	betterNames       = map[string]string{
		"temp": "temporary_buffer, working_data",
		"tmp":  "temporary_value, temp_result",
		"data": "user_data, input_buffer, message_content",
		"var":  "variable_name, current_value",
		"val":  "current_value, input_value, result_value",
	}
)

// Naming flags variable names that are too short, too generic, numbered or
// shouted, and macros that are not upper case.
type Naming struct{ rules.Base }

func NewNaming() *Naming { return &Naming{Base: base("S003")} }

func (r *Naming) Check(pass *rules.Pass) {
	src := pass.Source()
	minLen := pass.Int("min_length", 2)
	single := toSet(pass.Strings("allow_single_char", defaultSingleChar), false)
	generic := toSet(pass.Strings("forbidden_names", defaultGeneric), true)

	for _, decl := range query.FindByType(pass.Root(), "declaration", "preproc_def", "preproc_function_def") {
		if decl.Type() != "declaration" {
			name := query.Text(decl.ChildByFieldName("name"), src)
			if name != "" && strings.ToUpper(name) != name {
				pass.Report(decl,
					fmt.Sprintf("macro '%s' should be upper case", name),
					fmt.Sprintf("rename the macro to %s", strings.ToUpper(name)))
			}
			continue
		}
		constant := hasQualifier(decl, src, "const")
		for _, id := range query.DeclaredNames(decl) {
			if p := id.Parent(); p != nil && p.Type() == "function_declarator" {
				continue
			}
			name := query.Text(id, src)
			msg := namingProblem(name, minLen, single, generic, constant)
			if msg == "" {
				continue
			}
			suggestion := "use a descriptive name that states what the variable holds"
			if better, ok := betterNames[strings.ToLower(name)]; ok {
				suggestion = "use a more descriptive name, such as: " + better
			}
			pass.Report(id, fmt.Sprintf("variable '%s': %s", name, msg), suggestion)
		}
	}
}

func namingProblem(name string, minLen int, single, generic map[string]bool, constant bool) string {
	switch {
	case len(name) < minLen && !single[name]:
		return "name is too short to be descriptive"
	case generic[strings.ToLower(name)]:
		return "name is too generic"
	case numberedName.MatchString(name):
		return "name is a letter followed by a number"
	case !constant && len(name) > 1 && isUpper(name):
		return "upper-case names are reserved for macros"
	}
	return ""
}

func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func hasQualifier(decl *sitter.Node, src []byte, q string) bool {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		c := decl.NamedChild(i)
		if c.Type() == "type_qualifier" && query.Text(c, src) == q {
			return true
		}
	}
	return false
}

func toSet(items []string, fold bool) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		if fold {
			s = strings.ToLower(s)
		}
		out[s] = true
	}
	return out
}

// ---------------------------------------------------------------------------
// S004 comment quality
// ---------------------------------------------------------------------------

var (
	taskMarker      = regexp.MustCompile(`\b(TODO|FIXME|XXX|HACK)\b`)
	datePattern     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}`)
	wordPattern     = regexp.MustCompile(`\w+`)
	obviousComments = []*regexp.Regexp{
		regexp.MustCompile(`^(?i)sets?\b.*\bto\b`),
		regexp.MustCompile(`^(?i)(increments?|decrements?)\b`),
		regexp.MustCompile(`^(?i)calls?\b.*\bfunction\b`),
		regexp.MustCompile(`^(?i)returns?\b`),
	}
)

// CommentQuality flags long functions with no leading comment, line
// comments that add nothing to the code beside them, and dated TODO
// markers that are probably stale.
type CommentQuality struct{ rules.Base }

func NewCommentQuality() *CommentQuality { return &CommentQuality{Base: base("S004")} }

func (r *CommentQuality) Check(pass *rules.Pass) {
	src := pass.Source()
	lines := pass.File.Lines
	minLines := pass.Int("min_lines_for_comment", 10)
	minLen := pass.Int("min_comment_length", 5)

	for _, fn := range query.FindFunctionDefinitions(pass.Root(), src) {
		if fn.EndLine-fn.StartLine+1 <= minLines || precededByComment(lines, fn.StartLine-1) {
			continue
		}
		pass.Report(fn.Node,
			fmt.Sprintf("function '%s' has %d lines but no comment describing it", fn.Name, fn.EndLine-fn.StartLine+1),
			"add a comment explaining what the function is for")
	}

	for _, c := range query.FindByType(pass.Root(), "comment") {
		text := query.Text(c, src)
		if m := taskMarker.FindString(text); m != "" {
			if date := datePattern.FindString(text); date != "" {
				pass.ReportSeverity(c, issue.Warning,
					fmt.Sprintf("%s comment dated %s may be stale", m, date),
					"resolve the item or turn it into a tracked issue")
			}
		}
		if !strings.HasPrefix(text, "//") {
			continue
		}
		if msg := lineCommentProblem(c, text, lines, minLen); msg != "" {
			pass.Report(c, msg, "explain why the code does something rather than what it does")
		}
	}
}

func precededByComment(lines []string, row int) bool {
	if row <= 0 || row > len(lines) {
		return false
	}
	prev := strings.TrimSpace(lines[row-1])
	return strings.HasPrefix(prev, "//") || strings.HasSuffix(prev, "*/") || strings.HasPrefix(prev, "*")
}

func lineCommentProblem(c *sitter.Node, text string, lines []string, minLen int) string {
	body := strings.TrimSpace(strings.TrimLeft(text, "/"))
	if body == "" || !strings.ContainsFunc(body, unicode.IsLetter) || strings.Contains(body, "ctrap:ignore") {
		return ""
	}
	if len([]rune(body)) < minLen {
		return "comment is too short to be useful"
	}
	row := int(c.StartPoint().Row)
	if row >= len(lines) {
		return ""
	}
	code := strings.TrimSpace(lines[row][:min(int(c.StartPoint().Column), len(lines[row]))])
	if code == "" {
		return ""
	}
	for _, re := range obviousComments {
		if re.MatchString(body) {
			return "comment restates the obvious"
		}
	}
	codeWords := toSet(wordPattern.FindAllString(code, -1), true)
	for _, w := range wordPattern.FindAllString(body, -1) {
		if !codeWords[strings.ToLower(w)] {
			return ""
		}
	}
	return "comment only repeats the code"
}

// ---------------------------------------------------------------------------
// S005 indentation
// ---------------------------------------------------------------------------

// Indentation flags lines indented with a mix of tabs and spaces, and
// files that use too many different space-indent widths.
type Indentation struct{ rules.Base }

func NewIndentation() *Indentation { return &Indentation{Base: base("S005")} }

func (r *Indentation) Check(pass *rules.Pass) {
	maxWidths := pass.Int("max_indent_widths", 3)
	counts := make(map[int]int)
	type indented struct{ line, width int }
	var spaced []indented
	for i, line := range pass.File.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		spaces, tabs := leadingWhitespace(line)
		switch {
		case tabs && spaces > 0:
			pass.ReportAt(i+1, 0, issue.Warning, "indentation mixes tabs and spaces",
				"indent with either spaces or tabs, not both")
		case spaces > 0 && !tabs:
			counts[spaces]++
			spaced = append(spaced, indented{i + 1, spaces})
		}
	}
	if len(counts) <= maxWidths {
		return
	}
	widths := make([]int, 0, len(counts))
	for w := range counts {
		widths = append(widths, w)
	}
	sort.Slice(widths, func(a, b int) bool {
		if counts[widths[a]] != counts[widths[b]] {
			return counts[widths[a]] > counts[widths[b]]
		}
		return widths[a] < widths[b]
	})
	common := widths[0]
	for _, l := range spaced {
		if l.width == common {
			continue
		}
		pass.ReportAt(l.line, 0, pass.Severity,
			fmt.Sprintf("inconsistent indentation: %d different indent widths, most lines use %d spaces", len(counts), common),
			fmt.Sprintf("indent consistently in steps of %d spaces", common))
		return
	}
}

func leadingWhitespace(line string) (spaces int, tabs bool) {
	for _, r := range line {
		switch r {
		case ' ':
			spaces++
		case '\t':
			tabs = true
		default:
			return spaces, tabs
		}
	}
	return spaces, tabs
}
