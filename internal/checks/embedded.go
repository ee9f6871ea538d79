package checks

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chris-regnier/ctrap/internal/query"
	"github.com/chris-regnier/ctrap/internal/rules"
)

var (
	defaultISRPatterns = []string{`.*_isr$`, `.*_handler$`, `.*_irq$`, `^isr_.*`, `^handler_.*`}

	registerAddress   = regexp.MustCompile(`0x[0-9A-Fa-f]{8}|0x[0-9A-Fa-f]{4}0{3,4}`)
	registerName      = regexp.MustCompile(`REG_\w+|\w+_REG\b|GPIO\w*|TIMER\w*|UART\w*`)
	magicAddress      = regexp.MustCompile(`^0x[0-9A-Fa-f]{8}`)
	hexLiteral        = regexp.MustCompile(`^0[xX][0-9A-Fa-f]+`)
	decimalLiteral    = regexp.MustCompile(`^[0-9]+$`)
	floatLiteral      = regexp.MustCompile(`^([0-9]*\.[0-9]*([eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+)[fFlL]?$`)
	bulkClockEnable   = regexp.MustCompile(`0xFFFFFFFF|0xFFF|ENR\s*=\s*-1`)
	infiniteCondition = map[string]bool{"1": true, "true": true, "TRUE": true}
)

// isrFunctions returns the function definitions whose names match one of
// the configured interrupt handler patterns.
func isrFunctions(pass *rules.Pass) []query.Function {
	var patterns []*regexp.Regexp
	for _, p := range pass.Strings("isr_patterns", defaultISRPatterns) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			slog.Warn("ignoring invalid ISR pattern", "rule", pass.Rule.ID, "pattern", p, "err", err)
			continue
		}
		patterns = append(patterns, re)
	}
	var out []query.Function
	for _, fn := range query.FindFunctionDefinitions(pass.Root(), pass.Source()) {
		for _, re := range patterns {
			if re.MatchString(fn.Name) {
				out = append(out, fn)
				break
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// E001 volatile usage
// ---------------------------------------------------------------------------

// VolatileUsage flags memory-mapped register access and ISR-shared globals
// that lack the volatile qualifier.
type VolatileUsage struct{ rules.Base }

func NewVolatileUsage() *VolatileUsage { return &VolatileUsage{Base: base("E001")} }

func (r *VolatileUsage) Check(pass *rules.Pass) {
	src := pass.Source()

	for _, cast := range query.FindByType(pass.Root(), "cast_expression") {
		typ := query.Text(cast.ChildByFieldName("type"), src)
		text := query.Text(cast, src)
		if !strings.Contains(typ, "*") || !registerAddress.MatchString(text) || strings.Contains(text, "volatile") {
			continue
		}
		pass.Report(cast,
			fmt.Sprintf("hardware register access through '(%s)' without volatile", typ),
			"add volatile to the pointer type of the cast")
	}

	for _, fn := range isrFunctions(pass) {
		for _, name := range writtenGlobals(fn, src) {
			if declaredVolatile(pass.Root(), name, src) {
				continue
			}
			pass.Report(fn.Node,
				fmt.Sprintf("global '%s' is written in ISR '%s' but not declared volatile", name, fn.Name),
				fmt.Sprintf("declare '%s' as volatile", name))
		}
	}

	for _, deref := range query.FindByType(pass.Root(), "pointer_expression") {
		if query.Text(deref.ChildByFieldName("operator"), src) != "*" {
			continue
		}
		if !registerName.MatchString(query.Text(deref.ChildByFieldName("argument"), src)) {
			continue
		}
		stmt := query.Ancestor(deref, "expression_statement", "declaration")
		if stmt == nil || strings.Contains(query.Text(stmt, src), "volatile") {
			continue
		}
		pass.Report(deref, "memory-mapped I/O access without volatile",
			"add volatile to the pointer declaration or cast")
	}
}

// writtenGlobals returns, in order of first write, the identifiers assigned
// or incremented in fn that are not declared inside it.
func writtenGlobals(fn query.Function, src []byte) []string {
	local := make(map[string]bool)
	for _, decl := range query.FindByType(fn.Node, "declaration", "parameter_declaration") {
		if decl.Type() == "parameter_declaration" {
			if name := query.DeclaredName(decl.ChildByFieldName("declarator")); name != nil {
				local[query.Text(name, src)] = true
			}
			continue
		}
		for _, name := range query.DeclaredNames(decl) {
			local[query.Text(name, src)] = true
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range query.FindByType(fn.Node, "assignment_expression", "update_expression") {
		target := n.ChildByFieldName("left")
		if n.Type() == "update_expression" {
			target = n.ChildByFieldName("argument")
		}
		if target == nil || target.Type() != "identifier" {
			continue
		}
		name := query.Text(target, src)
		if local[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func declaredVolatile(root *sitter.Node, name string, src []byte) bool {
	for _, decl := range query.FindByType(root, "declaration") {
		if !strings.Contains(query.Text(decl, src), "volatile") {
			continue
		}
		for _, n := range query.DeclaredNames(decl) {
			if query.Text(n, src) == name {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// E002 ISR restrictions
// ---------------------------------------------------------------------------

var forbiddenInISR = []string{
	"printf", "fprintf", "sprintf", "scanf",
	"malloc", "free", "calloc", "realloc",
	"sleep", "delay", "usleep",
	"wait", "signal", "mutex_lock",
	"fopen", "fclose", "fread", "fwrite",
}

// ISRRestrictions flags interrupt handlers that are long, call blocking or
// allocating functions, or use floating point.
type ISRRestrictions struct{ rules.Base }

func NewISRRestrictions() *ISRRestrictions { return &ISRRestrictions{Base: base("E002")} }

func (r *ISRRestrictions) Check(pass *rules.Pass) {
	src := pass.Source()
	maxLines := pass.Int("max_isr_lines", 20)
	forbidden := pass.Strings("forbidden_functions", forbiddenInISR)
	for _, fn := range isrFunctions(pass) {
		if n := fn.EndLine - fn.StartLine + 1; n > maxLines {
			pass.Report(fn.Node,
				fmt.Sprintf("ISR '%s' is %d lines long (max %d)", fn.Name, n, maxLines),
				"keep the ISR to setting flags and move the work to the main loop")
		}
		for _, call := range query.FindCalls(fn.Node, src, forbidden...) {
			pass.Report(call.Node,
				fmt.Sprintf("'%s' must not be called from ISR '%s'", call.Name, fn.Name),
				fmt.Sprintf("move the call to '%s' out of the interrupt handler", call.Name))
		}
		if usesFloatingPoint(fn.Node, src) {
			pass.Report(fn.Node,
				fmt.Sprintf("ISR '%s' uses floating point", fn.Name),
				"use integer or fixed-point arithmetic in interrupt handlers")
		}
	}
}

func usesFloatingPoint(n *sitter.Node, src []byte) bool {
	found := false
	query.Walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "primitive_type":
			t := query.Text(c, src)
			found = t == "float" || t == "double"
		case "number_literal":
			found = floatLiteral.MatchString(query.Text(c, src))
		}
		return !found
	})
	return found
}

// ---------------------------------------------------------------------------
// E003 hardware register access
// ---------------------------------------------------------------------------

var bitOperators = map[string]bool{
	"|": true, "&": true, "^": true, "<<": true, ">>": true,
	"|=": true, "&=": true, "^=": true, "<<=": true, ">>=": true,
}

// RegisterAccess flags raw hardware addresses in casts and bit operations
// with unnamed masks.
type RegisterAccess struct{ rules.Base }

func NewRegisterAccess() *RegisterAccess { return &RegisterAccess{Base: base("E003")} }

func (r *RegisterAccess) Check(pass *rules.Pass) {
	src := pass.Source()
	for _, lit := range query.FindByType(pass.Root(), "number_literal") {
		text := query.Text(lit, src)
		if magicAddress.MatchString(text) && query.IsInside(lit, "cast_expression") {
			pass.Report(lit,
				fmt.Sprintf("magic hardware address %s", text),
				"define a named macro or a register struct for the address")
		}
	}
	for _, n := range query.FindByType(pass.Root(), "binary_expression", "assignment_expression") {
		if !bitOperators[query.Text(n.ChildByFieldName("operator"), src)] {
			continue
		}
		right := strings.TrimSpace(query.Text(n.ChildByFieldName("right"), src))
		if !magicMask(right) {
			continue
		}
		pass.Report(n,
			fmt.Sprintf("bit operation uses magic number %s", right),
			"define a named bit mask macro")
	}
}

func magicMask(text string) bool {
	if hexLiteral.MatchString(text) {
		return true
	}
	if decimalLiteral.MatchString(text) {
		v, ok := parseDecimal(text)
		return ok && v > 7
	}
	return false
}

func parseDecimal(s string) (int64, bool) {
	var v int64
	for _, c := range s {
		v = v*10 + int64(c-'0')
		if v < 0 {
			return 0, false
		}
	}
	return v, true
}

// ---------------------------------------------------------------------------
// E004 task stack
// ---------------------------------------------------------------------------

var elementSizes = map[string]int64{
	"char": 1, "signed char": 1, "unsigned char": 1, "bool": 1, "_Bool": 1,
	"int8_t": 1, "uint8_t": 1,
	"short": 2, "unsigned short": 2, "int16_t": 2, "uint16_t": 2,
	"int": 4, "unsigned": 4, "unsigned int": 4, "long": 4, "unsigned long": 4,
	"float": 4, "int32_t": 4, "uint32_t": 4,
	"double": 8, "long long": 8, "unsigned long long": 8, "long double": 8,
	"int64_t": 8, "uint64_t": 8,
}

const pointerSize = 8

var taskCreateFunctions = []string{"xTaskCreate", "xTaskCreateStatic", "osThreadCreate", "osThreadNew"}

// TaskStack flags local arrays too large for a task stack, RTOS tasks
// created with a small stack, and recursive functions.
type TaskStack struct{ rules.Base }

func NewTaskStack() *TaskStack { return &TaskStack{Base: base("E004")} }

func (r *TaskStack) Check(pass *rules.Pass) {
	src := pass.Source()
	maxArray := int64(pass.Int("max_stack_array", 1024))
	minStack := int64(pass.Int("min_task_stack", 256))

	for _, arr := range query.FindByType(pass.Root(), "array_declarator") {
		if p := arr.Parent(); p != nil && p.Type() == "array_declarator" {
			continue
		}
		decl := query.Ancestor(arr, "declaration")
		if decl == nil || !query.IsInFunction(decl) || isStatic(decl, src) {
			continue
		}
		bytes, ok := arrayBytes(arr, decl, src)
		if !ok || bytes <= maxArray {
			continue
		}
		name := query.Text(query.DeclaredName(arr), src)
		pass.Report(arr,
			fmt.Sprintf("local array '%s' uses %d bytes of stack (max %d)", name, bytes, maxArray),
			"make the buffer static or allocate it dynamically")
	}

	for _, call := range query.FindCalls(pass.Root(), src, pass.Strings("task_create_functions", taskCreateFunctions)...) {
		if len(call.Args) < 3 {
			continue
		}
		size, ok := query.IntLiteral(call.Args[2], src)
		if !ok || size >= minStack {
			continue
		}
		pass.Report(call.Node,
			fmt.Sprintf("task created with a stack of %d (min %d)", size, minStack),
			"increase the task stack size to avoid overflow")
	}

	for _, fn := range query.FindFunctionDefinitions(pass.Root(), src) {
		if len(query.FindCalls(fn.Node, src, fn.Name)) == 0 {
			continue
		}
		pass.Report(fn.Node,
			fmt.Sprintf("function '%s' is recursive", fn.Name),
			"replace the recursion with iteration on embedded targets")
	}
}

func isStatic(decl *sitter.Node, src []byte) bool {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		c := decl.NamedChild(i)
		if c.Type() == "storage_class_specifier" && query.Text(c, src) == "static" {
			return true
		}
	}
	return false
}

// arrayBytes multiplies every literal dimension of arr by the size of the
// declared element type. Unknown element types count one byte each. The
// product saturates at math.MaxInt64.
func arrayBytes(arr, decl *sitter.Node, src []byte) (int64, bool) {
	count := int64(1)
	n := arr
	for n != nil && n.Type() == "array_declarator" {
		dim, ok := query.IntLiteral(n.ChildByFieldName("size"), src)
		if !ok || dim <= 0 {
			return 0, false
		}
		count = saturatingMul(count, dim)
		n = n.ChildByFieldName("declarator")
	}
	elem := int64(1)
	if query.IsInside(arr, "pointer_declarator") || (n != nil && n.Type() == "pointer_declarator") {
		elem = pointerSize
	} else if size, ok := elementSizes[strings.Join(strings.Fields(query.Text(decl.ChildByFieldName("type"), src)), " ")]; ok {
		elem = size
	}
	return saturatingMul(count, elem), true
}

func saturatingMul(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}

// ---------------------------------------------------------------------------
// E005 power management
// ---------------------------------------------------------------------------

var sleepCalls = []string{"__WFI", "__WFE", "sleep", "delay", "wait", "osDelay", "vTaskDelay", "HAL_PWR_EnterSLEEPMode"}

// PowerManagement flags idle loops that never sleep, polling loops with an
// empty body, and writes that enable every peripheral clock.
type PowerManagement struct{ rules.Base }

func NewPowerManagement() *PowerManagement { return &PowerManagement{Base: base("E005")} }

func (r *PowerManagement) Check(pass *rules.Pass) {
	src := pass.Source()
	sleeps := pass.Strings("sleep_calls", sleepCalls)

	for _, loop := range query.FindByType(pass.Root(), "while_statement", "for_statement") {
		switch {
		case isInfinite(loop, src):
			if callsAny(loop, src, sleeps) {
				continue
			}
			pass.Report(loop, "busy-wait loop never sleeps",
				"enter a low-power mode or wait for an interrupt inside the loop")
		case emptyBody(loop.ChildByFieldName("body")):
			pass.Report(loop, "polling loop spins with an empty body",
				"wait for an interrupt or event instead of spinning")
		}
	}

	for _, assign := range query.FindByType(pass.Root(), "assignment_expression") {
		if bulkClockEnable.MatchString(query.Text(assign, src)) {
			pass.Report(assign, "every peripheral clock is enabled at once",
				"enable only the peripheral clocks that are needed")
		}
	}
}

func isInfinite(loop *sitter.Node, src []byte) bool {
	cond := query.Condition(loop)
	if loop.Type() == "for_statement" {
		return cond == nil
	}
	text := strings.TrimSpace(query.Text(cond, src))
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "("), ")"))
	return infiniteCondition[text]
}

func callsAny(n *sitter.Node, src []byte, names []string) bool {
	for _, call := range query.FindCalls(n, src) {
		for _, s := range names {
			if strings.Contains(call.Name, s) {
				return true
			}
		}
	}
	return false
}

func emptyBody(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	switch body.Type() {
	case "expression_statement":
		return body.NamedChildCount() == 0
	case "compound_statement":
		for i := 0; i < int(body.NamedChildCount()); i++ {
			if body.NamedChild(i).Type() != "comment" {
				return false
			}
		}
		return true
	}
	return false
}
