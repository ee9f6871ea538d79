package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/checks"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
)

const buggy = `int main(void) {
    int arr[10];
    int x = 0;
    arr[10] = 1;
    if (x = 5) {
        return 1;
    }
    return 0;
}
`

func newTestServer(t *testing.T) (*Server, *rules.Registry) {
	t.Helper()
	reg := checks.NewRegistry()
	require.NoError(t, reg.ApplyTemplate("c_traps"))
	return New(reg, "test", nil), reg
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestAnalyzeSource(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.analyzeSource(context.Background(), call("analyze_c_source", map[string]any{
		"content": buggy,
		"path":    "src/main.c",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out analyzeResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	lines := map[string]int{}
	for _, is := range out.Issues {
		lines[is.RuleID] = is.Line
		assert.Equal(t, "src/main.c", is.File)
	}
	assert.Equal(t, 4, lines["C001"])
	assert.Equal(t, 5, lines["L001"])
	assert.Equal(t, len(out.Issues), out.Summary.Total)
}

func TestAnalyzeSource_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.analyzeSource(ctx, call("analyze_c_source", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "content is required")

	res, err = s.analyzeSource(ctx, call("analyze_c_source", map[string]any{"content": buggy, "min_severity": "loud"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestAnalyzeSource_DefaultPathAndFilter(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.analyzeSource(context.Background(), call("analyze_c_source", map[string]any{
		"content":      buggy,
		"min_severity": "critical",
	}))
	require.NoError(t, err)

	var out analyzeResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	require.NotEmpty(t, out.Issues)
	for _, is := range out.Issues {
		assert.Equal(t, defaultPath, is.File)
		assert.Equal(t, "Critical", is.Severity.String())
	}
}

func TestListRules(t *testing.T) {
	s, reg := newTestServer(t)
	ctx := context.Background()

	decodeList := func(res *mcp.CallToolResult) []ruleSummary {
		var out []ruleSummary
		require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
		return out
	}

	res, err := s.listRules(ctx, call("list_rules", nil))
	require.NoError(t, err)
	assert.Len(t, decodeList(res), len(reg.IDs()))

	res, err = s.listRules(ctx, call("list_rules", map[string]any{"enabled_only": true}))
	require.NoError(t, err)
	enabled := decodeList(res)
	assert.Len(t, enabled, len(reg.Enabled()))
	for _, r := range enabled {
		assert.True(t, r.Enabled)
	}

	res, err = s.listRules(ctx, call("list_rules", map[string]any{"category": "LOGIC"}))
	require.NoError(t, err)
	for _, r := range decodeList(res) {
		assert.Equal(t, "logic", r.Category)
	}

	res, err = s.listRules(ctx, call("list_rules", map[string]any{"query": "l001"}))
	require.NoError(t, err)
	found := decodeList(res)
	require.Len(t, found, 1)
	assert.Equal(t, "L001", found[0].ID)
}

func TestExplainRule(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.explainRule(ctx, call("explain_rule", map[string]any{"id": "l001"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	md := text(t, res)
	assert.Contains(t, md, "# L001:")
	assert.Contains(t, md, "```c")

	res, err = s.explainRule(ctx, call("explain_rule", map[string]any{"id": "X999"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTemplates(t *testing.T) {
	s, reg := newTestServer(t)
	ctx := context.Background()

	res, err := s.listTemplates(ctx, call("list_templates", nil))
	require.NoError(t, err)
	var infos []rules.TemplateInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &infos))
	assert.NotEmpty(t, infos)

	res, err = s.applyTemplate(ctx, call("apply_template", map[string]any{"name": "beginner"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, text(t, res), "applied template beginner")

	tmpl, ok := reg.Template("beginner")
	require.True(t, ok)
	for _, id := range reg.IDs() {
		st, _ := reg.Settings(id)
		assert.Equal(t, tmpl.Includes(id), st.Enabled, id)
	}

	res, err = s.applyTemplate(ctx, call("apply_template", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "available:")
}

func TestAnalyzeSource_RecordsMetrics(t *testing.T) {
	reg := checks.NewRegistry()
	collector := metrics.NewCollector()
	s := New(reg, "test", metrics.NewRecorder(collector, metrics.SourceMCP))

	_, err := s.analyzeSource(context.Background(), call("analyze_c_source", map[string]any{"content": buggy}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), collector.Stats().TotalFiles)
}

func TestHandleMessage_ToolsList(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	initMsg := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	require.NotNil(t, s.MCP().HandleMessage(ctx, json.RawMessage(initMsg)))

	resp := s.MCP().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"analyze_c_source", "list_rules", "explain_rule", "list_templates", "apply_template"} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
