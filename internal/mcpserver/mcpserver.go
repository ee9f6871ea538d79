// Package mcpserver exposes the analyzer and the rule catalogue as Model
// Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chris-regnier/ctrap/internal/analyzer"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
)

const defaultPath = "input.c"

// Server holds the MCP server and the registry its tools act on.
type Server struct {
	reg      *rules.Registry
	analyzer *analyzer.Analyzer
	mcp      *server.MCPServer
}

func New(reg *rules.Registry, version string, recorder *metrics.Recorder) *Server {
	if recorder == nil {
		recorder = metrics.NoOpRecorder()
	}
	s := &Server{
		reg:      reg,
		analyzer: analyzer.NewAnalyzer(reg, analyzer.WithRecorder(recorder)),
		mcp:      server.NewMCPServer("ctrap", version, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("mcp server starting", "transport", "stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("analyze_c_source",
		mcp.WithDescription("Check C source code against the enabled ctrap rules and return the findings as JSON."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The C source text")),
		mcp.WithString("path", mcp.Description("File name used in findings and for language detection (default input.c)")),
		mcp.WithString("min_severity", mcp.Description("Lowest severity to report"), mcp.Enum("critical", "warning", "suggestion")),
	), s.analyzeSource)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the rules in the catalogue with their current settings."),
		mcp.WithString("category", mcp.Description("Only rules of this category")),
		mcp.WithString("query", mcp.Description("Case-insensitive search over id, name, description and category")),
		mcp.WithBoolean("enabled_only", mcp.Description("Only enabled rules")),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("explain_rule",
		mcp.WithDescription("Explain one rule: rationale, examples and reference, as Markdown."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Rule id, for example L001")),
	), s.explainRule)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the rule templates."),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("apply_template",
		mcp.WithDescription("Enable exactly the rules of a template for later analyses."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Template name, for example beginner or embedded")),
	), s.applyTemplate)
}

type analyzeResult struct {
	Issues   []issue.Issue   `json:"issues"`
	Summary  issue.Summary   `json:"summary"`
	Failures []rules.Failure `json:"failures,omitempty"`
}

func (s *Server) analyzeSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := strings.TrimSpace(req.GetString("path", defaultPath))
	if path == "" {
		path = defaultPath
	}
	minSeverity := issue.Suggestion
	if v := req.GetString("min_severity", ""); v != "" {
		if minSeverity, err = issue.ParseSeverity(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	res, err := s.analyzer.AnalyzeSource(ctx, path, content)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("analysis failed", err), nil
	}
	issues := issue.Filter(res.Issues, minSeverity)
	if issues == nil {
		issues = []issue.Issue{}
	}
	return jsonResult(analyzeResult{Issues: issues, Summary: issue.Summarize(issues), Failures: res.Failures})
}

type ruleSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Enabled  bool   `json:"enabled"`
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := strings.TrimSpace(req.GetString("category", ""))
	enabledOnly := req.GetBool("enabled_only", false)

	var matches map[string]bool
	if q := strings.TrimSpace(req.GetString("query", "")); q != "" {
		matches = map[string]bool{}
		for _, r := range s.reg.Search(q) {
			matches[r.Meta().ID] = true
		}
	}

	out := []ruleSummary{}
	for _, info := range s.reg.Infos() {
		switch {
		case category != "" && !strings.EqualFold(info.Category, category):
			continue
		case matches != nil && !matches[info.ID]:
			continue
		case enabledOnly && !info.Enabled:
			continue
		}
		out = append(out, ruleSummary{
			ID:       info.ID,
			Name:     info.Name,
			Category: info.Category,
			Severity: info.EffectiveSeverity.String(),
			Enabled:  info.Enabled,
		})
	}
	return jsonResult(out)
}

func (s *Server) explainRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.reg.Info(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(info.Markdown()), nil
}

func (s *Server) listTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := []rules.TemplateInfo{}
	for _, t := range s.reg.Templates() {
		if info, err := s.reg.TemplateInfo(t.Key); err == nil {
			out = append(out, info)
		}
	}
	return jsonResult(out)
}

func (s *Server) applyTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.reg.ApplyTemplate(name); err != nil {
		if errors.Is(err, rules.ErrUnknownTemplate) {
			var keys []string
			for _, t := range s.reg.Templates() {
				keys = append(keys, t.Key)
			}
			return mcp.NewToolResultError(fmt.Sprintf("%v (available: %s)", err, strings.Join(keys, ", "))), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("applied template %s: %d rules enabled",
		rules.NormalizeTemplateName(name), len(s.reg.Enabled()))), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
