package lsp

import (
	"context"
	"fmt"
)

// CommandResult represents the result of executing a command
type CommandResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// CommandHandler handles workspace/executeCommand requests
type CommandHandler struct {
	server *Server
}

func NewCommandHandler(server *Server) *CommandHandler {
	return &CommandHandler{server: server}
}

// Execute handles a command execution request
func (h *CommandHandler) Execute(ctx context.Context, params ExecuteCommandParams) (interface{}, error) {
	switch params.Command {
	case CommandAnalyzeFile:
		return h.analyzeFile(ctx, params.Arguments)
	case CommandAnalyzeWorkspace:
		return h.analyzeWorkspace(ctx)
	case CommandApplyTemplate:
		return h.applyTemplate(ctx, params.Arguments)
	case CommandClearCache:
		return h.clearCache(ctx)
	default:
		return nil, fmt.Errorf("unknown command: %s", params.Command)
	}
}

func stringArg(args []interface{}, what string) (string, *CommandResult) {
	if len(args) < 1 {
		return "", &CommandResult{Message: what + " argument required"}
	}
	s, ok := args[0].(string)
	if !ok || s == "" {
		return "", &CommandResult{Message: what + " must be a non-empty string"}
	}
	return s, nil
}

// analyzeFile re-analyzes one open document.
func (h *CommandHandler) analyzeFile(ctx context.Context, args []interface{}) (*CommandResult, error) {
	uri, bad := stringArg(args, "file URI")
	if bad != nil {
		return bad, nil
	}
	content, ok := h.server.document(uri)
	if !ok {
		return &CommandResult{Message: fmt.Sprintf("document not open: %s", uri)}, nil
	}
	n := h.server.analyzeAndPublish(ctx, uri, uriToPath(uri), content)
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("%d issues in %s", n, uri),
		Data:    map[string]int{"issues": n},
	}, nil
}

// analyzeWorkspace re-analyzes every open document with progress reporting.
func (h *CommandHandler) analyzeWorkspace(ctx context.Context) (*CommandResult, error) {
	docs := h.server.openDocuments()
	if len(docs) == 0 {
		return &CommandResult{Success: true, Message: "No documents open to analyze"}, nil
	}

	const token = "ctrap-workspace-analysis"
	p := h.server.progress
	_ = p.Begin(ctx, token, "ctrap: analyzing open files")

	analyzed, issues := 0, 0
	for uri, content := range docs {
		if !h.server.shouldAnalyze(uri) {
			continue
		}
		issues += h.server.analyzeAndPublish(ctx, uri, uriToPath(uri), content)
		analyzed++
		_ = p.Report(ctx, token, fmt.Sprintf("Analyzed %d/%d files", analyzed, len(docs)), analyzed*100/len(docs))
	}
	_ = p.End(ctx, token, fmt.Sprintf("Analyzed %d files", analyzed))

	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("Analyzed %d files", analyzed),
		Data:    map[string]int{"filesAnalyzed": analyzed, "issues": issues},
	}, nil
}

// applyTemplate switches the rule template and re-analyzes open documents.
func (h *CommandHandler) applyTemplate(ctx context.Context, args []interface{}) (*CommandResult, error) {
	name, bad := stringArg(args, "template name")
	if bad != nil {
		return bad, nil
	}
	if err := h.server.backend.ApplyTemplate(name); err != nil {
		return &CommandResult{Message: err.Error()}, nil
	}
	res, err := h.analyzeWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	res.Message = fmt.Sprintf("Applied template %s. %s", name, res.Message)
	return res, nil
}

// clearCache drops cached results in the backend and the server.
func (h *CommandHandler) clearCache(ctx context.Context) (*CommandResult, error) {
	if err := h.server.backend.ClearCache(ctx); err != nil {
		return nil, fmt.Errorf("clearing cache: %w", err)
	}
	h.server.resultsMu.Lock()
	h.server.results = make(map[string]documentResults)
	h.server.resultsMu.Unlock()
	return &CommandResult{Success: true, Message: "Cache cleared"}, nil
}
