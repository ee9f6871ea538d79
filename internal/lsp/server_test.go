package lsp

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/issue"
)

const docURI = "file:///proj/main.c"

func openDoc(uri, text string) string {
	return notification(MethodTextDocumentDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "c", Version: 1, Text: text},
	})
}

func TestServer_Initialize(t *testing.T) {
	h := startServer(t, &fakeBackend{})
	h.send(t, request(1, MethodInitialize, InitializeParams{RootURI: "file:///proj"}))

	resp := h.waitFor(t, isResponse(1))
	var result InitializeResult
	decode(t, resp.Result, &result)
	assert.Equal(t, "ctrap-lsp", result.ServerInfo.Name)
	assert.True(t, result.Capabilities.CodeActionProvider)
	assert.Contains(t, result.Capabilities.ExecuteCommandProvider.Commands, CommandApplyTemplate)
	assert.Equal(t, "file:///proj", h.server.rootURI)
}

func TestServer_PublishesDiagnosticsOnOpen(t *testing.T) {
	backend := &fakeBackend{issues: []issue.Issue{
		{RuleID: "L001", Line: 5, Column: 8, Severity: issue.Critical, Message: "assignment in condition"},
	}}
	h := startServer(t, backend)
	h.send(t, openDoc(docURI, buggy))

	msg := h.waitFor(t, isDiagnostics(docURI))
	var p PublishDiagnosticsParams
	require.NoError(t, json.Unmarshal(msg.Params, &p))
	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, 4, p.Diagnostics[0].Range.Start.Line)
	assert.Equal(t, DiagnosticSeverityError, p.Diagnostics[0].Severity)
	assert.Equal(t, []string{"/proj/main.c"}, backend.analyzed)
}

func TestServer_IgnoresUnwatchedFiles(t *testing.T) {
	backend := &fakeBackend{}
	h := startServer(t, backend)
	h.send(t, openDoc("file:///proj/notes.md", "# notes"))
	h.send(t, request(2, MethodShutdown, nil))
	h.waitFor(t, isResponse(2))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, backend.calls())
	_, open := h.server.document("file:///proj/notes.md")
	assert.False(t, open)
}

func TestServer_CodeActionAfterAnalysis(t *testing.T) {
	backend := &fakeBackend{issues: []issue.Issue{
		{RuleID: "L001", Line: 5, Column: 8, Severity: issue.Critical, Message: "m"},
	}}
	h := startServer(t, backend)
	h.send(t, openDoc(docURI, buggy))
	h.waitFor(t, isDiagnostics(docURI))

	h.send(t, request(3, MethodTextDocumentCodeAction, CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: docURI},
		Range:        Range{Start: Position{4, 10}, End: Position{4, 10}},
	}))
	resp := h.waitFor(t, isResponse(3))
	var actions []CodeAction
	decode(t, resp.Result, &actions)
	require.Len(t, actions, 1)
	assert.Equal(t, "    // ctrap:ignore L001\n", actions[0].Edit.Changes[docURI][0].NewText)
}

func TestServer_CodeActionUnknownDocument(t *testing.T) {
	h := startServer(t, &fakeBackend{})
	h.send(t, request(4, MethodTextDocumentCodeAction, CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///other.c"},
	}))
	resp := h.waitFor(t, isResponse(4))
	var actions []CodeAction
	decode(t, resp.Result, &actions)
	assert.Empty(t, actions)
}

func TestServer_SaveUsesNewText(t *testing.T) {
	backend := &fakeBackend{}
	h := startServer(t, backend)
	h.send(t, openDoc(docURI, "int a;"))
	h.waitFor(t, isDiagnostics(docURI))

	h.send(t, notification(MethodTextDocumentDidChange, DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: docURI, Version: 2},
		ContentChanges: []ContentChange{{Text: "int b;"}},
	}))
	h.send(t, request(5, MethodShutdown, nil))
	h.waitFor(t, isResponse(5))

	content, ok := h.server.document(docURI)
	require.True(t, ok)
	assert.Equal(t, "int b;", content)
}

func TestServer_CloseClearsDiagnostics(t *testing.T) {
	backend := &fakeBackend{issues: []issue.Issue{{RuleID: "L001", Line: 1, Severity: issue.Critical}}}
	h := startServer(t, backend)
	h.send(t, openDoc(docURI, "int a;"))
	h.waitFor(t, isDiagnostics(docURI))

	h.send(t, notification(MethodTextDocumentDidClose, DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: docURI},
	}))
	h.waitFor(t, func(m jsonRPCMessage) bool {
		if !isDiagnostics(docURI)(m) {
			return false
		}
		var p PublishDiagnosticsParams
		return json.Unmarshal(m.Params, &p) == nil && len(p.Diagnostics) == 0
	})
}

func TestServer_AnalysisErrorPublishesNothing(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	h := startServer(t, backend)
	h.send(t, openDoc(docURI, "int a;"))
	h.send(t, request(6, MethodShutdown, nil))
	h.waitFor(t, isResponse(6))
	time.Sleep(60 * time.Millisecond)

	for _, m := range h.out.messages(t) {
		assert.NotEqual(t, MethodTextDocumentPublishDiagnostics, m.Method)
	}
}

func TestServer_UnknownRequest(t *testing.T) {
	h := startServer(t, &fakeBackend{})
	h.send(t, request(7, "textDocument/hover", map[string]string{}))
	resp := h.waitFor(t, isResponse(7))
	assert.NotNil(t, resp.Error)
}

func TestServer_DidChangeConfiguration(t *testing.T) {
	backend := &fakeBackend{}
	h := startServer(t, backend)
	h.send(t, notification(MethodWorkspaceDidChangeConfig, map[string]interface{}{
		"settings": map[string]interface{}{
			"ctrap": Settings{DebounceDuration: "1s", WatchPatterns: []string{"**/*.c"}, Template: "beginner"},
		},
	}))
	h.send(t, request(8, MethodShutdown, nil))
	h.waitFor(t, isResponse(8))

	assert.Equal(t, time.Second, h.server.watcher.Config().DebounceDuration)
	assert.Equal(t, []string{"beginner"}, backend.templates)
	assert.False(t, h.server.shouldAnalyze("file:///proj/a.h"))
}

func TestServerConfigFromLSPConfig(t *testing.T) {
	cfg := ServerConfigFromLSPConfig(config.LSPConfig{Watcher: config.WatcherConfig{
		DebounceDuration: "750ms",
		IgnorePatterns:   []string{"**/gen/**"},
	}})
	assert.Equal(t, 750*time.Millisecond, cfg.DebounceDuration)
	assert.Equal(t, []string{"**/gen/**"}, cfg.IgnorePatterns)
	assert.Equal(t, DefaultWatcherConfig().WatchPatterns, cfg.WatchPatterns)

	bad := ServerConfigFromLSPConfig(config.LSPConfig{Watcher: config.WatcherConfig{DebounceDuration: "soon"}})
	assert.Equal(t, DefaultWatcherConfig().DebounceDuration, bad.DebounceDuration)
}

func TestURIToPath(t *testing.T) {
	assert.Equal(t, "/proj/my file.c", uriToPath("file:///proj/my%20file.c"))
	assert.Equal(t, "relative.c", uriToPath("relative.c"))
}
