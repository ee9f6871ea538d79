package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/issue"
)

// ServerVersion is reported in the initialize response.
var ServerVersion = "dev"

// documentResults holds the last analysis of a document for code actions.
type documentResults struct {
	issues      []issue.Issue
	diagnostics []Diagnostic
	content     string
}

// ServerConfig holds configuration for the LSP server
type ServerConfig struct {
	DebounceDuration time.Duration
	ParallelFiles    int
	WatchPatterns    []string
	IgnorePatterns   []string
}

func DefaultServerConfig() ServerConfig {
	w := DefaultWatcherConfig()
	return ServerConfig(w)
}

// ServerConfigFromLSPConfig overlays the lsp section of the configuration
// on the defaults.
func ServerConfigFromLSPConfig(lspCfg config.LSPConfig) ServerConfig {
	cfg := DefaultServerConfig()
	if d, err := time.ParseDuration(lspCfg.Watcher.DebounceDuration); err == nil && d > 0 {
		cfg.DebounceDuration = d
	}
	if len(lspCfg.Watcher.WatchPatterns) > 0 {
		cfg.WatchPatterns = lspCfg.Watcher.WatchPatterns
	}
	if len(lspCfg.Watcher.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = lspCfg.Watcher.IgnorePatterns
	}
	return cfg
}

// Server implements an LSP server
type Server struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex
	backend Backend

	documents map[string]string // URI -> content
	docMu     sync.RWMutex

	results   map[string]documentResults
	resultsMu sync.RWMutex

	watcher  *DebouncedWatcher
	progress *ProgressReporter
	commands *CommandHandler

	rootURI     string
	initialized bool
}

// NewServer creates a server reading requests from reader and writing
// responses and notifications to writer.
func NewServer(reader *bufio.Reader, writer *bufio.Writer, backend Backend, cfg ServerConfig) (*Server, error) {
	s := &Server{
		reader:    reader,
		writer:    writer,
		backend:   backend,
		documents: make(map[string]string),
		results:   make(map[string]documentResults),
	}
	s.progress = NewProgressReporter(s.sendMessage)
	s.commands = NewCommandHandler(s)

	w, err := NewDebouncedWatcher(WatcherConfig(cfg), s.analyzeChanged)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

// analyzeChanged is the watcher callback.
func (s *Server) analyzeChanged(uris []string) {
	for _, uri := range uris {
		if content, ok := s.document(uri); ok {
			s.analyzeAndPublish(context.Background(), uri, uriToPath(uri), content)
		}
	}
}

func (s *Server) document(uri string) (string, bool) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	content, ok := s.documents[uri]
	return content, ok
}

func (s *Server) openDocuments() map[string]string {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	out := make(map[string]string, len(s.documents))
	for k, v := range s.documents {
		out[k] = v
	}
	return out
}

// jsonRPCMessage represents a JSON-RPC 2.0 message
type jsonRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   interface{}     `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeInvalidParams = -32602
	codeInternalError = -32603
)

// Run reads and dispatches messages until the client exits, the input
// ends or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.watcher.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.handleMessage(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			slog.Error("error handling message", "err", err)
		}
	}
}

// handleMessage reads and processes a single JSON-RPC message
func (s *Server) handleMessage(ctx context.Context) error {
	length := -1
	for {
		header, err := s.reader.ReadString('\n')
		if err != nil {
			return err
		}
		header = strings.TrimSpace(header)
		if header == "" {
			break
		}
		if v, ok := strings.CutPrefix(header, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid content length: %s", v)
			}
			length = n
		}
	}
	if length < 0 {
		return fmt.Errorf("missing Content-Length header")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return err
	}

	var msg jsonRPCMessage
	if err := json.Unmarshal(buf, &msg); err != nil {
		return fmt.Errorf("failed to parse JSON-RPC message: %w", err)
	}

	switch msg.Method {
	case MethodInitialize:
		return s.handleInitialize(msg.ID, msg.Params)
	case MethodInitialized:
		s.initialized = true
		return nil
	case MethodTextDocumentDidOpen:
		return s.handleDidOpen(msg.Params)
	case MethodTextDocumentDidChange:
		return s.handleDidChange(msg.Params)
	case MethodTextDocumentDidSave:
		return s.handleDidSave(msg.Params)
	case MethodTextDocumentDidClose:
		return s.handleDidClose(msg.Params)
	case MethodTextDocumentCodeAction:
		return s.handleCodeAction(msg.ID, msg.Params)
	case MethodWorkspaceExecuteCommand:
		return s.handleExecuteCommand(ctx, msg.ID, msg.Params)
	case MethodWorkspaceDidChangeConfig:
		return s.handleDidChangeConfiguration(ctx, msg.Params)
	case MethodShutdown:
		return s.handleShutdown(msg.ID)
	case MethodExit:
		return io.EOF
	case "":
		// A response to a request we sent, such as progress creation.
		return nil
	default:
		if msg.ID != nil {
			return s.sendResponse(msg.ID, nil, &rpcError{Code: -32601, Message: "method not found: " + msg.Method})
		}
		slog.Debug("unhandled LSP notification", "method", msg.Method)
		return nil
	}
}

func (s *Server) handleInitialize(id interface{}, params json.RawMessage) error {
	var initParams InitializeParams
	if err := json.Unmarshal(params, &initParams); err != nil {
		return s.sendResponse(id, nil, &rpcError{Code: codeInvalidParams, Message: err.Error()})
	}
	s.rootURI = initParams.RootURI

	result := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    textDocumentSyncFull,
				Save:      true,
			},
			CodeActionProvider: true,
			ExecuteCommandProvider: &ExecuteCommandOptions{
				Commands: []string{
					CommandAnalyzeFile,
					CommandAnalyzeWorkspace,
					CommandApplyTemplate,
					CommandClearCache,
				},
			},
		},
		ServerInfo: &ServerInfo{Name: "ctrap-lsp", Version: ServerVersion},
	}
	return s.sendResponse(id, result, nil)
}

func (s *Server) handleDidOpen(params json.RawMessage) error {
	var p DidOpenTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	uri := p.TextDocument.URI
	if !s.shouldAnalyze(uri) {
		return nil
	}
	s.docMu.Lock()
	s.documents[uri] = p.TextDocument.Text
	s.docMu.Unlock()

	s.watcher.FileChanged(uri)
	return nil
}

// handleDidChange tracks edits. Analysis waits for the save.
func (s *Server) handleDidChange(params json.RawMessage) error {
	var p DidChangeTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if len(p.ContentChanges) == 0 {
		return nil
	}
	uri := p.TextDocument.URI
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if _, ok := s.documents[uri]; ok {
		s.documents[uri] = p.ContentChanges[len(p.ContentChanges)-1].Text
	}
	return nil
}

func (s *Server) handleDidSave(params json.RawMessage) error {
	var p DidSaveTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	uri := p.TextDocument.URI
	if !s.shouldAnalyze(uri) {
		return nil
	}
	if p.Text != nil {
		s.docMu.Lock()
		s.documents[uri] = *p.Text
		s.docMu.Unlock()
	}
	s.watcher.FileChanged(uri)
	return nil
}

// handleDidClose forgets the document and clears its diagnostics.
func (s *Server) handleDidClose(params json.RawMessage) error {
	var p DidCloseTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	uri := p.TextDocument.URI

	s.docMu.Lock()
	_, open := s.documents[uri]
	delete(s.documents, uri)
	s.docMu.Unlock()

	s.resultsMu.Lock()
	delete(s.results, uri)
	s.resultsMu.Unlock()

	if !open {
		return nil
	}
	return s.publishDiagnostics(uri, []Diagnostic{})
}

func (s *Server) handleShutdown(id interface{}) error {
	s.watcher.Stop()
	return s.sendResponse(id, nil, nil)
}

func (s *Server) handleCodeAction(id interface{}, params json.RawMessage) error {
	var p CodeActionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.sendResponse(id, nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)})
	}

	s.resultsMu.RLock()
	entry, ok := s.results[p.TextDocument.URI]
	s.resultsMu.RUnlock()
	if !ok {
		return s.sendResponse(id, []CodeAction{}, nil)
	}

	relevant := FilterDiagnosticsForRange(entry.diagnostics, p.Range)
	actions := GetCodeActions(p.TextDocument.URI, relevant, entry.content)
	if actions == nil {
		actions = []CodeAction{}
	}
	return s.sendResponse(id, actions, nil)
}

func (s *Server) handleExecuteCommand(ctx context.Context, id interface{}, params json.RawMessage) error {
	var p ExecuteCommandParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.sendResponse(id, nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)})
	}
	result, err := s.commands.Execute(ctx, p)
	if err != nil {
		return s.sendResponse(id, nil, &rpcError{Code: codeInternalError, Message: err.Error()})
	}
	return s.sendResponse(id, result, nil)
}

// handleDidChangeConfiguration applies the "ctrap" settings section.
// Invalid settings are logged and ignored.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, params json.RawMessage) error {
	var p struct {
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	raw := p.Settings
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err == nil {
		if section, ok := sections["ctrap"]; ok {
			raw = section
		}
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		slog.Warn("ignoring invalid ctrap settings", "err", err)
		return nil
	}

	next := WatcherConfig{
		ParallelFiles:  settings.ParallelFiles,
		WatchPatterns:  settings.WatchPatterns,
		IgnorePatterns: settings.IgnorePatterns,
	}
	if settings.DebounceDuration != "" {
		d, err := time.ParseDuration(settings.DebounceDuration)
		if err != nil {
			slog.Warn("ignoring invalid debounceDuration", "value", settings.DebounceDuration, "err", err)
		} else {
			next.DebounceDuration = d
		}
	}
	if err := s.watcher.UpdateConfig(next); err != nil {
		slog.Warn("ignoring invalid watcher settings", "err", err)
	}

	if settings.Template != "" {
		if _, err := s.commands.applyTemplate(ctx, []interface{}{settings.Template}); err != nil {
			slog.Warn("applying template from settings", "template", settings.Template, "err", err)
		}
	}
	return nil
}

// analyzeAndPublish analyzes a document, publishes its diagnostics and
// returns the number of issues.
func (s *Server) analyzeAndPublish(ctx context.Context, uri, path, content string) int {
	issues, err := s.backend.Analyze(ctx, path, content)
	if err != nil {
		slog.Error("analysis failed", "uri", uri, "err", err)
		return 0
	}
	diagnostics := IssuesToDiagnostics(issues, content)

	s.resultsMu.Lock()
	s.results[uri] = documentResults{issues: issues, diagnostics: diagnostics, content: content}
	s.resultsMu.Unlock()

	if err := s.publishDiagnostics(uri, diagnostics); err != nil {
		slog.Error("failed to publish diagnostics", "uri", uri, "err", err)
	}
	return len(issues)
}

func (s *Server) shouldAnalyze(uri string) bool {
	return s.watcher.ShouldWatch(uri)
}

func (s *Server) publishDiagnostics(uri string, diagnostics []Diagnostic) error {
	return s.sendMessage(jsonRPCMessage{
		JSONRPC: "2.0",
		Method:  MethodTextDocumentPublishDiagnostics,
		Params:  mustMarshal(PublishDiagnosticsParams{URI: uri, Diagnostics: diagnostics}),
	})
}

func (s *Server) sendResponse(id interface{}, result interface{}, rpcErr *rpcError) error {
	msg := jsonRPCMessage{JSONRPC: "2.0", ID: id, Result: result}
	if rpcErr != nil {
		msg.Error = rpcErr
	}
	return s.sendMessage(msg)
}

// sendMessage writes one framed message. It is safe for concurrent use.
func (s *Server) sendMessage(msg jsonRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(s.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	return s.writer.Flush()
}

// uriToPath converts a file:// URI to a filesystem path, decoding percent
// escapes. Other strings are returned unchanged.
func uriToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return u.Path
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return data
}
