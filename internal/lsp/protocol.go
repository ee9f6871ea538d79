// Package lsp is a language server over stdio that publishes ctrap
// findings as diagnostics.
package lsp

const (
	MethodInitialize                     = "initialize"
	MethodInitialized                    = "initialized"
	MethodShutdown                       = "shutdown"
	MethodExit                           = "exit"
	MethodTextDocumentDidOpen            = "textDocument/didOpen"
	MethodTextDocumentDidChange          = "textDocument/didChange"
	MethodTextDocumentDidClose           = "textDocument/didClose"
	MethodTextDocumentDidSave            = "textDocument/didSave"
	MethodTextDocumentPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodTextDocumentCodeAction         = "textDocument/codeAction"
	MethodWorkspaceExecuteCommand        = "workspace/executeCommand"
	MethodWorkspaceDidChangeConfig       = "workspace/didChangeConfiguration"
	MethodWindowWorkDoneProgressCreate   = "window/workDoneProgress/create"
	MethodProgress                       = "$/progress"
)

// Commands served through workspace/executeCommand.
const (
	CommandAnalyzeFile      = "ctrap.analyzeFile"
	CommandAnalyzeWorkspace = "ctrap.analyzeWorkspace"
	CommandApplyTemplate    = "ctrap.applyTemplate"
	CommandClearCache       = "ctrap.clearCache"
)

const CodeActionKindQuickFix = "quickfix"

// textDocumentSyncFull asks the client to send the whole text on change.
const textDocumentSyncFull = 1

// InitializeParams keeps only the workspace root; client capabilities are
// not consulted.
type InitializeParams struct {
	RootURI string `json:"rootUri,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync       *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	CodeActionProvider     bool                     `json:"codeActionProvider,omitempty"`
	ExecuteCommandProvider *ExecuteCommandOptions   `json:"executeCommandProvider,omitempty"`
}

type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

type TextDocumentSyncOptions struct {
	OpenClose bool `json:"openClose,omitempty"`
	Change    int  `json:"change,omitempty"`
	Save      bool `json:"save,omitempty"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is an opened document. The language id is not checked;
// shouldAnalyze filters by path instead.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams carries full-text changes only; the last one
// wins.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []ContentChange                 `json:"contentChanges"`
}

type ContentChange struct {
	Text string `json:"text"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams has Text set when the client includes it on
// save.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CodeActionParams selects the diagnostics under Range. The request context
// is ignored; actions are built from the server's own results.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
}

// CodeAction is a quick fix that inserts a suppression comment.
type CodeAction struct {
	Title       string         `json:"title"`
	Kind        string         `json:"kind,omitempty"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	IsPreferred bool           `json:"isPreferred,omitempty"`
	Edit        *WorkspaceEdit `json:"edit,omitempty"`
}

type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes,omitempty"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type ExecuteCommandParams struct {
	Command   string        `json:"command"`
	Arguments []interface{} `json:"arguments,omitempty"`
}

// Settings is the "ctrap" section of workspace/didChangeConfiguration.
type Settings struct {
	DebounceDuration string   `json:"debounceDuration,omitempty"`
	WatchPatterns    []string `json:"watchPatterns,omitempty"`
	IgnorePatterns   []string `json:"ignorePatterns,omitempty"`
	ParallelFiles    int      `json:"parallelFiles,omitempty"`
	Template         string   `json:"template,omitempty"`
}

// progressToken names one workspace analysis in create and $/progress
// messages.
type progressToken struct {
	Token string `json:"token"`
}

type progressParams struct {
	Token string       `json:"token"`
	Value progressStep `json:"value"`
}

// progressStep is the begin, report or end payload of $/progress. Title is
// only sent with begin, Percentage only with report.
type progressStep struct {
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}
