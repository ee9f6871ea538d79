package lsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/issue"
)

func newTestServer(t *testing.T, backend Backend) (*Server, *syncBuffer) {
	t.Helper()
	h := startServer(t, backend)
	return h.server, h.out
}

func addDoc(s *Server, uri, text string) {
	s.docMu.Lock()
	s.documents[uri] = text
	s.docMu.Unlock()
}

func TestCommand_AnalyzeFile(t *testing.T) {
	backend := &fakeBackend{issues: []issue.Issue{{RuleID: "C001", Line: 4, Severity: issue.Critical}}}
	s, _ := newTestServer(t, backend)
	addDoc(s, docURI, buggy)

	res, err := s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandAnalyzeFile, Arguments: []interface{}{docURI}})
	require.NoError(t, err)
	cr := res.(*CommandResult)
	assert.True(t, cr.Success)
	assert.Equal(t, map[string]int{"issues": 1}, cr.Data)

	res, err = s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandAnalyzeFile, Arguments: []interface{}{"file:///nope.c"}})
	require.NoError(t, err)
	assert.False(t, res.(*CommandResult).Success)

	res, err = s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandAnalyzeFile})
	require.NoError(t, err)
	assert.Equal(t, "file URI argument required", res.(*CommandResult).Message)
}

func TestCommand_AnalyzeWorkspaceReportsProgress(t *testing.T) {
	backend := &fakeBackend{}
	s, out := newTestServer(t, backend)
	addDoc(s, "file:///p/a.c", "int a;")
	addDoc(s, "file:///p/b.c", "int b;")

	res, err := s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandAnalyzeWorkspace})
	require.NoError(t, err)
	assert.Equal(t, 2, res.(*CommandResult).Data.(map[string]int)["filesAnalyzed"])

	var kinds []string
	for _, m := range out.messages(t) {
		if m.Method != MethodProgress {
			continue
		}
		var p struct {
			Value struct {
				Kind string `json:"kind"`
			} `json:"value"`
		}
		decode(t, m.Params, &p)
		kinds = append(kinds, p.Value.Kind)
	}
	assert.Equal(t, []string{"begin", "report", "report", "end"}, kinds)
}

func TestCommand_ApplyTemplate(t *testing.T) {
	backend := &fakeBackend{}
	s, _ := newTestServer(t, backend)
	addDoc(s, docURI, buggy)

	res, err := s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandApplyTemplate, Arguments: []interface{}{"embedded"}})
	require.NoError(t, err)
	cr := res.(*CommandResult)
	assert.True(t, cr.Success)
	assert.Contains(t, cr.Message, "Applied template embedded")
	assert.Equal(t, []string{"embedded"}, backend.templates)
	assert.Equal(t, 1, backend.calls())

	res, err = s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandApplyTemplate, Arguments: []interface{}{"missing"}})
	require.NoError(t, err)
	assert.False(t, res.(*CommandResult).Success)
}

func TestCommand_ClearCache(t *testing.T) {
	backend := &fakeBackend{}
	s, _ := newTestServer(t, backend)
	s.results[docURI] = documentResults{}

	res, err := s.commands.Execute(context.Background(), ExecuteCommandParams{Command: CommandClearCache})
	require.NoError(t, err)
	assert.True(t, res.(*CommandResult).Success)
	assert.Equal(t, 1, backend.cleared)
	assert.Empty(t, s.results)
}

func TestCommand_Unknown(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{})
	_, err := s.commands.Execute(context.Background(), ExecuteCommandParams{Command: "ctrap.nope"})
	assert.Error(t, err)
}
