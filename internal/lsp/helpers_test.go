package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/issue"
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

// fakeBackend records calls and returns fixed issues.
type fakeBackend struct {
	mu        sync.Mutex
	issues    []issue.Issue
	analyzed  []string
	templates []string
	cleared   int
	err       error
}

func (f *fakeBackend) Analyze(ctx context.Context, path, content string) ([]issue.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, path)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]issue.Issue, len(f.issues))
	for i, is := range f.issues {
		is.File = path
		out[i] = is
	}
	return out, nil
}

func (f *fakeBackend) ApplyTemplate(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "missing" {
		return fmt.Errorf("unknown template: %s", name)
	}
	f.templates = append(f.templates, name)
	return nil
}

func (f *fakeBackend) ClearCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyzed)
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reading test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// messages decodes the complete frames written so far. A frame still being
// written ends the list.
func (b *syncBuffer) messages(t *testing.T) []jsonRPCMessage {
	t.Helper()
	r := bufio.NewReader(strings.NewReader(b.String()))
	var out []jsonRPCMessage
	for {
		var length int
		line, err := r.ReadString('\n')
		if err != nil {
			return out
		}
		if _, err := fmt.Sscanf(line, "Content-Length: %d", &length); err != nil {
			t.Fatalf("bad header %q", line)
		}
		if _, err := r.ReadString('\n'); err != nil {
			return out
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return out
		}
		var msg jsonRPCMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		out = append(out, msg)
	}
}

func frame(msg map[string]interface{}) string {
	msg["jsonrpc"] = "2.0"
	data, _ := json.Marshal(msg)
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(data), data)
}

func request(id int, method string, params interface{}) string {
	return frame(map[string]interface{}{"id": id, "method": method, "params": params})
}

func notification(method string, params interface{}) string {
	return frame(map[string]interface{}{"method": method, "params": params})
}

// harness runs a server over a pipe.
type harness struct {
	server *Server
	in     *io.PipeWriter
	out    *syncBuffer
	done   chan error
}

func startServer(t *testing.T, backend Backend) *harness {
	t.Helper()
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	cfg := DefaultServerConfig()
	cfg.DebounceDuration = 20 * time.Millisecond
	s, err := NewServer(bufio.NewReader(pr), bufio.NewWriter(out), backend, cfg)
	require.NoError(t, err)

	h := &harness{server: s, in: pw, out: out, done: make(chan error, 1)}
	go func() { h.done <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = pw.Close()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

func (h *harness) send(t *testing.T, msg string) {
	t.Helper()
	_, err := io.WriteString(h.in, msg)
	require.NoError(t, err)
}

// waitFor polls the output until a message satisfies ok.
func (h *harness) waitFor(t *testing.T, ok func(jsonRPCMessage) bool) jsonRPCMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range h.out.messages(t) {
			if ok(m) {
				return m
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no matching message in output:\n%s", h.out.String())
	return jsonRPCMessage{}
}

func isResponse(id int) func(jsonRPCMessage) bool {
	return func(m jsonRPCMessage) bool {
		f, ok := m.ID.(float64)
		return ok && int(f) == id && m.Method == ""
	}
}

func isDiagnostics(uri string) func(jsonRPCMessage) bool {
	return func(m jsonRPCMessage) bool {
		if m.Method != MethodTextDocumentPublishDiagnostics {
			return false
		}
		var p PublishDiagnosticsParams
		return json.Unmarshal(m.Params, &p) == nil && p.URI == uri
	}
}

// decode re-marshals a loosely typed result into v.
func decode(t *testing.T, from interface{}, v interface{}) {
	t.Helper()
	data, err := json.Marshal(from)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
