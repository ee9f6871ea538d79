package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/checks"
	"github.com/chris-regnier/ctrap/internal/evaluator"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/store"
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

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *rules.Registry) {
	t.Helper()
	reg := checks.NewRegistry()
	require.NoError(t, reg.ApplyTemplate("c_traps"))
	ts := httptest.NewServer(New(reg, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func do(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func analyzeBody(t *testing.T, files map[string]string, extra map[string]any) string {
	t.Helper()
	var list []analyzeFile
	for p, c := range files {
		list = append(list, analyzeFile{Path: p, Content: c})
	}
	payload := map[string]any{"files": list}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	ts, reg := newTestServer(t, WithVersion("1.2.3"))
	resp := do(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.EqualValues(t, len(reg.IDs()), body["rules"])
}

func TestListRules(t *testing.T) {
	ts, reg := newTestServer(t)

	type listBody struct {
		Rules []rules.Info `json:"rules"`
		Count int          `json:"count"`
	}

	all := decode[listBody](t, do(t, http.MethodGet, ts.URL+"/rules", ""))
	assert.Equal(t, len(reg.IDs()), all.Count)

	logic := decode[listBody](t, do(t, http.MethodGet, ts.URL+"/rules?category=logic", ""))
	require.NotEmpty(t, logic.Rules)
	for _, r := range logic.Rules {
		assert.Equal(t, "logic", r.Category)
	}

	enabled := decode[listBody](t, do(t, http.MethodGet, ts.URL+"/rules?enabled=true", ""))
	assert.Equal(t, len(reg.Enabled()), enabled.Count)

	search := decode[listBody](t, do(t, http.MethodGet, ts.URL+"/rules?q=L001", ""))
	require.Len(t, search.Rules, 1)
	assert.Equal(t, "L001", search.Rules[0].ID)

	resp := do(t, http.MethodGet, ts.URL+"/rules?enabled=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRule(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/rules/c001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[rules.Info](t, resp)
	assert.Equal(t, "C001", info.ID)
	assert.True(t, info.Enabled)

	resp = do(t, http.MethodGet, ts.URL+"/rules/X999", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorBody](t, resp).Error.Code)
}

func TestTemplates(t *testing.T) {
	ts, reg := newTestServer(t)

	body := decode[struct {
		Templates []rules.TemplateInfo `json:"templates"`
	}](t, do(t, http.MethodGet, ts.URL+"/templates", ""))
	var keys []string
	for _, tmpl := range body.Templates {
		keys = append(keys, tmpl.Key)
	}
	assert.Contains(t, keys, "beginner")
	assert.Contains(t, keys, "enterprise")

	resp := do(t, http.MethodPost, ts.URL+"/templates/beginner/apply", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tmpl, ok := reg.Template("beginner")
	require.True(t, ok)
	for _, id := range reg.IDs() {
		s, _ := reg.Settings(id)
		assert.Equal(t, tmpl.Includes(id), s.Enabled, id)
	}

	resp = do(t, http.MethodPost, ts.URL+"/templates/nope/apply", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyze(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/analyze", analyzeBody(t, map[string]string{"main.c": buggy}, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[analyzeResponse](t, resp)

	lines := map[string]int{}
	for _, is := range body.Issues {
		lines[is.RuleID] = is.Line
	}
	assert.Equal(t, 4, lines["C001"])
	assert.Equal(t, 5, lines["L001"])
	assert.Equal(t, len(body.Issues), body.Summary.Total)
	assert.Equal(t, 1, body.Files)
	assert.Nil(t, body.Verdict)
}

func TestAnalyze_MinSeverityAndVerdict(t *testing.T) {
	ev, err := evaluator.NewEvaluator(context.Background(), "")
	require.NoError(t, err)
	ts, _ := newTestServer(t, WithEvaluator(ev))

	resp := do(t, http.MethodPost, ts.URL+"/analyze",
		analyzeBody(t, map[string]string{"main.c": buggy}, map[string]any{"min_severity": "critical"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[analyzeResponse](t, resp)
	require.NotEmpty(t, body.Issues)
	for _, is := range body.Issues {
		assert.Equal(t, "Critical", is.Severity.String())
	}
	require.NotNil(t, body.Verdict)
	assert.Equal(t, store.DecisionReject, body.Verdict.Decision)

	clean := decode[analyzeResponse](t, do(t, http.MethodPost, ts.URL+"/analyze",
		analyzeBody(t, map[string]string{"ok.c": "int main(void) { return 0; }\n"}, nil)))
	assert.Empty(t, clean.Issues)
	require.NotNil(t, clean.Verdict)
	assert.Equal(t, store.DecisionMerge, clean.Verdict.Decision)
}

func TestAnalyze_CacheAndMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	ts, _ := newTestServer(t, WithCollector(collector), WithCache(cache.NewMemory()))

	payload := analyzeBody(t, map[string]string{"main.c": buggy}, nil)
	first := decode[analyzeResponse](t, do(t, http.MethodPost, ts.URL+"/analyze", payload))
	second := decode[analyzeResponse](t, do(t, http.MethodPost, ts.URL+"/analyze", payload))
	assert.Equal(t, 0, first.CacheHits)
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, first.Issues, second.Issues)

	stats := decode[metrics.Stats](t, do(t, http.MethodGet, ts.URL+"/metrics", ""))
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestMetrics_Disabled(t *testing.T) {
	ts, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/metrics", "").StatusCode)
}

func TestAnalyze_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, WithMaxBodyBytes(256), WithMaxFiles(1))

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty body", "", http.StatusBadRequest, "bad_request"},
		{"invalid json", "{", http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"files":[],"extra":1}`, http.StatusBadRequest, "bad_request"},
		{"no files", `{"files":[]}`, http.StatusBadRequest, "bad_request"},
		{"missing path", `{"files":[{"content":"int x;"}]}`, http.StatusBadRequest, "bad_request"},
		{"bad severity", `{"files":[{"path":"a.c","content":""}],"min_severity":"loud"}`, http.StatusBadRequest, "bad_request"},
		{"too many files", `{"files":[{"path":"a.c","content":""},{"path":"b.c","content":""}]}`, http.StatusRequestEntityTooLarge, "too_many_files"},
		{"too large", `{"files":[{"path":"a.c","content":"` + strings.Repeat("x", 512) + `"}]}`, http.StatusRequestEntityTooLarge, "request_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/analyze", tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, decode[errorBody](t, resp).Error.Code)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ts, reg := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exported, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.NoError(t, reg.ApplyTemplate("enterprise"))
	require.NotEqual(t, len(reg.IDs()), 0)

	resp = do(t, http.MethodPut, ts.URL+"/config", string(exported))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Empty(t, body["problems"])

	var after bytes.Buffer
	require.NoError(t, reg.ExportConfig(&after, rules.FormatJSON))
	assert.JSONEq(t, string(exported), after.String())
}

func TestPutConfig_Problems(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/config",
		`{"version":"1.0","rule_settings":{"X999":{"enabled":true,"config":{}}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Problems []string `json:"problems"`
	}](t, resp)
	require.Len(t, body.Problems, 1)
	assert.Contains(t, body.Problems[0], "X999")

	resp = do(t, http.MethodPut, ts.URL+"/config", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotFoundAndMethod(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorBody](t, resp).Error.Code)

	resp = do(t, http.MethodDelete, ts.URL+"/rules", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := New(checks.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
