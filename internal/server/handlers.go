package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chris-regnier/ctrap/internal/input"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

type analyzeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type analyzeRequest struct {
	Files       []analyzeFile `json:"files"`
	MinSeverity string        `json:"min_severity,omitempty"`
}

type analyzeResponse struct {
	Issues     []issue.Issue   `json:"issues"`
	Summary    issue.Summary   `json:"summary"`
	Failures   []rules.Failure `json:"failures,omitempty"`
	Files      int             `json:"files"`
	CacheHits  int             `json:"cache_hits"`
	Suppressed int             `json:"suppressed"`
	Verdict    *store.Verdict  `json:"verdict,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"rules":   len(s.reg.IDs()),
	})
}

// handleListRules supports ?category=, ?q= (search) and ?enabled=true|false.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var enabledFilter *bool
	if v := q.Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "enabled must be true or false")
			return
		}
		enabledFilter = &b
	}

	var matches map[string]bool
	if term := strings.TrimSpace(q.Get("q")); term != "" {
		matches = map[string]bool{}
		for _, rule := range s.reg.Search(term) {
			matches[rule.Meta().ID] = true
		}
	}
	category := strings.TrimSpace(q.Get("category"))

	out := []rules.Info{}
	for _, info := range s.reg.Infos() {
		if category != "" && !strings.EqualFold(info.Category, category) {
			continue
		}
		if matches != nil && !matches[info.ID] {
			continue
		}
		if enabledFilter != nil && info.Enabled != *enabledFilter {
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out, "count": len(out)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	info, err := s.reg.Info(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	out := []rules.TemplateInfo{}
	for _, t := range s.reg.Templates() {
		info, err := s.reg.TemplateInfo(t.Key)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.reg.ApplyTemplate(name); err != nil {
		if errors.Is(err, rules.ErrUnknownTemplate) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	slog.Info("template applied", "template", name)
	writeJSON(w, http.StatusOK, map[string]any{
		"template": rules.NormalizeTemplateName(name),
		"enabled":  len(s.reg.Enabled()),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "files must not be empty")
		return
	}
	if len(req.Files) > s.maxFiles {
		writeError(w, http.StatusRequestEntityTooLarge, "too_many_files",
			fmt.Sprintf("at most %d files per request", s.maxFiles))
		return
	}
	minSeverity := issue.Suggestion
	if req.MinSeverity != "" {
		sev, err := issue.ParseSeverity(req.MinSeverity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		minSeverity = sev
	}

	artifacts := make([]input.Artifact, 0, len(req.Files))
	for i, f := range req.Files {
		if strings.TrimSpace(f.Path) == "" {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("files[%d].path is required", i))
			return
		}
		artifacts = append(artifacts, input.Artifact{
			Path:     f.Path,
			Content:  f.Content,
			Encoding: "utf-8",
			Kind:     input.KindFile,
		})
	}

	ctx := r.Context()
	res, err := s.analyzer.Analyze(ctx, artifacts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis_failed", err.Error())
		return
	}

	issues := issue.Filter(res.Issues, minSeverity)
	if issues == nil {
		issues = []issue.Issue{}
	}
	resp := analyzeResponse{
		Issues:     issues,
		Summary:    issue.Summarize(issues),
		Failures:   res.Failures,
		Files:      res.Files,
		CacheHits:  res.CacheHits,
		Suppressed: res.Suppressed,
	}

	if s.evaluator != nil {
		asm := sarif.NewAssembler(s.version).
			WithRules(s.reg.Rules()).
			WithInputScope("files").
			AddIssues(res.Issues).
			AddFailures(res.Failures)
		for _, f := range req.Files {
			asm.WithSource(f.Path, strings.Split(f.Content, "\n"))
		}
		log, err := asm.Build()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "sarif_failed", err.Error())
			return
		}
		verdict, err := s.evaluator.Evaluate(ctx, log)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "evaluation_failed", err.Error())
			return
		}
		resp.Verdict = verdict
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Document())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	problems, err := s.reg.ImportConfig(r.Body, rules.FormatJSON)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		msgs = append(msgs, p.Error())
	}
	if len(msgs) > 0 {
		slog.Warn("config imported with problems", "problems", len(msgs))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"problems":    msgs,
		"enabled":     len(s.reg.Enabled()),
		"fingerprint": s.reg.Fingerprint(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "not_found", "metrics collection is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.collector.Stats())
}
