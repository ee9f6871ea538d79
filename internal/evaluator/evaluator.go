// Package evaluator turns a SARIF log into a gate decision using rego
// policies.
package evaluator

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

//go:embed default.rego
var defaultPolicy string

const decisionQuery = "data.ctrap.gate.decision"

type Evaluator struct {
	query rego.PreparedEvalQuery
}

// NewEvaluator creates an evaluator. If policyDir is empty or holds no .rego
// files the default policy is used; otherwise every .rego file in the
// directory is loaded in place of it.
func NewEvaluator(ctx context.Context, policyDir string) (*Evaluator, error) {
	var custom []func(*rego.Rego)
	if policyDir != "" {
		entries, err := os.ReadDir(policyDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading policy dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".rego") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(policyDir, e.Name()))
			if err != nil {
				return nil, err
			}
			custom = append(custom, rego.Module(e.Name(), string(data)))
		}
	}

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	if len(custom) > 0 {
		opts = append(opts, custom...)
	} else {
		opts = append(opts, rego.Module("default.rego", defaultPolicy))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing rego query: %w", err)
	}
	return &Evaluator{query: query}, nil
}

// Evaluate runs the policy over log. A policy that yields no decision
// results in review.
func (e *Evaluator) Evaluate(ctx context.Context, log *sarif.Log) (*store.Verdict, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating rego: %w", err)
	}

	decision := store.DecisionReview
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if d, ok := results[0].Expressions[0].Value.(string); ok {
			decision = d
		}
	}

	issues := sarif.ToIssues(log)
	var relevant []issue.Issue
	for _, is := range issues {
		switch {
		case decision == store.DecisionReject && is.Severity == issue.Critical:
			relevant = append(relevant, is)
		case decision == store.DecisionReview && is.Severity.Rank() >= issue.Warning.Rank():
			relevant = append(relevant, is)
		}
	}

	s := issue.Summarize(issues)
	return &store.Verdict{
		Decision: decision,
		Reason: fmt.Sprintf("%s: %d findings (%d critical, %d warning, %d suggestion)",
			decision, s.Total,
			s.BySeverity[issue.Critical.String()],
			s.BySeverity[issue.Warning.String()],
			s.BySeverity[issue.Suggestion.String()]),
		RelevantFindings: relevant,
		Metadata: map[string]interface{}{
			"score": s.Score,
		},
	}, nil
}
