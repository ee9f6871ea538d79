// Package store persists analysis runs: the SARIF log, the gate verdict
// and a queryable history of past runs.
package store

import (
	"context"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/sarif"
)

// Gate decisions.
const (
	DecisionMerge  = "merge"
	DecisionReview = "review"
	DecisionReject = "reject"
)

type Verdict struct {
	Decision         string                 `json:"decision"`
	Reason           string                 `json:"reason"`
	RelevantFindings []issue.Issue          `json:"relevant_findings,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

type Store interface {
	WriteSARIF(ctx context.Context, doc *sarif.Log) (string, error)
	WriteVerdict(ctx context.Context, sarifID string, verdict *Verdict) error
	ReadSARIF(ctx context.Context, id string) (*sarif.Log, error)
	ReadVerdict(ctx context.Context, sarifID string) (*Verdict, error)
	List(ctx context.Context) ([]string, error)
}
