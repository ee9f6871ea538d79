package review

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Finding review statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// ReviewState represents persisted review state
type ReviewState struct {
	RunID      string                   `json:"run_id"`
	ReviewedAt string                   `json:"reviewed_at"`
	Reviewer   string                   `json:"reviewer"`
	Findings   map[string]FindingReview `json:"findings"`
}

// FindingReview is the decision on one finding, keyed by FindingID.
type FindingReview struct {
	Status  string `json:"status,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// SaveReviewState writes the model's decisions and comments to filePath.
func SaveReviewState(model *ReviewModel, runID string, filePath string) error {
	state := ReviewState{
		RunID:      runID,
		ReviewedAt: time.Now().UTC().Format(time.RFC3339),
		Reviewer:   reviewer(),
		Findings:   make(map[string]FindingReview),
	}

	for id := range model.accepted {
		state.Findings[id] = FindingReview{Status: StatusAccepted, Comment: model.comments[id]}
	}
	for id := range model.rejected {
		state.Findings[id] = FindingReview{Status: StatusRejected, Comment: model.comments[id]}
	}
	for id, c := range model.comments {
		if _, ok := state.Findings[id]; !ok {
			state.Findings[id] = FindingReview{Comment: c}
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	// Comments may hold sensitive notes.
	return os.WriteFile(filePath, data, 0600)
}

// LoadReviewState loads review state from a JSON file
func LoadReviewState(filePath string) (*ReviewState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var state ReviewState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing review state %s: %w", filePath, err)
	}
	if state.Findings == nil {
		state.Findings = make(map[string]FindingReview)
	}
	return &state, nil
}

// reviewer is CTRAP_REVIEWER, else the git user.email, else $USER@localhost.
func reviewer() string {
	if r := os.Getenv("CTRAP_REVIEWER"); r != "" {
		return r
	}
	if out, err := exec.Command("git", "config", "user.email").Output(); err == nil {
		if email := strings.TrimSpace(string(out)); email != "" {
			return email
		}
	}
	return os.Getenv("USER") + "@localhost"
}
