package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// Run is one row of the history table.
type Run struct {
	ID         string         `json:"id"`
	Time       time.Time      `json:"time"`
	Template   string         `json:"template,omitempty"`
	Files      int            `json:"files"`
	Total      int            `json:"total"`
	Critical   int            `json:"critical"`
	Warning    int            `json:"warning"`
	Suggestion int            `json:"suggestion"`
	Decision   string         `json:"decision,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	RuleCounts map[string]int `json:"rule_counts,omitempty"`
}

// TrendPoint is the number of findings of one rule in one run.
type TrendPoint struct {
	RunID string    `json:"run_id"`
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// SQLiteHistory records runs in a SQLite database so trends can be queried
// across runs.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the database at path and applies
// the schema.
func OpenHistory(path string) (*SQLiteHistory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared between calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateHistory(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating history: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

func migrateHistory(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			template TEXT,
			files INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			critical INTEGER NOT NULL DEFAULT 0,
			warning INTEGER NOT NULL DEFAULT 0,
			suggestion INTEGER NOT NULL DEFAULT 0,
			decision TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS rule_counts (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rule_id TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, rule_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases database resources.
func (h *SQLiteHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// NewRun summarizes issues into a history row.
func NewRun(id string, at time.Time, files int, issues []issue.Issue) Run {
	s := issue.Summarize(issues)
	return Run{
		ID:         id,
		Time:       at,
		Files:      files,
		Total:      s.Total,
		Critical:   s.BySeverity[issue.Critical.String()],
		Warning:    s.BySeverity[issue.Warning.String()],
		Suggestion: s.BySeverity[issue.Suggestion.String()],
		RuleCounts: s.ByRule,
	}
}

// Record inserts or replaces a run and its per-rule counts.
func (h *SQLiteHistory) Record(ctx context.Context, run Run) (err error) {
	ctx, span := storeTracer.Start(ctx, "record run")
	defer span.End()
	defer func() {
		if err != nil {
			fail(span, err)
		}
	}()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, template, files, total, critical, warning, suggestion, decision, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   created_at=excluded.created_at,
		   template=excluded.template,
		   files=excluded.files,
		   total=excluded.total,
		   critical=excluded.critical,
		   warning=excluded.warning,
		   suggestion=excluded.suggestion,
		   decision=excluded.decision,
		   duration_ms=excluded.duration_ms`,
		run.ID,
		run.Time.UTC().Format(time.RFC3339Nano),
		run.Template,
		run.Files,
		run.Total,
		run.Critical,
		run.Warning,
		run.Suggestion,
		run.Decision,
		run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rule_counts WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for rule, n := range run.RuleCounts {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO rule_counts (run_id, rule_id, count) VALUES (?, ?, ?)`, run.ID, rule, n); err != nil {
			return fmt.Errorf("inserting rule count %s: %w", rule, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("ctrap.store.id", run.ID), attribute.Int("ctrap.store.total", run.Total))
	return nil
}

// SetDecision updates the gate decision of a recorded run.
func (h *SQLiteHistory) SetDecision(ctx context.Context, id, decision string) error {
	res, err := h.db.ExecContext(ctx, `UPDATE runs SET decision = ? WHERE id = ?`, decision, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Recent returns up to n runs, newest first, without rule counts.
func (h *SQLiteHistory) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, created_at, COALESCE(template, ''), files, total, critical, warning, suggestion, COALESCE(decision, ''), duration_ms
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &created, &r.Template, &r.Files, &r.Total,
			&r.Critical, &r.Warning, &r.Suggestion, &r.Decision, &r.DurationMS); err != nil {
			return nil, err
		}
		r.Time, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Trend returns the count of one rule's findings in every run, oldest
// first. Runs without findings for the rule report zero.
func (h *SQLiteHistory) Trend(ctx context.Context, ruleID string) ([]TrendPoint, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT r.id, r.created_at, COALESCE(c.count, 0)
		 FROM runs r LEFT JOIN rule_counts c ON c.run_id = r.id AND c.rule_id = ?
		 ORDER BY r.created_at ASC, r.id ASC`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		var created string
		if err := rows.Scan(&p.RunID, &created, &p.Count); err != nil {
			return nil, err
		}
		p.Time, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, p)
	}
	return out, rows.Err()
}
