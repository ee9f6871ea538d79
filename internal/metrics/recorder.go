package metrics

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Recorder stamps events with a source and feeds them to a Collector.
type Recorder struct {
	collector *Collector
	source    Source
}

func NewRecorder(collector *Collector, source Source) *Recorder {
	return &Recorder{collector: collector, source: source}
}

// NoOpRecorder returns a recorder whose collector keeps no events.
func NoOpRecorder() *Recorder {
	return NewRecorder(NewCollector(WithMaxEvents(0)), "")
}

func (r *Recorder) Collector() *Collector { return r.collector }

// FileRun builds one Event while a file is analyzed. It is used by a single
// goroutine.
type FileRun struct {
	rec     *Recorder
	event   Event
	started time.Time
	parsed  time.Time
}

// StartFile begins timing the analysis of one file.
func (r *Recorder) StartFile(path string, content []byte) *FileRun {
	now := time.Now()
	return &FileRun{
		rec: r,
		event: Event{
			ID:        newID(),
			Timestamp: now,
			Source:    r.source,
			File:      path,
			FileSize:  len(content),
			LineCount: bytes.Count(content, []byte("\n")) + 1,
			Cache:     CacheBypass,
		},
		started: now,
	}
}

// Parsed marks the end of parsing.
func (f *FileRun) Parsed() *FileRun {
	f.parsed = time.Now()
	f.event.ParseDuration = f.parsed.Sub(f.started)
	return f
}

func (f *FileRun) WithCache(result CacheResult) *FileRun {
	f.event.Cache = result
	return f
}

func (f *FileRun) WithRules(n int) *FileRun {
	f.event.RuleCount = n
	return f
}

// Complete records the event.
func (f *FileRun) Complete(issues, failures, suppressed int) {
	f.event.IssueCount = issues
	f.event.FailureCount = failures
	f.event.Suppressed = suppressed
	f.finish()
}

// CompleteWithError records the event as failed.
func (f *FileRun) CompleteWithError(err error) {
	f.event.Error = err.Error()
	f.finish()
}

func (f *FileRun) finish() {
	end := time.Now()
	f.event.TotalDuration = end.Sub(f.started)
	if !f.parsed.IsZero() {
		f.event.CheckDuration = end.Sub(f.parsed)
	}
	f.rec.collector.Record(f.event)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type contextKey struct{}

// WithRecorder attaches a recorder to ctx.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// RecorderFromContext returns the attached recorder, or a no-op one.
func RecorderFromContext(ctx context.Context) *Recorder {
	if r, ok := ctx.Value(contextKey{}).(*Recorder); ok {
		return r
	}
	return NoOpRecorder()
}
