// Package metrics collects per-file analysis events in memory and derives
// latency, cache and throughput statistics from them.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Source identifies which front end ran an analysis.
type Source string

const (
	SourceCLI    Source = "cli"
	SourceLSP    Source = "lsp"
	SourceServer Source = "server"
	SourceMCP    Source = "mcp"
)

// CacheResult is the outcome of a result-cache lookup.
type CacheResult string

const (
	CacheHit    CacheResult = "hit"
	CacheMiss   CacheResult = "miss"
	CacheBypass CacheResult = "bypass"
)

// Event captures one file's analysis.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`

	File      string `json:"file"`
	FileSize  int    `json:"file_size"`
	LineCount int    `json:"line_count"`
	RuleCount int    `json:"rule_count"`

	ParseDuration time.Duration `json:"parse_duration"`
	CheckDuration time.Duration `json:"check_duration"`
	TotalDuration time.Duration `json:"total_duration"`

	IssueCount   int         `json:"issue_count"`
	FailureCount int         `json:"failure_count"`
	Suppressed   int         `json:"suppressed"`
	Cache        CacheResult `json:"cache"`

	Error string `json:"error,omitempty"`
}

// Stats is an aggregate over the collector's events.
type Stats struct {
	TotalFiles    int64 `json:"total_files"`
	TotalErrors   int64 `json:"total_errors"`
	TotalIssues   int64 `json:"total_issues"`
	TotalFailures int64 `json:"total_failures"`

	AvgDurationMs float64 `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
	AvgParseMs    float64 `json:"avg_parse_ms"`

	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	FilesPerMinute float64 `json:"files_per_minute"`
	IssuesPerFile  float64 `json:"issues_per_file"`

	BySource map[string]*SourceStats `json:"by_source"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// SourceStats breaks Stats down by front end.
type SourceStats struct {
	Count         int64   `json:"count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

type counters struct {
	files    atomic.Int64
	errors   atomic.Int64
	issues   atomic.Int64
	failures atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// Collector stores events up to a bound, dropping the oldest tenth when
// the bound is exceeded. Counters cover every event ever recorded; latency
// figures cover events inside the window.
type Collector struct {
	mu       sync.RWMutex
	events   []Event
	counters counters

	maxEvents  int
	windowSize time.Duration
	startTime  time.Time
	now        func() time.Time
}

type CollectorOption func(*Collector)

func WithMaxEvents(n int) CollectorOption {
	return func(c *Collector) { c.maxEvents = n }
}

func WithWindowSize(d time.Duration) CollectorOption {
	return func(c *Collector) { c.windowSize = d }
}

func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		maxEvents:  10000,
		windowSize: time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.now()
	return c
}

func (c *Collector) Record(e Event) {
	c.counters.files.Add(1)
	c.counters.issues.Add(int64(e.IssueCount))
	c.counters.failures.Add(int64(e.FailureCount))
	if e.Error != "" {
		c.counters.errors.Add(1)
	}
	switch e.Cache {
	case CacheHit:
		c.counters.hits.Add(1)
	case CacheMiss:
		c.counters.misses.Add(1)
	}

	if c.maxEvents <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	if len(c.events) > c.maxEvents {
		drop := c.maxEvents / 10
		if drop == 0 {
			drop = 1
		}
		c.events = append([]Event(nil), c.events[drop:]...)
	}
}

// Stats computes aggregates over the current window.
func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	windowStart := now.Add(-c.windowSize)
	s := Stats{
		TotalFiles:    c.counters.files.Load(),
		TotalErrors:   c.counters.errors.Load(),
		TotalIssues:   c.counters.issues.Load(),
		TotalFailures: c.counters.failures.Load(),
		CacheHits:     c.counters.hits.Load(),
		CacheMisses:   c.counters.misses.Load(),
		BySource:      map[string]*SourceStats{},
		WindowStart:   windowStart,
		WindowEnd:     now,
	}
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(lookups)
	}
	if s.TotalFiles > 0 {
		s.IssuesPerFile = float64(s.TotalIssues) / float64(s.TotalFiles)
	}
	if elapsed := now.Sub(c.startTime).Minutes(); elapsed > 0 {
		s.FilesPerMinute = float64(s.TotalFiles) / elapsed
	}

	var window []Event
	for _, e := range c.events {
		if !e.Timestamp.Before(windowStart) {
			window = append(window, e)
		}
	}
	if len(window) == 0 {
		return s
	}

	durations := make([]float64, 0, len(window))
	var sum, parse float64
	errs := map[Source]int64{}
	for _, e := range window {
		ms := millis(e.TotalDuration)
		durations = append(durations, ms)
		sum += ms
		parse += millis(e.ParseDuration)

		src := s.BySource[string(e.Source)]
		if src == nil {
			src = &SourceStats{}
			s.BySource[string(e.Source)] = src
		}
		src.Count++
		src.AvgDurationMs += ms
		if e.Error != "" {
			errs[e.Source]++
		}
	}
	n := float64(len(window))
	s.AvgDurationMs = sum / n
	s.AvgParseMs = parse / n

	sort.Float64s(durations)
	s.P50DurationMs = percentile(durations, 0.50)
	s.P95DurationMs = percentile(durations, 0.95)
	s.P99DurationMs = percentile(durations, 0.99)
	s.MaxDurationMs = durations[len(durations)-1]

	for name, src := range s.BySource {
		src.AvgDurationMs /= float64(src.Count)
		src.ErrorRate = float64(errs[Source(name)]) / float64(src.Count)
	}
	return s
}

// Recent returns copies of the last n events, oldest first.
func (c *Collector) Recent(n int) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.events) {
		n = len(c.events)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, c.events[len(c.events)-n:])
	return out
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.counters = counters{}
	c.startTime = c.now()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// percentile expects sorted input; p is in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
