package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Exporter writes a collector's contents as JSON, text or CSV.
type Exporter struct {
	collector *Collector
}

func NewExporter(c *Collector) *Exporter {
	return &Exporter{collector: c}
}

// Report is the JSON document written by ExportJSON.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Stats       Stats     `json:"stats"`
	Events      []Event   `json:"events"`
}

// ExportJSON writes stats and the most recent events to path.
func (e *Exporter) ExportJSON(path string) error {
	report := Report{
		GeneratedAt: time.Now(),
		Stats:       e.collector.Stats(),
		Events:      e.collector.Recent(1000),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteReport writes a human-readable summary.
func (e *Exporter) WriteReport(w io.Writer) error {
	s := e.collector.Stats()

	fmt.Fprintf(w, "ctrap analysis metrics\n")
	fmt.Fprintf(w, "Window: %s to %s\n\n", s.WindowStart.Format(time.RFC3339), s.WindowEnd.Format(time.RFC3339))

	fmt.Fprintf(w, "=== Summary ===\n")
	fmt.Fprintf(w, "Files:          %d\n", s.TotalFiles)
	fmt.Fprintf(w, "Errors:         %d (%.1f%%)\n", s.TotalErrors, safePercent(float64(s.TotalErrors), float64(s.TotalFiles)))
	fmt.Fprintf(w, "Issues:         %d\n", s.TotalIssues)
	fmt.Fprintf(w, "Rule failures:  %d\n", s.TotalFailures)
	fmt.Fprintf(w, "Issues/file:    %.2f\n\n", s.IssuesPerFile)

	fmt.Fprintf(w, "=== Latency ===\n")
	fmt.Fprintf(w, "Average:  %.1fms\n", s.AvgDurationMs)
	fmt.Fprintf(w, "Parse:    %.1fms\n", s.AvgParseMs)
	fmt.Fprintf(w, "P50:      %.1fms\n", s.P50DurationMs)
	fmt.Fprintf(w, "P95:      %.1fms\n", s.P95DurationMs)
	fmt.Fprintf(w, "P99:      %.1fms\n", s.P99DurationMs)
	fmt.Fprintf(w, "Max:      %.1fms\n\n", s.MaxDurationMs)

	fmt.Fprintf(w, "=== Cache ===\n")
	fmt.Fprintf(w, "Hits:     %d\n", s.CacheHits)
	fmt.Fprintf(w, "Misses:   %d\n", s.CacheMisses)
	fmt.Fprintf(w, "Hit rate: %.1f%%\n\n", s.CacheHitRate*100)

	fmt.Fprintf(w, "=== Throughput ===\n")
	fmt.Fprintf(w, "Files/min: %.2f\n", s.FilesPerMinute)

	if len(s.BySource) > 0 {
		fmt.Fprintf(w, "\n=== By source ===\n")
		names := make([]string, 0, len(s.BySource))
		for name := range s.BySource {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			src := s.BySource[name]
			fmt.Fprintf(w, "%s: %d files, %.1fms avg, %.1f%% errors\n",
				name, src.Count, src.AvgDurationMs, src.ErrorRate*100)
		}
	}
	return nil
}

var csvHeader = []string{
	"id", "timestamp", "source", "file", "file_size", "line_count", "rule_count",
	"parse_ms", "check_ms", "total_ms", "issues", "failures", "suppressed", "cache", "error",
}

// WriteCSV writes every retained event, one per row.
func (e *Exporter) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range e.collector.Recent(e.collector.maxEvents) {
		row := []string{
			ev.ID,
			ev.Timestamp.Format(time.RFC3339),
			string(ev.Source),
			ev.File,
			strconv.Itoa(ev.FileSize),
			strconv.Itoa(ev.LineCount),
			strconv.Itoa(ev.RuleCount),
			strconv.FormatInt(ev.ParseDuration.Milliseconds(), 10),
			strconv.FormatInt(ev.CheckDuration.Milliseconds(), 10),
			strconv.FormatInt(ev.TotalDuration.Milliseconds(), 10),
			strconv.Itoa(ev.IssueCount),
			strconv.Itoa(ev.FailureCount),
			strconv.Itoa(ev.Suppressed),
			string(ev.Cache),
			ev.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func safePercent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}
