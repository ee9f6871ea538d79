package lsp

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// WatcherConfig holds configuration for the debounced watcher
type WatcherConfig struct {
	DebounceDuration time.Duration
	ParallelFiles    int
	WatchPatterns    []string
	IgnorePatterns   []string
}

// DefaultWatcherConfig watches C and C++ sources and headers.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDuration: 300 * time.Millisecond,
		ParallelFiles:    3,
		WatchPatterns:    []string{"**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp", "**/*.cc", "**/*.cxx"},
		IgnorePatterns:   []string{"**/.git/**", "**/build/**", "**/.ctrap/**"},
	}
}

// Matcher decides which paths are analyzed.
type Matcher struct {
	watch  []glob.Glob
	ignore []glob.Glob
}

// NewMatcher compiles watch and ignore globs. "**" crosses directories and
// "*" does not.
func NewMatcher(watch, ignore []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range watch {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("watch pattern %q: %w", p, err)
		}
		m.watch = append(m.watch, g)
	}
	for _, p := range ignore {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		m.ignore = append(m.ignore, g)
	}
	return m, nil
}

// Match reports whether path (a filesystem path or file:// URI) matches a
// watch pattern and no ignore pattern. With no watch patterns everything
// not ignored matches.
func (m *Matcher) Match(path string) bool {
	p := filepath.ToSlash(strings.TrimPrefix(path, "file://"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, g := range m.ignore {
		if g.Match(p) {
			return false
		}
	}
	if len(m.watch) == 0 {
		return true
	}
	for _, g := range m.watch {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// ShouldWatchPath compiles the patterns and matches path. Invalid patterns
// never match.
func ShouldWatchPath(path string, watchPatterns, ignorePatterns []string) bool {
	m, err := NewMatcher(watchPatterns, ignorePatterns)
	if err != nil {
		return false
	}
	return m.Match(path)
}

// DebouncedWatcher batches file changes and triggers analysis after quiet period
type DebouncedWatcher struct {
	config    WatcherConfig
	matcher   *Matcher
	onTrigger func(files []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// NewDebouncedWatcher creates a watcher. Zero config fields take the
// defaults; invalid patterns are an error.
func NewDebouncedWatcher(config WatcherConfig, onTrigger func(files []string)) (*DebouncedWatcher, error) {
	if onTrigger == nil {
		return nil, fmt.Errorf("onTrigger callback cannot be nil")
	}
	def := DefaultWatcherConfig()
	if config.DebounceDuration <= 0 {
		config.DebounceDuration = def.DebounceDuration
	}
	if config.ParallelFiles <= 0 {
		config.ParallelFiles = def.ParallelFiles
	}
	m, err := NewMatcher(config.WatchPatterns, config.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	return &DebouncedWatcher{
		config:    config,
		matcher:   m,
		onTrigger: onTrigger,
		pending:   make(map[string]struct{}),
	}, nil
}

// UpdateConfig replaces the non-zero fields of the configuration. On an
// invalid pattern nothing changes.
func (w *DebouncedWatcher) UpdateConfig(config WatcherConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.config
	if config.DebounceDuration > 0 {
		next.DebounceDuration = config.DebounceDuration
	}
	if config.ParallelFiles > 0 {
		next.ParallelFiles = config.ParallelFiles
	}
	if len(config.WatchPatterns) > 0 {
		next.WatchPatterns = config.WatchPatterns
	}
	if len(config.IgnorePatterns) > 0 {
		next.IgnorePatterns = config.IgnorePatterns
	}
	m, err := NewMatcher(next.WatchPatterns, next.IgnorePatterns)
	if err != nil {
		return err
	}
	w.config, w.matcher = next, m
	return nil
}

func (w *DebouncedWatcher) Config() WatcherConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// FileChanged queues a file and restarts the quiet period.
func (w *DebouncedWatcher) FileChanged(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.DebounceDuration, w.flush)
}

func (w *DebouncedWatcher) flush() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]struct{})
	parallel := w.config.ParallelFiles
	w.mu.Unlock()

	if parallel <= 1 || len(files) <= parallel {
		w.onTrigger(files)
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, parallel)
	for _, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(file string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.onTrigger([]string{file})
		}(f)
	}
	wg.Wait()
}

// Stop drops pending changes. It is safe to call more than once.
func (w *DebouncedWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// ShouldWatch matches path against the current patterns.
func (w *DebouncedWatcher) ShouldWatch(path string) bool {
	w.mu.Lock()
	m := w.matcher
	w.mu.Unlock()
	return m.Match(path)
}
