package lsp

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	def := DefaultWatcherConfig()
	m, err := NewMatcher(def.WatchPatterns, def.IgnorePatterns)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"file:///home/dev/proj/src/main.c", true},
		{"/home/dev/proj/include/util.h", true},
		{"main.c", true},
		{"/home/dev/proj/README.md", false},
		{"/home/dev/proj/.git/hooks/x.c", false},
		{"/home/dev/proj/build/gen.c", false},
		{"/home/dev/proj/.ctrap/cache/a.c", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.path), tt.path)
	}
}

func TestMatcher_NoWatchPatterns(t *testing.T) {
	assert.True(t, ShouldWatchPath("/a/b.txt", nil, []string{"**/vendor/**"}))
	assert.False(t, ShouldWatchPath("/a/vendor/b.c", nil, []string{"**/vendor/**"}))
	assert.False(t, ShouldWatchPath("/a/b.c", []string{"[unclosed"}, nil))
}

func TestDebouncedWatcher_BatchesChanges(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{}, 1)

	w, err := NewDebouncedWatcher(WatcherConfig{DebounceDuration: 30 * time.Millisecond}, func(files []string) {
		mu.Lock()
		batches = append(batches, files)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer w.Stop()

	w.FileChanged("a.c")
	w.FileChanged("b.c")
	w.FileChanged("a.c")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	got := append([]string(nil), batches[0]...)
	sort.Strings(got)
	assert.Equal(t, []string{"a.c", "b.c"}, got)
}

func TestDebouncedWatcher_StopDropsPending(t *testing.T) {
	fired := make(chan struct{}, 1)
	w, err := NewDebouncedWatcher(WatcherConfig{DebounceDuration: 20 * time.Millisecond}, func([]string) {
		fired <- struct{}{}
	})
	require.NoError(t, err)

	w.FileChanged("a.c")
	w.Stop()
	w.Stop()
	w.FileChanged("b.c")

	select {
	case <-fired:
		t.Fatal("a stopped watcher should not fire")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDebouncedWatcher_UpdateConfig(t *testing.T) {
	w, err := NewDebouncedWatcher(DefaultWatcherConfig(), func([]string) {})
	require.NoError(t, err)

	require.NoError(t, w.UpdateConfig(WatcherConfig{DebounceDuration: time.Second, WatchPatterns: []string{"**/*.txt"}}))
	cfg := w.Config()
	assert.Equal(t, time.Second, cfg.DebounceDuration)
	assert.Equal(t, 3, cfg.ParallelFiles)
	assert.True(t, w.ShouldWatch("/x/notes.txt"))
	assert.False(t, w.ShouldWatch("/x/main.c"))

	assert.Error(t, w.UpdateConfig(WatcherConfig{IgnorePatterns: []string{"[bad"}}))
	assert.True(t, w.ShouldWatch("/x/notes.txt"), "a rejected update should keep the old patterns")
}

func TestNewDebouncedWatcher_Errors(t *testing.T) {
	_, err := NewDebouncedWatcher(DefaultWatcherConfig(), nil)
	assert.Error(t, err)
	_, err = NewDebouncedWatcher(WatcherConfig{WatchPatterns: []string{"[bad"}}, func([]string) {})
	assert.Error(t, err)
}
