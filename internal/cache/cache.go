// Package cache keeps analysis results keyed by file content and rule
// settings, in memory for long-lived processes and on disk for the CLI.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// ErrCacheMiss is returned by Manager.Get when no live entry exists.
var ErrCacheMiss = errors.New("cache miss")

type item[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
	hits      int64
}

func (e *item[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe in-memory cache with TTL and a size bound. When
// full, the oldest entry is evicted.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*item[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

func WithMaxSize(n int) Option { return func(o *options) { o.maxSize = n } }

// WithTTL sets the default time-to-live. Zero keeps entries forever.
func WithTTL(d time.Duration) Option { return func(o *options) { o.ttl = d } }

func withClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func New[V any](opts ...Option) *Cache[V] {
	o := options{maxSize: 1000, ttl: time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries: make(map[string]*item[V]),
		maxSize: o.maxSize,
		ttl:     o.ttl,
		now:     o.now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	now := c.now()
	e := &item[V]{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*item[V])
}

func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats holds cache statistics.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Evictions int64   `json:"evictions"`
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate := 0.0
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Evictions: c.evictions,
	}
}

// must be called with c.mu held
func (c *Cache[V]) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldest == "" || e.createdAt.Before(oldestAt) {
			oldest, oldestAt = k, e.createdAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
		c.evictions++
	}
}

// ContentHash is the hex sha256 of a file's bytes.
func ContentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Key identifies one analysis result: the same bytes at the same path
// checked under the same rule settings.
type Key struct {
	FileHash string `json:"file_hash"`
	Path     string `json:"path"`
	Settings string `json:"settings"`
	Version  string `json:"version,omitempty"`
}

// NewKey builds a key from file content and a registry fingerprint.
func NewKey(path string, content []byte, fingerprint string) Key {
	s := sha256.Sum256([]byte(fingerprint))
	return Key{
		FileHash: ContentHash(content),
		Path:     path,
		Settings: hex.EncodeToString(s[:]),
	}
}

// Hash is a deterministic digest of the key, used as the storage name.
func (k Key) Hash() string {
	b, _ := json.Marshal(k)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Entry is a cached per-file result.
type Entry struct {
	Key        Key           `json:"key"`
	Issues     []issue.Issue `json:"issues"`
	Suppressed int           `json:"suppressed,omitempty"`
	Timestamp  int64         `json:"timestamp"`
}

// Manager stores entries by key.
type Manager interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key Key) error
	Clear(ctx context.Context) error
}

// Memory adapts Cache to Manager.
type Memory struct {
	c *Cache[*Entry]
}

var _ Manager = (*Memory)(nil)

func NewMemory(opts ...Option) *Memory {
	return &Memory{c: New[*Entry](opts...)}
}

func (m *Memory) Get(ctx context.Context, key Key) (*Entry, error) {
	if e, ok := m.c.Get(key.Hash()); ok {
		return e, nil
	}
	return nil, ErrCacheMiss
}

func (m *Memory) Put(ctx context.Context, entry *Entry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = m.c.now().Unix()
	}
	m.c.Set(entry.Key.Hash(), entry)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	m.c.Delete(key.Hash())
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.c.Clear()
	return nil
}

func (m *Memory) Stats() Stats { return m.c.Stats() }
