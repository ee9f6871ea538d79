package cache

import (
	"context"
	"errors"
	"testing"
)

type failingManager struct{ err error }

func (f failingManager) Get(context.Context, Key) (*Entry, error) { return nil, f.err }
func (f failingManager) Put(context.Context, *Entry) error        { return f.err }
func (f failingManager) Delete(context.Context, Key) error        { return f.err }
func (f failingManager) Clear(context.Context) error              { return f.err }

func TestTiered_WarmsFastTier(t *testing.T) {
	ctx := context.Background()
	fast := NewMemory()
	slow := NewLocalCache(t.TempDir(), 0)
	tiered := NewTiered(fast, slow)
	key := NewKey("a.c", []byte("x"), "fp")

	if err := slow.Put(ctx, &Entry{Key: key, Suppressed: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := fast.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatal("fast tier should start empty")
	}

	e, err := tiered.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if e.Suppressed != 3 {
		t.Errorf("unexpected entry %+v", e)
	}
	if _, err := fast.Get(ctx, key); err != nil {
		t.Errorf("expected fast tier to be warmed, got %v", err)
	}
}

func TestTiered_PutWritesBoth(t *testing.T) {
	ctx := context.Background()
	fast := NewMemory()
	slow := NewLocalCache(t.TempDir(), 0)
	tiered := NewTiered(fast, slow)
	key := NewKey("a.c", []byte("x"), "fp")

	if err := tiered.Put(ctx, &Entry{Key: key}); err != nil {
		t.Fatal(err)
	}
	if _, err := fast.Get(ctx, key); err != nil {
		t.Errorf("fast: %v", err)
	}
	if _, err := slow.Get(ctx, key); err != nil {
		t.Errorf("slow: %v", err)
	}

	if err := tiered.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := tiered.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected a miss after Clear, got %v", err)
	}
}

func TestTiered_SlowFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(NewMemory(), failingManager{err: errors.New("disk full")})
	key := NewKey("a.c", []byte("x"), "fp")

	if err := tiered.Put(ctx, &Entry{Key: key}); err != nil {
		t.Errorf("slow tier failures should be logged, got %v", err)
	}
	if _, err := tiered.Get(ctx, key); err != nil {
		t.Errorf("expected a fast tier hit, got %v", err)
	}
}

func TestTiered_FastOnly(t *testing.T) {
	tiered := NewTiered(NewMemory(), nil)
	if tiered.HasSlow() {
		t.Error("expected no slow tier")
	}
	if _, err := tiered.Get(context.Background(), NewKey("a.c", nil, "")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}
