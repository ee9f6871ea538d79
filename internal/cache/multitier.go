package cache

import (
	"context"
	"errors"
	"log/slog"
)

// Tiered checks a fast tier before a slow one, warming the fast tier on slow
// hits. Writes go to both tiers; a failed slow write is logged, not returned.
type Tiered struct {
	fast Manager
	slow Manager // may be nil
}

var _ Manager = (*Tiered)(nil)

func NewTiered(fast, slow Manager) *Tiered {
	return &Tiered{fast: fast, slow: slow}
}

func (t *Tiered) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, err := t.fast.Get(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		slog.Warn("fast cache tier failed", "err", err)
	}
	if t.slow == nil {
		return nil, ErrCacheMiss
	}

	entry, err = t.slow.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := t.fast.Put(ctx, entry); err != nil {
		slog.Warn("warming fast cache tier", "err", err)
	}
	return entry, nil
}

func (t *Tiered) Put(ctx context.Context, entry *Entry) error {
	if err := t.fast.Put(ctx, entry); err != nil {
		return err
	}
	if t.slow != nil {
		if err := t.slow.Put(ctx, entry); err != nil {
			slog.Warn("writing slow cache tier", "err", err)
		}
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key Key) error {
	if err := t.fast.Delete(ctx, key); err != nil {
		return err
	}
	if t.slow != nil {
		return t.slow.Delete(ctx, key)
	}
	return nil
}

func (t *Tiered) Clear(ctx context.Context) error {
	if err := t.fast.Clear(ctx); err != nil {
		return err
	}
	if t.slow != nil {
		return t.slow.Clear(ctx)
	}
	return nil
}

// HasSlow reports whether a second tier is configured.
func (t *Tiered) HasSlow() bool { return t.slow != nil }
