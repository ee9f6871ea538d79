package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var cacheTracer = otel.Tracer("github.com/chris-regnier/ctrap/internal/cache")

// LocalCache persists entries as JSON files. Entries older than the TTL
// read as misses.
type LocalCache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
}

var _ Manager = (*LocalCache)(nil)

func NewLocalCache(dir string, ttl time.Duration) *LocalCache {
	return &LocalCache{storage: NewDirStorage(dir), ttl: ttl, now: time.Now}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *LocalCache) Get(ctx context.Context, key Key) (*Entry, error) {
	ctx, span := cacheTracer.Start(ctx, "cache lookup")
	defer span.End()

	hash := key.Hash()
	span.SetAttributes(attribute.String("ctrap.cache.key", hash))

	data, err := c.storage.Get(ctx, hash)
	if errors.Is(err, ErrCacheMiss) {
		span.SetAttributes(attribute.Bool("ctrap.cache.hit", false))
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fail(span, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// a corrupt entry is dropped and treated as a miss
		_ = c.storage.Delete(ctx, hash)
		span.SetAttributes(attribute.Bool("ctrap.cache.hit", false))
		return nil, ErrCacheMiss
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(entry.Timestamp, 0)) > c.ttl {
		_ = c.storage.Delete(ctx, hash)
		span.SetAttributes(attribute.Bool("ctrap.cache.hit", false), attribute.Bool("ctrap.cache.expired", true))
		return nil, ErrCacheMiss
	}

	span.SetAttributes(attribute.Bool("ctrap.cache.hit", true))
	return &entry, nil
}

func (c *LocalCache) Put(ctx context.Context, entry *Entry) error {
	ctx, span := cacheTracer.Start(ctx, "cache store")
	defer span.End()

	hash := entry.Key.Hash()
	span.SetAttributes(attribute.String("ctrap.cache.key", hash))

	entry.Timestamp = c.now().Unix()
	data, err := json.Marshal(entry)
	if err != nil {
		return fail(span, err)
	}
	if err := c.storage.Put(ctx, hash, data); err != nil {
		return fail(span, err)
	}
	return nil
}

func (c *LocalCache) Delete(ctx context.Context, key Key) error {
	return c.storage.Delete(ctx, key.Hash())
}

// Clear removes every entry.
func (c *LocalCache) Clear(ctx context.Context) error {
	keys, err := c.storage.List(ctx, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.storage.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
