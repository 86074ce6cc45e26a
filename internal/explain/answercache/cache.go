// Package answercache caches AI explanations keyed by the normalised question
// and the set of excerpt headings the answer was grounded in.
package answercache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/tokenizer"
)

const (
	keyPrefix  = "answer:"
	DefaultTTL = 6 * time.Hour
	// DefaultFillTimeout bounds a shared fill when WithFillTimeout is not set.
	DefaultFillTimeout = time.Minute
)

// Answer is a cached explanation.
type Answer struct {
	Text        string    `json:"text"`
	Headings    []string  `json:"headings"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Cache struct {
	store       Store
	ttl         time.Duration
	fillTimeout time.Duration
	group       singleflight.Group
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithFillTimeout bounds how long a shared GetOrCompute fill may run.
func WithFillTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fillTimeout = d
		}
	}
}

func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:       store,
		ttl:         ttl,
		fillTimeout: DefaultFillTimeout,
		logger:      slog.Default().With("component", "answer-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key for question answered from sections with the
// given headings. Question case, punctuation, and spacing are ignored, as is
// heading order.
func Key(question string, headings []string) string {
	sorted := make([]string, len(headings))
	copy(sorted, headings)
	sort.Strings(sorted)
	raw := tokenizer.Normalize(question) + "|" + strings.Join(sorted, "\x1f")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *Cache) Get(ctx context.Context, key string) (*Answer, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var answer Answer
	if err := json.Unmarshal(entry.Value, &answer); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key, "age", time.Since(entry.StoredAt).Round(time.Second))
	return &answer, true
}

func (c *Cache) Set(ctx context.Context, key string, answer *Answer) {
	data, err := json.Marshal(answer)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, Entry{Value: data, StoredAt: time.Now().UTC()}, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached answer for key, or calls computeFn once
// for all concurrent callers of the same key and caches its result. Errors
// are not cached.
//
// The shared fill runs on a context detached from any single caller and
// bounded by the fill timeout. A caller whose own ctx ends stops waiting
// with ctx.Err() while the fill continues for the others.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	key string,
	computeFn func(ctx context.Context) (*Answer, error),
) (*Answer, bool, error) {
	if answer, ok := c.Get(ctx, key); ok {
		return answer, true, nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()
		answer, err := computeFn(fillCtx)
		if err != nil {
			return nil, err
		}
		c.Set(fillCtx, key, answer)
		return answer, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Answer), false, nil
	}
}

func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating answer cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
