package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/segmenter"
	apperrors "github.com/shepardc348-cloud/Freshwater-Vault/pkg/errors"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/resilience"
)

const (
	DefaultFreshness    = 10 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
)

// Refresh outcomes reported to the OnRefresh hook.
const (
	OutcomeFetched = "fetched"
	OutcomeFailed  = "failed"
	OutcomeStale   = "stale"
)

// Snapshot is one parsed copy of a document. Snapshots are immutable; a
// refresh replaces the whole snapshot.
type Snapshot struct {
	ID        string              `json:"id"`
	Text      string              `json:"-"`
	FetchedAt time.Time           `json:"fetched_at"`
	Sections  []segmenter.Section `json:"-"`
	Stale     bool                `json:"stale"`
}

// Status describes the cache for health checks and diagnostics.
type Status struct {
	ID        string    `json:"id"`
	Loaded    bool      `json:"loaded"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Age       string    `json:"age,omitempty"`
	Fresh     bool      `json:"fresh"`
	Sections  int       `json:"sections"`
	LastError string    `json:"last_error,omitempty"`
}

// Cache serves one document, refreshing it from a Source once the freshness
// window has passed. A failed refresh keeps the previous copy in service
// until a later refresh succeeds.
type Cache struct {
	id           string
	source       Source
	store        Store
	freshness    time.Duration
	fetchTimeout time.Duration
	retry        resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	now          func() time.Time
	onRefresh    func(outcome string)
	logger       *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  *Snapshot
	expired   bool
	warmed    bool
	lastError error
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithFreshness sets how long a fetched copy is served without refreshing.
func WithFreshness(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.freshness = d
		}
	}
}

// WithFetchTimeout bounds each fetch attempt.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithStore persists successful fetches and seeds the cache on first use.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithRetry sets the backoff used for fetch attempts.
func WithRetry(cfg resilience.RetryConfig) CacheOption {
	return func(c *Cache) { c.retry = cfg }
}

// WithCircuitBreaker short-circuits fetches while the source is failing.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) CacheOption {
	return func(c *Cache) { c.breaker = cb }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithRefreshHook is called with an Outcome* constant after every refresh
// attempt.
func WithRefreshHook(fn func(outcome string)) CacheOption {
	return func(c *Cache) { c.onRefresh = fn }
}

// NewCache returns a Cache for document id backed by source.
func NewCache(id string, source Source, opts ...CacheOption) *Cache {
	c := &Cache{
		id:           id,
		source:       source,
		freshness:    DefaultFreshness,
		fetchTimeout: DefaultFetchTimeout,
		retry:        resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond},
		now:          time.Now,
		onRefresh:    func(string) {},
		logger:       slog.Default().With("component", "document-cache", "document_id", id),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot, refreshing first if it is older than the
// freshness window. When the refresh fails and an older copy exists, that
// copy is returned with Stale set. ErrDocumentUnavailable is returned only
// when no copy has ever been loaded.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.warm(ctx)

	c.mu.RLock()
	current := c.snapshot
	fresh := current != nil && !c.expired && c.now().Sub(current.FetchedAt) < c.freshness
	c.mu.RUnlock()

	if fresh {
		return current, nil
	}

	refreshed, err := c.refresh(ctx)
	if err == nil {
		return refreshed, nil
	}
	if current != nil {
		c.onRefresh(OutcomeStale)
		c.logger.Warn("serving stale document after refresh failure",
			"fetched_at", current.FetchedAt,
			"error", err,
		)
		stale := *current
		stale.Stale = true
		return &stale, nil
	}
	return nil, fmt.Errorf("%w: %v", apperrors.ErrDocumentUnavailable, err)
}

// Refresh fetches the document now regardless of age. On failure the
// existing copy stays in service and the error is returned.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	c.warm(ctx)
	snap, err := c.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDocumentUnavailable, err)
	}
	return snap, nil
}

// Expire marks the current copy as needing a refresh on next Get. The copy
// itself stays available as a stale fallback.
func (c *Cache) Expire() {
	c.mu.Lock()
	c.expired = true
	c.mu.Unlock()
}

// Status reports the cache state without triggering a refresh.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{ID: c.id}
	if c.lastError != nil {
		st.LastError = c.lastError.Error()
	}
	if c.snapshot == nil {
		return st
	}
	age := c.now().Sub(c.snapshot.FetchedAt)
	st.Loaded = true
	st.FetchedAt = c.snapshot.FetchedAt
	st.Age = age.Round(time.Second).String()
	st.Fresh = !c.expired && age < c.freshness
	st.Sections = len(c.snapshot.Sections)
	return st
}

// warm seeds the cache from the store once, so a restart can serve the last
// good copy even if the source is down.
func (c *Cache) warm(ctx context.Context) {
	c.mu.RLock()
	done := c.warmed
	c.mu.RUnlock()
	if done || c.store == nil {
		return
	}

	rec, err := c.store.Load(ctx, c.id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warmed {
		return
	}
	c.warmed = true
	if err != nil {
		if !errors.Is(err, ErrNotStored) {
			c.logger.Warn("loading stored document failed", "error", err)
		}
		return
	}
	if c.snapshot == nil {
		c.snapshot = newSnapshot(c.id, rec.Text, rec.FetchedAt)
		c.logger.Info("document loaded from local store", "fetched_at", rec.FetchedAt)
	}
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	// Detached from the caller so one cancelled request does not fail every
	// request waiting on the same refresh.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(c.id, func() (any, error) {
		text, err := c.fetch(fetchCtx)
		if err != nil {
			c.mu.Lock()
			c.lastError = err
			c.mu.Unlock()
			c.onRefresh(OutcomeFailed)
			return nil, err
		}

		snap := newSnapshot(c.id, text, c.now())
		c.mu.Lock()
		c.snapshot = snap
		c.expired = false
		c.lastError = nil
		c.mu.Unlock()
		c.onRefresh(OutcomeFetched)

		if c.store != nil {
			if err := c.store.Save(fetchCtx, c.id, Record{Text: text, FetchedAt: snap.FetchedAt}); err != nil {
				c.logger.Warn("persisting document failed", "error", err)
			}
		}
		c.logger.Info("document refreshed",
			"sections", len(snap.Sections),
			"size_bytes", len(text),
		)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) fetch(ctx context.Context) (string, error) {
	var text string
	attempt := func() error {
		t, err := resilience.Call(ctx, c.fetchTimeout, "document fetch", func(ctx context.Context) (string, error) {
			return c.source.Fetch(ctx, c.id)
		})
		if err != nil {
			return err
		}
		text = t
		return nil
	}
	guarded := attempt
	if c.breaker != nil {
		guarded = func() error { return c.breaker.Execute(attempt) }
	}
	if err := resilience.Retry(ctx, "document fetch", c.retry, guarded); err != nil {
		return "", err
	}
	return text, nil
}

func newSnapshot(id, text string, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:        id,
		Text:      text,
		FetchedAt: fetchedAt,
		Sections:  segmenter.Segment(text),
	}
}
