package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgredis "github.com/shepardc348-cloud/Freshwater-Vault/pkg/redis"
)

// ErrMiss is returned by a Store that holds no live entry for a key.
var ErrMiss = errors.New("cache miss")

// Entry is a stored value and the time it was written.
type Entry struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Store is a key → (timestamp, value) store with per-entry expiry. Swapping
// implementations does not change cache semantics.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// DefaultMaxEntries bounds a MemoryStore built without WithMaxEntries.
const DefaultMaxEntries = 10000

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
	seq       uint64
}

// MemoryStore is a process-local Store holding at most maxEntries items.
// Expired entries are dropped on read, by Run, and before any eviction.
// When the store is full of live entries the oldest write is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]memoryItem
	maxEntries int
	seq        uint64
	now        func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxEntries caps the number of stored answers. Values <= 0 are ignored.
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		items:      make(map[string]memoryItem),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return Entry{}, ErrMiss
	}
	if m.expired(item, m.now()) {
		delete(m.items, key)
		return Entry{}, ErrMiss
	}
	return item.entry, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxEntries {
		if m.sweepLocked(now) == 0 {
			m.evictOldestLocked()
		}
	}
	m.seq++
	item := memoryItem{entry: entry, seq: m.seq}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Run removes expired entries every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for key, item := range m.items {
		if m.expired(item, now) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestSeq uint64
	found := false
	for key, item := range m.items {
		if !found || item.seq < oldestSeq {
			oldestKey, oldestSeq, found = key, item.seq, true
		}
	}
	if found {
		delete(m.items, oldestKey)
	}
}

func (m *MemoryStore) expired(item memoryItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && !now.Before(item.expiresAt)
}

// RedisStore keeps entries in Redis as JSON with a native TTL.
type RedisStore struct {
	client *pkgredis.Client
}

func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	data, err := r.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return Entry{}, ErrMiss
		}
		return Entry{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return entry, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	return r.client.FlushByPattern(ctx, escapeGlob(prefix)+"*")
}

// escapeGlob quotes Redis glob metacharacters in s.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
