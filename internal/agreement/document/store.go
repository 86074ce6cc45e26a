package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotStored is returned by a Store that holds no copy of a document.
var ErrNotStored = errors.New("document not stored")

// Record is a persisted copy of a document.
type Record struct {
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store persists the last good copy of each document so it survives
// restarts.
type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, id string, rec Record) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotStored
	}
	return rec, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec
	return nil
}

const badgerKeyPrefix = "document:"

// BadgerStore keeps document copies in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// OpenInMemoryBadgerStore opens a Badger database that lives only in memory.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

// badgerLogger routes Badger's internal logging through slog. Info and debug
// output is dropped; Badger is chatty at those levels.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(msg, args...)))
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(msg, args...)))
}

func (l *badgerLogger) Infof(string, ...any)  {}
func (l *badgerLogger) Debugf(string, ...any) {}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	opts.Logger = &badgerLogger{logger: slog.Default().With("component", "document-store")}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(_ context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotStored
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading document %s: %w", id, err)
	}
	return rec, nil
}

func (s *BadgerStore) Save(_ context.Context, id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+id), data)
	})
	if err != nil {
		return fmt.Errorf("saving document %s: %w", id, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
