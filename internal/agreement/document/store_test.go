package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores_RoundTrip(t *testing.T) {
	badgerStore, err := OpenInMemoryBadgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Load(ctx, "agreement")
			assert.ErrorIs(t, err, ErrNotStored)

			fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Save(ctx, "agreement", Record{Text: agreementV1, FetchedAt: fetched}))
			require.NoError(t, store.Save(ctx, "agreement", Record{Text: agreementV2, FetchedAt: fetched.Add(time.Hour)}))

			rec, err := store.Load(ctx, "agreement")
			require.NoError(t, err)
			assert.Equal(t, agreementV2, rec.Text)
			assert.True(t, rec.FetchedAt.Equal(fetched.Add(time.Hour)))
		})
	}
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "a", Record{Text: "hello"}))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	rec, err := reopened.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Text)
}
