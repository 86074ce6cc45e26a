package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/analytics"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/postgres"
)

// Set FV_TEST_POSTGRES_HOST to run against a disposable database, e.g.
// docker run -e POSTGRES_USER=portal -e POSTGRES_PASSWORD=localdev -e POSTGRES_DB=portal -p 5432:5432 postgres:16
func newTestStore(t *testing.T) *Store {
	host := os.Getenv("FV_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("FV_TEST_POSTGRES_HOST not set")
	}
	cfg := config.PostgresConfig{
		Host: host, Port: 5432, Database: "portal", User: "portal", Password: "localdev",
		SSLMode: "disable", MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute,
	}
	client, err := postgres.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewStore(client)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = client.DB.ExecContext(ctx, `TRUNCATE portal_analytics_snapshots`)
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.Save(ctx, analytics.Stats{TotalAsks: 1}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Save(ctx, analytics.Stats{TotalAsks: 2, UnansweredCount: 1}))

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.TotalAsks)

	list, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].TotalAsks)

	n, err := store.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
