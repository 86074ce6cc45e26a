package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Search.DefaultLimit)
	assert.Equal(t, 900, cfg.Search.ExcerptLength)
	assert.Equal(t, 30, cfg.Search.TokenLimit)
	assert.Equal(t, 10*time.Minute, cfg.Document.Freshness)
	assert.Equal(t, int64(8<<20), cfg.Document.MaxBytes)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	data := []byte(`
server:
  port: 9000
document:
  sourceUrl: https://example.com/agreement.txt
  freshness: 2m
explain:
  enabled: true
  provider: ollama
  model: llama3
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("FV_SERVER_PORT", "9100")
	t.Setenv("FV_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://example.com/agreement.txt", cfg.Document.SourceURL)
	assert.Equal(t, 2*time.Minute, cfg.Document.Freshness)
	assert.Equal(t, "ollama", cfg.Explain.Provider)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	// Untouched nested defaults survive a partial file.
	assert.Equal(t, 4, cfg.Explain.MaxExcerpts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Explain.Enabled = true
	cfg.Explain.Provider = "carrier-pigeon"
	cfg.RateLimit.Backend = "disk"
	cfg.Document.SourcePath = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "disk")
	assert.Contains(t, err.Error(), "sourcePath")
}

func TestPostgresDSN(t *testing.T) {
	p := defaultConfig().Postgres
	assert.Equal(t, "host=localhost port=5432 user=portal password=localdev dbname=portal sslmode=disable", p.DSN())
}

func TestLoad_AdminKeys(t *testing.T) {
	const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	path := filepath.Join(t.TempDir(), "portal.yaml")
	data := []byte(`
admin:
  keys:
    - name: ops
      hash: ` + digest + `
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Admin.Keys, 1)
	assert.Equal(t, AdminKey{Name: "ops", Hash: digest}, cfg.Admin.Keys[0])

	t.Setenv("FV_ADMIN_KEY_HASHES", strings.ToUpper(digest)+", "+digest)
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Admin.Keys, 2)
	assert.Equal(t, "env-1", cfg.Admin.Keys[0].Name)
	assert.Equal(t, digest, cfg.Admin.Keys[0].Hash)
	assert.Equal(t, digest, cfg.Admin.Keys[1].Hash)
}

func TestValidate_AdminKeyHash(t *testing.T) {
	cfg := defaultConfig()
	cfg.Admin.Keys = []AdminKey{{Name: "ops", Hash: "plaintext-secret"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ops")
}
