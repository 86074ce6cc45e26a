package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/auth/apikey"
)

const sampleAgreement = "SECTION 1: PAYMENT TERMS\nPayment is due within 30 days.\n\nSECTION 2: CANCELLATION POLICY\nClient may cancel with 30 days notice. Deposits are non-refundable."

func writeAgreement(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agreement.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleAgreement), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"agreementctl"}, args...))
	return out.String(), err
}

func TestSectionsCommand(t *testing.T) {
	path := writeAgreement(t)

	out, err := run(t, "sections", path)
	require.NoError(t, err)
	assert.Equal(t, "  1  SECTION 1: PAYMENT TERMS\n  2  SECTION 2: CANCELLATION POLICY\n", out)

	out, err = run(t, "sections", "--kinds", path)
	require.NoError(t, err)
	assert.Contains(t, out, "article_section")
}

func TestSectionsCommand_MissingFile(t *testing.T) {
	_, err := run(t, "sections", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = run(t, "sections")
	assert.Error(t, err)
}

func TestSearchCommand(t *testing.T) {
	path := writeAgreement(t)

	out, err := run(t, "search", "--limit", "1", path, "cancel", "my", "service")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[1] SECTION 2: CANCELLATION POLICY (score "), out)
	assert.Contains(t, out, "Deposits are non-refundable.")
	assert.NotContains(t, out, "[2]")
}

func TestSearchCommand_NoMatch(t *testing.T) {
	out, err := run(t, "search", writeAgreement(t), "xyzzy")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching sections.")
	assert.Contains(t, out, "Try asking about:")
}

func TestExpandCommand(t *testing.T) {
	out, err := run(t, "expand", "--token-limit", "3", "cancel")
	require.NoError(t, err)
	assert.Equal(t, "cancel\ncancellation\nterminate\n", out)

	_, err = run(t, "expand")
	assert.Error(t, err)
}

func TestKeygenCommand(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	key := strings.TrimSpace(strings.TrimPrefix(lines[0], "key:"))
	hash := strings.TrimSpace(strings.TrimPrefix(lines[1], "hash:"))
	assert.Len(t, key, 64)
	assert.Equal(t, apikey.HashKey(key), hash)
}
