package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/document"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/auth/apikey"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain/answercache"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/ratelimit"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/search"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/resilience"
)

const agreementText = `SERVICE AGREEMENT
This agreement is made between Freshwater Grounds and the Client.

SECTION 2: TERMINATION
Either party may cancel this agreement with thirty days written notice.

SECTION 3: PAYMENT
Invoices are due within fifteen days. A late fee of 1.5% applies to overdue balances.
`

const adminKey = "test-admin-key-0001"

type fixture struct {
	mux   *http.ServeMux
	model *explain.Static
	fail  bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{model: &explain.Static{Answer: "You may cancel with thirty days notice."}}
	source := document.SourceFunc(func(ctx context.Context, id string) (string, error) {
		if f.fail {
			return "", errors.New("origin unreachable")
		}
		return agreementText, nil
	})
	docs := document.NewCache("service-agreement", source,
		document.WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	svc := search.New(docs, nil, search.Config{DefaultLimit: 3, MaxResults: 10},
		search.WithExplainer(f.model),
		search.WithAnswerCache(answercache.New(answercache.NewMemoryStore(), time.Hour)),
	)
	admin, err := apikey.NewStaticValidator([]config.AdminKey{{Name: "ops", Hash: apikey.HashKey(adminKey)}})
	require.NoError(t, err)
	f.mux = http.NewServeMux()
	New(svc, WithAdminKeys(admin)).Register(f.mux)
	return f
}

func (f *fixture) doAdmin(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/v1/search?q=can+I+cancel%3F", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	result := decode[search.Result](t, rec)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "SECTION 2: TERMINATION", result.Matches[0].Heading)
}

func TestSearch_BadInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/v1/search?q=", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "please enter a question", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, "GET", "/api/v1/search?q=cancel&limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_DocumentUnavailable(t *testing.T) {
	f := newFixture(t)
	f.fail = true
	rec := f.do(t, "GET", "/api/v1/search?q=cancel", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	msg := decode[map[string]string](t, rec)["error"]
	assert.NotContains(t, msg, "origin unreachable")
	assert.LessOrEqual(t, len([]rune(msg)), 163)
}

func TestExplain(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "POST", "/api/v1/explain", `{"question":"Can I cancel?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	answer := decode[search.Answer](t, rec)
	assert.True(t, answer.Found)
	assert.Equal(t, "You may cancel with thirty days notice.", answer.Answer)
	require.Len(t, answer.Sources, 1)

	rec = f.do(t, "POST", "/api/v1/explain", `{"question":"can i CANCEL"}`)
	assert.True(t, decode[search.Answer](t, rec).Cached)

	rec = f.do(t, "GET", "/api/v1/cache/stats", "")
	stats := decode[search.CacheStats](t, rec)
	assert.Equal(t, int64(1), stats.Hits)

	rec = f.doAdmin(t, "POST", "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["keys_deleted"])
}

func TestExplain_BadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "POST", "/api/v1/explain", `question=cancel`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "POST", "/api/v1/explain", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExplain_Degraded(t *testing.T) {
	f := newFixture(t)
	f.model.Err = errors.New("model overloaded")
	rec := f.do(t, "POST", "/api/v1/explain", `{"question":"late fees"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	answer := decode[search.Answer](t, rec)
	assert.True(t, answer.Unavailable)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "SECTION 3: PAYMENT", answer.Sources[0].Heading)
}

func TestSectionsAndRefresh(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/v1/sections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[search.SectionList](t, rec)
	assert.Equal(t, []string{"SERVICE AGREEMENT", "SECTION 2: TERMINATION", "SECTION 3: PAYMENT"}, list.Headings)

	rec = f.doAdmin(t, "POST", "/api/v1/document/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[document.Status](t, rec)
	assert.True(t, status.Loaded)
	assert.Equal(t, 3, status.Sections)

	f.fail = true
	rec = f.doAdmin(t, "POST", "/api/v1/document/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, "GET", "/api/v1/sections", "")
	require.Equal(t, http.StatusOK, rec.Code, "stale copy stays in service")

	rec = f.do(t, "GET", "/api/v1/document", "")
	assert.NotEmpty(t, decode[document.Status](t, rec).LastError)
}

func TestRateLimitedRoute(t *testing.T) {
	f := newFixture(t)
	h := ratelimit.Middleware(ratelimit.NewMemoryLimiter(1, time.Minute), nil, "/api/v1/search")(f.mux)

	req := httptest.NewRequest("GET", "/api/v1/search?q=cancel", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestAdminRoutesRequireKey(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/api/v1/document/refresh", "/api/v1/cache/invalidate"} {
		rec := f.do(t, "POST", target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)

		req := httptest.NewRequest("POST", target, nil)
		req.Header.Set("X-API-Key", "guessed-key")
		rec = httptest.NewRecorder()
		f.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)

		assert.Equal(t, http.StatusOK, f.doAdmin(t, "POST", target).Code, target)
	}
}

func TestAdminRoutesClosedWithoutKeys(t *testing.T) {
	docs := document.NewCache("service-agreement", document.SourceFunc(func(context.Context, string) (string, error) {
		return agreementText, nil
	}))
	mux := http.NewServeMux()
	New(search.New(docs, nil, search.Config{DefaultLimit: 3, MaxResults: 10})).Register(mux)

	req := httptest.NewRequest("POST", "/api/v1/cache/invalidate", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExplain_DisabledIs503(t *testing.T) {
	docs := document.NewCache("service-agreement", document.SourceFunc(func(context.Context, string) (string, error) {
		return agreementText, nil
	}))
	mux := http.NewServeMux()
	New(search.New(docs, nil, search.Config{DefaultLimit: 3, MaxResults: 10})).Register(mux)

	req := httptest.NewRequest("POST", "/api/v1/explain", strings.NewReader(`{"question":"Can I cancel?"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not enabled")
}
