package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/document"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/segmenter"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/analytics"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain/answercache"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/notify"
	apperrors "github.com/shepardc348-cloud/Freshwater-Vault/pkg/errors"
)

const agreementText = `SERVICE AGREEMENT
This agreement is made between Freshwater Grounds and the Client.

SECTION 1: SCOPE OF SERVICES
Contractor will mow the lawn weekly and plow snow after two inches of accumulation.

SECTION 2: TERMINATION
Either party may cancel this agreement with thirty days written notice.

SECTION 3: PAYMENT
Invoices are due within fifteen days. A late fee of 1.5% applies to overdue balances.
`

type fakeDocs struct {
	snap       *document.Snapshot
	err        error
	refreshes  int
	refreshErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{snap: &document.Snapshot{
		ID:        "service-agreement",
		Text:      agreementText,
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sections:  segmenter.Segment(agreementText),
	}}
}

func (f *fakeDocs) Get(context.Context) (*document.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeDocs) Refresh(context.Context) (*document.Snapshot, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.snap, nil
}

func (f *fakeDocs) Status() document.Status {
	return document.Status{ID: f.snap.ID, Loaded: true, Sections: len(f.snap.Sections)}
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.AskEvent
	notes  []notify.Notification
}

func (r *recorder) Track(e analytics.AskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func newService(t *testing.T, docs Documents, opts ...Option) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithTracker(rec), WithNotifier(rec)}, opts...)
	return New(docs, nil, Config{DefaultLimit: 3, MaxResults: 10, ExcerptLength: 900}, opts...), rec
}

func TestQuick_Match(t *testing.T) {
	svc, rec := newService(t, newFakeDocs())

	result, err := svc.Quick(context.Background(), "Can I cancel?", 0)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "SECTION 2: TERMINATION", result.Matches[0].Heading)
	assert.Equal(t, 3, result.Matches[0].Score)
	assert.Contains(t, result.Matches[0].Excerpt, "thirty days written notice")
	assert.Empty(t, result.Suggestions)

	require.Len(t, rec.events, 1)
	assert.Equal(t, analytics.ModeQuick, rec.events[0].Mode)
	assert.Equal(t, []string{"SECTION 2: TERMINATION"}, rec.events[0].Matched)
	assert.Empty(t, rec.notes)
}

func TestQuick_Limit(t *testing.T) {
	svc, _ := newService(t, newFakeDocs())

	result, err := svc.Quick(context.Background(), "agreement", 0)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "SERVICE AGREEMENT", result.Matches[0].Heading)

	result, err = svc.Quick(context.Background(), "agreement", 1)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 1)
}

func TestQuick_NoMatch(t *testing.T) {
	svc, rec := newService(t, newFakeDocs())

	result, err := svc.Quick(context.Background(), "xyzzy plugh", 0)
	require.NoError(t, err)
	assert.NotNil(t, result.Matches)
	assert.Empty(t, result.Matches)
	assert.NotEmpty(t, result.Suggestions)

	require.Len(t, rec.notes, 1)
	assert.Equal(t, notify.KindUnanswered, rec.notes[0].Kind)
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Unanswered())
}

func TestQuick_InvalidInput(t *testing.T) {
	svc, rec := newService(t, newFakeDocs())

	_, err := svc.Quick(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, apperrors.ErrEmptyQuery)

	_, err = svc.Quick(context.Background(), strings.Repeat("a", MaxQuestionLength+1), 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, rec.events)
}

func TestQuick_DocumentUnavailable(t *testing.T) {
	docs := newFakeDocs()
	docs.err = fmt.Errorf("%w: connection refused", apperrors.ErrDocumentUnavailable)
	svc, _ := newService(t, docs)

	_, err := svc.Quick(context.Background(), "cancel", 0)
	assert.ErrorIs(t, err, apperrors.ErrDocumentUnavailable)
}

func TestQuick_StaleFlag(t *testing.T) {
	docs := newFakeDocs()
	docs.snap.Stale = true
	svc, _ := newService(t, docs)

	result, err := svc.Quick(context.Background(), "late fees", 0)
	require.NoError(t, err)
	assert.True(t, result.Stale)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "SECTION 3: PAYMENT", result.Matches[0].Heading)
}

func TestExplain_CachesAnswer(t *testing.T) {
	model := &explain.Static{Answer: "Late invoices accrue a fee."}
	cache := answercache.New(answercache.NewMemoryStore(), time.Hour)
	svc, rec := newService(t, newFakeDocs(), WithExplainer(model), WithAnswerCache(cache))

	answer, err := svc.Explain(context.Background(), "Late fees?")
	require.NoError(t, err)
	assert.True(t, answer.Found)
	assert.False(t, answer.Cached)
	assert.Equal(t, "Late invoices accrue a fee.", answer.Answer)
	require.Len(t, model.Last, 1)
	assert.Equal(t, "SECTION 3: PAYMENT", model.Last[0].Heading)

	answer, err = svc.Explain(context.Background(), "  late FEES ")
	require.NoError(t, err)
	assert.True(t, answer.Cached)
	assert.Equal(t, 1, model.Calls)

	stats := svc.CacheStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, int64(1), stats.Hits)
	require.Len(t, rec.events, 2)
	assert.True(t, rec.events[1].CacheHit)
}

func TestExplain_NoMatchSkipsModel(t *testing.T) {
	model := &explain.Static{Answer: "anything"}
	svc, rec := newService(t, newFakeDocs(), WithExplainer(model))

	answer, err := svc.Explain(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.False(t, answer.Found)
	assert.Equal(t, NotFoundAnswer, answer.Answer)
	assert.Equal(t, 0, model.Calls)
	require.Len(t, rec.notes, 1)
	assert.Equal(t, notify.KindUnanswered, rec.notes[0].Kind)
}

func TestExplain_DegradesToExcerpts(t *testing.T) {
	model := &explain.Static{Err: errors.New("503 from upstream")}
	svc, rec := newService(t, newFakeDocs(), WithExplainer(model))

	answer, err := svc.Explain(context.Background(), "can I cancel")
	require.NoError(t, err)
	assert.True(t, answer.Unavailable)
	assert.True(t, answer.Found)
	assert.Empty(t, answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "SECTION 2: TERMINATION", answer.Sources[0].Heading)

	require.Len(t, rec.notes, 1)
	assert.Equal(t, notify.KindExplainUnavailable, rec.notes[0].Kind)
	assert.True(t, rec.events[0].Degraded)
}

func TestExplain_Disabled(t *testing.T) {
	svc, rec := newService(t, newFakeDocs())
	answer, err := svc.Explain(context.Background(), "can I cancel")
	require.Error(t, err)
	assert.Nil(t, answer)
	assert.ErrorIs(t, err, apperrors.ErrExplainUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Empty(t, rec.notes)
	assert.False(t, svc.CacheStats().Enabled)
}

// blockingExplainer answers once release is closed, or fails when its
// context ends first.
type blockingExplainer struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingExplainer) Explain(ctx context.Context, _ string, _ []explain.Excerpt) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return "Thirty days written notice ends the agreement.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestExplain_SharedFillOutlivesCancelledRequest(t *testing.T) {
	model := &blockingExplainer{started: make(chan struct{}), release: make(chan struct{})}
	cache := answercache.New(answercache.NewMemoryStore(), time.Hour)
	svc, _ := newService(t, newFakeDocs(), WithExplainer(model), WithAnswerCache(cache))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan *Answer, 1)
	go func() {
		answer, err := svc.Explain(firstCtx, "can I cancel")
		assert.NoError(t, err)
		first <- answer
	}()
	<-model.started

	second := make(chan *Answer, 1)
	go func() {
		answer, err := svc.Explain(context.Background(), "can I cancel")
		assert.NoError(t, err)
		second <- answer
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.True(t, (<-first).Unavailable)

	close(model.release)
	answer := <-second
	assert.False(t, answer.Unavailable)
	assert.Equal(t, "Thirty days written notice ends the agreement.", answer.Answer)
}

func TestSections(t *testing.T) {
	svc, _ := newService(t, newFakeDocs())
	list, err := svc.Sections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SERVICE AGREEMENT",
		"SECTION 1: SCOPE OF SERVICES",
		"SECTION 2: TERMINATION",
		"SECTION 3: PAYMENT",
	}, list.Headings)
}

func TestRefresh_InvalidatesAnswers(t *testing.T) {
	docs := newFakeDocs()
	cache := answercache.New(answercache.NewMemoryStore(), time.Hour)
	model := &explain.Static{Answer: "ok"}
	svc, _ := newService(t, docs, WithExplainer(model), WithAnswerCache(cache))

	_, err := svc.Explain(context.Background(), "can I cancel")
	require.NoError(t, err)

	status, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, status.Sections)
	assert.Equal(t, 1, docs.refreshes)

	answer, err := svc.Explain(context.Background(), "can I cancel")
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, 2, model.Calls)
}

func TestRefresh_Failure(t *testing.T) {
	docs := newFakeDocs()
	docs.refreshErr = apperrors.ErrDocumentUnavailable
	svc, _ := newService(t, docs)
	status, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrDocumentUnavailable)
	assert.True(t, status.Loaded)
}
