package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestCollector_PublishesAndDrains(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16, nil)
	c.Start(context.Background())

	c.Track(AskEvent{Mode: ModeQuick, Question: "can I cancel"})
	c.Track(AskEvent{Mode: ModeExplain, Question: "late fees"})
	c.Close()

	require.Len(t, pub.events, 2)
	assert.Equal(t, "quick", pub.events[0].Key)
	assert.Equal(t, "late fees", pub.events[1].Value.(AskEvent).Question)
}

func TestCollector_DropsWhenFull(t *testing.T) {
	dropped := 0
	c := NewCollector(&recordingPublisher{err: errors.New("down")}, 1, func() { dropped++ })
	c.Track(AskEvent{Question: "a"})
	c.Track(AskEvent{Question: "b"})
	assert.Equal(t, 1, dropped)
}

func TestAggregator_Stats(t *testing.T) {
	agg := NewAggregator()
	start := agg.stats.Since
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	agg.Track(AskEvent{Mode: ModeQuick, Question: "Can I cancel?", Matched: []string{"SECTION 2: TERMINATION"}, LatencyMs: 2})
	agg.Track(AskEvent{Mode: ModeQuick, Question: "can i cancel", Matched: []string{"SECTION 2: TERMINATION"}, LatencyMs: 4})
	agg.Track(AskEvent{Mode: ModeExplain, Question: "xyzzy", LatencyMs: 6, Degraded: true})
	agg.Track(AskEvent{Mode: ModeExplain, Question: "late fees", Matched: []string{"SECTION 4: LATE PAYMENT"}, CacheHit: true, LatencyMs: 8})

	s := agg.Stats()
	assert.Equal(t, int64(4), s.TotalAsks)
	assert.Equal(t, int64(2), s.QuickAsks)
	assert.Equal(t, int64(2), s.ExplainAsks)
	assert.Equal(t, int64(1), s.UnansweredCount)
	assert.Equal(t, int64(1), s.DegradedCount)
	assert.Equal(t, int64(1), s.AnswerCacheHits)
	assert.Equal(t, 5.0, s.AvgLatencyMs)
	assert.Equal(t, int64(8), s.P99LatencyMs)
	assert.Equal(t, 2.0, s.AsksPerMinute)
	require.NotEmpty(t, s.TopQuestions)
	assert.Equal(t, NameCount{Name: "can i cancel", Count: 2}, s.TopQuestions[0])
	assert.Equal(t, []NameCount{{Name: "xyzzy", Count: 1}}, s.UnansweredQuestions)
	assert.Equal(t, NameCount{Name: "SECTION 2: TERMINATION", Count: 2}, s.TopSections[0])
}

func TestAggregator_Restore(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(Stats{TotalAsks: 10, QuickAsks: 7, ExplainAsks: 3, Since: time.Unix(1_600_000_000, 0)})
	agg.Track(AskEvent{Mode: ModeQuick, Question: "q", Matched: []string{"A"}})
	s := agg.Stats()
	assert.Equal(t, int64(11), s.TotalAsks)
	assert.Equal(t, int64(8), s.QuickAsks)
	assert.Equal(t, time.Unix(1_600_000_000, 0), s.Since)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	value, _ := json.Marshal(AskEvent{Mode: ModeExplain, Question: "snow"})
	require.NoError(t, handle(context.Background(), []byte("explain"), value))
	require.NoError(t, handle(context.Background(), nil, []byte("garbage")))
	assert.Equal(t, int64(1), agg.Stats().ExplainAsks)
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]Stats, error) {
	f.limit = limit
	return []Stats{{TotalAsks: 42}}, nil
}

func TestHandler_Stats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(AskEvent{Mode: ModeQuick, Question: "q"})
	hist := &fakeHistory{}
	h := NewHandler(agg, hist)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest("GET", "/api/v1/analytics?history=500", nil))
	var body struct {
		Current Stats   `json:"current"`
		History []Stats `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Current.TotalAsks)
	assert.Equal(t, 100, hist.limit)
	require.Len(t, body.History, 1)
	assert.Equal(t, int64(42), body.History[0].TotalAsks)
}
