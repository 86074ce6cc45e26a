package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/tokenizer"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
)

const maxLatencySamples = 10000

type Stats struct {
	TotalAsks           int64       `json:"total_asks"`
	QuickAsks           int64       `json:"quick_asks"`
	ExplainAsks         int64       `json:"explain_asks"`
	UnansweredCount     int64       `json:"unanswered_count"`
	DegradedCount       int64       `json:"degraded_count"`
	StaleDocumentCount  int64       `json:"stale_document_count"`
	AnswerCacheHits     int64       `json:"answer_cache_hits"`
	AvgLatencyMs        float64     `json:"avg_latency_ms"`
	P50LatencyMs        int64       `json:"p50_latency_ms"`
	P95LatencyMs        int64       `json:"p95_latency_ms"`
	P99LatencyMs        int64       `json:"p99_latency_ms"`
	TopQuestions        []NameCount `json:"top_questions"`
	UnansweredQuestions []NameCount `json:"unanswered_questions"`
	TopSections         []NameCount `json:"top_sections"`
	AsksPerMinute       float64     `json:"asks_per_minute"`
	Since               time.Time   `json:"since"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator folds AskEvents into running Stats. It can be fed directly via
// Track or from a Kafka consumer via HandleEvent.
type Aggregator struct {
	mu         sync.RWMutex
	stats      Stats
	latencies  []int64
	next       int
	questions  map[string]int64
	unanswered map[string]int64
	sections   map[string]int64
	now        func() time.Time
	logger     *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:  make([]int64, 0, 1024),
		questions:  make(map[string]int64),
		unanswered: make(map[string]int64),
		sections:   make(map[string]int64),
		stats:      Stats{Since: time.Now().UTC()},
		now:        time.Now,
		logger:     slog.Default().With("component", "analytics-aggregator"),
	}
}

// Consume feeds the aggregator from a Kafka topic until ctx is done.
func (a *Aggregator) Consume(ctx context.Context, cfg config.KafkaConfig, topic string) error {
	a.logger.Info("analytics aggregator consuming", "topic", topic)
	return kafka.NewConsumer(cfg, topic, HandleEvent(a)).Start(ctx)
}

// HandleEvent decodes AskEvents from Kafka into agg. Undecodable messages
// are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[AskEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

func (a *Aggregator) Track(event AskEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalAsks++
	switch event.Mode {
	case ModeExplain:
		a.stats.ExplainAsks++
	default:
		a.stats.QuickAsks++
	}
	if event.Degraded {
		a.stats.DegradedCount++
	}
	if event.Stale {
		a.stats.StaleDocumentCount++
	}
	if event.CacheHit {
		a.stats.AnswerCacheHits++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}

	question := tokenizer.Normalize(event.Question)
	if question != "" {
		a.questions[question]++
	}
	if event.Unanswered() {
		a.stats.UnansweredCount++
		if question != "" {
			a.unanswered[question]++
		}
	}
	for _, heading := range event.Matched {
		a.sections[heading]++
	}
}

// Stats returns a consistent copy of the current aggregates.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQuestions = topN(a.questions, 10)
	stats.UnansweredQuestions = topN(a.unanswered, 10)
	stats.TopSections = topN(a.sections, 10)
	if elapsed := a.now().Sub(stats.Since).Minutes(); elapsed > 0 {
		stats.AsksPerMinute = float64(stats.TotalAsks) / elapsed
	}
	return stats
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latency samples and per-question tables are not restored.
func (a *Aggregator) Restore(s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalAsks += s.TotalAsks
	a.stats.QuickAsks += s.QuickAsks
	a.stats.ExplainAsks += s.ExplainAsks
	a.stats.UnansweredCount += s.UnansweredCount
	a.stats.DegradedCount += s.DegradedCount
	a.stats.StaleDocumentCount += s.StaleDocumentCount
	a.stats.AnswerCacheHits += s.AnswerCacheHits
	if !s.Since.IsZero() && s.Since.Before(a.stats.Since) {
		a.stats.Since = s.Since
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []NameCount {
	result := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NameCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
