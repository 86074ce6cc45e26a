// Package search answers questions about the agreement, either with ranked
// excerpts (quick mode) or with a model-written explanation grounded in those
// excerpts (explain mode).
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/document"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/excerpt"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/ranker"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/segmenter"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/analytics"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain/answercache"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/notify"
	apperrors "github.com/shepardc348-cloud/Freshwater-Vault/pkg/errors"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/logger"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/metrics"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/tracing"
)

const (
	MaxQuestionLength = 500
	suggestionCount   = 5
)

// NotFoundAnswer is returned in explain mode when no section matches.
const NotFoundAnswer = "The agreement does not appear to address this question. " +
	"Try different wording, or contact the office for help."

// Documents supplies the current agreement snapshot.
type Documents interface {
	Get(ctx context.Context) (*document.Snapshot, error)
	Refresh(ctx context.Context) (*document.Snapshot, error)
	Status() document.Status
}

type Notifier interface {
	Notify(ctx context.Context, note notify.Notification)
}

type Match struct {
	Heading string `json:"heading"`
	Excerpt string `json:"excerpt"`
	Score   int    `json:"score"`
}

type Result struct {
	Query       string    `json:"query"`
	Matches     []Match   `json:"matches"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Stale       bool      `json:"stale"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Answer struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer,omitempty"`
	Found       bool     `json:"found"`
	Sources     []Match  `json:"sources"`
	Suggestions []string `json:"suggestions,omitempty"`
	Cached      bool     `json:"cached"`
	// Unavailable is set when the explanation could not be produced and
	// Sources are offered instead.
	Unavailable bool `json:"unavailable"`
	Stale       bool `json:"stale"`
}

type SectionList struct {
	Headings  []string  `json:"headings"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

type Config struct {
	DefaultLimit         int
	MaxResults           int
	ExcerptLength        int
	MaxExcerpts          int
	ExplainExcerptLength int
}

type Option func(*Service)

func WithExplainer(e explain.Explainer) Option { return func(s *Service) { s.explainer = e } }

func WithAnswerCache(c *answercache.Cache) Option { return func(s *Service) { s.answers = c } }

func WithTracker(t analytics.Tracker) Option { return func(s *Service) { s.tracker = t } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

type Service struct {
	docs      Documents
	ranker    *ranker.Ranker
	cfg       Config
	explainer explain.Explainer
	answers   *answercache.Cache
	tracker   analytics.Tracker
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(docs Documents, r *ranker.Ranker, cfg Config, opts ...Option) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = ranker.DefaultLimit
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = excerpt.DefaultLength
	}
	if cfg.MaxExcerpts <= 0 {
		cfg.MaxExcerpts = 4
	}
	if cfg.ExplainExcerptLength <= 0 {
		cfg.ExplainExcerptLength = 1200
	}
	if r == nil {
		r = ranker.New(nil)
	}
	s := &Service{
		docs:   docs,
		ranker: r,
		cfg:    cfg,
		logger: slog.Default().With("component", "search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quick ranks the agreement's sections against query and returns up to
// limit excerpts. A limit outside 1..MaxResults is clamped.
func (s *Service) Quick(ctx context.Context, query string, limit int) (*Result, error) {
	start := time.Now()
	if err := validateQuestion(query); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxResults:
		limit = s.cfg.MaxResults
	}

	snap, err := s.docs.Get(ctx)
	if err != nil {
		s.countAsk(analytics.ModeQuick, "error")
		return nil, err
	}
	ranked := s.rank(ctx, snap.Sections, query, limit)
	result := &Result{
		Query:     query,
		Matches:   toMatches(ranked, s.cfg.ExcerptLength),
		Stale:     snap.Stale,
		FetchedAt: snap.FetchedAt,
	}
	outcome := "matched"
	if len(ranked) == 0 {
		outcome = "no_match"
		result.Suggestions = s.ranker.Expander().Suggest(suggestionCount)
		s.notifyUnanswered(ctx, query)
	}

	latency := time.Since(start)
	s.observe(analytics.ModeQuick, outcome, latency, len(ranked))
	s.track(ctx, analytics.AskEvent{
		Mode:      analytics.ModeQuick,
		Question:  query,
		Matched:   headings(ranked),
		TopScore:  topScore(ranked),
		Stale:     snap.Stale,
		LatencyMs: latency.Milliseconds(),
	})
	return result, nil
}

// Explain asks the explainer to answer question from the best-matching
// excerpts. The explainer is not called when nothing matches. If it fails,
// the excerpts are returned with Unavailable set. Without a configured
// explainer Explain returns ErrExplainUnavailable (503).
func (s *Service) Explain(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()
	if err := validateQuestion(question); err != nil {
		return nil, err
	}
	if s.explainer == nil {
		return nil, apperrors.New(apperrors.ErrExplainUnavailable, http.StatusServiceUnavailable, "AI explanations are not enabled")
	}
	snap, err := s.docs.Get(ctx)
	if err != nil {
		s.countAsk(analytics.ModeExplain, "error")
		return nil, err
	}

	ranked := s.rank(ctx, snap.Sections, question, s.cfg.MaxExcerpts)
	answer := &Answer{
		Question: question,
		Sources:  toMatches(ranked, s.cfg.ExplainExcerptLength),
		Stale:    snap.Stale,
	}
	event := analytics.AskEvent{
		Mode:     analytics.ModeExplain,
		Question: question,
		Matched:  headings(ranked),
		TopScore: topScore(ranked),
		Stale:    snap.Stale,
	}

	outcome := "matched"
	switch {
	case len(ranked) == 0:
		outcome = "no_match"
		answer.Answer = NotFoundAnswer
		answer.Suggestions = s.ranker.Expander().Suggest(suggestionCount)
		s.notifyUnanswered(ctx, question)
	default:
		answer.Found = true
		text, cached, err := s.generate(ctx, question, answer.Sources)
		if err != nil {
			outcome = "degraded"
			answer.Unavailable = true
			event.Degraded = true
			logger.FromContext(ctx).Warn("explanation unavailable, returning excerpts", "error", err)
			if s.notifier != nil {
				s.notifier.Notify(ctx, notify.Notification{
					Kind:      notify.KindExplainUnavailable,
					Question:  question,
					Detail:    apperrors.UserMessage(err),
					RequestID: logger.RequestID(ctx),
				})
			}
			break
		}
		answer.Answer = text
		answer.Cached = cached
		event.CacheHit = cached
	}

	latency := time.Since(start)
	event.LatencyMs = latency.Milliseconds()
	s.observe(analytics.ModeExplain, outcome, latency, len(ranked))
	s.track(ctx, event)
	return answer, nil
}

// Sections lists the headings of the current agreement in document order.
func (s *Service) Sections(ctx context.Context) (*SectionList, error) {
	snap, err := s.docs.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &SectionList{
		Headings:  segmenter.Headings(snap.Sections),
		FetchedAt: snap.FetchedAt,
		Stale:     snap.Stale,
	}, nil
}

// Refresh reloads the agreement from its source now. Cached answers are
// dropped when the new copy is loaded since they may cite old text.
func (s *Service) Refresh(ctx context.Context) (document.Status, error) {
	snap, err := s.docs.Refresh(ctx)
	if err != nil {
		return s.docs.Status(), err
	}
	if s.metrics != nil {
		s.metrics.DocumentSections.Set(float64(len(snap.Sections)))
	}
	if s.answers != nil {
		if _, err := s.answers.Invalidate(ctx); err != nil {
			s.logger.Warn("answer cache not cleared after refresh", "error", err)
		}
	}
	return s.docs.Status(), nil
}

// DocumentStatus reports the document cache without refreshing it.
func (s *Service) DocumentStatus() document.Status {
	return s.docs.Status()
}

type CacheStats struct {
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (s *Service) CacheStats() CacheStats {
	if s.answers == nil {
		return CacheStats{}
	}
	hits, misses := s.answers.Stats()
	st := CacheStats{Enabled: true, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}

func (s *Service) InvalidateAnswers(ctx context.Context) (int64, error) {
	if s.answers == nil {
		return 0, nil
	}
	return s.answers.Invalidate(ctx)
}

func (s *Service) rank(ctx context.Context, sections []segmenter.Section, query string, limit int) []ranker.ScoredSection {
	_, span := tracing.StartChildSpan(ctx, "rank")
	defer span.End()
	ranked := s.ranker.Search(sections, query, limit)
	span.SetAttr("sections", len(sections))
	span.SetAttr("matches", len(ranked))
	return ranked
}

func (s *Service) generate(ctx context.Context, question string, sources []Match) (string, bool, error) {
	ctx, span := tracing.StartChildSpan(ctx, "explain")
	defer span.End()

	excerpts := make([]explain.Excerpt, len(sources))
	hs := make([]string, len(sources))
	for i, m := range sources {
		excerpts[i] = explain.Excerpt{Heading: m.Heading, Text: m.Excerpt}
		hs[i] = m.Heading
	}
	compute := func(ctx context.Context) (*answercache.Answer, error) {
		text, err := s.explainer.Explain(ctx, question, excerpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrExplainUnavailable, err)
		}
		return &answercache.Answer{Text: text, Headings: hs, GeneratedAt: time.Now().UTC()}, nil
	}

	if s.answers == nil {
		a, err := compute(ctx)
		if err != nil {
			return "", false, err
		}
		return a.Text, false, nil
	}
	a, hit, err := s.answers.GetOrCompute(ctx, answercache.Key(question, hs), compute)
	if s.metrics != nil {
		if hit {
			s.metrics.AnswerCacheHits.Inc()
		} else {
			s.metrics.AnswerCacheMisses.Inc()
		}
	}
	span.SetAttr("cache_hit", hit)
	if err != nil {
		return "", false, err
	}
	return a.Text, hit, nil
}

func (s *Service) notifyUnanswered(ctx context.Context, question string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindUnanswered,
		Question:  question,
		RequestID: logger.RequestID(ctx),
	})
}

func (s *Service) track(ctx context.Context, event analytics.AskEvent) {
	if s.tracker == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	s.tracker.Track(event)
}

func (s *Service) observe(mode analytics.Mode, outcome string, latency time.Duration, matched int) {
	if s.metrics == nil {
		return
	}
	s.metrics.AsksTotal.WithLabelValues(string(mode), outcome).Inc()
	s.metrics.AskLatency.WithLabelValues(string(mode)).Observe(latency.Seconds())
	s.metrics.MatchedSections.Observe(float64(matched))
}

func (s *Service) countAsk(mode analytics.Mode, outcome string) {
	if s.metrics != nil {
		s.metrics.AsksTotal.WithLabelValues(string(mode), outcome).Inc()
	}
}

func validateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return apperrors.ErrEmptyQuery
	}
	if utf8.RuneCountInString(q) > MaxQuestionLength {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "questions are limited to %d characters", MaxQuestionLength)
	}
	return nil
}

func toMatches(ranked []ranker.ScoredSection, length int) []Match {
	out := make([]Match, len(ranked))
	for i, r := range ranked {
		out[i] = Match{
			Heading: r.Heading,
			Excerpt: excerpt.Build(r.Body, length),
			Score:   r.Score,
		}
	}
	return out
}

func headings(ranked []ranker.ScoredSection) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Heading
	}
	return out
}

func topScore(ranked []ranker.ScoredSection) int {
	if len(ranked) == 0 {
		return 0
	}
	return ranked[0].Score
}
