package analytics

import "time"

// Mode is how a question was answered.
type Mode string

const (
	ModeQuick   Mode = "quick"
	ModeExplain Mode = "explain"
)

// AskEvent records one question put to the portal.
type AskEvent struct {
	Mode      Mode      `json:"mode"`
	Question  string    `json:"question"`
	Matched   []string  `json:"matched_headings"`
	TopScore  int       `json:"top_score"`
	CacheHit  bool      `json:"cache_hit"`
	Degraded  bool      `json:"degraded"`
	Stale     bool      `json:"stale_document"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Unanswered reports whether no section matched the question.
func (e AskEvent) Unanswered() bool {
	return len(e.Matched) == 0
}

// Tracker accepts ask events. Track must not block.
type Tracker interface {
	Track(event AskEvent)
}
