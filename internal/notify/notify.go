// Package notify tells the office about questions the portal could not answer
// and about outages of the explanation service.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
)

type Kind string

const (
	KindUnanswered         Kind = "unanswered_question"
	KindExplainUnavailable Kind = "explain_unavailable"
	KindDocumentStale      Kind = "document_stale"
)

type Notification struct {
	Kind      Kind      `json:"kind"`
	Question  string    `json:"question,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes notifications without blocking the caller. With a nil
// publisher notifications are only logged.
type Notifier struct {
	publisher kafka.Publisher
	timeout   time.Duration
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func New(publisher kafka.Publisher) *Notifier {
	return &Notifier{
		publisher: publisher,
		timeout:   5 * time.Second,
		logger:    slog.Default().With("component", "notifier"),
	}
}

// Notify sends n in the background. The request context's values are kept
// but its cancellation is not, so a finished request does not abort delivery.
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now().UTC()
	}
	n.logger.Info("notification", "kind", note.Kind, "question", note.Question, "detail", note.Detail)
	if n.publisher == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.publisher.Publish(ctx, kafka.Event{Key: string(note.Kind), Value: note}); err != nil {
			n.logger.Warn("notification not delivered", "kind", note.Kind, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications have been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
