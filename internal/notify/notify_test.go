package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	ctxErr error
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	p.ctxErr = ctx.Err()
	return p.err
}

func TestNotifier_PublishesAfterRequestEnds(t *testing.T) {
	pub := &recordingPublisher{}
	n := New(pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, Notification{Kind: KindUnanswered, Question: "can I keep chickens"})
	n.Wait()

	require.Len(t, pub.events, 1)
	assert.Equal(t, "unanswered_question", pub.events[0].Key)
	note := pub.events[0].Value.(Notification)
	assert.Equal(t, "can I keep chickens", note.Question)
	assert.False(t, note.Timestamp.IsZero())
	assert.NoError(t, pub.ctxErr)
}

func TestNotifier_ErrorsAreSwallowed(t *testing.T) {
	n := New(&recordingPublisher{err: errors.New("broker down")})
	n.Notify(context.Background(), Notification{Kind: KindExplainUnavailable})
	n.Wait()
}

func TestNotifier_NilPublisher(t *testing.T) {
	n := New(nil)
	n.Notify(context.Background(), Notification{Kind: KindDocumentStale})
	n.Wait()
}
