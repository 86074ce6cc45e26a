// Package analytics records questions asked of the portal, ships them through
// Kafka, and aggregates them into usage statistics.
package analytics

import (
	"context"
	"log/slog"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
)

// Collector buffers events in a channel and publishes them from a single
// goroutine so request handlers never wait on the broker.
type Collector struct {
	publisher kafka.Publisher
	eventCh   chan AskEvent
	onDrop    func()
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher kafka.Publisher, bufferSize int, onDrop func()) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan AskEvent, bufferSize),
		onDrop:    onDrop,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event AskEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.onDrop()
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the buffer to be published.
// Track must not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event AskEvent) {
	if err := c.publisher.Publish(ctx, kafka.Event{
		Key:   string(event.Mode),
		Value: event,
	}); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}
