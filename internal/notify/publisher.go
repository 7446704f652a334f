// Package notify delivers sync lifecycle events to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/events"
)

// Publisher writes sync events to a Kafka topic. Publishing is best effort:
// the sync result is already committed to Postgres before any event leaves
// the process.
type Publisher struct {
	brokers []string
	topic   string

	mu     sync.Mutex
	writer *kafka.Writer
}

// NewPublisher constructs a Publisher. With no brokers configured it is
// disabled and every publish is a no-op.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{brokers: brokers, topic: topic}
}

// Enabled reports whether the publisher has somewhere to write.
func (p *Publisher) Enabled() bool {
	return len(p.brokers) > 0 && p.topic != ""
}

// PublishSyncCompleted emits one event per finished sync run.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, event events.SyncCompleted) error {
	if !p.Enabled() {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.getWriter().WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Platform),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("sync.completed")},
		},
	})
}

func (p *Publisher) getWriter() *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        p.topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		}
	}
	return p.writer
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
