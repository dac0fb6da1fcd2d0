package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

// topicPrefix namespaces the per-session topics.
const topicPrefix = "live."

// Topic is the NSQ topic a session handle receives on. Sessions are
// short-lived, so the topic is ephemeral and nsqd drops it once the last
// consumer goes away.
func Topic(handle string) string {
	return topicPrefix + handle + "#ephemeral"
}

// Producer publishes live events to the nsqd that session consumers read.
type Producer struct {
	p   *nsq.Producer
	log *slog.Logger
}

func NewProducer(log *slog.Logger, addr string) (*Producer, error) {
	cfg := nsq.NewConfig()
	p, err := nsq.NewProducer(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelWarning)
	return &Producer{p: p, log: log}, nil
}

// Push implements notify.LiveChannel.
func (p *Producer) Push(ctx context.Context, handle string, payload []byte) error {
	topic := Topic(handle)
	if !nsq.IsValidTopicName(topic) {
		return fmt.Errorf("invalid channel handle %q", handle)
	}
	done := make(chan *nsq.ProducerTransaction, 1)
	if err := p.p.PublishAsync(topic, payload, done); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	select {
	case t := <-done:
		return t.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) Ping() error {
	return p.p.Ping()
}

func (p *Producer) Stop() {
	p.p.Stop()
}
