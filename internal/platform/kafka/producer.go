package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"loanflow/internal/platform/config"
)

// Producer wraps a franz-go client for publishing chain tasks and domain
// events. Returns nil if no brokers are configured (Kafka optional in dev).
type Producer struct {
	client *kgo.Client
}

// NewProducer connects to the configured brokers and makes sure the topics
// this service publishes to exist.
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopics(ctx, client, cfg.ChainTopic, cfg.EventTopic); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client}, nil
}

// ensureTopics creates the topics if they are missing. Existing topics are
// left untouched.
func ensureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)
	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}

	var missing []string
	for _, topic := range topics {
		if !existing.Has(topic) {
			missing = append(missing, topic)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if _, err := adm.CreateTopics(ctx, 1, 1, nil, missing...); err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	return nil
}

// Produce publishes one record synchronously. Key controls partitioning so
// records for one subject stay ordered.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Client exposes the underlying kgo client for consumer construction.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

// Close flushes and closes the client.
func (p *Producer) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}
