package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"loanflow/internal/platform/config"
	"loanflow/internal/platform/kafka"
)

// chainMessage is one hop of a chain on the broker. The whole chain travels
// with the message; Next points at the task to execute. Publishing the
// follow-up hop only after the current task decides Continue gives the
// strictly sequential, abort-on-demand semantics the orchestrator needs
// without relying on broker-specific failure behavior.
type chainMessage struct {
	Tasks []TaskDescriptor `json:"tasks"`
	Next  int              `json:"next"`
}

// KafkaChain enqueues chains on the broker. Records are keyed by subject so
// one subject's hops stay ordered on one partition.
type KafkaChain struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaChain(producer *kafka.Producer, topic string) *KafkaChain {
	return &KafkaChain{producer: producer, topic: topic}
}

func (c *KafkaChain) EnqueueChain(ctx context.Context, tasks []TaskDescriptor) error {
	if len(tasks) == 0 {
		return nil
	}
	return publishHop(ctx, c.producer, c.topic, chainMessage{Tasks: tasks, Next: 0})
}

func publishHop(ctx context.Context, producer *kafka.Producer, topic string, msg chainMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chain message: %w", err)
	}
	key := []byte(msg.Tasks[msg.Next].SubjectID.String())
	if err := producer.Produce(ctx, topic, key, value); err != nil {
		return fmt.Errorf("enqueue chain hop: %w", err)
	}
	return nil
}

// KafkaWorker consumes chain hops, executes them, and publishes the next hop
// when the task decides Continue. Delivery is at-least-once; the executor's
// cache lookup makes re-delivered hops cheap.
type KafkaWorker struct {
	client   *kgo.Client
	producer *kafka.Producer
	executor Executor
	topic    string
	logger   *slog.Logger
}

// NewKafkaWorker builds a consumer-group worker over the chain topic.
func NewKafkaWorker(cfg config.KafkaConfig, producer *kafka.Producer, executor Executor, logger *slog.Logger) (*KafkaWorker, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.ChainTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain consumer: %w", err)
	}
	return &KafkaWorker{
		client:   client,
		producer: producer,
		executor: executor,
		topic:    cfg.ChainTopic,
		logger:   logger,
	}, nil
}

// Run polls until the context is canceled.
func (w *KafkaWorker) Run(ctx context.Context) error {
	for {
		fetches := w.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			w.logger.Error("chain fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			w.handle(ctx, record)
		})
	}
}

func (w *KafkaWorker) handle(ctx context.Context, record *kgo.Record) {
	var msg chainMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		w.logger.Error("malformed chain message dropped", "error", err)
		return
	}
	if msg.Next < 0 || msg.Next >= len(msg.Tasks) {
		w.logger.Error("chain message index out of range", "next", msg.Next, "tasks", len(msg.Tasks))
		return
	}

	task := msg.Tasks[msg.Next]
	result := w.executor.Execute(ctx, task)
	if result != Continue {
		w.logger.Info("task chain stopped",
			"correlation_id", task.CorrelationID,
			"completed", msg.Next+1,
			"total", len(msg.Tasks),
			"rejected", result == Rejected,
		)
		return
	}
	if msg.Next+1 >= len(msg.Tasks) {
		return
	}

	msg.Next++
	if err := publishHop(ctx, w.producer, w.topic, msg); err != nil {
		w.logger.Error("publish next chain hop failed",
			"correlation_id", task.CorrelationID, "error", err)
	}
}

// Close shuts the consumer down.
func (w *KafkaWorker) Close() {
	w.client.Close()
}
