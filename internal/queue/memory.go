package queue

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryChain executes chains on background goroutines inside this
// process. It backs the dev setup and tests; production uses the Kafka
// chain so work survives restarts.
type InMemoryChain struct {
	executor Executor
	logger   *slog.Logger

	// synchronous makes EnqueueChain run the chain before returning, for
	// deterministic tests.
	synchronous bool

	wg sync.WaitGroup
}

// Option configures the in-memory chain.
type Option func(*InMemoryChain)

// Synchronous makes EnqueueChain block until the chain finishes.
func Synchronous() Option {
	return func(c *InMemoryChain) { c.synchronous = true }
}

func NewInMemoryChain(executor Executor, logger *slog.Logger, opts ...Option) *InMemoryChain {
	c := &InMemoryChain{executor: executor, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryChain) EnqueueChain(ctx context.Context, tasks []TaskDescriptor) error {
	if len(tasks) == 0 {
		return nil
	}
	if c.synchronous {
		c.runChain(ctx, tasks)
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Detach from the request context: the chain outlives the call that
		// enqueued it.
		c.runChain(context.Background(), tasks)
	}()
	return nil
}

func (c *InMemoryChain) runChain(ctx context.Context, tasks []TaskDescriptor) {
	for i, task := range tasks {
		result := c.executor.Execute(ctx, task)
		if result == Continue {
			continue
		}
		c.logger.Info("task chain stopped",
			"correlation_id", task.CorrelationID,
			"completed", i+1,
			"total", len(tasks),
			"rejected", result == Rejected,
		)
		return
	}
}

// Wait blocks until all in-flight chains finish. Used on shutdown.
func (c *InMemoryChain) Wait() {
	c.wg.Wait()
}
