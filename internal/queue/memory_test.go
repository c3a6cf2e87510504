package queue

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/subject"
)

type executorFake struct {
	results map[int64]Result
	ran     []int64
}

func (e *executorFake) Execute(_ context.Context, task TaskDescriptor) Result {
	e.ran = append(e.ran, task.ServiceID)
	if r, ok := e.results[task.ServiceID]; ok {
		return r
	}
	return Continue
}

func chainOf(serviceIDs ...int64) []TaskDescriptor {
	subjectID := uuid.New()
	correlation := uuid.NewString()
	tasks := make([]TaskDescriptor, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		tasks = append(tasks, TaskDescriptor{
			SubjectKind:   subject.KindApplication,
			SubjectID:     subjectID,
			ServiceID:     id,
			PipelineID:    1,
			CorrelationID: correlation,
		})
	}
	return tasks
}

func newSyncChain(executor Executor) *InMemoryChain {
	return NewInMemoryChain(executor, slog.New(slog.DiscardHandler), Synchronous())
}

func TestEnqueueChain_RunsTasksInOrder(t *testing.T) {
	executor := &executorFake{}
	chain := newSyncChain(executor)

	require.NoError(t, chain.EnqueueChain(context.Background(), chainOf(1, 2, 3)))
	assert.Equal(t, []int64{1, 2, 3}, executor.ran)
}

func TestEnqueueChain_StopsOnRejection(t *testing.T) {
	executor := &executorFake{results: map[int64]Result{2: Rejected}}
	chain := newSyncChain(executor)

	require.NoError(t, chain.EnqueueChain(context.Background(), chainOf(1, 2, 3)))
	assert.Equal(t, []int64{1, 2}, executor.ran, "tasks after a rejection must not run")
}

func TestEnqueueChain_StopsOnHalt(t *testing.T) {
	executor := &executorFake{results: map[int64]Result{1: Halted}}
	chain := newSyncChain(executor)

	require.NoError(t, chain.EnqueueChain(context.Background(), chainOf(1, 2)))
	assert.Equal(t, []int64{1}, executor.ran)
}

func TestEnqueueChain_EmptyChainIsNoop(t *testing.T) {
	executor := &executorFake{}
	chain := newSyncChain(executor)

	require.NoError(t, chain.EnqueueChain(context.Background(), nil))
	assert.Empty(t, executor.ran)
}

func TestEnqueueChain_AsynchronousCompletes(t *testing.T) {
	executor := &executorFake{}
	chain := NewInMemoryChain(executor, slog.New(slog.DiscardHandler))

	require.NoError(t, chain.EnqueueChain(context.Background(), chainOf(1, 2)))
	chain.Wait()
	assert.Equal(t, []int64{1, 2}, executor.ran)
}
