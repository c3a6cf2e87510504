package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

func TestActiveBindings_OrdersByPriorityAndSkipsInactive(t *testing.T) {
	store := NewInMemoryStore()
	store.PutPipeline(Pipeline{ID: 1, Name: "scoring", Active: true})

	store.PutServiceConfig(integration.Config{ID: 1, Name: "bureau", Integration: "bureau", Active: true})
	store.PutServiceConfig(integration.Config{ID: 2, Name: "blacklist", Integration: "blacklist", Active: true})
	store.PutServiceConfig(integration.Config{ID: 3, Name: "legacy", Integration: "legacy", Active: false})
	store.PutServiceConfig(integration.Config{ID: 4, Name: "biometric", Integration: "biometric", Active: true})

	store.PutStep(Step{ID: 1, PipelineID: 1, ServiceID: 1, Priority: 30, Active: true})
	store.PutStep(Step{ID: 2, PipelineID: 1, ServiceID: 2, Priority: 10, Active: true})
	store.PutStep(Step{ID: 3, PipelineID: 1, ServiceID: 3, Priority: 20, Active: true})
	store.PutStep(Step{ID: 4, PipelineID: 1, ServiceID: 4, Priority: 40, Active: false})
	store.PutStep(Step{ID: 5, PipelineID: 2, ServiceID: 1, Priority: 5, Active: true})

	bindings, err := store.ActiveBindings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, bindings, 2, "inactive steps and inactive configs are excluded")
	assert.Equal(t, "blacklist", bindings[0].Config.Name)
	assert.Equal(t, "bureau", bindings[1].Config.Name)
}

func TestGetPipeline_NotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.GetPipeline(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetServiceConfig_ReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	store.PutServiceConfig(integration.Config{ID: 1, Name: "bureau", Active: true})

	cfg, err := store.GetServiceConfig(context.Background(), 1)
	require.NoError(t, err)
	cfg.Name = "mutated"

	again, err := store.GetServiceConfig(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "bureau", again.Name)
}

func TestTriggersFor_FiltersAndOrders(t *testing.T) {
	store := NewInMemoryStore()
	store.PutTrigger(StatusTrigger{ID: 1, Product: "consumer", Status: subject.StatusInProgress, Priority: 20, PipelineID: 2, Active: true})
	store.PutTrigger(StatusTrigger{ID: 2, Product: "consumer", Status: subject.StatusInProgress, Priority: 10, PipelineID: 1, Active: true})
	store.PutTrigger(StatusTrigger{ID: 3, Product: "mortgage", Status: subject.StatusInProgress, Priority: 5, PipelineID: 3, Active: true})
	store.PutTrigger(StatusTrigger{ID: 4, Product: "", Status: subject.StatusInProgress, Priority: 30, PipelineID: 4, Active: true})
	store.PutTrigger(StatusTrigger{ID: 5, Product: "consumer", Status: subject.StatusInProgress, Priority: 1, PipelineID: 5, Active: false})
	store.PutTrigger(StatusTrigger{ID: 6, Product: "consumer", Status: subject.StatusApproved, Priority: 1, PipelineID: 6, Active: true})

	triggers, err := store.TriggersFor(context.Background(), "consumer", subject.StatusInProgress)
	require.NoError(t, err)
	require.Len(t, triggers, 3)
	assert.Equal(t, int64(1), triggers[0].PipelineID, "priority order")
	assert.Equal(t, int64(2), triggers[1].PipelineID)
	assert.Equal(t, int64(4), triggers[2].PipelineID, "empty product matches every product")
}
