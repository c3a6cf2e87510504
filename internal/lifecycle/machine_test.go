package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/notify"
	"loanflow/internal/subject"
	"loanflow/pkg/requestcontext"
)

func newTestMachine(t *testing.T, deps GraphDeps) (*Machine, *InMemoryTransitionStore) {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	store := NewInMemoryTransitionStore(subject.NewInMemoryStore())
	return NewMachine(DefaultEdges(deps), store, deps.Logger), store
}

func newApp(status subject.Status) *subject.CreditApplication {
	return &subject.CreditApplication{
		ID:         uuid.New(),
		NationalID: "900101300123",
		Product:    "consumer",
		Status:     status,
	}
}

func systemCtx() context.Context {
	return requestcontext.WithRoles(context.Background(), []string{RoleSystem})
}

func roleCtx(roles ...string) context.Context {
	return requestcontext.WithRoles(context.Background(), roles)
}

func TestTransition_LegalEdgeCommitsAndAudits(t *testing.T) {
	machine, store := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusNew)

	err := machine.Transition(context.Background(), app, subject.StatusInProgress, "received")
	require.NoError(t, err)
	assert.Equal(t, subject.StatusInProgress, app.Status)
	assert.Equal(t, "received", app.StatusReason)

	trail, err := store.ListTransitions(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, subject.StatusNew, trail[0].From)
	assert.Equal(t, subject.StatusInProgress, trail[0].To)
}

func TestTransition_IllegalEdgeFailsWithoutMutation(t *testing.T) {
	machine, store := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusNew)

	err := machine.Transition(context.Background(), app, subject.StatusIssued, "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, subject.StatusNew, invalid.From)
	assert.Equal(t, subject.StatusIssued, invalid.To)

	assert.Equal(t, subject.StatusNew, app.Status, "state must be untouched")
	trail, err := store.ListTransitions(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, trail, "no audit row for a refused transition")
}

func TestTransition_GuardDeniesWithoutRole(t *testing.T) {
	machine, store := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusFinAnalysis)

	err := machine.Transition(roleCtx(RoleManager), app, subject.StatusDecision, "")
	var denied *PermissionError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleUnderwriter, denied.Role)
	assert.Equal(t, subject.StatusFinAnalysis, app.Status)

	trail, _ := store.ListTransitions(context.Background(), app.ID)
	assert.Empty(t, trail)

	require.NoError(t, machine.Transition(roleCtx(RoleUnderwriter), app, subject.StatusDecision, ""))
	assert.Equal(t, subject.StatusDecision, app.Status)
}

func TestTransition_SystemRoleBypassesGuards(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusFinAnalysis)

	err := machine.Transition(systemCtx(), app, subject.StatusDecision, "auto scoring passed")
	require.NoError(t, err)
	assert.Equal(t, subject.StatusDecision, app.Status)
}

func TestTransition_EffectFailureRollsBackState(t *testing.T) {
	boom := errors.New("contract service down")
	machine, store := newTestMachine(t, GraphDeps{
		CreateContract: func(context.Context, *subject.CreditApplication) error {
			return boom
		},
	})
	app := newApp(subject.StatusApproved)

	err := machine.Transition(context.Background(), app, subject.StatusToSigning, "")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, subject.StatusApproved, app.Status, "failed effect must restore the state")

	trail, _ := store.ListTransitions(context.Background(), app.ID)
	assert.Empty(t, trail)
}

func TestTransition_NotificationFailureDoesNotBlock(t *testing.T) {
	failing := notify.NotifierFunc(func(context.Context, string, string, map[string]string) error {
		return errors.New("gateway timeout")
	})
	machine, _ := newTestMachine(t, GraphDeps{Notifier: failing})
	app := newApp(subject.StatusFilling)
	app.Phone = "+77010000000"

	err := machine.Transition(roleCtx(RoleUnderwriter), app, subject.StatusApproved, "approved by committee")
	require.NoError(t, err, "notification failures are logged, never returned")
	assert.Equal(t, subject.StatusApproved, app.Status)
}

func TestTransition_RejectedIsReachableFromAnyActiveState(t *testing.T) {
	for _, from := range anyActive {
		machine, _ := newTestMachine(t, GraphDeps{})
		app := newApp(from)

		err := machine.Transition(systemCtx(), app, subject.StatusRejected, "BLACKLISTED")
		require.NoError(t, err, "REJECTED must be reachable from %s", from)
		assert.Equal(t, "BLACKLISTED", app.RejectReason)
	}
}

func TestTransition_RejectedTwiceIsIllegal(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusRejected)

	err := machine.Transition(systemCtx(), app, subject.StatusRejected, "again")
	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestTransition_RejectedRecoveryNeedsManager(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusRejected)

	err := machine.Transition(roleCtx(RoleUnderwriter), app, subject.StatusInWork, "rework")
	var denied *PermissionError
	require.ErrorAs(t, err, &denied)

	require.NoError(t, machine.Transition(roleCtx(RoleManager), app, subject.StatusInWork, "rework"))
	assert.Equal(t, subject.StatusInWork, app.Status)
}

func TestAvailable_ListsLegalNextStates(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})

	next := machine.Available(newApp(subject.StatusDecision))
	assert.Equal(t, []subject.Status{
		subject.StatusDecisionChairperson,
		subject.StatusFilling,
		subject.StatusApproved,
		subject.StatusRejected,
	}, next)

	assert.Equal(t, []subject.Status{subject.StatusInWork},
		machine.Available(newApp(subject.StatusRejected)))
}

func TestTransition_FiresTriggersAfterCommit(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})
	var fired []*subject.CreditApplication
	machine.SetTriggerFirer(triggerFirerFunc(func(_ context.Context, app *subject.CreditApplication) {
		fired = append(fired, app)
	}))
	app := newApp(subject.StatusNew)

	require.NoError(t, machine.Transition(context.Background(), app, subject.StatusInProgress, ""))
	require.Len(t, fired, 1)
	assert.Equal(t, subject.StatusInProgress, fired[0].Status, "triggers see the committed state")
}

func TestReject_ApplicationTakesRejectedEdge(t *testing.T) {
	machine, store := newTestMachine(t, GraphDeps{})
	app := newApp(subject.StatusInProgress)

	// no roles on the context: Reject runs with system authority
	require.NoError(t, machine.Reject(context.Background(), app, "LOW_SCORE"))
	assert.Equal(t, subject.StatusRejected, app.Status)
	assert.Equal(t, "LOW_SCORE", app.RejectReason)

	trail, _ := store.ListTransitions(context.Background(), app.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, subject.StatusRejected, trail[0].To)
}

func TestReject_LeadRecordsReason(t *testing.T) {
	machine, _ := newTestMachine(t, GraphDeps{})
	lead := &subject.Lead{ID: uuid.New(), NationalID: "900101300123"}

	require.NoError(t, machine.Reject(context.Background(), lead, "BLACKLISTED"))
	assert.Equal(t, "BLACKLISTED", lead.Extra["reject_reason"])
}

type triggerFirerFunc func(ctx context.Context, app *subject.CreditApplication)

func (f triggerFirerFunc) Fire(ctx context.Context, app *subject.CreditApplication) { f(ctx, app) }
