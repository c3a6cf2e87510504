// Package lifecycle implements the credit application status graph as a
// declarative transition table interpreted by a small generic runner. The
// graph is data; guards and side effects are plain functions attached to
// edges, kept apart from the interpreter.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"loanflow/internal/subject"
	"loanflow/pkg/requestcontext"
)

// Guard decides whether the caller may take an edge. Evaluated before any
// mutation.
type Guard func(ctx context.Context, app *subject.CreditApplication) error

// Effect runs as part of the transition, before commit. Effects must be
// idempotent with respect to repeated entry into the same state, because
// triggers may re-enter a state through recovery paths.
type Effect func(ctx context.Context, app *subject.CreditApplication) error

// Edge declares one legal transition.
type Edge struct {
	From   []subject.Status
	To     subject.Status
	Guard  Guard
	Effect Effect
}

// InvalidTransitionError is returned when the subject's current state does
// not permit the requested transition. The caller's view of legal next
// states comes from Available, never from hard-coding the graph.
type InvalidTransitionError struct {
	From subject.Status
	To   subject.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// PermissionError is returned when an edge guard denies the caller.
type PermissionError struct {
	To   subject.Status
	Role string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("transition to %s requires role %s", e.To, e.Role)
}

// RequireRole builds a guard admitting only callers carrying the role.
// The internal "system" role always passes so pipeline-driven transitions
// are not blocked by operator permissions.
func RequireRole(role string) Guard {
	return func(ctx context.Context, _ *subject.CreditApplication) error {
		if requestcontext.HasRole(ctx, role) || requestcontext.HasRole(ctx, RoleSystem) {
			return nil
		}
		return &PermissionError{Role: role}
	}
}

// RoleSystem marks transitions initiated by the service itself rather than
// an operator.
const RoleSystem = "system"

// TriggerFirer launches the pipelines bound to a newly entered status.
// Failures never roll back the already-committed transition.
type TriggerFirer interface {
	Fire(ctx context.Context, app *subject.CreditApplication)
}

// Machine interprets the transition table against one application at a time.
type Machine struct {
	edges    []Edge
	store    TransitionStore
	triggers TriggerFirer
	logger   *slog.Logger
}

// NewMachine builds a machine over the given edges.
func NewMachine(edges []Edge, store TransitionStore, logger *slog.Logger) *Machine {
	return &Machine{edges: edges, store: store, logger: logger}
}

// SetTriggerFirer attaches the status-trigger collaborator. Separated from
// construction because the trigger runner itself needs the machine for
// pipeline-driven rejections.
func (m *Machine) SetTriggerFirer(t TriggerFirer) {
	m.triggers = t
}

// Available returns the legal next states from the application's current
// state, in declaration order.
func (m *Machine) Available(app *subject.CreditApplication) []subject.Status {
	var out []subject.Status
	for _, edge := range m.edges {
		if containsStatus(edge.From, app.Status) {
			out = append(out, edge.To)
		}
	}
	return out
}

// Transition moves the application to the target state: guard, effect,
// atomic commit of the mutation plus its audit row, then status triggers.
// An illegal transition fails fast without mutating anything or writing an
// audit row.
func (m *Machine) Transition(ctx context.Context, app *subject.CreditApplication, to subject.Status, reason string) error {
	edge, ok := m.findEdge(app.Status, to)
	if !ok {
		return &InvalidTransitionError{From: app.Status, To: to}
	}
	if edge.Guard != nil {
		if err := edge.Guard(ctx, app); err != nil {
			return err
		}
	}

	prev := app.Status
	prevReason := app.StatusReason
	app.Status = to
	app.StatusReason = reason
	if to == subject.StatusRejected {
		app.RejectReason = reason
	}

	restore := func() {
		app.Status = prev
		app.StatusReason = prevReason
		if to == subject.StatusRejected {
			app.RejectReason = ""
		}
	}

	if edge.Effect != nil {
		if err := edge.Effect(ctx, app); err != nil {
			restore()
			return fmt.Errorf("transition effect %s -> %s: %w", prev, to, err)
		}
	}

	if err := m.store.Apply(ctx, app, prev, reason); err != nil {
		restore()
		return fmt.Errorf("commit transition %s -> %s: %w", prev, to, err)
	}

	m.logger.Info("application transitioned",
		"application", app.ID,
		"from", prev,
		"to", to,
		"reason", reason,
		"actor", requestcontext.Actor(ctx),
	)

	if m.triggers != nil {
		m.triggers.Fire(ctx, app)
	}
	return nil
}

// Reject is the sink for pipeline rejections. For applications it takes the
// REJECTED edge; for leads it records the reason on the entity directly,
// since leads carry no formal status graph.
func (m *Machine) Reject(ctx context.Context, sub subject.Subject, reason string) error {
	ctx = requestcontext.WithRoles(ctx, append(requestcontext.Roles(ctx), RoleSystem))
	if app, ok := sub.(*subject.CreditApplication); ok {
		return m.Transition(ctx, app, subject.StatusRejected, reason)
	}
	if lead, ok := sub.(*subject.Lead); ok {
		lead.SetExtra("reject_reason", reason)
		return m.store.MarkLeadRejected(ctx, lead, reason)
	}
	return fmt.Errorf("reject: unsupported subject kind %s", sub.SubjectKind())
}

func (m *Machine) findEdge(from, to subject.Status) (Edge, bool) {
	for _, edge := range m.edges {
		if edge.To == to && containsStatus(edge.From, from) {
			return edge, true
		}
	}
	return Edge{}, false
}

func containsStatus(list []subject.Status, s subject.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
