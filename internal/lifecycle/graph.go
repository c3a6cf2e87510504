package lifecycle

import (
	"context"
	"log/slog"

	"loanflow/internal/notify"
	"loanflow/internal/subject"
)

// Operator roles checked by edge guards.
const (
	RoleManager     = "manager"
	RoleUnderwriter = "underwriter"
	RoleChairperson = "chairperson"
)

// Notification templates dispatched by transition effects.
const (
	TemplateApproved = "application_approved"
	TemplateRejected = "application_rejected"
	TemplateIssued   = "loan_issued"
)

// anyActive lists every state a rejection may come from. REJECTED itself is
// excluded: rejecting twice is not a transition.
var anyActive = []subject.Status{
	subject.StatusNew, subject.StatusInProgress, subject.StatusInWork,
	subject.StatusCallback, subject.StatusFinAnalysis, subject.StatusDecision,
	subject.StatusDecisionChairperson, subject.StatusFilling,
	subject.StatusApproved, subject.StatusToSigning,
	subject.StatusGuarantorSigning, subject.StatusIssuance,
}

// GraphDeps are the collaborators transition effects need.
type GraphDeps struct {
	Notifier notify.Notifier
	Logger   *slog.Logger

	// CreateContract prepares signing documents when the application moves
	// to TO_SIGNING. Idempotent: repeated entry reuses the existing
	// contract.
	CreateContract func(ctx context.Context, app *subject.CreditApplication) error
}

// DefaultEdges declares the consumer-loan status graph. States and edges are
// data; swapping the product swaps the table, not the runner.
func DefaultEdges(deps GraphDeps) []Edge {
	notifyEffect := func(template string) Effect {
		return func(ctx context.Context, app *subject.CreditApplication) error {
			if deps.Notifier == nil || app.Phone == "" {
				return nil
			}
			// Fire-and-forget: a notification failure never blocks the
			// transition.
			if err := deps.Notifier.SendTemplated(ctx, app.Phone, template, map[string]string{
				"application_id": app.ID.String(),
				"reason":         app.StatusReason,
			}); err != nil {
				deps.Logger.Error("notification dispatch failed",
					"application", app.ID, "template", template, "error", err)
			}
			return nil
		}
	}

	return []Edge{
		{
			From: []subject.Status{subject.StatusNew},
			To:   subject.StatusInProgress,
		},
		{
			From: []subject.Status{subject.StatusInProgress, subject.StatusCallback},
			To:   subject.StatusInWork,
		},
		{
			From:  []subject.Status{subject.StatusInWork},
			To:    subject.StatusCallback,
			Guard: RequireRole(RoleManager),
		},
		{
			From: []subject.Status{subject.StatusInWork},
			To:   subject.StatusFinAnalysis,
		},
		{
			From:  []subject.Status{subject.StatusFinAnalysis},
			To:    subject.StatusDecision,
			Guard: RequireRole(RoleUnderwriter),
		},
		{
			From:  []subject.Status{subject.StatusDecision},
			To:    subject.StatusDecisionChairperson,
			Guard: RequireRole(RoleUnderwriter),
		},
		{
			From:  []subject.Status{subject.StatusDecision, subject.StatusDecisionChairperson},
			To:    subject.StatusFilling,
			Guard: RequireRole(RoleUnderwriter),
		},
		{
			From:   []subject.Status{subject.StatusFilling, subject.StatusDecision, subject.StatusDecisionChairperson},
			To:     subject.StatusApproved,
			Guard:  RequireRole(RoleUnderwriter),
			Effect: notifyEffect(TemplateApproved),
		},
		{
			From: []subject.Status{subject.StatusApproved},
			To:   subject.StatusToSigning,
			Effect: func(ctx context.Context, app *subject.CreditApplication) error {
				if deps.CreateContract == nil {
					return nil
				}
				return deps.CreateContract(ctx, app)
			},
		},
		{
			From: []subject.Status{subject.StatusToSigning},
			To:   subject.StatusGuarantorSigning,
		},
		{
			From: []subject.Status{subject.StatusToSigning, subject.StatusGuarantorSigning},
			To:   subject.StatusIssuance,
		},
		{
			From:   []subject.Status{subject.StatusIssuance},
			To:     subject.StatusIssued,
			Effect: notifyEffect(TemplateIssued),
		},
		{
			From:   anyActive,
			To:     subject.StatusRejected,
			Effect: notifyEffect(TemplateRejected),
		},
		{
			// Recovery: a rejected application may be reworked. Intentional,
			// REJECTED is not truly terminal.
			From:  []subject.Status{subject.StatusRejected},
			To:    subject.StatusInWork,
			Guard: RequireRole(RoleManager),
		},
	}
}
