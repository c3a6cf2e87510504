// Package integration defines the executable contract for one external
// verification or scoring step, the registry resolving configuration to
// implementations, and the runner that executes a single invocation with
// caching, auditing, and the failure taxonomy the pipeline relies on.
package integration

import (
	"context"

	"loanflow/internal/subject"
)

// Payload is the structured result of one integration call. It is persisted
// verbatim on the history record and handed to rule evaluation.
type Payload map[string]any

// Integration is the executable unit behind one external system. An
// implementation decides whether to run, performs the call, evaluates
// business rules on the response, and persists extracted fields.
//
// Implementations receive their Config at construction and must treat it as
// read-only.
type Integration interface {
	// Conditions gates the step. When false the runner skips the step
	// entirely: no cache lookup, no history record.
	Conditions(ctx context.Context, sub subject.Subject) bool

	// Prepare performs local setup before the call, such as deriving a
	// request identifier.
	Prepare(ctx context.Context, sub subject.Subject) error

	// Run performs the remote call. It returns *TransportError on
	// connectivity failure and *RemoteError on an application-level error
	// response.
	Run(ctx context.Context, sub subject.Subject) (Payload, error)

	// CheckRule evaluates domain policy over the payload. It returns
	// *RejectError when the business outcome is a terminal rejection.
	CheckRule(ctx context.Context, sub subject.Subject, payload Payload) error

	// Save persists extracted fields onto the subject or a related
	// aggregate. A no-op when the step exists only to check rules.
	Save(ctx context.Context, sub subject.Subject, payload Payload) error

	// PostRun runs side effects after a successful (or cached) result, such
	// as scheduling a follow-up task. Failures are logged by the runner and
	// never propagate.
	PostRun(ctx context.Context, sub subject.Subject, payload Payload) error
}

// Base provides no-op defaults so integrations only implement the hooks they
// need. Embed it and override.
type Base struct{}

func (Base) Conditions(context.Context, subject.Subject) bool { return true }

func (Base) Prepare(context.Context, subject.Subject) error { return nil }

func (Base) CheckRule(context.Context, subject.Subject, Payload) error { return nil }

func (Base) Save(context.Context, subject.Subject, Payload) error { return nil }

func (Base) PostRun(context.Context, subject.Subject, Payload) error { return nil }
