// Package subject defines the domain entities a pipeline runs against and the
// storage collaborator contract for loading and persisting them. Profile and
// document CRUD around these entities lives outside this service.
package subject

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the polymorphic subject reference stored on history
// records and task descriptors.
type Kind string

const (
	KindLead        Kind = "lead"
	KindApplication Kind = "credit_application"
)

// Status is a lifecycle state of a credit application. The transition graph
// over these values is data, declared in the lifecycle package.
type Status string

const (
	StatusNew                 Status = "NEW"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusInWork              Status = "IN_WORK"
	StatusCallback            Status = "CALLBACK"
	StatusFinAnalysis         Status = "FIN_ANALYSIS"
	StatusDecision            Status = "DECISION"
	StatusDecisionChairperson Status = "DECISION_CHAIRPERSON"
	StatusFilling             Status = "FILLING"
	StatusApproved            Status = "APPROVED"
	StatusToSigning           Status = "TO_SIGNING"
	StatusGuarantorSigning    Status = "GUARANTOR_SIGNING"
	StatusRejected            Status = "REJECTED"
	StatusIssuance            Status = "ISSUANCE"
	StatusIssued              Status = "ISSUED"
)

// Subject is the entity a pipeline processes. Reference must be stable for
// the lifetime of the subject; it correlates cached integration results.
type Subject interface {
	SubjectKind() Kind
	SubjectID() uuid.UUID
	Reference() string
}

// Lead is the pre-application subject created from an inbound request.
type Lead struct {
	ID         uuid.UUID
	NationalID string
	FullName   string
	Phone      string
	Product    string
	CreatedAt  time.Time

	// Fields populated by integrations.
	Extra map[string]string
}

func (l *Lead) SubjectKind() Kind    { return KindLead }
func (l *Lead) SubjectID() uuid.UUID { return l.ID }
func (l *Lead) Reference() string    { return l.NationalID }

// SetExtra records an integration-extracted field on the lead.
func (l *Lead) SetExtra(key, value string) {
	if l.Extra == nil {
		l.Extra = make(map[string]string)
	}
	l.Extra[key] = value
}

// CreditApplication is the lifecycle-bearing subject. Status moves only
// through the lifecycle machine, never by direct assignment outside it.
type CreditApplication struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	NationalID   string
	FullName     string
	Phone        string
	Product      string
	Amount       int64
	TermMonths   int
	Status       Status
	StatusReason string
	RejectReason string
	Score        int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Fields populated by integrations.
	Extra map[string]string
}

func (a *CreditApplication) SubjectKind() Kind    { return KindApplication }
func (a *CreditApplication) SubjectID() uuid.UUID { return a.ID }
func (a *CreditApplication) Reference() string    { return a.NationalID }

// SetExtra records an integration-extracted field on the application.
func (a *CreditApplication) SetExtra(key, value string) {
	if a.Extra == nil {
		a.Extra = make(map[string]string)
	}
	a.Extra[key] = value
}

// ErrNotFound is returned when a subject does not exist in storage.
var ErrNotFound = errors.New("subject not found")

// Store is the storage collaborator for subjects. Background tasks reload the
// subject by (kind, id) so a chain survives process and worker boundaries.
type Store interface {
	Load(ctx context.Context, kind Kind, id uuid.UUID) (Subject, error)
	Save(ctx context.Context, s Subject) error
}
