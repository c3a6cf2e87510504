package subject

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "loanflow/pkg/platform/tx"
)

// PostgresStore persists leads and credit applications in their own tables.
// Integration-written extras are a JSONB column on both.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed subject store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Load(ctx context.Context, kind Kind, id uuid.UUID) (Subject, error) {
	switch kind {
	case KindLead:
		return s.loadLead(ctx, id)
	case KindApplication:
		return s.loadApplication(ctx, id)
	default:
		return nil, fmt.Errorf("load subject: unknown kind %q", kind)
	}
}

func (s *PostgresStore) Save(ctx context.Context, sub Subject) error {
	switch v := sub.(type) {
	case *Lead:
		return s.saveLead(ctx, v)
	case *CreditApplication:
		return s.saveApplication(ctx, v)
	default:
		return fmt.Errorf("save subject: unknown kind %q", sub.SubjectKind())
	}
}

func (s *PostgresStore) loadLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, national_id, full_name, phone, product, extra, created_at
		FROM leads
		WHERE id = $1
	`, id)

	var lead Lead
	var extra []byte
	err := row.Scan(&lead.ID, &lead.NationalID, &lead.FullName, &lead.Phone,
		&lead.Product, &extra, &lead.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lead %s: %w", id, err)
	}
	if err := unmarshalExtra(extra, &lead.Extra); err != nil {
		return nil, fmt.Errorf("load lead %s: %w", id, err)
	}
	return &lead, nil
}

func (s *PostgresStore) saveLead(ctx context.Context, lead *Lead) error {
	extra, err := marshalExtra(lead.Extra)
	if err != nil {
		return fmt.Errorf("save lead %s: %w", lead.ID, err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO leads (id, national_id, full_name, phone, product, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			national_id = EXCLUDED.national_id,
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			product = EXCLUDED.product,
			extra = EXCLUDED.extra
	`, lead.ID, lead.NationalID, lead.FullName, lead.Phone, lead.Product, extra, orNow(lead.CreatedAt))
	if err != nil {
		return fmt.Errorf("save lead %s: %w", lead.ID, err)
	}
	return nil
}

func (s *PostgresStore) loadApplication(ctx context.Context, id uuid.UUID) (*CreditApplication, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, lead_id, national_id, full_name, phone, product,
		       amount, term_months, status, status_reason, reject_reason,
		       score, extra, created_at, updated_at
		FROM credit_applications
		WHERE id = $1
	`, id)

	var app CreditApplication
	var leadID sql.NullString
	var extra []byte
	err := row.Scan(&app.ID, &leadID, &app.NationalID, &app.FullName, &app.Phone,
		&app.Product, &app.Amount, &app.TermMonths, &app.Status, &app.StatusReason,
		&app.RejectReason, &app.Score, &extra, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", id, err)
	}
	if leadID.Valid {
		if app.LeadID, err = uuid.Parse(leadID.String); err != nil {
			return nil, fmt.Errorf("load application %s: lead id: %w", id, err)
		}
	}
	if err := unmarshalExtra(extra, &app.Extra); err != nil {
		return nil, fmt.Errorf("load application %s: %w", id, err)
	}
	return &app, nil
}

func (s *PostgresStore) saveApplication(ctx context.Context, app *CreditApplication) error {
	extra, err := marshalExtra(app.Extra)
	if err != nil {
		return fmt.Errorf("save application %s: %w", app.ID, err)
	}
	var leadID any
	if app.LeadID != uuid.Nil {
		leadID = app.LeadID
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO credit_applications (
			id, lead_id, national_id, full_name, phone, product,
			amount, term_months, status, status_reason, reject_reason,
			score, extra, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			amount = EXCLUDED.amount,
			term_months = EXCLUDED.term_months,
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			reject_reason = EXCLUDED.reject_reason,
			score = EXCLUDED.score,
			extra = EXCLUDED.extra,
			updated_at = NOW()
	`, app.ID, leadID, app.NationalID, app.FullName, app.Phone, app.Product,
		app.Amount, app.TermMonths, app.Status, app.StatusReason, app.RejectReason,
		app.Score, extra, orNow(app.CreatedAt))
	if err != nil {
		return fmt.Errorf("save application %s: %w", app.ID, err)
	}
	return nil
}

func marshalExtra(extra map[string]string) ([]byte, error) {
	if extra == nil {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("marshal extra: %w", err)
	}
	return out, nil
}

func unmarshalExtra(raw []byte, into *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("unmarshal extra: %w", err)
	}
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
