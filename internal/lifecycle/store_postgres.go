package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
	txcontext "loanflow/pkg/platform/tx"
	"loanflow/pkg/requestcontext"
)

// PostgresTransitionStore commits the status mutation, the audit row, and an
// outbox event in a single transaction.
type PostgresTransitionStore struct {
	db *sql.DB
}

func NewPostgresTransitionStore(db *sql.DB) *PostgresTransitionStore {
	return &PostgresTransitionStore{db: db}
}

func (s *PostgresTransitionStore) Apply(ctx context.Context, app *subject.CreditApplication, prev subject.Status, reason string) error {
	actor := requestcontext.Actor(ctx)

	payload, err := json.Marshal(map[string]any{
		"application_id": app.ID.String(),
		"from":           string(prev),
		"to":             string(app.Status),
		"reason":         reason,
		"actor":          actor,
	})
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}

	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		// Guard against lost updates from a concurrent transition: the row
		// must still be in the state we observed.
		res, err := s.exec(ctx, `
			UPDATE credit_applications
			SET status = $1, status_reason = $2, reject_reason = $3, updated_at = $4
			WHERE id = $5 AND status = $6
		`, string(app.Status), app.StatusReason, app.RejectReason, time.Now(), app.ID, string(prev))
		if err != nil {
			return fmt.Errorf("update application status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update application status: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("application %s no longer in status %s", app.ID, prev)
		}

		if _, err := s.exec(ctx, `
			INSERT INTO status_transitions (application_id, from_status, to_status, reason, actor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, app.ID, string(prev), string(app.Status), reason, actor, time.Now()); err != nil {
			return fmt.Errorf("insert status transition: %w", err)
		}

		if _, err := s.exec(ctx, `
			INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, string(subject.KindApplication), app.ID.String(), "status_changed", payload, time.Now()); err != nil {
			return fmt.Errorf("insert transition outbox entry: %w", err)
		}
		return nil
	})
}

func (s *PostgresTransitionStore) MarkLeadRejected(ctx context.Context, lead *subject.Lead, reason string) error {
	_, err := s.exec(ctx, `
		UPDATE leads SET reject_reason = $1 WHERE id = $2
	`, reason, lead.ID)
	if err != nil {
		return fmt.Errorf("mark lead rejected: %w", err)
	}
	return nil
}

func (s *PostgresTransitionStore) ListTransitions(ctx context.Context, applicationID uuid.UUID) ([]StatusTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, from_status, to_status, reason, actor, created_at
		FROM status_transitions
		WHERE application_id = $1
		ORDER BY created_at ASC, id ASC
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query status transitions: %w", err)
	}
	defer rows.Close()

	var out []StatusTransition
	for rows.Next() {
		var (
			t    StatusTransition
			from string
			to   string
		)
		if err := rows.Scan(&t.ID, &t.ApplicationID, &from, &to, &t.Reason, &t.Actor, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status transition: %w", err)
		}
		t.From = subject.Status(from)
		t.To = subject.Status(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresTransitionStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}
