package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/subject"
	txcontext "loanflow/pkg/platform/tx"
)

// PostgresStore persists invocation records. Each append also writes an
// outbox entry so the relay can publish the event to Kafka for downstream
// reporting; both land in the same statement batch and, when the caller put
// a transaction in context, the same transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed history store.
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

func (s *PostgresStore) Append(ctx context.Context, record *Record) error {
	var payload []byte
	if record.Payload != nil {
		var err error
		payload, err = json.Marshal(record.Payload)
		if err != nil {
			return fmt.Errorf("marshal history payload: %w", err)
		}
	}

	exec := s.execer(ctx)

	query := `
		INSERT INTO history_records (
			subject_kind, subject_id, service_id, pipeline_id,
			reference_id, status, payload, runtime_ms, created_at, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := exec.QueryRowContext(ctx, query,
		string(record.SubjectKind),
		record.SubjectID,
		record.ServiceID,
		record.PipelineID,
		record.ReferenceID,
		string(record.Status),
		nullableJSON(payload),
		record.Runtime.Milliseconds(),
		record.CreatedAt,
		record.RequestID,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}

	if err := s.appendOutbox(ctx, exec, record); err != nil {
		return err
	}
	return nil
}

// outboxPayload is the JSON structure published to Kafka by the relay.
type outboxPayload struct {
	ID          string         `json:"id"`
	SubjectKind string         `json:"subject_kind"`
	SubjectID   string         `json:"subject_id"`
	ServiceID   int64          `json:"service_id"`
	PipelineID  *int64         `json:"pipeline_id,omitempty"`
	ReferenceID string         `json:"reference_id"`
	Status      string         `json:"status"`
	RuntimeMs   int64          `json:"runtime_ms"`
	CreatedAt   string         `json:"created_at"`
	RequestID   string         `json:"request_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (s *PostgresStore) appendOutbox(ctx context.Context, exec dbExecutor, record *Record) error {
	payload, err := json.Marshal(outboxPayload{
		ID:          uuid.NewString(),
		SubjectKind: string(record.SubjectKind),
		SubjectID:   record.SubjectID.String(),
		ServiceID:   record.ServiceID,
		PipelineID:  record.PipelineID,
		ReferenceID: record.ReferenceID,
		Status:      string(record.Status),
		RuntimeMs:   record.Runtime.Milliseconds(),
		CreatedAt:   record.CreatedAt.Format(time.RFC3339Nano),
		RequestID:   record.RequestID,
		Payload:     record.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = exec.ExecContext(ctx, query,
		string(record.SubjectKind),
		record.SubjectID.String(),
		"integration_invoked",
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCached(ctx context.Context, serviceID int64, referenceID string, since time.Time) (*Record, error) {
	query := `
		SELECT id, subject_kind, subject_id, service_id, pipeline_id,
		       reference_id, status, payload, runtime_ms, created_at, request_id
		FROM history_records
		WHERE service_id = $1 AND reference_id = $2
		  AND status = $3 AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, serviceID, referenceID, string(StatusSucceeded), since)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find cached record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) LatestStatuses(ctx context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (map[int64]Status, error) {
	query := `
		SELECT DISTINCT ON (service_id) service_id, status
		FROM history_records
		WHERE subject_kind = $1 AND subject_id = $2 AND pipeline_id = $3
		ORDER BY service_id, created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(kind), subjectID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("query latest statuses: %w", err)
	}
	defer rows.Close()

	latest := make(map[int64]Status)
	for rows.Next() {
		var serviceID int64
		var status string
		if err := rows.Scan(&serviceID, &status); err != nil {
			return nil, fmt.Errorf("scan latest status: %w", err)
		}
		latest[serviceID] = Status(status)
	}
	return latest, rows.Err()
}

func (s *PostgresStore) ListBySubject(ctx context.Context, kind subject.Kind, subjectID uuid.UUID) ([]Record, error) {
	query := `
		SELECT id, subject_kind, subject_id, service_id, pipeline_id,
		       reference_id, status, payload, runtime_ms, created_at, request_id
		FROM history_records
		WHERE subject_kind = $1 AND subject_id = $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(kind), subjectID)
	if err != nil {
		return nil, fmt.Errorf("query history records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		kind       string
		status     string
		payload    []byte
		runtimeMs  int64
		pipelineID sql.NullInt64
		requestID  sql.NullString
	)
	err := row.Scan(
		&record.ID, &kind, &record.SubjectID, &record.ServiceID, &pipelineID,
		&record.ReferenceID, &status, &payload, &runtimeMs, &record.CreatedAt, &requestID,
	)
	if err != nil {
		return nil, err
	}

	record.SubjectKind = subject.Kind(kind)
	record.Status = Status(status)
	record.Runtime = time.Duration(runtimeMs) * time.Millisecond
	if pipelineID.Valid {
		record.PipelineID = &pipelineID.Int64
	}
	if requestID.Valid {
		record.RequestID = requestID.String
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal history payload: %w", err)
		}
	}
	return &record, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
