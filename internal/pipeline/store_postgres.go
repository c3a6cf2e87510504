package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// PostgresStore reads configuration rows authored through the admin surface.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetPipeline(ctx context.Context, id int64) (*Pipeline, error) {
	query := `
		SELECT id, name, is_active, background
		FROM pipelines
		WHERE id = $1
	`
	var p Pipeline
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Active, &p.Background)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ActiveBindings(ctx context.Context, pipelineID int64) ([]Binding, error) {
	query := `
		SELECT st.id, st.pipeline_id, st.service_id, st.priority, st.is_active, st.halt_on_error,
		       sc.id, sc.name, sc.integration, sc.address, sc.login, sc.password,
		       sc.timeout_ms, sc.cache_lifetime_days, sc.params, sc.is_active
		FROM pipeline_steps st
		JOIN service_configs sc ON sc.id = st.service_id
		WHERE st.pipeline_id = $1 AND st.is_active AND sc.is_active
		ORDER BY st.priority ASC
	`
	rows, err := s.db.QueryContext(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("query pipeline bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var (
			b         Binding
			timeoutMs int64
			cacheDays sql.NullInt64
			params    []byte
		)
		err := rows.Scan(
			&b.Step.ID, &b.Step.PipelineID, &b.Step.ServiceID, &b.Step.Priority,
			&b.Step.Active, &b.Step.HaltOnError,
			&b.Config.ID, &b.Config.Name, &b.Config.Integration, &b.Config.Address,
			&b.Config.Login, &b.Config.Password, &timeoutMs, &cacheDays, &params,
			&b.Config.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline binding: %w", err)
		}
		b.Config.Timeout = time.Duration(timeoutMs) * time.Millisecond
		if cacheDays.Valid {
			b.Config.CacheLifetime = integration.CacheDays(int(cacheDays.Int64))
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &b.Config.Params); err != nil {
				return nil, fmt.Errorf("unmarshal service params: %w", err)
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (s *PostgresStore) GetServiceConfig(ctx context.Context, serviceID int64) (*integration.Config, error) {
	query := `
		SELECT id, name, integration, address, login, password,
		       timeout_ms, cache_lifetime_days, params, is_active
		FROM service_configs
		WHERE id = $1
	`
	var (
		cfg       integration.Config
		timeoutMs int64
		cacheDays sql.NullInt64
		params    []byte
	)
	err := s.db.QueryRowContext(ctx, query, serviceID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Integration, &cfg.Address, &cfg.Login,
		&cfg.Password, &timeoutMs, &cacheDays, &params, &cfg.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service config: %w", err)
	}
	cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if cacheDays.Valid {
		cfg.CacheLifetime = integration.CacheDays(int(cacheDays.Int64))
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg.Params); err != nil {
			return nil, fmt.Errorf("unmarshal service params: %w", err)
		}
	}
	return &cfg, nil
}

func (s *PostgresStore) TriggersFor(ctx context.Context, product string, status subject.Status) ([]StatusTrigger, error) {
	query := `
		SELECT id, product, status, priority, pipeline_id, is_active
		FROM status_triggers
		WHERE is_active AND status = $1 AND (product = '' OR product = $2)
		ORDER BY priority ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(status), product)
	if err != nil {
		return nil, fmt.Errorf("query status triggers: %w", err)
	}
	defer rows.Close()

	var triggers []StatusTrigger
	for rows.Next() {
		var (
			t      StatusTrigger
			status string
		)
		if err := rows.Scan(&t.ID, &t.Product, &status, &t.Priority, &t.PipelineID, &t.Active); err != nil {
			return nil, fmt.Errorf("scan status trigger: %w", err)
		}
		t.Status = subject.Status(status)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}
