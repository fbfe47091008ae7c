package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agencydesk/catalyst-etl/internal/models"
)

// RunRepository records and lists per-resource extraction runs.
type RunRepository interface {
	Log(ctx context.Context, run models.ExtractionRun) error
	List(ctx context.Context, limit int) ([]models.ExtractionRun, error)
}

// PostgresRunRepository stores extraction runs in the etl_runs table.
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a run repository backed by the database.
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Log inserts one run row, generating its identifier if unset.
func (r *PostgresRunRepository) Log(ctx context.Context, run models.ExtractionRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("failed to marshal run counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO etl_runs (id, resource, etl_batch_id, started_at, duration_ms, record_count, counts, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, run.ID, run.Resource, run.ETLBatchID, run.StartedAt, run.DurationMs,
		run.RecordCount, counts, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert run row: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (r *PostgresRunRepository) List(ctx context.Context, limit int) ([]models.ExtractionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, resource, etl_batch_id, started_at, duration_ms, record_count, counts, COALESCE(error_message, '')
		FROM etl_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ExtractionRun
	for rows.Next() {
		var run models.ExtractionRun
		var counts []byte
		if err := rows.Scan(&run.ID, &run.Resource, &run.ETLBatchID, &run.StartedAt,
			&run.DurationMs, &run.RecordCount, &counts, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &run.Counts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run counts: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run rows: %w", err)
	}

	return runs, nil
}

// MemoryRunRepository is an in-memory RunRepository for tests.
type MemoryRunRepository struct {
	mu   sync.Mutex
	runs []models.ExtractionRun
}

// NewMemoryRunRepository creates an empty in-memory run repository.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{}
}

func (r *MemoryRunRepository) Log(_ context.Context, run models.ExtractionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *MemoryRunRepository) List(_ context.Context, limit int) ([]models.ExtractionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ExtractionRun, len(r.runs))
	copy(out, r.runs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
