package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/agencydesk/catalyst-etl/internal/models"
)

// stagingTablePattern guards against table names reaching SQL from anywhere
// but the resource registry.
var stagingTablePattern = regexp.MustCompile(`^raw_[a-z_]+$`)

// PostgresRawStore persists raw records in per-resource staging tables.
type PostgresRawStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRawStore creates a staging store backed by the given database.
func NewPostgresRawStore(db *sql.DB, logger *slog.Logger) *PostgresRawStore {
	return &PostgresRawStore{db: db, logger: logger}
}

// SourceIDs returns every source identifier currently in the staging table.
func (s *PostgresRawStore) SourceIDs(ctx context.Context, table string) (map[string]struct{}, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT source_id FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query source ids from %s: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source ids from %s: %w", table, err)
	}

	return ids, nil
}

// InsertBatch writes all records to the staging table in one transaction.
// A failure rolls back the whole batch.
func (s *PostgresRawStore) InsertBatch(ctx context.Context, table string, records []models.RawRecord) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (source_id, raw_data, etl_batch_id, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, table)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.SourceID,
			[]byte(rec.RawData),
			rec.ETLBatchID,
			string(rec.Status),
			rec.RetryCount,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert record %s into %s: %w", rec.SourceID, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch insert into %s: %w", table, err)
	}

	s.logger.Debug("batch inserted", "table", table, "count", len(records))
	return nil
}

// PendingByBatch returns up to limit records of a batch still awaiting
// transformation.
func (s *PostgresRawStore) PendingByBatch(ctx context.Context, table, batchID string, limit int) ([]models.RawRecord, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT source_id, raw_data, etl_batch_id, status, COALESCE(error_message, ''), retry_count, created_at, updated_at
		FROM %s
		WHERE etl_batch_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT $3
	`, table)

	rows, err := s.db.QueryContext(ctx, query, batchID, string(models.RawStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records from %s: %w", table, err)
	}
	defer rows.Close()

	var records []models.RawRecord
	for rows.Next() {
		var rec models.RawRecord
		var raw []byte
		var status string
		if err := rows.Scan(&rec.SourceID, &raw, &rec.ETLBatchID, &status,
			&rec.ErrorMessage, &rec.RetryCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		rec.RawData = raw
		rec.Status = models.RawStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending records from %s: %w", table, err)
	}

	return records, nil
}

// UpdateStatus marks one staged record with a transformation outcome.
func (s *PostgresRawStore) UpdateStatus(ctx context.Context, table, sourceID string, status models.RawStatus, errorMessage string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, error_message = NULLIF($2, ''), updated_at = NOW()
		WHERE source_id = $3
	`, table)

	result, err := s.db.ExecContext(ctx, query, string(status), errorMessage, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update status for %s in %s: %w", sourceID, table, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("record %s not found in %s", sourceID, table)
	}
	return nil
}

func checkTable(table string) error {
	if !stagingTablePattern.MatchString(table) {
		return fmt.Errorf("invalid staging table name: %q", table)
	}
	return nil
}
