package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agencydesk/catalyst-etl/internal/models"
)

// PostgresProductionStore persists structured contacts and policies.
type PostgresProductionStore struct {
	db *sql.DB
}

// NewPostgresProductionStore creates a production store backed by the
// database.
func NewPostgresProductionStore(db *sql.DB) *PostgresProductionStore {
	return &PostgresProductionStore{db: db}
}

// UpsertContact inserts or replaces one structured contact, keyed by the
// vendor source identifier.
func (s *PostgresProductionStore) UpsertContact(ctx context.Context, c models.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (source_id, first_name, last_name, email, phone, address, city, state, zip_code, contact_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			contact_type = EXCLUDED.contact_type,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, c.SourceID, c.FirstName, c.LastName, c.Email, c.Phone, c.Address,
		c.City, c.State, c.ZipCode, c.ContactType, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact %s: %w", c.SourceID, err)
	}
	return nil
}

// UpsertPolicy inserts or replaces one structured policy, keyed by the vendor
// source identifier.
func (s *PostgresProductionStore) UpsertPolicy(ctx context.Context, p models.Policy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (source_id, policy_number, contact_id, carrier, policy_type, status, effective_date, expiration_date, premium, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_id) DO UPDATE SET
			policy_number = EXCLUDED.policy_number,
			contact_id = EXCLUDED.contact_id,
			carrier = EXCLUDED.carrier,
			policy_type = EXCLUDED.policy_type,
			status = EXCLUDED.status,
			effective_date = EXCLUDED.effective_date,
			expiration_date = EXCLUDED.expiration_date,
			premium = EXCLUDED.premium,
			updated_at = EXCLUDED.updated_at
	`, p.SourceID, p.PolicyNumber, p.ContactID, p.Carrier, p.PolicyType,
		p.Status, p.EffectiveDate, p.ExpirationDate, p.Premium, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert policy %s: %w", p.SourceID, err)
	}
	return nil
}
