package models

import "time"

// Policy is the structured form of a raw policy record.
type Policy struct {
	SourceID       string     `json:"source_id"`
	PolicyNumber   *string    `json:"policy_number,omitempty"`
	ContactID      *string    `json:"contact_id,omitempty"`
	Carrier        *string    `json:"carrier,omitempty"`
	PolicyType     *string    `json:"policy_type,omitempty"`
	Status         *string    `json:"status,omitempty"`
	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Premium        *float64   `json:"premium,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}
