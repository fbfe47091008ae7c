package models

import (
	"encoding/json"
	"time"
)

// RawRecord is one staged row of vendor data: the untouched JSON payload keyed
// by the vendor-assigned natural identifier, stamped with the batch that
// extracted it. The extraction stage only ever creates these rows; status
// transitions belong to the transform stage.
type RawRecord struct {
	SourceID     string          `json:"source_id"`
	RawData      json.RawMessage `json:"raw_data"`
	ETLBatchID   string          `json:"etl_batch_id"`
	Status       RawStatus       `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RawStatus tracks a staged row through the transform stage.
type RawStatus string

const (
	RawStatusPending         RawStatus = "pending"          // Extracted, not yet transformed
	RawStatusTransformed     RawStatus = "transformed"      // Mapped into the production schema
	RawStatusValidationError RawStatus = "validation_error" // Field-level validation rejected the payload
	RawStatusError           RawStatus = "error"            // Unexpected transform failure
)
