package models

import "time"

// ExtractionRun is the audit row recorded for each per-resource extraction
// invocation: which batch it belonged to, what it counted, and how it ended.
type ExtractionRun struct {
	ID           string         `json:"id"`
	Resource     string         `json:"resource"`
	ETLBatchID   string         `json:"etl_batch_id"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMs   int            `json:"duration_ms"`
	RecordCount  int            `json:"record_count"`
	Counts       map[string]int `json:"counts,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
