package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/agencydesk/catalyst-etl/internal/models"
)

// RawRecordStore is what the extractor needs from the staging layer: the set
// of identifiers already landed in a table, and durable batch writes.
type RawRecordStore interface {
	// SourceIDs returns every source identifier present in the staging
	// table, snapshotted at call time.
	SourceIDs(ctx context.Context, table string) (map[string]struct{}, error)

	// InsertBatch writes all records to the staging table in a single
	// transaction. Either every record lands or none do.
	InsertBatch(ctx context.Context, table string, records []models.RawRecord) error
}

// MemoryRawStore is an in-memory RawRecordStore for tests.
type MemoryRawStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]models.RawRecord
	batches map[string][][]models.RawRecord

	// InsertErr, when set, fails every InsertBatch call.
	InsertErr error
}

// NewMemoryRawStore creates an empty in-memory store.
func NewMemoryRawStore() *MemoryRawStore {
	return &MemoryRawStore{
		tables:  make(map[string]map[string]models.RawRecord),
		batches: make(map[string][][]models.RawRecord),
	}
}

func (s *MemoryRawStore) SourceIDs(_ context.Context, table string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.tables[table]))
	for id := range s.tables[table] {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *MemoryRawStore) InsertBatch(_ context.Context, table string, records []models.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return s.InsertErr
	}

	rows := s.tables[table]
	if rows == nil {
		rows = make(map[string]models.RawRecord)
		s.tables[table] = rows
	}

	// Callers may reuse their slice after the write returns, so retain a
	// copy rather than aliasing their backing array.
	batch := make([]models.RawRecord, len(records))
	copy(batch, records)

	for _, rec := range batch {
		rows[rec.SourceID] = rec
	}
	s.batches[table] = append(s.batches[table], batch)
	return nil
}

// Seed places a record in the table without recording a batch.
func (s *MemoryRawStore) Seed(table string, rec models.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables[table] == nil {
		s.tables[table] = make(map[string]models.RawRecord)
	}
	s.tables[table][rec.SourceID] = rec
}

// Stored returns the records in a table sorted by source identifier.
func (s *MemoryRawStore) Stored(table string) []models.RawRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RawRecord, 0, len(s.tables[table]))
	for _, rec := range s.tables[table] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Batches returns the InsertBatch calls made against a table, in order.
func (s *MemoryRawStore) Batches(table string) [][]models.RawRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[table]
}
