package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agencydesk/catalyst-etl/internal/catalyst"
	"github.com/agencydesk/catalyst-etl/internal/models"
)

// dependentPageDelay spaces out page fetches for per-parent extractions,
// which otherwise hammer the vendor with one request burst per policy.
const dependentPageDelay = 1 * time.Second

// PageIter walks pages of one resource fetch.
type PageIter interface {
	Next() bool
	Page() *catalyst.Page
	Err() error
}

// PageFetcher starts a paginated fetch. Satisfied by the API client through
// ClientFetcher; tests substitute fakes.
type PageFetcher interface {
	Pages(ctx context.Context, path string, window catalyst.Window, pageSize int) PageIter
}

// ClientFetcher adapts the concrete API client to PageFetcher.
type ClientFetcher struct {
	Client *catalyst.Client
}

func (f ClientFetcher) Pages(ctx context.Context, path string, window catalyst.Window, pageSize int) PageIter {
	return f.Client.Pages(ctx, path, window, pageSize)
}

// RunMetrics receives extraction outcome counts. NopMetrics satisfies it for
// callers that do not record any.
type RunMetrics interface {
	AddItems(resource, outcome string, n int)
	ObserveRunDuration(resource string, seconds float64)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) AddItems(string, string, int)       {}
func (NopMetrics) ObserveRunDuration(string, float64) {}

// Summary counts every fate an item can meet during one extraction run.
type Summary struct {
	ItemsSeen      int
	MissingID      int
	Invalid        int
	DuplicateInRun int
	AlreadyStored  int
	Written        int
}

// Counts returns the summary as a map for the run audit row.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"total_items":         s.ItemsSeen,
		"skipped_validation":  s.MissingID + s.Invalid,
		"already_in_database": s.AlreadyStored,
		"duplicate_in_run":    s.DuplicateInRun,
		"added_to_buffer":     s.Written,
	}
}

// Extractor pulls resource pages from the API and lands new raw records in
// staging tables. Every record it writes carries the current ETL batch
// identifier; BeginBatch starts the next one.
type Extractor struct {
	fetcher PageFetcher
	store   RawRecordStore
	metrics RunMetrics
	logger  *slog.Logger

	batchSize         int
	pageSize          int
	batchID           string
	defaultLocationID string

	pageDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// Options tune an extractor beyond its collaborators.
type Options struct {
	BatchSize         int
	PageSize          int
	DefaultLocationID string
}

// New creates an extractor with a fresh batch identifier.
func New(fetcher PageFetcher, store RawRecordStore, metrics RunMetrics, logger *slog.Logger, opts Options) *Extractor {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &Extractor{
		fetcher:           fetcher,
		store:             store,
		metrics:           metrics,
		logger:            logger,
		batchSize:         opts.BatchSize,
		pageSize:          opts.PageSize,
		batchID:           uuid.New().String(),
		defaultLocationID: opts.DefaultLocationID,
		pageDelay:         dependentPageDelay,
		sleep:             sleepCtx,
		now:               time.Now,
	}
}

// BatchID returns the ETL batch identifier stamped on every record this
// extractor writes.
func (e *Extractor) BatchID() string {
	return e.batchID
}

// BeginBatch starts a fresh ETL batch and returns its identifier. Every
// record written afterwards carries the new identifier, so one scheduled
// sweep maps to one batch.
func (e *Extractor) BeginBatch() string {
	e.batchID = uuid.New().String()
	return e.batchID
}

// Extract pulls every new record of the named resource modified within the
// window. The returned count is the number of records written to staging;
// dropped and duplicate items are counted in the summary, not the total.
func (e *Extractor) Extract(ctx context.Context, resource string, window catalyst.Window) (int, Summary, error) {
	r, err := Lookup(resource)
	if err != nil {
		return 0, Summary{}, err
	}
	if r.Composite {
		return 0, Summary{}, fmt.Errorf("resource %q is extracted per policy, use ExtractDependent", resource)
	}

	path := r.Endpoint
	if r.LocationScoped {
		if e.defaultLocationID == "" {
			return 0, Summary{}, fmt.Errorf("resource %q needs a location, no default location configured", resource)
		}
		path = r.ExpandEndpoint(e.defaultLocationID)
	}

	return e.run(ctx, r, path, window, "", 0)
}

// ExtractDependent pulls records of a child resource scoped to one parent
// policy. Records are keyed "{policy_id}_{child_id}" and carry the parent
// reference in their payload. Page fetches are spaced by a fixed delay.
func (e *Extractor) ExtractDependent(ctx context.Context, resource, policyID string, window catalyst.Window) (int, Summary, error) {
	r, err := Lookup(resource)
	if err != nil {
		return 0, Summary{}, err
	}
	if policyID == "" {
		return 0, Summary{}, fmt.Errorf("resource %q requires a parent policy id", resource)
	}

	return e.run(ctx, r, r.ExpandEndpoint(policyID), window, policyID, e.pageDelay)
}

// run is the shared page-walk loop behind both extraction entry points.
func (e *Extractor) run(ctx context.Context, r Resource, path string, window catalyst.Window, parentID string, pageDelay time.Duration) (int, Summary, error) {
	start := e.now()

	existing, err := e.store.SourceIDs(ctx, r.Table)
	if err != nil {
		// Cross-run dedup degrades to none for this run; the insert
		// path still enforces uniqueness.
		e.logger.Warn("could not snapshot existing records",
			"resource", r.Name, "table", r.Table, "error", err)
		existing = make(map[string]struct{})
	} else {
		e.logger.Info("existing records snapshotted",
			"resource", r.Name, "table", r.Table, "count", len(existing))
	}

	var (
		summary Summary
		buffer  []models.RawRecord
		seen    = make(map[string]struct{})
	)

	it := e.fetcher.Pages(ctx, path, window, e.pageSize)
	for it.Next() {
		if pageDelay > 0 {
			if err := e.sleep(ctx, pageDelay); err != nil {
				return summary.Written, summary, err
			}
		}

		page := it.Page()
		summary.ItemsSeen += len(page.Items)
		e.logger.Info("processing page",
			"resource", r.Name,
			"items", len(page.Items),
			"page", page.PageNumber,
			"pages_total", page.PagesTotal)

		for _, item := range page.Items {
			sourceID := resolveSourceID(r, item, parentID)
			if sourceID == "" {
				e.logger.Warn("skipping record with no usable identifier",
					"resource", r.Name, "id_fields", r.IDFields)
				summary.MissingID++
				continue
			}

			if _, dup := seen[sourceID]; dup {
				summary.DuplicateInRun++
				continue
			}
			seen[sourceID] = struct{}{}

			if _, stored := existing[sourceID]; stored {
				summary.AlreadyStored++
				continue
			}

			if errs := validate(r, item); len(errs) > 0 {
				e.logger.Warn("dropping invalid record",
					"resource", r.Name, "source_id", sourceID, "errors", errs)
				summary.Invalid++
				continue
			}

			if r.Composite && parentID != "" {
				item["PolicyId"] = parentID
			}

			raw, err := json.Marshal(item)
			if err != nil {
				e.logger.Warn("dropping unmarshalable record",
					"resource", r.Name, "source_id", sourceID, "error", err)
				summary.Invalid++
				continue
			}

			buffer = append(buffer, models.RawRecord{
				SourceID:   sourceID,
				RawData:    raw,
				ETLBatchID: e.batchID,
				Status:     models.RawStatusPending,
				CreatedAt:  e.now(),
				UpdatedAt:  e.now(),
			})
			summary.Written++

			if len(buffer) >= e.batchSize {
				if err := e.flush(ctx, r, buffer); err != nil {
					return summary.Written, summary, err
				}
				buffer = buffer[:0]
			}
		}
	}
	if iterErr := it.Err(); iterErr != nil {
		// Keep what was already pulled; the next run resumes from the
		// staging table snapshot.
		if len(buffer) > 0 {
			if flushErr := e.flush(ctx, r, buffer); flushErr != nil {
				iterErr = errors.Join(iterErr, flushErr)
			}
		}
		e.recordOutcome(r.Name, summary, start)
		return summary.Written, summary, iterErr
	}

	if len(buffer) > 0 {
		if err := e.flush(ctx, r, buffer); err != nil {
			return summary.Written, summary, err
		}
	}

	e.recordOutcome(r.Name, summary, start)
	e.logger.Info("extraction complete",
		"resource", r.Name,
		"written", summary.Written,
		"items_seen", summary.ItemsSeen,
		"skipped_validation", summary.MissingID+summary.Invalid,
		"already_in_database", summary.AlreadyStored,
		"duplicate_in_run", summary.DuplicateInRun)

	return summary.Written, summary, nil
}

// flush writes the buffer in one transaction. On failure every buffered
// source identifier is logged so the offending record can be found.
func (e *Extractor) flush(ctx context.Context, r Resource, buffer []models.RawRecord) error {
	e.logger.Info("flushing buffer", "resource", r.Name, "count", len(buffer))

	if err := e.store.InsertBatch(ctx, r.Table, buffer); err != nil {
		for i, rec := range buffer {
			e.logger.Error("buffered record in failed flush",
				"resource", r.Name,
				"index", i,
				"source_id", rec.SourceID,
				"etl_batch_id", rec.ETLBatchID)
		}
		return fmt.Errorf("flush %d records to %s: %w", len(buffer), r.Table, err)
	}
	return nil
}

func (e *Extractor) recordOutcome(resource string, s Summary, start time.Time) {
	e.metrics.AddItems(resource, "written", s.Written)
	e.metrics.AddItems(resource, "invalid", s.MissingID+s.Invalid)
	e.metrics.AddItems(resource, "duplicate", s.DuplicateInRun+s.AlreadyStored)
	e.metrics.ObserveRunDuration(resource, e.now().Sub(start).Seconds())
}

// resolveSourceID picks the record's identifier from the resource's field
// list, composing it with the parent policy for dependent resources.
func resolveSourceID(r Resource, item map[string]any, parentID string) string {
	var id string
	for _, field := range r.IDFields {
		if v := stringID(item[field]); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		return ""
	}
	if r.Composite && parentID != "" {
		return parentID + "_" + id
	}
	return id
}

// validate checks the resource's required fields, returning one message per
// missing field.
func validate(r Resource, item map[string]any) []string {
	var errs []string
	for _, field := range r.RequiredFields {
		if stringID(item[field]) == "" {
			errs = append(errs, fmt.Sprintf("missing required field %s", field))
		}
	}
	return errs
}

// stringID renders an identifier value as the string form used for dedup and
// storage. JSON numbers arrive as float64 and must not pick up a decimal
// point when they are whole.
func stringID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
