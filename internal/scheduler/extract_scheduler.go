package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agencydesk/catalyst-etl/internal/catalyst"
	"github.com/agencydesk/catalyst-etl/internal/database"
	"github.com/agencydesk/catalyst-etl/internal/extract"
	"github.com/agencydesk/catalyst-etl/internal/models"
)

// Runner is the extraction surface the scheduler drives. Satisfied by
// extract.Extractor.
type Runner interface {
	Extract(ctx context.Context, resource string, window catalyst.Window) (int, extract.Summary, error)
	ExtractDependent(ctx context.Context, resource, policyID string, window catalyst.Window) (int, extract.Summary, error)
	BeginBatch() string
	BatchID() string
}

// PolicySource supplies the parent identifiers for per-policy resources.
type PolicySource interface {
	SourceIDs(ctx context.Context, table string) (map[string]struct{}, error)
}

// Transformer turns a batch's staged records into structured rows. A nil
// transformer leaves records pending for out-of-band processing.
type Transformer interface {
	TransformContacts(ctx context.Context, batchID string) (int, error)
	TransformPolicies(ctx context.Context, batchID string) (int, error)
}

// ExtractScheduler runs a full dependency-ordered extraction sweep on a fixed
// interval. Each resource runs independently; one failing does not stop the
// sweep.
type ExtractScheduler struct {
	runner      Runner
	policies    PolicySource
	runs        database.RunRepository
	transformer Transformer
	logger      *slog.Logger

	interval        time.Duration
	resourceTimeout time.Duration
	stopChan        chan struct{}

	lastSweep time.Time
	now       func() time.Time
}

// NewExtractScheduler creates a scheduler sweeping at the given interval.
// Each resource extraction is bounded by resourceTimeout; zero means
// unbounded.
func NewExtractScheduler(
	runner Runner,
	policies PolicySource,
	runs database.RunRepository,
	transformer Transformer,
	logger *slog.Logger,
	interval time.Duration,
	resourceTimeout time.Duration,
) *ExtractScheduler {
	return &ExtractScheduler{
		runner:          runner,
		policies:        policies,
		runs:            runs,
		transformer:     transformer,
		logger:          logger,
		interval:        interval,
		resourceTimeout: resourceTimeout,
		stopChan:        make(chan struct{}),
		now:             time.Now,
	}
}

// Start begins the scheduler loop. It blocks until Stop is called or the
// context is cancelled.
func (s *ExtractScheduler) Start(ctx context.Context) {
	s.logger.Info("starting extraction scheduler", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("extraction scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("extraction scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *ExtractScheduler) Stop() {
	close(s.stopChan)
}

// Sweep runs one dependency-ordered pass over every registered resource. The
// first sweep pulls everything; later sweeps are filtered to records modified
// since the previous sweep started.
func (s *ExtractScheduler) Sweep(ctx context.Context) {
	sweepStart := s.now()

	var window catalyst.Window
	if !s.lastSweep.IsZero() {
		window.Start = s.lastSweep
	}

	// Each sweep is its own ETL batch, so audit rows and transform
	// scoping can tell runs apart.
	batchID := s.runner.BeginBatch()

	s.logger.Info("starting extraction sweep",
		"batch_id", batchID,
		"incremental", !s.lastSweep.IsZero())

	failed := 0
	for _, resource := range extract.DefaultOrder() {
		if ctx.Err() != nil {
			s.logger.Warn("extraction sweep interrupted", "resource", resource.Name)
			return
		}

		if err := s.runResource(ctx, resource, window); err != nil {
			failed++
		}
	}

	// Only advance the incremental window when everything succeeded, so a
	// failed resource is retried over the same interval next sweep.
	if failed == 0 {
		s.lastSweep = sweepStart
	}

	s.transformBatch(ctx)

	s.logger.Info("extraction sweep complete",
		"duration", s.now().Sub(sweepStart).String(),
		"failed_resources", failed)
}

// runResource extracts one resource and records its audit row. The extraction
// is deadline-bounded so an upstream that never stops returning pages cannot
// hang the sweep.
func (s *ExtractScheduler) runResource(ctx context.Context, resource extract.Resource, window catalyst.Window) error {
	if s.resourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resourceTimeout)
		defer cancel()
	}

	start := s.now()

	var (
		count   int
		summary extract.Summary
		err     error
	)
	if resource.Composite {
		count, summary, err = s.runDependent(ctx, resource, window)
	} else {
		count, summary, err = s.runner.Extract(ctx, resource.Name, window)
	}

	run := models.ExtractionRun{
		ID:          uuid.New().String(),
		Resource:    resource.Name,
		ETLBatchID:  s.runner.BatchID(),
		StartedAt:   start,
		DurationMs:  int(s.now().Sub(start).Milliseconds()),
		RecordCount: count,
		Counts:      summary.Counts(),
	}
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	if logErr := s.runs.Log(ctx, run); logErr != nil {
		s.logger.Error("failed to record extraction run",
			"resource", resource.Name, "error", logErr)
	}

	if err != nil {
		s.logger.Error("resource extraction failed",
			"resource", resource.Name, "error", err)
		return err
	}

	s.logger.Info("resource extraction finished",
		"resource", resource.Name, "records", count)
	return nil
}

// transformBatch pushes the batch's staged core records into the production
// schema.
func (s *ExtractScheduler) transformBatch(ctx context.Context) {
	if s.transformer == nil {
		return
	}

	batchID := s.runner.BatchID()

	contacts, err := s.transformer.TransformContacts(ctx, batchID)
	if err != nil {
		s.logger.Error("contact transformation failed", "batch_id", batchID, "error", err)
	}
	policies, err := s.transformer.TransformPolicies(ctx, batchID)
	if err != nil {
		s.logger.Error("policy transformation failed", "batch_id", batchID, "error", err)
	}

	s.logger.Info("batch transformation finished",
		"batch_id", batchID,
		"contacts", contacts,
		"policies", policies)
}

// runDependent fans one composite resource out over every known policy,
// accumulating counts across parents.
func (s *ExtractScheduler) runDependent(ctx context.Context, resource extract.Resource, window catalyst.Window) (int, extract.Summary, error) {
	policyIDs, err := s.policies.SourceIDs(ctx, "raw_policies")
	if err != nil {
		return 0, extract.Summary{}, err
	}

	var (
		total   int
		summary extract.Summary
	)
	for policyID := range policyIDs {
		if err := ctx.Err(); err != nil {
			return total, summary, err
		}

		count, partial, err := s.runner.ExtractDependent(ctx, resource.Name, policyID, window)
		total += count
		summary.ItemsSeen += partial.ItemsSeen
		summary.MissingID += partial.MissingID
		summary.Invalid += partial.Invalid
		summary.DuplicateInRun += partial.DuplicateInRun
		summary.AlreadyStored += partial.AlreadyStored
		summary.Written += partial.Written
		if err != nil {
			return total, summary, err
		}
	}
	return total, summary, nil
}
