// Package ingest runs one study through assemble, coerce and insert, skipping
// studies that are already stored.
package ingest

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

// Outcome is the result of ingesting one study.
type Outcome string

// Ingestion outcomes.
const (
	OutcomeIngested Outcome = "ingested"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// EventStudyIngested is published after a new row is written.
const EventStudyIngested = "study.ingested"

// Assembler builds the pre-coercion view of a study.
type Assembler interface {
	Assemble(ctx context.Context, key geo.StudyKey) (geo.AssembledStudy, error)
	OverallDesign(ctx context.Context, key geo.StudyKey) (*string, error)
}

// StudyIngested is the payload of EventStudyIngested.
type StudyIngested struct {
	RunID      string    `json:"run_id,omitempty"`
	StudyID    string    `json:"study_id"`
	Title      *string   `json:"title,omitempty"`
	NumSamples *int64    `json:"num_samples,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Coordinator owns the per-study ingestion boundary.
type Coordinator struct {
	store     geo.Store
	assembler Assembler
	publisher geo.Publisher
	runID     string
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithPublisher publishes a StudyIngested event after every insert.
func WithPublisher(p geo.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithRunID tags logs and events with a run identifier.
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.runID = id }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New constructs a Coordinator.
func New(store geo.Store, assembler Assembler, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:     store,
		assembler: assembler,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID != "" {
		c.logger = c.logger.With(zap.String("run_id", c.runID))
	}
	return c
}

// Ingest stores key unless a row already exists. Failures are logged and
// reported as OutcomeFailed; Ingest never panics.
func (c *Coordinator) Ingest(ctx context.Context, key geo.StudyKey) (outcome Outcome) {
	logger := c.logger.With(zap.String("study_id", string(key)))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("study ingestion panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = OutcomeFailed
		}
		metrics.ObserveStudy(string(outcome))
	}()

	outcome, err := c.ingest(ctx, key)
	if err != nil {
		logger.Error("study ingestion failed", zap.Error(err), zap.Stack("trace"))
		return OutcomeFailed
	}
	logger.Debug("study processed", zap.String("outcome", string(outcome)))
	return outcome
}

func (c *Coordinator) ingest(ctx context.Context, key geo.StudyKey) (Outcome, error) {
	sess, err := c.store.Open(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	defer sess.Release()

	if err := sess.EnsureSchema(ctx); err != nil {
		return OutcomeFailed, err
	}
	exists, err := sess.Exists(ctx, key)
	if err != nil {
		return OutcomeFailed, err
	}
	if exists {
		return OutcomeSkipped, nil
	}

	study, err := c.assembler.Assemble(ctx, key)
	if err != nil {
		return OutcomeFailed, err
	}
	record := c.Coerce(key, study.Fields())
	if err := sess.Insert(ctx, record); err != nil {
		return OutcomeFailed, err
	}
	c.notify(ctx, record)
	return OutcomeIngested, nil
}

// notify publishes the ingested event; a publish failure does not undo the
// insert.
func (c *Coordinator) notify(ctx context.Context, record geo.StudyRecord) {
	if c.publisher == nil {
		return
	}
	event := StudyIngested{
		RunID:      c.runID,
		StudyID:    string(record.StudyID),
		Title:      record.Title,
		NumSamples: record.NumSamples,
		IngestedAt: c.now(),
	}
	if _, err := c.publisher.Publish(ctx, EventStudyIngested, event); err != nil {
		c.logger.Warn("publish ingested event failed",
			zap.String("study_id", string(record.StudyID)),
			zap.Error(err),
		)
	}
}

// RefreshOverallDesign re-reads the study page and updates only the
// overall_design column of an existing row.
func (c *Coordinator) RefreshOverallDesign(ctx context.Context, key geo.StudyKey) error {
	sess, err := c.store.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := sess.EnsureSchema(ctx); err != nil {
		return err
	}
	exists, err := sess.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("refresh %s: %w", key, geo.ErrNotFound)
	}

	design, err := c.assembler.OverallDesign(ctx, key)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	if _, err := sess.UpdateOverallDesign(ctx, key, design); err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	c.logger.Info("overall design refreshed", zap.String("study_id", string(key)), zap.Bool("present", design != nil))
	return nil
}

// Lookup returns the stored record for key.
func (c *Coordinator) Lookup(ctx context.Context, key geo.StudyKey) (geo.StudyRecord, error) {
	sess, err := c.store.Open(ctx)
	if err != nil {
		return geo.StudyRecord{}, err
	}
	defer sess.Release()

	if err := sess.EnsureSchema(ctx); err != nil {
		return geo.StudyRecord{}, err
	}
	return sess.Get(ctx, key)
}
