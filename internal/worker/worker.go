// Package worker drains study keys from the queue into the ingestion
// coordinator.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/ingest"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
	"github.com/JakeFAU/geo-harvester/internal/progress"
	"github.com/JakeFAU/geo-harvester/internal/queue/memory"
)

// Queue is the consumer side of the study key queue.
type Queue interface {
	Dequeue(ctx context.Context) (geo.StudyKey, error)
}

// Ingester processes one study.
type Ingester interface {
	Ingest(ctx context.Context, key geo.StudyKey) ingest.Outcome
}

// Tally counts outcomes observed by one worker.
type Tally struct {
	Ingested int
	Skipped  int
	Failed   int
}

// Add records one outcome.
func (t *Tally) Add(o ingest.Outcome) {
	switch o {
	case ingest.OutcomeIngested:
		t.Ingested++
	case ingest.OutcomeSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

// Total returns the number of recorded outcomes.
func (t Tally) Total() int {
	return t.Ingested + t.Skipped + t.Failed
}

// Worker consumes study keys until the queue is closed.
type Worker struct {
	id       int
	queue    Queue
	ingester Ingester
	progress progress.Emitter
	runID    string
	logger   *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithProgress reports each study outcome under runID.
func WithProgress(e progress.Emitter, runID string) Option {
	return func(w *Worker) {
		w.progress = e
		w.runID = runID
	}
}

// New constructs a Worker.
func New(id int, queue Queue, ingester Ingester, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		id:       id,
		queue:    queue,
		ingester: ingester,
		progress: progress.Nop{},
		logger:   logger.Named("worker").With(zap.Int("worker", id)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, ingesting keys until the queue is closed and drained or the
// context finishes, and returns what it processed.
func (w *Worker) Run(ctx context.Context) Tally {
	var tally Tally
	for {
		key, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				w.logger.Debug("worker stopping", zap.Int("processed", tally.Total()))
				return tally
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued study", zap.String("study_id", string(key)))
		tally.Add(w.process(ctx, key))
	}
}

func (w *Worker) process(ctx context.Context, key geo.StudyKey) ingest.Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	start := time.Now()
	outcome := w.ingester.Ingest(ctx, key)
	w.progress.Emit(progress.Event{
		RunID:   w.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageStudyDone,
		StudyID: string(key),
		Outcome: string(outcome),
		Dur:     time.Since(start),
	})
	return outcome
}
