// Package dispatcher fans study keys out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/progress"
	"github.com/JakeFAU/geo-harvester/internal/queue/memory"
	"github.com/JakeFAU/geo-harvester/internal/worker"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 5

// Config controls the pool.
type Config struct {
	Workers    int
	QueueDepth int
	RunID      string
	// Progress receives run and per-study events. Nil disables reporting.
	Progress progress.Emitter
}

// Summary reports the outcome counts of one run.
type Summary struct {
	RunID    string `json:"run_id"`
	Total    int    `json:"total"`
	Ingested int    `json:"ingested"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	// Unprocessed counts keys never handed to a worker because the run was
	// canceled.
	Unprocessed int           `json:"unprocessed"`
	Duration    time.Duration `json:"duration_ns"`
}

// Dispatcher runs one harvesting pass over a key sequence.
type Dispatcher struct {
	cfg      Config
	ingester worker.Ingester
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, ingester worker.Ingester, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 2
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.Named("dispatcher"),
	}
}

// Run enqueues every key, lets the workers drain the queue and waits for all
// of them. Per-key failures are counted, never returned.
func (d *Dispatcher) Run(ctx context.Context, keys []geo.StudyKey) Summary {
	start := time.Now()
	d.cfg.Progress.Emit(progress.Event{
		RunID: d.cfg.RunID,
		TS:    start.UTC(),
		Stage: progress.StageRunStart,
		Total: len(keys),
	})
	q := memory.NewQueue(d.cfg.QueueDepth)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer q.Close()
		for _, key := range keys {
			if err := q.Enqueue(gctx, key); err != nil {
				return fmt.Errorf("produce %s: %w", key, err)
			}
		}
		return nil
	})

	var (
		mu    sync.Mutex
		total worker.Tally
	)
	for i := 1; i <= d.cfg.Workers; i++ {
		w := worker.New(i, q, d.ingester, d.logger, worker.WithProgress(d.cfg.Progress, d.cfg.RunID))
		g.Go(func() error {
			tally := w.Run(gctx)
			mu.Lock()
			total.Ingested += tally.Ingested
			total.Skipped += tally.Skipped
			total.Failed += tally.Failed
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("run stopped early", zap.Int("queued", q.Len()), zap.Error(err))
	}

	summary := Summary{
		RunID:       d.cfg.RunID,
		Total:       len(keys),
		Ingested:    total.Ingested,
		Skipped:     total.Skipped,
		Failed:      total.Failed,
		Unprocessed: len(keys) - total.Total(),
		Duration:    time.Since(start),
	}
	d.cfg.Progress.Emit(progress.Event{
		RunID: summary.RunID,
		TS:    time.Now().UTC(),
		Stage: progress.StageRunDone,
		Dur:   summary.Duration,
	})
	d.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("ingested", summary.Ingested),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("unprocessed", summary.Unprocessed),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}
