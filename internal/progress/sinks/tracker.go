package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/geo-harvester/internal/progress"
)

// RunTracker keeps live outcome counts per run so callers can report progress
// before a run's summary exists.
type RunTracker struct {
	mu   sync.RWMutex
	runs map[string]progress.Counts
}

// NewRunTracker creates an empty tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{runs: make(map[string]progress.Counts)}
}

// Consume folds batch into the per-run counts.
func (t *RunTracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		c := t.runs[evt.RunID]
		switch evt.Stage {
		case progress.StageRunStart:
			c.Total = evt.Total
		case progress.StageRunDone:
			c.Done = true
		case progress.StageStudyDone:
			switch evt.Outcome {
			case "ingested":
				c.Ingested++
			case "skipped":
				c.Skipped++
			default:
				c.Failed++
			}
		}
		t.runs[evt.RunID] = c
	}
	return nil
}

// Counts returns the tallies seen so far for runID.
func (t *RunTracker) Counts(runID string) (progress.Counts, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.runs[runID]
	return c, ok
}

// Close implements progress.Sink; it performs no action.
func (t *RunTracker) Close(context.Context) error {
	return nil
}
