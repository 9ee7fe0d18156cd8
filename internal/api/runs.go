package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/geo-harvester/internal/dispatcher"
	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/progress"
)

// RunFunc executes one harvest over keys under runID.
type RunFunc func(ctx context.Context, runID string, keys []geo.StudyKey) dispatcher.Summary

// RunStatus is the lifecycle state of a background run.
type RunStatus string

// Run states.
const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
)

// ErrRunInProgress is returned when a run is already active.
var ErrRunInProgress = errors.New("a run is already in progress")

// RunState is the externally visible view of a run.
type RunState struct {
	ID        string              `json:"run_id"`
	Status    RunStatus           `json:"status"`
	Keys      int                 `json:"keys"`
	StartedAt time.Time           `json:"started_at"`
	Progress  *progress.Counts    `json:"progress,omitempty"`
	Summary   *dispatcher.Summary `json:"summary,omitempty"`
}

// ProgressReader reports live counts for a run.
type ProgressReader interface {
	Counts(runID string) (progress.Counts, bool)
}

// RunOption customizes a RunManager.
type RunOption func(*RunManager)

// WithProgress attaches live counts to running runs.
func WithProgress(p ProgressReader) RunOption {
	return func(m *RunManager) { m.progress = p }
}

// RunManager starts harvests in the background, one at a time.
type RunManager struct {
	run      RunFunc
	base     context.Context
	progress ProgressReader

	mu     sync.Mutex
	active string
	runs   map[string]*RunState
	wg     sync.WaitGroup
}

// NewRunManager creates a RunManager. Runs are canceled when base is.
func NewRunManager(base context.Context, run RunFunc, opts ...RunOption) *RunManager {
	m := &RunManager{run: run, base: base, runs: make(map[string]*RunState)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches a run over keys and returns its ID.
func (m *RunManager) Start(keys []geo.StudyKey) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "" {
		return "", ErrRunInProgress
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	runID := id.String()
	m.active = runID
	m.runs[runID] = &RunState{ID: runID, Status: RunRunning, Keys: len(keys), StartedAt: time.Now().UTC()}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		summary := m.run(m.base, runID, keys)
		m.mu.Lock()
		defer m.mu.Unlock()
		state := m.runs[runID]
		state.Status = RunFinished
		state.Summary = &summary
		m.active = ""
	}()
	return runID, nil
}

// Get returns a copy of a run's state.
func (m *RunManager) Get(runID string) (RunState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.runs[runID]
	if !ok {
		return RunState{}, false
	}
	out := *state
	if out.Status == RunRunning && m.progress != nil {
		if counts, ok := m.progress.Counts(runID); ok {
			out.Progress = &counts
		}
	}
	return out, true
}

// Wait blocks until every started run has finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}
