package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageStudyDone Stage = "STUDY_DONE"
	StageRunDone   Stage = "RUN_DONE"
)

// Event captures a single step of harvest progress.
type Event struct {
	// RunID identifies the harvest run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// StudyID and Outcome are set for StageStudyDone.
	StudyID string
	Outcome string
	// Total is the number of keys in the run for StageRunStart.
	Total int
	// Dur is the time spent on one study, or on the whole run for StageRunDone.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageStudyDone:
		if e.StudyID == "" {
			return errors.New("study done requires study id")
		}
		if e.Outcome == "" {
			return errors.New("study done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Counts tallies study outcomes seen for one run.
type Counts struct {
	Total    int  `json:"total"`
	Ingested int  `json:"ingested"`
	Skipped  int  `json:"skipped"`
	Failed   int  `json:"failed"`
	Done     bool `json:"done"`
}

// Processed is the number of studies with a recorded outcome.
func (c Counts) Processed() int {
	return c.Ingested + c.Skipped + c.Failed
}
