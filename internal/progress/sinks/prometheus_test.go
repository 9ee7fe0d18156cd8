package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/progress"
)

func runBatch(runID string) []progress.Event {
	now := time.Now()
	return []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageStudyDone, StudyID: "GSE1", Outcome: "ingested", Dur: 200 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageStudyDone, StudyID: "GSE2", Outcome: "skipped", Dur: time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageStudyDone, StudyID: "GSE3", Outcome: "failed", Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: 2 * time.Second},
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), runBatch("run-1")[:1]))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), runBatch("run-1")[1:]))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 3, testutil.CollectAndCount(sink.studyDuration, "harvester_study_duration_seconds"))
}

func TestPrometheusSinkReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	second, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, second.Consume(context.Background(), runBatch("run-2")[:1]))
	require.Equal(t, 1.0, testutil.ToFloat64(first.runsStarted))
}

func TestRunTrackerCounts(t *testing.T) {
	t.Parallel()

	tracker := NewRunTracker()
	batch := runBatch("run-3")

	require.NoError(t, tracker.Consume(context.Background(), batch[:3]))
	counts, ok := tracker.Counts("run-3")
	require.True(t, ok)
	require.Equal(t, progress.Counts{Total: 3, Ingested: 1, Skipped: 1}, counts)
	require.Equal(t, 2, counts.Processed())

	require.NoError(t, tracker.Consume(context.Background(), batch[3:]))
	counts, _ = tracker.Counts("run-3")
	require.Equal(t, progress.Counts{Total: 3, Ingested: 1, Skipped: 1, Failed: 1, Done: true}, counts)

	_, ok = tracker.Counts("missing")
	require.False(t, ok)
}

func TestLogSinkConsume(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(zap.NewNop())
	require.NoError(t, sink.Consume(context.Background(), runBatch("run-4")))
	require.NoError(t, sink.Close(context.Background()))
}
