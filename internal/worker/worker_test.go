package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/ingest"
	"github.com/JakeFAU/geo-harvester/internal/queue/memory"
)

type fakeIngester struct {
	mu       sync.Mutex
	outcomes map[geo.StudyKey]ingest.Outcome
	seen     []geo.StudyKey
}

func (f *fakeIngester) Ingest(_ context.Context, key geo.StudyKey) ingest.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, key)
	if o, ok := f.outcomes[key]; ok {
		return o
	}
	return ingest.OutcomeIngested
}

func fillQueue(t *testing.T, keys ...geo.StudyKey) *memory.Queue {
	t.Helper()
	q := memory.NewQueue(len(keys))
	for _, k := range keys {
		require.NoError(t, q.Enqueue(context.Background(), k))
	}
	q.Close()
	return q
}

func TestWorkerDrainsQueueAndTallies(t *testing.T) {
	t.Parallel()

	q := fillQueue(t, "GSE1", "GSE2", "GSE3")
	ing := &fakeIngester{outcomes: map[geo.StudyKey]ingest.Outcome{
		"GSE2": ingest.OutcomeSkipped,
		"GSE3": ingest.OutcomeFailed,
	}}

	tally := New(1, q, ing, zap.NewNop()).Run(context.Background())

	require.Equal(t, Tally{Ingested: 1, Skipped: 1, Failed: 1}, tally)
	require.Equal(t, 3, tally.Total())
	require.Equal(t, []geo.StudyKey{"GSE1", "GSE2", "GSE3"}, ing.seen)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Tally, 1)
	go func() {
		done <- New(1, q, &fakeIngester{}, nil).Run(ctx)
	}()

	cancel()
	select {
	case tally := <-done:
		require.Zero(t, tally.Total())
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
