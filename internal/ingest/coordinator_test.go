package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/geo-harvester/internal/assemble"
	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/publisher/memory"
	"github.com/JakeFAU/geo-harvester/internal/storage/sqlite"
)

type fakeSource struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[string]string{}, calls: map[string]int{}}
}

func (f *fakeSource) Fetch(_ context.Context, key string) (geo.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	body, ok := f.pages[key]
	if !ok {
		return geo.Document{}, &geo.FetchError{Key: key, StatusCode: 404}
	}
	return geo.Document{Key: key, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeSource) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func table(rows ...[2]string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", r[0], r[1])
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func addStudy(src *fakeSource, key, title string) {
	src.pages[key] = table(
		[2]string{"Title", title},
		[2]string{"Summary", "About " + key},
		[2]string{"GPL570", "array"},
		[2]string{"GSM" + key[3:], "sample"},
	)
	src.pages["GSM"+key[3:]] = table([2]string{"Characteristics", "tissue: liver"})
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "geo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func countRows(t *testing.T, store geo.Store, key geo.StudyKey) bool {
	t.Helper()
	sess, err := store.Open(context.Background())
	require.NoError(t, err)
	defer sess.Release()
	ok, err := sess.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestIngestTwiceStoresOneRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := newFakeSource()
	addStudy(src, "GSE1", "Liver study")
	store := openStore(t)
	c := New(store, assemble.New(src, nil, nil, nil), zap.NewNop())

	require.Equal(t, OutcomeIngested, c.Ingest(ctx, "GSE1"))
	require.Equal(t, OutcomeSkipped, c.Ingest(ctx, "GSE1"))
	require.Equal(t, 1, src.count("GSE1"), "second call must not refetch")

	rec, err := c.Lookup(ctx, "GSE1")
	require.NoError(t, err)
	require.Equal(t, "Liver study", *rec.Title)
	require.Equal(t, `["GPL570"]`, *rec.Platforms)
	require.Equal(t, `["GSM1"]`, *rec.SampleIDs)
	require.Equal(t, int64(1), *rec.NumSamples)
	require.Nil(t, rec.AIAnnotation)

	var agg geo.AggregatedSampleMetadata
	require.NoError(t, json.Unmarshal([]byte(*rec.SampleMetadata), &agg))
	require.Equal(t, []string{"liver"}, agg.Values["tissue"])
	require.Equal(t, []string{"tissue"}, agg.AllMetadataFields)
}

func TestIngestFetchErrorInsertsNothing(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	store := openStore(t)
	c := New(store, assemble.New(newFakeSource(), nil, nil, nil), zap.New(core))

	require.NotPanics(t, func() {
		require.Equal(t, OutcomeFailed, c.Ingest(context.Background(), "GSE404"))
	})
	require.False(t, countRows(t, store, "GSE404"))

	entries := logs.FilterMessage("study ingestion failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "GSE404", entries[0].ContextMap()["study_id"])
}

func TestIngestSampleFailureAbortsStudy(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	addStudy(src, "GSE3", "Broken sample")
	delete(src.pages, "GSM3")
	store := openStore(t)

	c := New(store, assemble.New(src, nil, nil, nil), nil)
	require.Equal(t, OutcomeFailed, c.Ingest(context.Background(), "GSE3"))
	require.False(t, countRows(t, store, "GSE3"))
}

type panickingAssembler struct{}

func (panickingAssembler) Assemble(context.Context, geo.StudyKey) (geo.AssembledStudy, error) {
	panic("unexpected markup")
}

func (panickingAssembler) OverallDesign(context.Context, geo.StudyKey) (*string, error) {
	return nil, nil
}

func TestIngestRecoversPanics(t *testing.T) {
	t.Parallel()

	c := New(openStore(t), panickingAssembler{}, nil)
	require.NotPanics(t, func() {
		require.Equal(t, OutcomeFailed, c.Ingest(context.Background(), "GSE1"))
	})
}

type failingStore struct{}

func (failingStore) Open(context.Context) (geo.Session, error) {
	return nil, &geo.StoreError{Op: "acquire", Err: errors.New("database is locked")}
}

func (failingStore) Close() error { return nil }

func TestIngestStoreErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	c := New(failingStore{}, assemble.New(newFakeSource(), nil, nil, nil), nil)
	require.Equal(t, OutcomeFailed, c.Ingest(context.Background(), "GSE1"))
}

func TestCoerceIsolatesNumSamples(t *testing.T) {
	t.Parallel()

	c := New(nil, nil, nil)
	base := map[string]any{
		geo.FieldTitle:     "Liver study",
		geo.FieldStatus:    "Public",
		geo.FieldSummary:   "About",
		geo.FieldPlatforms: []string{"GPL570"},
		geo.FieldSamples:   []geo.SampleKey{"GSM1"},
	}

	for name, value := range map[string]any{
		"missing":     nil,
		"non-numeric": "many",
		"wrong type":  3.5,
	} {
		fields := make(map[string]any, len(base)+1)
		for k, v := range base {
			fields[k] = v
		}
		if value != nil {
			fields[geo.FieldNumSamples] = value
		}

		rec := c.Coerce("GSE1", fields)
		require.Nil(t, rec.NumSamples, name)
		require.Equal(t, "Liver study", *rec.Title, name)
		require.Equal(t, "Public", *rec.Status, name)
		require.Equal(t, "About", *rec.Summary, name)
		require.Equal(t, `["GPL570"]`, *rec.Platforms, name)
		require.Equal(t, `["GSM1"]`, *rec.SampleIDs, name)
		require.Nil(t, rec.OverallDesign, name)
		require.Nil(t, rec.SampleMetadata, name)
	}

	rec := c.Coerce("GSE1", map[string]any{geo.FieldNumSamples: " 12 "})
	require.Equal(t, int64(12), *rec.NumSamples)
}

func TestEndToEndSkipsPrepopulatedStudy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := newFakeSource()
	addStudy(src, "GSE1", "Fresh title")
	addStudy(src, "GSE2", "Second study")
	store := openStore(t)

	sess, err := store.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.EnsureSchema(ctx))
	require.NoError(t, sess.Insert(ctx, geo.StudyRecord{StudyID: "GSE1", Title: geo.StringPtr("Original")}))
	sess.Release()

	pub := memory.New()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(store, assemble.New(src, nil, nil, nil), nil,
		WithPublisher(pub), WithRunID("run-1"), WithClock(func() time.Time { return fixed }))

	outcomes := map[geo.StudyKey]Outcome{}
	for _, key := range []geo.StudyKey{"GSE1", "GSE2"} {
		outcomes[key] = c.Ingest(ctx, key)
	}
	require.Equal(t, OutcomeSkipped, outcomes["GSE1"])
	require.Equal(t, OutcomeIngested, outcomes["GSE2"])
	require.Zero(t, src.count("GSE1"))

	first, err := c.Lookup(ctx, "GSE1")
	require.NoError(t, err)
	require.Equal(t, "Original", *first.Title)

	second, err := c.Lookup(ctx, "GSE2")
	require.NoError(t, err)
	require.Equal(t, "Second study", *second.Title)

	msgs := pub.Messages(EventStudyIngested)
	require.Len(t, msgs, 1)
	require.JSONEq(t,
		`{"run_id":"run-1","study_id":"GSE2","title":"Second study","num_samples":1,"ingested_at":"2024-01-02T03:04:05Z"}`,
		string(msgs[0].Data))
}

func TestRefreshOverallDesign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := newFakeSource()
	addStudy(src, "GSE1", "Liver study")
	store := openStore(t)
	c := New(store, assemble.New(src, nil, nil, nil), nil)
	require.Equal(t, OutcomeIngested, c.Ingest(ctx, "GSE1"))

	src.pages["GSE1"] = table([2]string{"Title", "Changed"}, [2]string{"Overall design", "Case vs control"})
	require.NoError(t, c.RefreshOverallDesign(ctx, "GSE1"))

	rec, err := c.Lookup(ctx, "GSE1")
	require.NoError(t, err)
	require.Equal(t, "Case vs control", *rec.OverallDesign)
	require.Equal(t, "Liver study", *rec.Title)

	err = c.RefreshOverallDesign(ctx, "GSE77")
	require.ErrorIs(t, err, geo.ErrNotFound)
}
