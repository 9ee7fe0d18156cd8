// Package app initializes and holds long-lived harvester services, acting as a
// dependency injection container for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/archive"
	"github.com/JakeFAU/geo-harvester/internal/assemble"
	"github.com/JakeFAU/geo-harvester/internal/config"
	"github.com/JakeFAU/geo-harvester/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/geo-harvester/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/geo-harvester/internal/fetcher/resty"
	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/ingest"
	"github.com/JakeFAU/geo-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/geo-harvester/internal/progress"
	"github.com/JakeFAU/geo-harvester/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/geo-harvester/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/geo-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/geo-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/geo-harvester/internal/storage/memory"
	"github.com/JakeFAU/geo-harvester/internal/storage/postgres"
	"github.com/JakeFAU/geo-harvester/internal/storage/sqlite"
)

// App holds the shared services built from one Config.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     geo.Store
	fetcher   geo.DocumentFetcher
	text      *restyfetcher.Client
	assembler *assemble.Assembler
	publisher geo.Publisher
	hub       *progress.Hub
	tracker   *sinks.RunTracker
	closers   []func() error
}

// New builds every service named by cfg. It fails fast when a backend cannot
// be reached, closing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	// One limiter is shared by every outgoing request so the per-host rate
	// holds across workers.
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Source.RequestsPerSecond, Burst: cfg.Source.Burst})

	var fetcher geo.DocumentFetcher = collyfetcher.New(collyfetcher.Config{
		BaseURL:       cfg.Source.BaseURL,
		UserAgent:     cfg.Source.UserAgent,
		RespectRobots: cfg.Source.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	}, collyfetcher.WithLimiter(limiter), collyfetcher.WithLogger(logger.Named("fetch")))

	blobs, closeBlobs, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeBlobs != nil {
		a.closers = append(a.closers, closeBlobs)
	}
	if blobs != nil {
		fetcher = archive.New(fetcher, blobs, cfg.Archive.Prefix, logger)
	}
	a.fetcher = fetcher

	a.text = restyfetcher.New(restyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		PubMedURL: cfg.Source.PubMedURL,
	}, restyfetcher.WithLimiter(limiter), restyfetcher.WithLogger(logger.Named("text")))

	a.assembler = assemble.New(fetcher, nil, nil, logger)

	pub, closePub, err := openPublisher(ctx, cfg.PubSub)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closePub != nil {
		a.closers = append(a.closers, closePub)
	}
	a.publisher = pub

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tracker = sinks.NewRunTracker()
	a.hub = progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		a.tracker,
	)
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.hub.Close(ctx)
	})

	logger.Info("harvester services initialized",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Bool("publishing", pub != nil),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (geo.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(sqlite.Config{
			Path:        cfg.Path,
			Table:       cfg.Table,
			BusyTimeout: time.Duration(cfg.BusyTimeoutMs) * time.Millisecond,
			MaxConns:    cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewStudyStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // bounded by config validation
			MinConns: int32(cfg.MinConns), //nolint:gosec // bounded by config validation
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// openArchive returns a nil store when archiving is disabled.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (geo.BlobStore, func() error, error) {
	switch cfg.Backend {
	case "", config.ArchiveNone:
		return nil, nil, nil
	case config.ArchiveMemory:
		return memorystorage.NewBlobStore(), nil, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil, nil
	case config.ArchiveGCS:
		store, err := gcsstorage.Connect(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}
}

// openPublisher returns a nil publisher when no topic is configured.
func openPublisher(ctx context.Context, cfg config.PubSubConfig) (geo.Publisher, func() error, error) {
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, nil, nil
	}
	pub, err := pubsubpublisher.Connect(ctx, cfg.ProjectID, cfg.TopicName)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return pub, pub.Close, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Text returns the client used for platform listings and PubMed abstracts.
func (a *App) Text() *restyfetcher.Client {
	return a.text
}

// Coordinator builds an ingestion coordinator tagged with runID.
func (a *App) Coordinator(runID string) *ingest.Coordinator {
	opts := []ingest.Option{ingest.WithRunID(runID)}
	if a.publisher != nil {
		opts = append(opts, ingest.WithPublisher(a.publisher))
	}
	return ingest.New(a.store, a.assembler, a.logger, opts...)
}

// Run harvests keys with the configured worker pool.
func (a *App) Run(ctx context.Context, runID string, keys []geo.StudyKey) dispatcher.Summary {
	d := dispatcher.New(dispatcher.Config{
		Workers:    a.cfg.Harvest.Workers,
		QueueDepth: a.cfg.Harvest.QueueDepth,
		RunID:      runID,
		Progress:   a.hub,
	}, a.Coordinator(runID), a.logger)
	return d.Run(ctx, keys)
}

// Progress returns live outcome counts for runs started by this App.
func (a *App) Progress() *sinks.RunTracker {
	return a.tracker
}

// Lookup reads one stored study.
func (a *App) Lookup(ctx context.Context, key geo.StudyKey) (geo.StudyRecord, error) {
	return a.Coordinator("").Lookup(ctx, key)
}

// Ready checks that a storage session can be opened and the table exists.
func (a *App) Ready(ctx context.Context) error {
	sess, err := a.store.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()
	return sess.EnsureSchema(ctx)
}

// Close shuts down every service in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("error closing harvester services", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

// UsePublisher replaces the event publisher for subsequent runs.
func (a *App) UsePublisher(p geo.Publisher) {
	a.publisher = p
}
