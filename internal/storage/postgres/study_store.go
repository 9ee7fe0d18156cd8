// Package postgres persists study records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type poolCloser interface {
	querier
	Close()
}

// acquireFunc hands out a querier for one unit of work and its release.
type acquireFunc func(ctx context.Context) (querier, func(), error)

// StudyStore implements geo.Store over a pgx pool.
type StudyStore struct {
	pool    poolCloser
	acquire acquireFunc
	table   string
}

// NewStudyStore connects a pool using cfg. Each session acquires its own
// pooled connection.
func NewStudyStore(ctx context.Context, cfg Config) (*StudyStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := storage.ValidateTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &StudyStore{
		pool:  pool,
		table: table,
		acquire: func(ctx context.Context) (querier, func(), error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			return conn, conn.Release, nil
		},
	}, nil
}

// NewStudyStoreWithPool constructs a store whose sessions share pool
// directly (primarily for testing with pgxmock).
func NewStudyStoreWithPool(pool poolCloser, table string) (*StudyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := storage.ValidateTable(table)
	if err != nil {
		return nil, err
	}
	return &StudyStore{
		pool:  pool,
		table: table,
		acquire: func(context.Context) (querier, func(), error) {
			return pool, func() {}, nil
		},
	}, nil
}

// Open acquires a connection for one unit of work.
func (s *StudyStore) Open(ctx context.Context) (geo.Session, error) {
	q, release, err := s.acquire(ctx)
	if err != nil {
		return nil, &geo.StoreError{Op: "acquire", Err: err}
	}
	return &session{q: q, release: release, table: s.table}, nil
}

// Close releases the underlying pool resources.
func (s *StudyStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

type session struct {
	q       querier
	release func()
	table   string
}

func (s *session) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	study_id TEXT,
	status TEXT,
	title TEXT,
	organism TEXT,
	experiment_type TEXT,
	summary TEXT,
	overall_design TEXT,
	citations TEXT,
	bioproject TEXT,
	platforms TEXT,
	num_samples BIGINT,
	sample_ids TEXT,
	sample_metadata TEXT,
	ai_annotation TEXT
)`, s.table)
	if _, err := s.q.Exec(ctx, query); err != nil {
		return &geo.StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (s *session) Exists(ctx context.Context, key geo.StudyKey) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE study_id = $1)`, s.table)
	var exists bool
	if err := s.q.QueryRow(ctx, query, string(key)).Scan(&exists); err != nil {
		return false, &geo.StoreError{Op: "exists", Err: err}
	}
	return exists, nil
}

func (s *session) Get(ctx context.Context, key geo.StudyKey) (geo.StudyRecord, error) {
	query := fmt.Sprintf(`SELECT id, %s FROM %s WHERE study_id = $1 ORDER BY id LIMIT 1`,
		storage.ColumnList(), s.table)
	var (
		rec     geo.StudyRecord
		studyID string
	)
	err := s.q.QueryRow(ctx, query, string(key)).Scan(storage.ScanDest(&rec, &studyID)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return geo.StudyRecord{}, fmt.Errorf("study %s: %w", key, geo.ErrNotFound)
	}
	if err != nil {
		return geo.StudyRecord{}, &geo.StoreError{Op: "get", Err: err}
	}
	rec.StudyID = geo.StudyKey(studyID)
	return rec, nil
}

func (s *session) Insert(ctx context.Context, record geo.StudyRecord) error {
	placeholders := make([]string, len(storage.Columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.table, storage.ColumnList(), strings.Join(placeholders, ","))
	if _, err := s.q.Exec(ctx, query, storage.InsertArgs(record)...); err != nil {
		return &geo.StoreError{Op: "insert", Err: err}
	}
	return nil
}

func (s *session) UpdateOverallDesign(ctx context.Context, key geo.StudyKey, design *string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET overall_design = $1 WHERE study_id = $2`, s.table)
	tag, err := s.q.Exec(ctx, query, design, string(key))
	if err != nil {
		return 0, &geo.StoreError{Op: "update overall design", Err: err}
	}
	return tag.RowsAffected(), nil
}

func (s *session) Release() {
	if s.release != nil {
		s.release()
	}
}
