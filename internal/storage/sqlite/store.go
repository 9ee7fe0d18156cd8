// Package sqlite persists study records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/storage"
)

// DefaultPath matches the database file name the harvester has always used.
const DefaultPath = "geo_annotations.db"

// Config controls the SQLite database.
type Config struct {
	Path        string
	Table       string
	BusyTimeout time.Duration
	MaxConns    int
}

// Store implements geo.Store over a *sql.DB. Each Open hands out a dedicated
// *sql.Conn; concurrent writers are serialized by SQLite's own locking.
type Store struct {
	db    *sql.DB
	table string
}

// Open opens (creating if needed) the database file.
func Open(cfg Config) (*Store, error) {
	table, err := storage.ValidateTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	return &Store{db: db, table: table}, nil
}

// Open acquires a dedicated connection for one unit of work.
func (s *Store) Open(ctx context.Context) (geo.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &geo.StoreError{Op: "acquire", Err: err}
	}
	return &session{conn: conn, table: s.table}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type session struct {
	conn  *sql.Conn
	table string
}

func (s *session) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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
	num_samples INTEGER,
	sample_ids TEXT,
	sample_metadata TEXT,
	ai_annotation TEXT
)`, s.table)
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return &geo.StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (s *session) Exists(ctx context.Context, key geo.StudyKey) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE study_id = ?)`, s.table)
	var exists bool
	if err := s.conn.QueryRowContext(ctx, query, string(key)).Scan(&exists); err != nil {
		return false, &geo.StoreError{Op: "exists", Err: err}
	}
	return exists, nil
}

func (s *session) Get(ctx context.Context, key geo.StudyKey) (geo.StudyRecord, error) {
	query := fmt.Sprintf(`SELECT id, %s FROM %s WHERE study_id = ? ORDER BY id LIMIT 1`,
		storage.ColumnList(), s.table)
	var (
		rec     geo.StudyRecord
		studyID string
	)
	err := s.conn.QueryRowContext(ctx, query, string(key)).Scan(storage.ScanDest(&rec, &studyID)...)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.StudyRecord{}, fmt.Errorf("study %s: %w", key, geo.ErrNotFound)
	}
	if err != nil {
		return geo.StudyRecord{}, &geo.StoreError{Op: "get", Err: err}
	}
	rec.StudyID = geo.StudyKey(studyID)
	return rec, nil
}

func (s *session) Insert(ctx context.Context, record geo.StudyRecord) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(storage.Columns)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, s.table, storage.ColumnList(), placeholders)
	if _, err := s.conn.ExecContext(ctx, query, storage.InsertArgs(record)...); err != nil {
		return &geo.StoreError{Op: "insert", Err: err}
	}
	return nil
}

func (s *session) UpdateOverallDesign(ctx context.Context, key geo.StudyKey, design *string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET overall_design = ? WHERE study_id = ?`, s.table)
	res, err := s.conn.ExecContext(ctx, query, design, string(key))
	if err != nil {
		return 0, &geo.StoreError{Op: "update overall design", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &geo.StoreError{Op: "update overall design", Err: err}
	}
	return n, nil
}

func (s *session) Release() {
	_ = s.conn.Close()
}
