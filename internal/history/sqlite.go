package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cvd-expert-server/internal/domain"
)

// SQLiteBackend is the local last-resort store: one table in a SQLite file.
// The file is opened on first use.
type SQLiteBackend struct {
	enabled bool
	dbPath  string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend creates a backend for the file at cfg.Path.
func NewSQLiteBackend(cfg domain.SQLiteConfig) *SQLiteBackend {
	return &SQLiteBackend{enabled: cfg.Enabled, dbPath: cfg.Path}
}

// NewSQLiteBackendFromDB wraps an open database. The schema must exist.
func NewSQLiteBackendFromDB(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{enabled: true, db: db}
}

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return "sqlite" }

// IsConfigured implements Backend.
func (s *SQLiteBackend) IsConfigured() bool {
	return s.enabled && (s.dbPath != "" || s.db != nil)
}

func (s *SQLiteBackend) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if !s.IsConfigured() {
		return nil, domain.ErrConfigurationMissing
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s.db = db
	return db, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS diagnosis_history (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		patient_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		report TEXT NOT NULL,
		input TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_history_case_id ON diagnosis_history(case_id);
	CREATE INDEX IF NOT EXISTS idx_history_patient_name ON diagnosis_history(patient_name);
	CREATE INDEX IF NOT EXISTS idx_history_created_at ON diagnosis_history(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Write implements Backend.
func (s *SQLiteBackend) Write(ctx context.Context, rec Record) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO diagnosis_history (id, case_id, patient_name, created_at, report, input)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CaseID,
		rec.PatientName,
		rec.Timestamp.UnixNano(),
		string(report),
		string(input),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec           Record
		created       int64
		report, input string
	)
	if err := sc.Scan(&rec.ID, &rec.CaseID, &rec.PatientName, &created, &report, &input); err != nil {
		return Record{}, err
	}
	rec.Timestamp = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(report), &rec.Report); err != nil {
		return Record{}, fmt.Errorf("failed to decode report %s: %w", rec.ID, err)
	}
	if input != "" && input != "null" {
		if err := json.Unmarshal([]byte(input), &rec.Input); err != nil {
			return Record{}, fmt.Errorf("failed to decode input %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// QueryRecent implements Backend.
func (s *SQLiteBackend) QueryRecent(ctx context.Context, limit int, filter Filter) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, case_id, patient_name, created_at, report, input
		FROM diagnosis_history
		WHERE ? = '' OR case_id = ? OR patient_name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, filter.Patient, filter.Patient, filter.Patient, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Get implements RecordLookup.
func (s *SQLiteBackend) Get(ctx context.Context, id string) (Record, error) {
	db, err := s.conn()
	if err != nil {
		return Record{}, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, case_id, patient_name, created_at, report, input
		FROM diagnosis_history
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("history record %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

// Count returns the number of stored records.
func (s *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnosis_history").Scan(&count)
	return count, err
}

// maxExportLimit is the maximum number of records exported at once.
const maxExportLimit = 1000000

// Export is the JSON document written by ExportJSON.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []Record  `json:"records"`
}

// ExportJSON writes every stored record to writer.
func (s *SQLiteBackend) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.QueryRecent(ctx, maxExportLimit, Filter{})
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Ping checks that the file can be opened.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the database if it was opened.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
