package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/database"
	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/history"
)

// DefaultTable is the history table when none is configured.
const DefaultTable = "diagnosis_history"

// DocumentStore keeps each history record as a JSONB document in PostgreSQL.
// The pool is opened on first use so an unreachable database never blocks
// startup.
type DocumentStore struct {
	config domain.DatabaseConfig
	table  string
	log    *logrus.Logger

	mu   sync.Mutex
	db   *database.DB
	pool *pgxpool.Pool
}

// NewDocumentStore creates a store for config. Nothing is dialed yet.
func NewDocumentStore(config domain.DatabaseConfig, logger *logrus.Logger) *DocumentStore {
	table := config.Table
	if table == "" {
		table = DefaultTable
	}
	return &DocumentStore{
		config: config,
		table:  pq.QuoteIdentifier(table),
		log:    logger,
	}
}

// NewDocumentStoreFromPool wraps an open pool, for callers that manage the
// connection themselves.
func NewDocumentStoreFromPool(pool *pgxpool.Pool, table string, logger *logrus.Logger) *DocumentStore {
	s := NewDocumentStore(domain.DatabaseConfig{Enabled: true, URL: "pool", Table: table}, logger)
	s.pool = pool
	return s
}

// Name implements history.Backend.
func (s *DocumentStore) Name() string { return "postgres" }

// IsConfigured implements history.Backend.
func (s *DocumentStore) IsConfigured() bool {
	return s.config.Configured()
}

func (s *DocumentStore) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if !s.IsConfigured() {
		return nil, domain.ErrConfigurationMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}

	db, err := database.NewConnection(ctx, database.FromDomain(s.config), s.log)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx, db.Pool); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	s.pool = db.Pool
	return s.pool, nil
}

// ensureSchema creates the table when migrations have not been run. It
// mirrors migrations/000001 so a custom table name works too.
func (s *DocumentStore) ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			case_id      TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			report       JSONB NOT NULL,
			input        JSONB
		)`, s.table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}
	return nil
}

// Write implements history.Backend.
func (s *DocumentStore) Write(ctx context.Context, rec history.Record) error {
	pool, err := s.connect(ctx)
	if err != nil {
		return err
	}

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshaling input: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, case_id, patient_name, created_at, report, input)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.table)

	if _, err := pool.Exec(ctx, query,
		rec.ID, rec.CaseID, rec.PatientName, rec.Timestamp, reportJSON, inputJSON,
	); err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"record_id": rec.ID,
		"case_id":   rec.CaseID,
	}).Debug("History record stored")
	return nil
}

// QueryRecent implements history.Backend.
func (s *DocumentStore) QueryRecent(ctx context.Context, limit int, filter history.Filter) ([]history.Record, error) {
	pool, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id::text, case_id, patient_name, created_at, report, input
		FROM %s
		WHERE $1 = '' OR case_id = $1 OR patient_name = $1
		ORDER BY created_at DESC
		LIMIT $2`, s.table)

	rows, err := pool.Query(ctx, query, filter.Patient, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return records, nil
}

// Get returns one record by id. Ids that are not UUIDs are never stored here.
func (s *DocumentStore) Get(ctx context.Context, id string) (history.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return history.Record{}, fmt.Errorf("history record %s: %w", id, domain.ErrNotFound)
	}
	pool, err := s.connect(ctx)
	if err != nil {
		return history.Record{}, err
	}

	query := fmt.Sprintf(`
		SELECT id::text, case_id, patient_name, created_at, report, input
		FROM %s WHERE id = $1`, s.table)

	rec, err := scanDocument(pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Record{}, fmt.Errorf("history record %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

func scanDocument(row pgx.Row) (history.Record, error) {
	var rec history.Record
	var reportJSON, inputJSON []byte
	if err := row.Scan(&rec.ID, &rec.CaseID, &rec.PatientName, &rec.Timestamp, &reportJSON, &inputJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scanning history row: %w", err)
	}
	if err := json.Unmarshal(reportJSON, &rec.Report); err != nil {
		return rec, fmt.Errorf("unmarshaling report: %w", err)
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return rec, fmt.Errorf("unmarshaling input: %w", err)
		}
	}
	return rec, nil
}

// Ping checks the connection, dialing it if needed.
func (s *DocumentStore) Ping(ctx context.Context) error {
	pool, err := s.connect(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close releases the pool if this store opened it.
func (s *DocumentStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
		s.pool = nil
	}
}
