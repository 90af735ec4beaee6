// Package history provides SQLite-backed storage of completed consultations
// so a doctor can review earlier results. The workflow never reads from this
// store while processing a request; clinical data is always refetched from
// source.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"medflow/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS consultations (
	id            TEXT PRIMARY KEY,
	patient_id    TEXT NOT NULL,
	query         TEXT NOT NULL,
	intent        TEXT NOT NULL,
	terminal_kind TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	result_text   TEXT NOT NULL DEFAULT '',
	rounds        INTEGER NOT NULL DEFAULT 0,
	steps         TEXT NOT NULL DEFAULT '[]',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_consultations_patient
	ON consultations (patient_id, created_at DESC);
`

// Entry is one recorded consultation.
type Entry struct {
	ID           string
	PatientID    string
	Query        string
	Intent       string
	TerminalKind string
	ErrorKind    string
	ResultText   string
	Rounds       int
	Steps        []string
	CreatedAt    time.Time
}

// Store persists consultation outcomes.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewStore opens (creating if needed) the consultation database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("history")
	logger.Info("Consultation history initialized: %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Record stores one completed consultation.
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("consultation entry requires an id")
	}
	if entry.PatientID == "" {
		return fmt.Errorf("consultation entry requires a patient id")
	}

	steps, err := json.Marshal(entry.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode step history: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consultations
			(id, patient_id, query, intent, terminal_kind, error_kind, result_text, rounds, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.PatientID, entry.Query, entry.Intent, entry.TerminalKind,
		entry.ErrorKind, entry.ResultText, entry.Rounds, string(steps), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record consultation %s: %w", entry.ID, err)
	}

	s.logger.Debug("Recorded consultation %s for patient %s (%s)", entry.ID, entry.PatientID, entry.TerminalKind)
	return nil
}

// RecentByPatient returns up to limit consultations for the patient, newest
// first.
func (s *Store) RecentByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, query, intent, terminal_kind, error_kind, result_text, rounds, steps, created_at
		FROM consultations
		WHERE patient_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		patientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultations for patient %s: %w", patientID, err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	var entries []Entry
	for rows.Next() {
		var e Entry
		var steps string
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Query, &e.Intent, &e.TerminalKind,
			&e.ErrorKind, &e.ResultText, &e.Rounds, &steps, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consultation row: %w", err)
		}
		if steps != "" {
			if err := json.Unmarshal([]byte(steps), &e.Steps); err != nil {
				return nil, fmt.Errorf("failed to decode step history for %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consultation rows: %w", err)
	}
	return entries, nil
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SummarizeSteps renders a step history compactly for display.
func SummarizeSteps(steps []string) string {
	return strings.Join(steps, " > ")
}
