// Package catalog records batch parsing outcomes in SQLite.
//
// Sentinel files remain the source of truth for resumability. The catalog
// is a queryable summary next to them: one row per library with its status,
// function counts and error.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// FileName is the catalog database name inside a batch output directory.
const FileName = "catalog.db"

// Status of one library in a batch run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Entry is the outcome of one library.
type Entry struct {
	Name       string
	Parser     string
	Status     Status
	Found      int
	Working    int
	Error      string
	ExportPath string
	Duration   time.Duration
	FinishedAt time.Time
}

// Summary aggregates entries by status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Found     int
	Working   int
}

// Store reads and writes catalog entries.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// Batch workers share the store; one connection serializes writes.
	db.SetMaxOpenConns(1)

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if version == "0" {
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	} else if version != SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("unsupported catalog schema version %s (expected %s)", version, SchemaVersion)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes or replaces the entry for e.Name.
func (s *Store) Record(e Entry) error {
	finished := e.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err := sq.Insert("libraries").
		Columns(
			"name", "parser", "status", "found", "working",
			"error", "export_path", "duration_ms", "finished_at",
		).
		Values(
			e.Name,
			e.Parser,
			string(e.Status),
			e.Found,
			e.Working,
			e.Error,
			e.ExportPath,
			e.Duration.Milliseconds(),
			finished.UTC().Format(time.RFC3339),
		).
		Options("OR REPLACE").
		RunWith(s.db).
		Exec()

	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Name, err)
	}
	return nil
}

// Get returns the entry for name, or (nil, nil) if there is none.
func (s *Store) Get(name string) (*Entry, error) {
	rows, err := s.query(sq.Eq{"name": name})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Entries returns every entry ordered by name.
func (s *Store) Entries() ([]Entry, error) {
	return s.query(nil)
}

func (s *Store) query(where sq.Sqlizer) ([]Entry, error) {
	builder := sq.Select(
		"name", "parser", "status", "found", "working",
		"error", "export_path", "duration_ms", "finished_at",
	).
		From("libraries").
		OrderBy("name")
	if where != nil {
		builder = builder.Where(where)
	}

	rows, err := builder.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, finished string
		var durationMs int64
		if err := rows.Scan(
			&e.Name, &e.Parser, &status, &e.Found, &e.Working,
			&e.Error, &e.ExportPath, &durationMs, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		e.Status = Status(status)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary counts entries by status and totals their functions.
func (s *Store) Summary() (Summary, error) {
	var sum Summary
	err := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(found), 0)",
		"COALESCE(SUM(working), 0)",
	).
		From("libraries").
		RunWith(s.db).
		QueryRow().
		Scan(&sum.Total, &sum.Succeeded, &sum.Failed, &sum.Skipped, &sum.Found, &sum.Working)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize catalog: %w", err)
	}
	return sum, nil
}
