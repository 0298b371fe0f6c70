package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store persists audit records to SQLite so a chain survives restarts
// and can be re-verified offline.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the audit database at path. Use ":memory:"
// for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL UNIQUE,
			self_hash  TEXT NOT NULL,
			record_json TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("audit: init store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends records in order within one transaction.
func (s *Store) Save(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_records (event_id, self_hash, record_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("audit: prepare save: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("audit: encode record %s: %w", r.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.EventID, r.SelfHash, string(raw)); err != nil {
			return fmt.Errorf("audit: save record %s: %w", r.EventID, err)
		}
	}
	return tx.Commit()
}

// Load returns every stored record in append order.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM audit_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("audit: load records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("audit: decode record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// VerifyStored loads the persisted chain and verifies it end to end.
func (s *Store) VerifyStored(ctx context.Context) (int, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return VerifyRecords(records)
}
