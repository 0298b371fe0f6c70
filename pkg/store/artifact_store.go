// Package store persists compiled artifacts. Artifacts are
// content-addressed by IR checksum: storing the same compilation twice
// is a no-op, and a checksum lookup either returns the exact artifact
// or nothing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowforge-io/core/pkg/contracts"
)

// ErrNotFound is returned when no artifact has the requested checksum.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore keeps signed IR artifacts in SQLite.
type ArtifactStore struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenArtifactStore opens (or creates) the artifact database at path.
func OpenArtifactStore(path string) (*ArtifactStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open artifacts: %w", err)
	}
	s := &ArtifactStore{db: db, clock: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *ArtifactStore) WithClock(clock func() time.Time) *ArtifactStore {
	s.clock = clock
	return s
}

func (s *ArtifactStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			ir_checksum   TEXT PRIMARY KEY,
			graph_id      TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			artifact_json TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("store: init artifacts: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_artifacts_graph ON artifacts (graph_id)`)
	if err != nil {
		return fmt.Errorf("store: init artifact index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

// Put stores an artifact under its checksum. Re-storing an existing
// checksum keeps the original row: identical content, nothing to update.
func (s *ArtifactStore) Put(ctx context.Context, graphID string, artifact *contracts.CompiledArtifact) error {
	if artifact == nil || artifact.IRChecksum == "" {
		return errors.New("store: artifact has no checksum")
	}
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("store: encode artifact: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (ir_checksum, graph_id, created_at, artifact_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ir_checksum) DO NOTHING`,
		artifact.IRChecksum, graphID, s.clock().UTC().Format(time.RFC3339), string(raw))
	if err != nil {
		return fmt.Errorf("store: put artifact %s: %w", artifact.IRChecksum, err)
	}
	return nil
}

// Get returns the artifact with the given checksum.
func (s *ArtifactStore) Get(ctx context.Context, checksum string) (*contracts.CompiledArtifact, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact_json FROM artifacts WHERE ir_checksum = ?`, checksum).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get artifact %s: %w", checksum, err)
	}
	var artifact contracts.CompiledArtifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		return nil, fmt.Errorf("store: decode artifact %s: %w", checksum, err)
	}
	return &artifact, nil
}

// Latest returns the most recently stored artifact for a graph.
func (s *ArtifactStore) Latest(ctx context.Context, graphID string) (*contracts.CompiledArtifact, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_json FROM artifacts
		WHERE graph_id = ?
		ORDER BY created_at DESC, ir_checksum DESC
		LIMIT 1`, graphID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest artifact for %s: %w", graphID, err)
	}
	var artifact contracts.CompiledArtifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		return nil, fmt.Errorf("store: decode artifact: %w", err)
	}
	return &artifact, nil
}

// Checksums lists every stored checksum for a graph, newest first.
func (s *ArtifactStore) Checksums(ctx context.Context, graphID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ir_checksum FROM artifacts
		WHERE graph_id = ?
		ORDER BY created_at DESC, ir_checksum DESC`, graphID)
	if err != nil {
		return nil, fmt.Errorf("store: list checksums for %s: %w", graphID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: scan checksum: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
