package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/flowforge-io/core/pkg/contracts"
)

// PostgresRegistry persists the capability catalog in Postgres. Entries
// are stored as JSONB documents keyed by id; the compilers read through
// the same Registry interface as the in-memory implementation.
type PostgresRegistry struct {
	db      *sql.DB
	version string
}

// NewPostgresRegistry wraps an open database handle.
func NewPostgresRegistry(db *sql.DB, catalogVersion string) *PostgresRegistry {
	return &PostgresRegistry{db: db, version: catalogVersion}
}

// OpenPostgresRegistry connects to Postgres, pings it, and creates the
// registry tables.
func OpenPostgresRegistry(ctx context.Context, dsn, catalogVersion string) (*PostgresRegistry, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: ping postgres: %w", err)
	}
	r := NewPostgresRegistry(db, catalogVersion)
	if err := r.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

const pgRegistrySchema = `
CREATE TABLE IF NOT EXISTS capability_connectors (
	id TEXT PRIMARY KEY,
	entry_json JSONB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS capability_agents (
	id TEXT PRIMARY KEY,
	entry_json JSONB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS capability_nodes (
	id TEXT PRIMARY KEY,
	entry_json JSONB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS capability_versions (
	capability TEXT PRIMARY KEY,
	version TEXT NOT NULL
);
`

// Init creates the registry tables if they do not exist.
func (r *PostgresRegistry) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, pgRegistrySchema)
	if err != nil {
		return fmt.Errorf("registry: init schema: %w", err)
	}
	return nil
}

// RegisterConnector upserts a connector entry.
func (r *PostgresRegistry) RegisterConnector(ctx context.Context, c contracts.ConnectorEntry) error {
	return r.upsert(ctx, "capability_connectors", c.ID, c)
}

// RegisterAgent upserts an agent entry.
func (r *PostgresRegistry) RegisterAgent(ctx context.Context, a contracts.AgentEntry) error {
	return r.upsert(ctx, "capability_agents", a.ID, a)
}

// RegisterExecutionNode upserts an execution node.
func (r *PostgresRegistry) RegisterExecutionNode(ctx context.Context, n contracts.ExecutionNode) error {
	return r.upsert(ctx, "capability_nodes", n.ID, n)
}

func (r *PostgresRegistry) upsert(ctx context.Context, table, id string, entry any) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("registry: marshal entry: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, entry_json, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET entry_json = $2, updated_at = $3
	`, table)
	if _, err := r.db.ExecContext(ctx, query, id, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("registry: upsert %s: %w", table, err)
	}
	return nil
}

func (r *PostgresRegistry) Connector(id string) (*contracts.ConnectorEntry, error) {
	var c contracts.ConnectorEntry
	if err := r.get("capability_connectors", id, &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectorNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRegistry) Agent(id string) (*contracts.AgentEntry, error) {
	var a contracts.AgentEntry
	if err := r.get("capability_agents", id, &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("agent not found")
		}
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRegistry) ExecutionNode(id string) (*contracts.ExecutionNode, error) {
	var n contracts.ExecutionNode
	if err := r.get("capability_nodes", id, &n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PostgresRegistry) get(table, id string, out any) error {
	query := fmt.Sprintf(`SELECT entry_json FROM %s WHERE id = $1`, table)
	var raw []byte
	if err := r.db.QueryRow(query, id).Scan(&raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("registry: unmarshal entry %q: %w", id, err)
	}
	return nil
}

// SetCapabilityVersion records the installed version of a named capability.
func (r *PostgresRegistry) SetCapabilityVersion(ctx context.Context, capability, version string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO capability_versions (capability, version)
		VALUES ($1, $2)
		ON CONFLICT (capability) DO UPDATE SET version = $2
	`, capability, version)
	if err != nil {
		return fmt.Errorf("registry: set capability version %s: %w", capability, err)
	}
	return nil
}

// Snapshot satisfies Registry. A load failure yields the partial context
// and a log entry; callers that must see the error use SnapshotContext.
func (r *PostgresRegistry) Snapshot() contracts.LiveContext {
	lc, err := r.SnapshotContext(context.Background())
	if err != nil {
		slog.Warn("registry snapshot incomplete", "error", err)
	}
	return lc
}

// SnapshotContext loads the full live context: connectors, agents, and
// installed capability versions.
func (r *PostgresRegistry) SnapshotContext(ctx context.Context) (contracts.LiveContext, error) {
	lc := contracts.LiveContext{CatalogVersion: r.version}

	if err := loadEntries(ctx, r.db, "capability_connectors", &lc.Connectors); err != nil {
		return lc, err
	}
	if err := loadEntries(ctx, r.db, "capability_agents", &lc.Agents); err != nil {
		return lc, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT capability, version FROM capability_versions ORDER BY capability`)
	if err != nil {
		return lc, fmt.Errorf("registry: load capability versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lc.Capabilities = make(map[string]string)
	for rows.Next() {
		var capability, version string
		if err := rows.Scan(&capability, &version); err != nil {
			return lc, fmt.Errorf("registry: scan capability version: %w", err)
		}
		lc.Capabilities[capability] = version
	}
	return lc, rows.Err()
}

func loadEntries[T any](ctx context.Context, db *sql.DB, table string, out *[]T) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT entry_json FROM %s ORDER BY id`, table))
	if err != nil {
		return fmt.Errorf("registry: load %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("registry: scan %s: %w", table, err)
		}
		var entry T
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("registry: unmarshal %s entry: %w", table, err)
		}
		*out = append(*out, entry)
	}
	return rows.Err()
}
