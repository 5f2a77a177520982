package store

import (
	"database/sql"
	"fmt"
)

// migration is one named, idempotent schema step. Every step must be safe to
// re-run (CREATE TABLE IF NOT EXISTS, additive columns only), matching the
// forward-only ledger pattern used for concurrent-process SQLite stores.
type migration struct {
	name string
	fn   func(*sql.DB) error
}

var migrationsList = []migration{
	{"001_baseline_schema", migrateBaselineSchema},
	{"002_edge_decay_tracking", migrateEdgeDecayTracking},
}

// runMigrations applies every pending migration inside one EXCLUSIVE
// transaction, serializing concurrent opens from the daemon and hook
// processes against each other, then records the applied names in
// schema_migrations. Re-running is a no-op: every step is idempotent and
// already-applied names are skipped.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, m := range migrationsList {
		var applied int
		row := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = ?", m.name)
		if err := row.Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}

		if err := m.fn(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}

		if _, err := db.Exec("INSERT INTO schema_migrations (name) VALUES (?)", m.name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}

func migrateBaselineSchema(db *sql.DB) error {
	_, err := db.Exec(baselineSchema)
	return err
}

// migrateEdgeDecayTracking adds the column curation's temporal-decay pass
// uses as the reference point for "time elapsed since decay was last
// applied", as opposed to the edge's total lifetime age. Existing rows
// backfill to created_at, matching the decay state they'd have if decay had
// been applied once already at creation time.
func migrateEdgeDecayTracking(db *sql.DB) error {
	if _, err := db.Exec(`ALTER TABLE graph_edges ADD COLUMN decayed_at DATETIME`); err != nil {
		return err
	}
	_, err := db.Exec(`UPDATE graph_edges SET decayed_at = created_at WHERE decayed_at IS NULL`)
	return err
}

const baselineSchema = `
CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	classification TEXT NOT NULL DEFAULT '',
	classified_at DATETIME,
	embedding BLOB,
	embedding_model TEXT NOT NULL DEFAULT '',
	content_digest TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_observations_project ON observations(project_tag);
CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id);
CREATE INDEX IF NOT EXISTS idx_observations_unclassified
	ON observations(project_tag, created_at)
	WHERE classification = '' AND deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_digest_live
	ON observations(project_tag, content_digest)
	WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at DATETIME,
	summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_tag, started_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open
	ON sessions(project_tag)
	WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS graph_nodes (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	observation_ids TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_nodes_identity
	ON graph_nodes(project_tag, type, normalized_name);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_project_type ON graph_nodes(project_tag, type);

CREATE TABLE IF NOT EXISTS graph_edges (
	id TEXT PRIMARY KEY,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	type TEXT NOT NULL,
	weight REAL NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK (source_node_id != target_node_id),
	FOREIGN KEY (source_node_id) REFERENCES graph_nodes(id) ON DELETE CASCADE,
	FOREIGN KEY (target_node_id) REFERENCES graph_nodes(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_edges_identity
	ON graph_edges(source_node_id, target_node_id, type);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_weight ON graph_edges(source_node_id, weight);

CREATE TABLE IF NOT EXISTS debug_paths (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	state TEXT NOT NULL,
	opened_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	resolved_at DATETIME,
	waypoints TEXT NOT NULL DEFAULT '[]'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_debug_paths_one_active
	ON debug_paths(project_tag)
	WHERE state = 'active';

CREATE TABLE IF NOT EXISTS context_stashes (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	summary TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stashes_session ON context_stashes(session_id);

CREATE TABLE IF NOT EXISTS threshold_history (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	session_id TEXT NOT NULL,
	final_ewma_distance REAL NOT NULL,
	final_ewma_variance REAL NOT NULL,
	observation_count INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_threshold_history_project
	ON threshold_history(project_tag, created_at DESC);

CREATE TABLE IF NOT EXISTS shift_decisions (
	id TEXT PRIMARY KEY,
	project_tag TEXT NOT NULL,
	session_id TEXT NOT NULL,
	observation_id TEXT NOT NULL DEFAULT '',
	distance REAL NOT NULL,
	threshold REAL NOT NULL,
	ewma_distance REAL NOT NULL,
	ewma_variance REAL NOT NULL,
	sensitivity_multiplier REAL NOT NULL,
	shifted INTEGER NOT NULL,
	confidence REAL NOT NULL,
	stash_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_shift_decisions_session
	ON shift_decisions(session_id, created_at);

CREATE TABLE IF NOT EXISTS staleness_flags (
	observation_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_staleness_one_open
	ON staleness_flags(observation_id)
	WHERE resolved = 0;
`
