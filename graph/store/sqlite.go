package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arkeus/taskgraph/graph"
)

// SQLiteStore is a SQLite-backed Store.
//
// Designed for development and single-process deployments requiring
// persistence without a separate database server. Enables WAL mode;
// the store holds a single open connection, so its own reads and
// writes are serialized.
//
// Schema:
//   - node_snapshots: latest snapshot per (topology_id, node_name)
//   - node_checkpoints: labeled groups of snapshots per topology_id
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store at path. Use ":memory:"
// for an ephemeral in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	snapshotsTable := `
		CREATE TABLE IF NOT EXISTS node_snapshots (
			topology_id  TEXT NOT NULL,
			node_name    TEXT NOT NULL,
			variant      INTEGER NOT NULL,
			join_counter INTEGER NOT NULL,
			nstate       INTEGER NOT NULL,
			estate       INTEGER NOT NULL,
			exception    TEXT NOT NULL DEFAULT '',
			saved_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (topology_id, node_name)
		)
	`
	if _, err := s.db.ExecContext(ctx, snapshotsTable); err != nil {
		return fmt.Errorf("failed to create node_snapshots table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_snapshots_topology ON node_snapshots(topology_id)"); err != nil {
		return fmt.Errorf("failed to create idx_snapshots_topology: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS node_checkpoints (
			topology_id TEXT NOT NULL,
			label       TEXT NOT NULL,
			node_name   TEXT NOT NULL,
			variant     INTEGER NOT NULL,
			join_counter INTEGER NOT NULL,
			nstate      INTEGER NOT NULL,
			estate      INTEGER NOT NULL,
			exception   TEXT NOT NULL DEFAULT '',
			saved_at    TIMESTAMP NOT NULL,
			PRIMARY KEY (topology_id, label, node_name)
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create node_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_topology_label ON node_checkpoints(topology_id, label)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_topology_label: %w", err)
	}

	return nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap NodeSnapshot) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	query := `
		INSERT INTO node_snapshots
			(topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topology_id, node_name) DO UPDATE SET
			variant = excluded.variant,
			join_counter = excluded.join_counter,
			nstate = excluded.nstate,
			estate = excluded.estate,
			exception = excluded.exception,
			saved_at = excluded.saved_at
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.TopologyID, snap.NodeName, int(snap.Variant), snap.JoinCounter,
		uint32(snap.NState), uint32(snap.EState), snap.Exception,
		snap.SavedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadLatestSnapshot(ctx context.Context, topologyID, nodeName string) (NodeSnapshot, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return NodeSnapshot{}, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_snapshots
		WHERE topology_id = ? AND node_name = ?
	`
	row := s.db.QueryRowContext(ctx, query, topologyID, nodeName)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return NodeSnapshot{}, ErrNotFound
	}
	if err != nil {
		return NodeSnapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, topologyID string) ([]NodeSnapshot, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_snapshots
		WHERE topology_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, topologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NodeSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	if out == nil {
		out = []NodeSnapshot{}
	}
	return out, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, topologyID, label string, snaps []NodeSnapshot) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM node_checkpoints WHERE topology_id = ? AND label = ?", topologyID, label); err != nil {
		return fmt.Errorf("failed to clear prior checkpoint: %w", err)
	}

	query := `
		INSERT INTO node_checkpoints
			(topology_id, label, node_name, variant, join_counter, nstate, estate, exception, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, snap := range snaps {
		savedAt := snap.SavedAt
		if savedAt.IsZero() {
			savedAt = time.Now()
		}
		if _, err = tx.ExecContext(ctx, query,
			topologyID, label, snap.NodeName, int(snap.Variant), snap.JoinCounter,
			uint32(snap.NState), uint32(snap.EState), snap.Exception,
			savedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to save checkpoint entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, topologyID, label string) ([]NodeSnapshot, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_checkpoints
		WHERE topology_id = ? AND label = ?
	`
	rows, err := s.db.QueryContext(ctx, query, topologyID, label)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NodeSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows for scanSnapshot.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (NodeSnapshot, error) {
	var (
		snap     NodeSnapshot
		variant  int
		nstate   uint32
		estate   uint32
		savedAtS string
	)
	if err := row.Scan(&snap.TopologyID, &snap.NodeName, &variant, &snap.JoinCounter, &nstate, &estate, &snap.Exception, &savedAtS); err != nil {
		return NodeSnapshot{}, err
	}
	snap.Variant = graph.Variant(variant)
	snap.NState = graph.NState(nstate)
	snap.EState = graph.EState(estate)
	savedAt, err := time.Parse(time.RFC3339Nano, savedAtS)
	if err != nil {
		// MySQL DATETIME(6) reads back as text in this layout unless the
		// DSN sets parseTime=true.
		savedAt, err = time.Parse("2006-01-02 15:04:05.999999999", savedAtS)
	}
	if err != nil {
		return NodeSnapshot{}, fmt.Errorf("failed to parse saved_at: %w", err)
	}
	snap.SavedAt = savedAt
	return snap, nil
}

// Close closes the database connection. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
