package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store.
//
// Designed for production deployments where snapshot and checkpoint
// history must survive process restarts and be visible to more than
// one executor.
//
// Schema:
//   - node_snapshots: latest snapshot per (topology_id, node_name)
//   - node_checkpoints: labeled groups of snapshots per topology_id
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	store, err := NewMySQLStore(dsn)
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	snapshotsTable := `
		CREATE TABLE IF NOT EXISTS node_snapshots (
			topology_id  VARCHAR(255) NOT NULL,
			node_name    VARCHAR(255) NOT NULL,
			variant      INT NOT NULL,
			join_counter INT NOT NULL,
			nstate       INT UNSIGNED NOT NULL,
			estate       INT UNSIGNED NOT NULL,
			exception    TEXT NOT NULL,
			saved_at     DATETIME(6) NOT NULL,
			PRIMARY KEY (topology_id, node_name),
			INDEX idx_snapshots_topology (topology_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, snapshotsTable); err != nil {
		return fmt.Errorf("failed to create node_snapshots table: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS node_checkpoints (
			topology_id  VARCHAR(255) NOT NULL,
			label        VARCHAR(255) NOT NULL,
			node_name    VARCHAR(255) NOT NULL,
			variant      INT NOT NULL,
			join_counter INT NOT NULL,
			nstate       INT UNSIGNED NOT NULL,
			estate       INT UNSIGNED NOT NULL,
			exception    TEXT NOT NULL,
			saved_at     DATETIME(6) NOT NULL,
			PRIMARY KEY (topology_id, label, node_name),
			INDEX idx_checkpoints_topology_label (topology_id, label)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create node_checkpoints table: %w", err)
	}

	return nil
}

func (m *MySQLStore) SaveSnapshot(ctx context.Context, snap NodeSnapshot) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	query := `
		INSERT INTO node_snapshots
			(topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			variant = VALUES(variant),
			join_counter = VALUES(join_counter),
			nstate = VALUES(nstate),
			estate = VALUES(estate),
			exception = VALUES(exception),
			saved_at = VALUES(saved_at)
	`
	_, err := m.db.ExecContext(ctx, query,
		snap.TopologyID, snap.NodeName, int(snap.Variant), snap.JoinCounter,
		uint32(snap.NState), uint32(snap.EState), snap.Exception, snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (m *MySQLStore) LoadLatestSnapshot(ctx context.Context, topologyID, nodeName string) (NodeSnapshot, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return NodeSnapshot{}, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_snapshots
		WHERE topology_id = ? AND node_name = ?
	`
	row := m.db.QueryRowContext(ctx, query, topologyID, nodeName)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return NodeSnapshot{}, ErrNotFound
	}
	if err != nil {
		return NodeSnapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

func (m *MySQLStore) ListSnapshots(ctx context.Context, topologyID string) ([]NodeSnapshot, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_snapshots
		WHERE topology_id = ?
	`
	rows, err := m.db.QueryContext(ctx, query, topologyID)
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

func (m *MySQLStore) SaveCheckpoint(ctx context.Context, topologyID, label string, snaps []NodeSnapshot) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	err := m.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM node_checkpoints WHERE topology_id = ? AND label = ?", topologyID, label); err != nil {
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
			if _, err := tx.ExecContext(ctx, query,
				topologyID, label, snap.NodeName, int(snap.Variant), snap.JoinCounter,
				uint32(snap.NState), uint32(snap.EState), snap.Exception, savedAt,
			); err != nil {
				return fmt.Errorf("failed to save checkpoint entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (m *MySQLStore) LoadCheckpoint(ctx context.Context, topologyID, label string) ([]NodeSnapshot, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT topology_id, node_name, variant, join_counter, nstate, estate, exception, saved_at
		FROM node_checkpoints
		WHERE topology_id = ? AND label = ?
	`
	rows, err := m.db.QueryContext(ctx, query, topologyID, label)
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

// Close closes the database connection pool. Safe to call multiple times.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()
	return m.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db.Stats()
}

// WithTransaction executes fn within a database transaction, committing on
// success and rolling back on error.
func (m *MySQLStore) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
