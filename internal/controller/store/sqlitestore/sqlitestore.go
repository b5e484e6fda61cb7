// Package sqlitestore is the Controller's production Store, backed by
// modernc.org/sqlite (pure Go, no cgo), grounded on the teacher's
// internal/adapter/sqlite/store.go — same WAL/busy-timeout pragmas. Rows
// are written with plain INSERT and UPDATE statements.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/controller/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open controller db: %w", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS nodes (
	node_id        TEXT PRIMARY KEY,
	hostname       TEXT NOT NULL,
	host_ip        TEXT NOT NULL UNIQUE,
	subnet         TEXT NOT NULL,
	status         TEXT NOT NULL,
	registered_at  TEXT NOT NULL,
	last_heartbeat TEXT NOT NULL,
	cpu_cores      INTEGER NOT NULL DEFAULT 0,
	ram_mb         INTEGER NOT NULL DEFAULT 0
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create nodes table: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS allocator (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	next_index INTEGER NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create allocator table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO allocator (id, next_index) VALUES (1, 1)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed allocator row: %w", err)
	}

	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetByHostIP(ctx context.Context, hostIP string) (store.NodeRow, error) {
	return s.queryRow(ctx, `SELECT node_id, hostname, host_ip, subnet, status, registered_at, last_heartbeat, cpu_cores, ram_mb
		FROM nodes WHERE host_ip = ?`, hostIP)
}

func (s *Store) GetByID(ctx context.Context, nodeID string) (store.NodeRow, error) {
	return s.queryRow(ctx, `SELECT node_id, hostname, host_ip, subnet, status, registered_at, last_heartbeat, cpu_cores, ram_mb
		FROM nodes WHERE node_id = ?`, nodeID)
}

func (s *Store) queryRow(ctx context.Context, query string, arg string) (store.NodeRow, error) {
	var row store.NodeRow
	var registeredAt, lastHeartbeat string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&row.NodeID, &row.Hostname, &row.HostIP, &row.Subnet, &row.Status,
		&registeredAt, &lastHeartbeat, &row.CPUCores, &row.RAMMB,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.NodeRow{}, store.ErrNotFound
	}
	if err != nil {
		return store.NodeRow{}, fmt.Errorf("query node: %w", err)
	}
	row.RegisteredAt, err = time.Parse(time.RFC3339Nano, registeredAt)
	if err != nil {
		return store.NodeRow{}, fmt.Errorf("parse registered_at: %w", err)
	}
	row.LastHeartbeat, err = time.Parse(time.RFC3339Nano, lastHeartbeat)
	if err != nil {
		return store.NodeRow{}, fmt.Errorf("parse last_heartbeat: %w", err)
	}
	return row, nil
}

func (s *Store) Insert(ctx context.Context, row store.NodeRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (node_id, hostname, host_ip, subnet, status, registered_at, last_heartbeat, cpu_cores, ram_mb)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.NodeID, row.Hostname, row.HostIP, row.Subnet, row.Status,
		row.RegisteredAt.UTC().Format(time.RFC3339Nano), row.LastHeartbeat.UTC().Format(time.RFC3339Nano),
		row.CPUCores, row.RAMMB,
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, row store.NodeRow) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET hostname = ?, host_ip = ?, subnet = ?, status = ?,
			registered_at = ?, last_heartbeat = ?, cpu_cores = ?, ram_mb = ?
		WHERE node_id = ?`,
		row.Hostname, row.HostIP, row.Subnet, row.Status,
		row.RegisteredAt.UTC().Format(time.RFC3339Nano), row.LastHeartbeat.UTC().Format(time.RFC3339Nano),
		row.CPUCores, row.RAMMB, row.NodeID,
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update node rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, nodeID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete node rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.NodeRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id, hostname, host_ip, subnet, status, registered_at, last_heartbeat, cpu_cores, ram_mb
		FROM nodes ORDER BY registered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []store.NodeRow
	for rows.Next() {
		var row store.NodeRow
		var registeredAt, lastHeartbeat string
		if err := rows.Scan(&row.NodeID, &row.Hostname, &row.HostIP, &row.Subnet, &row.Status,
			&registeredAt, &lastHeartbeat, &row.CPUCores, &row.RAMMB); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		if row.RegisteredAt, err = time.Parse(time.RFC3339Nano, registeredAt); err != nil {
			return nil, fmt.Errorf("parse registered_at: %w", err)
		}
		if row.LastHeartbeat, err = time.Parse(time.RFC3339Nano, lastHeartbeat); err != nil {
			return nil, fmt.Errorf("parse last_heartbeat: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node rows: %w", err)
	}
	// RFC3339Nano drops trailing zeros, so the text ORDER BY above can
	// misorder rows registered within the same second; sort on the parsed time.
	sort.SliceStable(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *Store) AllocatorNextIndex(ctx context.Context) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `SELECT next_index FROM allocator WHERE id = 1`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("read allocator counter: %w", err)
	}
	return next, nil
}

func (s *Store) SetAllocatorNextIndex(ctx context.Context, next int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE allocator SET next_index = ? WHERE id = 1`, next)
	if err != nil {
		return fmt.Errorf("write allocator counter: %w", err)
	}
	return nil
}
