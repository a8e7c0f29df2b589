// Package cache keeps the most recent network listing of each agent server
// in a local sqlite database so the tree can be browsed offline.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"agentnav/internal/network"
)

// ErrNoSnapshot is returned by Latest when a server was never synced.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot describes one stored listing.
type Snapshot struct {
	ID      string
	Server  string
	TakenAt time.Time
	Count   int
}

// Store is a sqlite-backed snapshot store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the store at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open cache: empty path")
	}

	dsn := path
	if path != ":memory:" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			server TEXT NOT NULL,
			taken_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_server ON snapshots(server, taken_at)`,
		`CREATE TABLE IF NOT EXISTS networks (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
			position INTEGER NOT NULL,
			agent_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (snapshot_id, position)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate cache: %w", err)
		}
	}
	return nil
}

// Save stores records as the newest snapshot of server and drops that
// server's older snapshots. Record order is preserved.
func (s *Store) Save(ctx context.Context, server string, records []network.Record) (Snapshot, error) {
	snap := Snapshot{
		ID:      uuid.NewString(),
		Server:  server,
		TakenAt: s.now().UTC(),
		Count:   len(records),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM networks WHERE snapshot_id IN (SELECT id FROM snapshots WHERE server = ?)`,
		server); err != nil {
		return Snapshot{}, fmt.Errorf("prune networks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE server = ?`, server); err != nil {
		return Snapshot{}, fmt.Errorf("prune snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, server, taken_at) VALUES (?, ?, ?)`,
		snap.ID, snap.Server, snap.TakenAt.Format(time.RFC3339Nano)); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO networks (snapshot_id, position, agent_name, description, tags) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		tags, err := encodeTags(r.Tags)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode tags of %q: %w", r.AgentName, err)
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, i, r.AgentName, r.Description, tags); err != nil {
			return Snapshot{}, fmt.Errorf("insert network %q: %w", r.AgentName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit save: %w", err)
	}
	return snap, nil
}

// Latest returns the newest snapshot of server and its records.
func (s *Store) Latest(ctx context.Context, server string) (Snapshot, []network.Record, error) {
	snap := Snapshot{Server: server}
	var takenAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, taken_at FROM snapshots WHERE server = ? ORDER BY taken_at DESC LIMIT 1`,
		server).Scan(&snap.ID, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil, fmt.Errorf("%w for server %q", ErrNoSnapshot, server)
	}
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("query snapshot: %w", err)
	}
	if snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return Snapshot{}, nil, fmt.Errorf("parse snapshot time: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, description, tags FROM networks WHERE snapshot_id = ? ORDER BY position`,
		snap.ID)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("query networks: %w", err)
	}
	defer rows.Close()

	var records []network.Record
	for rows.Next() {
		var r network.Record
		var tags string
		if err := rows.Scan(&r.AgentName, &r.Description, &tags); err != nil {
			return Snapshot{}, nil, fmt.Errorf("scan network: %w", err)
		}
		if r.Tags, err = decodeTags(tags); err != nil {
			return Snapshot{}, nil, fmt.Errorf("decode tags of %q: %w", r.AgentName, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, nil, fmt.Errorf("read networks: %w", err)
	}
	snap.Count = len(records)
	return snap, records, nil
}

// Servers lists the servers that have a snapshot, by name.
func (s *Store) Servers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT server FROM snapshots ORDER BY server`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	return sonic.MarshalString(tags)
}

func decodeTags(raw string) ([]string, error) {
	var tags []string
	if err := sonic.UnmarshalString(raw, &tags); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}
