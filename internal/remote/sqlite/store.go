// Package sqlite implements RemoteStore on an embedded SQLite database.
// Every node is one row keyed by its full path.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open creates the database directory if needed, connects and migrates.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite remote store ready", "db_path", dbPath)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, path string) (ports.Record, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, p).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return remote.Decode([]byte(raw))
}

func (s *Store) Set(ctx context.Context, path string, value ports.Record) error {
	p, err := remote.CleanPath(path)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	parent, key := remote.Split(p)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (path, parent, key, value, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		p, parent, key, string(b))
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	return nil
}

// Delete removes the node and its subtree.
func (s *Store) Delete(ctx context.Context, path string) error {
	p, err := remote.CleanPath(path)
	if err != nil {
		return err
	}
	lo, hi := subtreeBounds(p)
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE path = ? OR (path > ? AND path < ?)`,
		p, lo, hi)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, path string, q ports.Query) ([]ports.Child, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM nodes WHERE parent = ?`, p)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p, err)
	}
	defer rows.Close()

	var out []ports.Child
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		rec, err := remote.Decode([]byte(raw))
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable node", "path", p+"/"+key, "error", err)
			continue
		}
		out = append(out, ports.Child{Key: key, Value: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", p, err)
	}
	return remote.ApplyQuery(out, q), nil
}

func (s *Store) Keys(ctx context.Context, path string) ([]string, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	prefix, hi := subtreeBounds(p)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM nodes WHERE path > ? AND path < ?`, prefix, hi)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", p, err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return nil, fmt.Errorf("scan keys %s: %w", p, err)
		}
		next, _, _ := strings.Cut(full[len(prefix):], "/")
		seen[next] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys %s: %w", p, err)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// subtreeBounds returns the exclusive path range holding every descendant
// of p. Paths compare bytewise and '0' follows '/', so p+"0" is the first
// path past the subtree.
func subtreeBounds(p string) (lo, hi string) {
	return p + "/", p + "0"
}
