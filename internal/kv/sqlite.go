package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ProjectMoon/reed/internal/keys"
)

// schema emulates the Redis types reed uses. Each key lives in the table for
// its type; Del clears a key from all of them.
const schema = `
CREATE TABLE IF NOT EXISTS kv_strings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_hashes (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, field)
);

CREATE TABLE IF NOT EXISTS kv_zsets (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	score  REAL NOT NULL,
	PRIMARY KEY (key, member)
);

CREATE INDEX IF NOT EXISTS idx_kv_zsets_score ON kv_zsets(key, score DESC);

CREATE TABLE IF NOT EXISTS kv_sets (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
`

// SQLiteStore implements Store on an embedded SQLite database.
//
// The database runs with WAL and a busy timeout so the CLI can read while a
// watcher process writes.
//
// After Close the handle stays set, so late calls fail with ErrStore
// instead of dereferencing a nil database.
type SQLiteStore struct {
	conn   *sql.DB
	path   string
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. The caller must Close it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storeErr("create database directory", keys.Key{}, err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, storeErr("open database", keys.Key{}, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storeErr("ping database", keys.Key{}, err)
	}

	// A single connection serializes writers; batches never read inside a
	// transaction, so this cannot deadlock.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn, path: path}
	if _, err := conn.Exec(schema); err != nil {
		_ = s.Close()
		return nil, storeErr("create schema", keys.Key{}, err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ping implements Store.Ping.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return storeErr("ping", keys.Key{}, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return storeErr("close", keys.Key{}, err)
	}
	return nil
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, key keys.Key) (string, bool, error) {
	var v string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv_strings WHERE key = ?`, key.String()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return v, true, nil
}

// HGetAll implements Store.HGetAll.
func (s *SQLiteStore) HGetAll(ctx context.Context, key keys.Key) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT field, value FROM kv_hashes WHERE key = ?`, key.String())
	if err != nil {
		return nil, storeErr("hgetall", key, err)
	}
	defer func() { _ = rows.Close() }()

	m := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, storeErr("hgetall", key, err)
		}
		m[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("hgetall", key, err)
	}
	return m, nil
}

// ZRevRange implements Store.ZRevRange.
func (s *SQLiteStore) ZRevRange(ctx context.Context, key keys.Key) ([]string, error) {
	return s.members(ctx, "zrevrange", key,
		`SELECT member FROM kv_zsets WHERE key = ? ORDER BY score DESC, member DESC`,
		key.String())
}

// ZRevRangeByScore implements Store.ZRevRangeByScore.
func (s *SQLiteStore) ZRevRangeByScore(ctx context.Context, key keys.Key, min, max float64) ([]string, error) {
	return s.members(ctx, "zrevrangebyscore", key,
		`SELECT member FROM kv_zsets
		 WHERE key = ? AND score >= ? AND score <= ?
		 ORDER BY score DESC, member DESC`,
		key.String(), min, max)
}

// SMembers implements Store.SMembers.
func (s *SQLiteStore) SMembers(ctx context.Context, key keys.Key) ([]string, error) {
	return s.members(ctx, "smembers", key,
		`SELECT member FROM kv_sets WHERE key = ? ORDER BY member`,
		key.String())
}

// SDiff implements Store.SDiff.
func (s *SQLiteStore) SDiff(ctx context.Context, key, other keys.Key) ([]string, error) {
	return s.members(ctx, "sdiff", key,
		`SELECT member FROM kv_sets
		 WHERE key = ? AND member NOT IN (SELECT member FROM kv_sets WHERE key = ?)
		 ORDER BY member`,
		key.String(), other.String())
}

func (s *SQLiteStore) members(ctx context.Context, op string, key keys.Key, query string, args ...interface{}) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, storeErr(op, key, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, key, err)
	}
	return out, nil
}

// Pipeline implements Store.Pipeline. Commands run in order outside a
// transaction; the first failure stops the batch.
func (s *SQLiteStore) Pipeline(ctx context.Context, fn func(w Writer)) error {
	w := &sqlWriter{}
	fn(w)

	for _, op := range w.ops {
		if err := op(ctx, s.conn); err != nil {
			return storeErr("pipeline", keys.Key{}, err)
		}
	}
	return nil
}

// Atomic implements Store.Atomic in a single transaction.
func (s *SQLiteStore) Atomic(ctx context.Context, fn func(w Writer)) error {
	w := &sqlWriter{}
	fn(w)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", keys.Key{}, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range w.ops {
		if err := op(ctx, tx); err != nil {
			return storeErr("transaction", keys.Key{}, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", keys.Key{}, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sqlOp func(ctx context.Context, e execer) error

// sqlWriter records commands until the batch runs.
type sqlWriter struct {
	ops []sqlOp
}

func (w *sqlWriter) exec(query string, args ...interface{}) {
	w.ops = append(w.ops, func(ctx context.Context, e execer) error {
		_, err := e.ExecContext(ctx, query, args...)
		return err
	})
}

func (w *sqlWriter) Set(key keys.Key, value string) {
	w.exec(`INSERT INTO kv_strings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key.String(), value)
}

func (w *sqlWriter) Del(ks ...keys.Key) {
	for _, k := range ks {
		for _, table := range []string{"kv_strings", "kv_hashes", "kv_zsets", "kv_sets"} {
			w.exec(`DELETE FROM `+table+` WHERE key = ?`, k.String())
		}
	}
}

func (w *sqlWriter) HSet(key keys.Key, fields map[string]string) {
	for field, value := range fields {
		w.exec(`INSERT INTO kv_hashes (key, field, value) VALUES (?, ?, ?)
			ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`, key.String(), field, value)
	}
}

func (w *sqlWriter) ZAdd(key keys.Key, score float64, member string) {
	w.exec(`INSERT INTO kv_zsets (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`, key.String(), member, score)
}

func (w *sqlWriter) ZRem(key keys.Key, members ...string) {
	for _, m := range members {
		w.exec(`DELETE FROM kv_zsets WHERE key = ? AND member = ?`, key.String(), m)
	}
}

func (w *sqlWriter) SAdd(key keys.Key, members ...string) {
	for _, m := range members {
		w.exec(`INSERT OR IGNORE INTO kv_sets (key, member) VALUES (?, ?)`, key.String(), m)
	}
}

func (w *sqlWriter) SRem(key keys.Key, members ...string) {
	for _, m := range members {
		w.exec(`DELETE FROM kv_sets WHERE key = ? AND member = ?`, key.String(), m)
	}
}
