// Package kv provides the key-value store the content index is materialized
// into.
//
// The Store interface exposes the primitives the index needs: strings,
// hashes, sorted sets and sets, plus two batch forms. Two backends implement
// it:
//
//   - RedisStore: a networked Redis server (the default)
//   - SQLiteStore: an embedded SQLite file emulating the same data types
//
// A Shared wraps one physical connection so several owners (the posts index
// and the pages index) can use it; it is closed when the last owner releases.
package kv

import (
	"context"
	"fmt"

	"github.com/ProjectMoon/reed/internal/config"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/keys"
)

// Writer queues write commands inside a batch. Commands run in the order
// they are queued. Writers are only valid inside the Pipeline or Atomic
// callback that produced them.
type Writer interface {
	Set(key keys.Key, value string)
	Del(ks ...keys.Key)
	HSet(key keys.Key, fields map[string]string)
	ZAdd(key keys.Key, score float64, member string)
	ZRem(key keys.Key, members ...string)
	SAdd(key keys.Key, members ...string)
	SRem(key keys.Key, members ...string)
}

// Store is a key-value store with Redis-like data types.
type Store interface {
	// Get returns the string at key. The bool is false when key is absent.
	Get(ctx context.Context, key keys.Key) (string, bool, error)

	// HGetAll returns all fields of the hash at key; empty when absent.
	HGetAll(ctx context.Context, key keys.Key) (map[string]string, error)

	// ZRevRange returns all sorted set members, highest score first.
	// Equal scores are ordered by member, reverse lexicographically.
	ZRevRange(ctx context.Context, key keys.Key) ([]string, error)

	// ZRevRangeByScore returns members with min <= score <= max, highest first.
	ZRevRangeByScore(ctx context.Context, key keys.Key, min, max float64) ([]string, error)

	// SMembers returns the members of the set at key.
	SMembers(ctx context.Context, key keys.Key) ([]string, error)

	// SDiff returns members of key that are not members of other.
	SDiff(ctx context.Context, key, other keys.Key) ([]string, error)

	// Pipeline runs the queued commands in order in one round trip.
	// It is not atomic: a failing command leaves earlier ones applied.
	Pipeline(ctx context.Context, fn func(w Writer)) error

	// Atomic runs the queued commands as a single all-or-nothing unit.
	Atomic(ctx context.Context, fn func(w Writer)) error

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Open connects to the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid store config: %w", errs.ErrPrecondition, err)
	}

	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return OpenRedis(ctx, cfg)
	}
}

func storeErr(op string, key keys.Key, err error) error {
	if key.IsZero() {
		return fmt.Errorf("%w: %s: %w", errs.ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", errs.ErrStore, op, key, err)
}
