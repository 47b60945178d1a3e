// Package cache persists discovered pool addresses so repeated routing across
// processes does not re-probe the factory for every fee tier.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const (
	DefaultTTL       = 24 * time.Hour
	lockRetryDelay   = 25 * time.Millisecond
	lockWaitDeadline = 5 * time.Second
)

// PoolKey identifies one factory lookup. Token order does not matter; getPool
// is symmetric in its token arguments.
type PoolKey struct {
	ChainID int64
	Factory common.Address
	TokenA  common.Address
	TokenB  common.Address
	Fee     uint32
}

func (k PoolKey) normalized() PoolKey {
	if strings.ToLower(k.TokenA.Hex()) > strings.ToLower(k.TokenB.Hex()) {
		k.TokenA, k.TokenB = k.TokenB, k.TokenA
	}
	return k
}

// Entry is a cached pool address with its age.
type Entry struct {
	Pool  common.Address
	Age   time.Duration
	Stale bool
}

type Store struct {
	db *sql.DB
	// mu serializes writers inside the process; lock serializes across processes.
	mu   sync.Mutex
	lock *flock.Flock
	ttl  time.Duration
	now  func() time.Time
}

// Open opens (creating when missing) the sqlite pool cache at path. Writers
// serialize through the file lock at lockPath. Non-positive ttl means DefaultTTL.
func Open(path, lockPath string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// One connection keeps the per-connection pragmas below in effect.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, lock: flock.New(lockPath), ttl: ttl, now: time.Now}

	err = store.withLock(func() error {
		queries := []string{
			"PRAGMA busy_timeout=5000;",
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			`CREATE TABLE IF NOT EXISTS pools (
				chain_id INTEGER NOT NULL,
				factory TEXT NOT NULL,
				token_a TEXT NOT NULL,
				token_b TEXT NOT NULL,
				fee INTEGER NOT NULL,
				pool TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY (chain_id, factory, token_a, token_b, fee)
			);`,
		}
		for _, query := range queries {
			if _, err := db.Exec(query); err != nil {
				return fmt.Errorf("init cache schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TTL is how long an entry stays fresh.
func (s *Store) TTL() time.Duration { return s.ttl }

// Prune deletes entries older than the TTL.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := s.now().UTC().Add(-s.ttl).Unix()
	if _, err := s.db.Exec("DELETE FROM pools WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Get returns the cached entry for key, including stale ones.
func (s *Store) Get(key PoolKey) (Entry, bool, error) {
	key = key.normalized()
	var poolHex string
	var createdUnix int64
	err := s.db.QueryRow(
		"SELECT pool, created_at FROM pools WHERE chain_id = ? AND factory = ? AND token_a = ? AND token_b = ? AND fee = ?",
		key.ChainID, lowerHex(key.Factory), lowerHex(key.TokenA), lowerHex(key.TokenB), key.Fee,
	).Scan(&poolHex, &createdUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache read: %w", err)
	}
	age := s.now().Sub(time.Unix(createdUnix, 0))
	if age < 0 {
		age = 0
	}
	return Entry{Pool: common.HexToAddress(poolHex), Age: age, Stale: age > s.ttl}, true, nil
}

// LookupPool returns a fresh cached pool address for key.
func (s *Store) LookupPool(key PoolKey) (common.Address, bool) {
	if s == nil || s.db == nil {
		return common.Address{}, false
	}
	entry, ok, err := s.Get(key)
	if err != nil || !ok || entry.Stale {
		return common.Address{}, false
	}
	return entry.Pool, true
}

// StorePool records a discovered pool. Zero addresses are never cached: a
// missing pool may be created at any time.
func (s *Store) StorePool(key PoolKey, pool common.Address) error {
	if s == nil || s.db == nil || pool == (common.Address{}) {
		return nil
	}
	key = key.normalized()
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO pools (chain_id, factory, token_a, token_b, fee, pool, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chain_id, factory, token_a, token_b, fee) DO UPDATE SET
				pool=excluded.pool,
				created_at=excluded.created_at
		`, key.ChainID, lowerHex(key.Factory), lowerHex(key.TokenA), lowerHex(key.TokenB), key.Fee, lowerHex(pool), s.now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}

// Len counts stored entries, fresh or stale.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pools").Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), lockWaitDeadline)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
