// Package sqlitestore backs the storage contract with SQLite via
// zombiezen.com/go/sqlite. This is the relational persistent tier:
// records land in a single table with an absolute expiry column, and
// the sweep is one DELETE statement.
//
// Connections come from a fixed-size pool with WAL journaling, so
// concurrent decodes (reads) never block an encode (write) and a sweep
// never exposes a torn record: readers either see the pre-sweep row or
// no row.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"xdao.co/acttoken/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key           TEXT PRIMARY KEY,
	data          BLOB NOT NULL,
	expires_at_ms INTEGER
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS records_expiry ON records (expires_at_ms)
	WHERE expires_at_ms IS NOT NULL;
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. Required unless InMemory is set.
	Path string

	// InMemory uses a process-private shared-cache memory database.
	// Useful for tests.
	InMemory bool

	// PoolSize is the connection pool size. Default 4.
	PoolSize int
}

// Store is a SQLite-backed storage.Backend.
type Store struct {
	pool *sqlitex.Pool
	now  func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if needed) the database and its schema.
func Open(cfg Config) (*Store, error) {
	uri := cfg.Path
	if cfg.InMemory {
		uri = "file::memory:?mode=memory&cache=shared"
	} else if uri == "" {
		return nil, errors.New("sqlitestore: path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000;", nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.init(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlitestore: init: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitestore: schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.pool.Close() }

func (s *Store) Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error {
	if !key.Defined() {
		return storage.ErrInvalidKey
	}
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	// A live row for this key already holds identical bytes (the key
	// is derived from them), so only expired leftovers are replaced.
	err = sqlitex.Execute(conn, `
		INSERT INTO records (key, data, expires_at_ms) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE
			SET data = excluded.data, expires_at_ms = excluded.expires_at_ms
			WHERE records.expires_at_ms IS NOT NULL AND records.expires_at_ms <= ?;`,
		&sqlitex.ExecOptions{
			Args: []any{key.String(), data, expiresAt, s.now().UnixMilli()},
		})
	if err != nil {
		return mapSQLite(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	if !key.Defined() {
		return nil, storage.ErrInvalidKey
	}
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []byte
	var found, live bool
	err = sqlitex.Execute(conn,
		`SELECT data, expires_at_ms FROM records WHERE key = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{key.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				if stmt.ColumnType(1) == sqlite.TypeNull ||
					stmt.ColumnInt64(1) > s.now().UnixMilli() {
					live = true
					out = make([]byte, stmt.ColumnLen(0))
					stmt.ColumnBytes(0, out)
				}
				return nil
			},
		})
	if err != nil {
		return nil, mapSQLite(err)
	}
	if !found || !live {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key cid.Cid) (bool, error) {
	if !key.Defined() {
		return false, storage.ErrInvalidKey
	}
	conn, err := s.take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	var existed bool
	err = sqlitex.Execute(conn,
		`DELETE FROM records WHERE key = ? RETURNING expires_at_ms;`,
		&sqlitex.ExecOptions{
			Args: []any{key.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existed = stmt.ColumnType(0) == sqlite.TypeNull ||
					stmt.ColumnInt64(0) > s.now().UnixMilli()
				return nil
			},
		})
	if err != nil {
		return false, mapSQLite(err)
	}
	return existed, nil
}

func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM records WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?;`,
		&sqlitex.ExecOptions{Args: []any{s.now().UnixMilli()}})
	if err != nil {
		return 0, mapSQLite(err)
	}
	return conn.Changes(), nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return conn, nil
}

func mapSQLite(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}
