// Package badgerstore backs the storage contract with BadgerDB, an
// embedded LSM key/value store. It suits deployments that want
// durability across restarts without operating a database server.
//
// Expiry is managed by this package, not by Badger's native TTL:
// each value carries an 8-byte absolute expiry header so that
// visibility cutoffs have millisecond precision and SweepExpired can
// report an exact removal count. Badger's own GC reclaims the space of
// swept records.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"

	"xdao.co/acttoken/storage"
)

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs each write. Slower, survives OS crashes.
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// Store is a Badger-backed storage.Backend.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if needed) a Badger store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required")
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// value layout: 8-byte big-endian unix-milli expiry (0 = none), then
// the record bytes.
const expiryHeader = 8

func (s *Store) Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if !key.Defined() {
		return storage.ErrInvalidKey
	}

	var expiresAt uint64
	if ttl > 0 {
		expiresAt = uint64(s.now().Add(ttl).UnixMilli())
	}
	val := make([]byte, expiryHeader+len(data))
	binary.BigEndian.PutUint64(val, expiresAt)
	copy(val[expiryHeader:], data)

	err := s.db.Update(func(txn *badger.Txn) error {
		// Idempotent write: leave a live duplicate untouched so a
		// concurrent encode cannot shorten an existing TTL.
		item, err := txn.Get(key.Bytes())
		if err == nil {
			live := true
			verr := item.Value(func(v []byte) error {
				live = s.liveValue(v)
				return nil
			})
			if verr == nil && live {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key.Bytes(), val)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another writer raced us in. Content addressing means it
		// wrote the same bytes, so the outcome is identical.
		return nil
	}
	if err != nil {
		return mapBadger(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if !key.Defined() {
		return nil, storage.ErrInvalidKey
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if !s.liveValue(v) {
				return badger.ErrKeyNotFound
			}
			out = append([]byte(nil), v[expiryHeader:]...)
			return nil
		})
	})
	if err != nil {
		return nil, mapBadger(err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key cid.Cid) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	if !key.Defined() {
		return false, storage.ErrInvalidKey
	}

	var existed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if verr := item.Value(func(v []byte) error {
			existed = s.liveValue(v)
			return nil
		}); verr != nil {
			return verr
		}
		return txn.Delete(key.Bytes())
	})
	if err != nil {
		return false, mapBadger(err)
	}
	return existed, nil
}

func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var dead bool
			if err := item.Value(func(v []byte) error {
				dead = !s.liveValue(v)
				return nil
			}); err != nil {
				return err
			}
			if dead {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapBadger(err)
	}

	var removed int
	for _, k := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(k)
		})
		if err != nil {
			return removed, mapBadger(err)
		}
		removed++
	}
	return removed, nil
}

// RunGC triggers one round of Badger's value-log garbage collection.
// Callers schedule this alongside SweepExpired; a "nothing to do"
// result is not an error.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("badgerstore: gc: %w", err)
	}
	return nil
}

func (s *Store) liveValue(v []byte) bool {
	if len(v) < expiryHeader {
		return false
	}
	expiresAt := binary.BigEndian.Uint64(v)
	return expiresAt == 0 || s.now().UnixMilli() < int64(expiresAt)
}

func mapBadger(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrClosed
	default:
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, ctx.Err())
	default:
		return nil
	}
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debug(fmt.Sprintf(format, args...)) }
