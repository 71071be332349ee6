// Package memory is the reference in-memory storage backend.
//
// Records live in a map guarded by a mutex, with per-record absolute
// expiry. Data does not survive a process restart; this backend exists
// for tests, examples, and single-process deployments where losing
// short-term callbacks on restart is acceptable.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/acttoken/storage"
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero = no expiry
}

// Store is an in-memory storage.Backend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool

	// now is swappable for expiry tests.
	now func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]entry), now: time.Now}
}

func (s *Store) Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if !key.Defined() {
		return storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	// Content addressing makes a live duplicate a no-op; an expired
	// leftover is replaced.
	if e, ok := s.entries[key.KeyString()]; ok && !s.expired(e) {
		return nil
	}

	e := entry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key.KeyString()] = e
	return nil
}

func (s *Store) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if !key.Defined() {
		return nil, storage.ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	e, ok := s.entries[key.KeyString()]
	if !ok || s.expired(e) {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (s *Store) Delete(ctx context.Context, key cid.Cid) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	if !key.Defined() {
		return false, storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrClosed
	}

	e, ok := s.entries[key.KeyString()]
	if !ok {
		return false, nil
	}
	delete(s.entries, key.KeyString())
	return !s.expired(e), nil
}

// SweepExpired removes physically expired records and returns how many
// were removed. Concurrent Gets observe either the pre-sweep value or
// not-found; the map is never exposed mid-mutation.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrClosed
	}

	var removed int
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Stats reports entry counts for observability.
type Stats struct {
	Total   int // all physical entries
	WithTTL int // entries that can expire
	Expired int // physically present but past expiry
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	st.Total = len(s.entries)
	for _, e := range s.entries {
		if !e.expiresAt.IsZero() {
			st.WithTTL++
			if s.expired(e) {
				st.Expired++
			}
		}
	}
	return st
}

// Close releases all entries. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.closed = true
	return nil
}

// SetNow replaces the store's clock. Test hook.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, ctx.Err())
	default:
		return nil
	}
}
