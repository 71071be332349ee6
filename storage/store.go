// Package storage defines the key/value contract the token encoder and
// decoder rely on, polymorphic over in-memory, embedded, relational,
// and networked implementations.
package storage

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
)

// Backend is a durable or semi-durable key/value store with expiry.
//
// Contract:
//   - Keys are content-addressed (derived from the stored bytes), so a
//     Set for an existing key always carries identical data. Backends
//     MUST treat such writes as idempotent no-ops and MUST NOT make a
//     partially written record visible, even when a Set is cancelled.
//   - ttl == 0 means "no expiry". A non-zero ttl makes the record
//     invisible to Get once the deadline passes, whether or not the
//     sweep has physically removed it yet.
//   - Get MUST return ErrNotFound for absent and for expired records;
//     the distinction is a backend implementation detail.
//   - Transient failures (connection loss, deadline exceeded) surface
//     as ErrUnavailable so callers can tell "retry later" from "gone".
//   - SweepExpired removes physically stale records and reports how
//     many were removed. It is driven by the owner of the backend on a
//     schedule, never by the encoder or decoder, and must be safe to
//     run concurrently with Get and Set: a concurrent Get observes
//     either the pre-sweep value or ErrNotFound, never torn data.
type Backend interface {
	Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key cid.Cid) ([]byte, error)
	Delete(ctx context.Context, key cid.Cid) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
}
