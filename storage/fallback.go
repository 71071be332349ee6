package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ipfs/go-cid"
)

// Fallback provides deterministic, ordered fallback across multiple
// backends: writes go to the first backend, reads try each in order.
//
// The slice order is the retrieval order; callers MUST supply a fixed
// order. Typical use is a fast cache in front of a durable store for
// the same tier. Because keys are content-addressed, a record found in
// any backend is the record.
type Fallback struct {
	Backends []Backend
}

var _ Backend = (*Fallback)(nil)

func (f Fallback) Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error {
	if len(f.Backends) == 0 {
		return errors.New("storage: Fallback has no backends")
	}
	return f.Backends[0].Set(ctx, key, data, ttl)
}

func (f Fallback) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	var firstTransient error
	for _, b := range f.Backends {
		data, err := b.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if IsNotFound(err) {
			continue
		}
		// Remember the transient failure but keep trying the rest;
		// a later backend may still hold the record.
		if firstTransient == nil {
			firstTransient = err
		}
	}
	if firstTransient != nil {
		return nil, firstTransient
	}
	return nil, ErrNotFound
}

// Delete removes the key from every backend. It reports true if any
// backend held the record.
func (f Fallback) Delete(ctx context.Context, key cid.Cid) (bool, error) {
	var existed bool
	var firstErr error
	for _, b := range f.Backends {
		ok, err := b.Delete(ctx, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		existed = existed || ok
	}
	return existed, firstErr
}

func (f Fallback) SweepExpired(ctx context.Context) (int, error) {
	var total int
	var firstErr error
	for _, b := range f.Backends {
		n, err := b.SweepExpired(ctx)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}
