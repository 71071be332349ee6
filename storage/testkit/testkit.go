// Package testkit runs the storage.Backend conformance suite against a
// backend implementation. Every backend package runs this in its own
// tests so the Set/Get/Delete/sweep contract stays uniform across
// tiers.
package testkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/acttoken/keyutil"
	"xdao.co/acttoken/storage"
)

// NewBackend constructs a fresh, empty backend for a test. The returned
// backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) storage.Backend

// Options tunes the suite for a backend's clock granularity.
type Options struct {
	// TTL is the lifetime used by the expiry tests. Zero skips them
	// (for backends whose tests cannot afford to wait).
	TTL time.Duration
	// Wait is how long the suite sleeps before asserting expiry. It
	// must exceed TTL by the backend's expiry granularity.
	Wait time.Duration
}

func mustKey(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	key, err := keyutil.Derive(data, keyutil.DefaultSize)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	return key
}

// RunConformance exercises the storage.Backend contract.
func RunConformance(t *testing.T, newBackend NewBackend, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		want := []byte("canonical record bytes")
		key := mustKey(t, want)

		if err := b.Set(ctx, key, want, 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := b.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch: got %q want %q", got, want)
		}
	})

	t.Run("SetIdempotent", func(t *testing.T) {
		b := newBackend(t)
		data := []byte("same bytes")
		key := mustKey(t, data)

		if err := b.Set(ctx, key, data, 0); err != nil {
			t.Fatalf("Set(1) failed: %v", err)
		}
		if err := b.Set(ctx, key, data, 0); err != nil {
			t.Fatalf("Set(2) failed: %v", err)
		}
		got, err := b.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get after duplicate Set failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("Get bytes mismatch after duplicate Set")
		}
	})

	t.Run("GetMissingNotFound", func(t *testing.T) {
		b := newBackend(t)
		key := mustKey(t, []byte("never stored"))

		_, err := b.Get(ctx, key)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("DeleteReportsExistence", func(t *testing.T) {
		b := newBackend(t)
		data := []byte("to be deleted")
		key := mustKey(t, data)

		if ok, err := b.Delete(ctx, key); err != nil || ok {
			t.Fatalf("Delete missing: got (%v, %v) want (false, nil)", ok, err)
		}
		if err := b.Set(ctx, key, data, 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if ok, err := b.Delete(ctx, key); err != nil || !ok {
			t.Fatalf("Delete present: got (%v, %v) want (true, nil)", ok, err)
		}
		if _, err := b.Get(ctx, key); !storage.IsNotFound(err) {
			t.Fatalf("Get after Delete: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("UndefinedKeyRejected", func(t *testing.T) {
		b := newBackend(t)
		var undef cid.Cid

		if err := b.Set(ctx, undef, []byte("x"), 0); err == nil {
			t.Fatalf("Set should fail for undefined key")
		}
		if _, err := b.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined key")
		}
	})

	t.Run("CancelledContextUnavailable", func(t *testing.T) {
		b := newBackend(t)
		data := []byte("ctx test")
		key := mustKey(t, data)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if err := b.Set(cancelled, key, data, 0); !storage.IsUnavailable(err) {
			t.Fatalf("Set with cancelled ctx: got err=%v want ErrUnavailable", err)
		}
		if _, err := b.Get(cancelled, key); !storage.IsUnavailable(err) {
			t.Fatalf("Get with cancelled ctx: got err=%v want ErrUnavailable", err)
		}
	})

	if opts.TTL <= 0 {
		return
	}

	t.Run("ExpiryHidesRecord", func(t *testing.T) {
		b := newBackend(t)
		data := []byte("short-lived")
		key := mustKey(t, data)

		if err := b.Set(ctx, key, data, opts.TTL); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := b.Get(ctx, key); err != nil {
			t.Fatalf("Get before expiry failed: %v", err)
		}

		time.Sleep(opts.Wait)

		if _, err := b.Get(ctx, key); !storage.IsNotFound(err) {
			t.Fatalf("Get after expiry: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("SweepRemovesOnlyExpired", func(t *testing.T) {
		b := newBackend(t)
		stale := []byte("stale record")
		live := []byte("live record")
		staleKey := mustKey(t, stale)
		liveKey := mustKey(t, live)

		if err := b.Set(ctx, staleKey, stale, opts.TTL); err != nil {
			t.Fatalf("Set stale failed: %v", err)
		}
		if err := b.Set(ctx, liveKey, live, 0); err != nil {
			t.Fatalf("Set live failed: %v", err)
		}

		time.Sleep(opts.Wait)

		n, err := b.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("SweepExpired failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("SweepExpired removed %d records, want 1", n)
		}
		if _, err := b.Get(ctx, liveKey); err != nil {
			t.Fatalf("Get live after sweep failed: %v", err)
		}
		if _, err := b.Get(ctx, staleKey); !storage.IsNotFound(err) {
			t.Fatalf("Get stale after sweep: got err=%v want ErrNotFound", err)
		}
	})
}
