package token

import (
	"context"
	"fmt"
	"time"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/codec"
	"xdao.co/acttoken/keyutil"
	"xdao.co/acttoken/storage"
)

// Encoder turns action records into wire tokens, choosing the cheapest
// strategy that respects the transport ceiling.
//
// Precedence is fixed: inline-raw, inline-compressed, short-term
// reference, persistent reference. The first two perform no storage
// I/O. The reference strategies write the canonical bytes under a
// content-addressed key, so concurrent or repeated encodes of the same
// record share one stored copy.
type Encoder struct {
	cfg        Config
	shortTerm  storage.Backend
	persistent storage.Backend
}

// NewEncoder constructs an Encoder over the two storage tiers. Zero
// numeric Config fields take their documented defaults. The key
// representation must leave room for the tag inside the transport
// limit; a Config that cannot satisfy that is rejected here rather
// than failing on every encode.
func NewEncoder(shortTerm, persistent storage.Backend, cfg Config) (*Encoder, error) {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if shortTerm == nil || persistent == nil {
		return nil, fmt.Errorf("token: both storage tiers are required")
	}
	if tagOverhead+keyutil.EncodedSize(cfg.KeySize) > cfg.TransportLimit {
		return nil, fmt.Errorf("token: key size %d cannot fit transport limit %d",
			cfg.KeySize, cfg.TransportLimit)
	}
	return &Encoder{cfg: cfg, shortTerm: shortTerm, persistent: persistent}, nil
}

// Config returns the encoder's effective configuration.
func (e *Encoder) Config() Config { return e.cfg }

// EstimateSize returns a cheap upper bound on the canonical size of a,
// usable to predict the storage tier before paying for an encode.
func (e *Encoder) EstimateSize(a action.Action) int {
	return codec.EstimateSize(a)
}

// Encode serializes a and returns its wire token.
//
// Serialization failures and storage failures propagate unchanged; a
// *Error with KindRecordTooLarge is returned only when even a
// reference token cannot fit, which indicates a misconfigured key
// length rather than an oversized record.
func (e *Encoder) Encode(ctx context.Context, a action.Action) ([]byte, error) {
	raw, err := codec.Canonicalize(a)
	if err != nil {
		return nil, err
	}

	if tok, ok := e.tryInline(raw); ok {
		return tok, nil
	}
	return e.encodeReference(ctx, a, raw)
}

// EncodeForced bypasses strategy selection and uses the given tag.
// Inline tags still enforce the transport ceiling. Intended for tests
// and for callers that must pin a record to a tier regardless of size.
func (e *Encoder) EncodeForced(ctx context.Context, a action.Action, tag Tag) ([]byte, error) {
	raw, err := codec.Canonicalize(a)
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagInlineRaw:
		if tagOverhead+len(raw) > e.cfg.TransportLimit {
			return nil, newError(KindRecordTooLarge,
				fmt.Sprintf("record of %d bytes cannot travel inline", len(raw)))
		}
		return pack(TagInlineRaw, raw), nil

	case TagInlineCompressed:
		compressed, err := codec.Compress(raw)
		if err != nil {
			return nil, err
		}
		if tagOverhead+len(compressed) > e.cfg.TransportLimit || len(compressed) >= len(raw) {
			return nil, newError(KindRecordTooLarge,
				fmt.Sprintf("record of %d bytes cannot travel compressed", len(raw)))
		}
		return pack(TagInlineCompressed, compressed), nil

	case TagShortTermRef:
		return e.storeReference(ctx, TagShortTermRef, e.shortTerm, raw, e.ttlFor(a))

	case TagPersistentRef:
		return e.storeReference(ctx, TagPersistentRef, e.persistent, raw, 0)

	default:
		return nil, newError(KindUnsupportedTag, fmt.Sprintf("cannot force strategy %s", tag))
	}
}

// tryInline attempts the two storage-free strategies in precedence
// order. Compression wins only when strictly smaller than raw AND
// inside the budget; a record that deflates larger falls through to the
// storage tiers.
func (e *Encoder) tryInline(raw []byte) ([]byte, bool) {
	if len(raw) <= e.cfg.inlineBudget() {
		return pack(TagInlineRaw, raw), true
	}
	if !e.cfg.CompressionEnabled {
		return nil, false
	}
	compressed, err := codec.Compress(raw)
	if err != nil {
		// Compression is an optimization; selection falls through.
		return nil, false
	}
	if len(compressed) <= e.cfg.inlineBudget() && len(compressed) < len(raw) {
		return pack(TagInlineCompressed, compressed), true
	}
	return nil, false
}

func (e *Encoder) encodeReference(ctx context.Context, a action.Action, raw []byte) ([]byte, error) {
	if len(raw) <= e.cfg.PersistentThreshold {
		return e.storeReference(ctx, TagShortTermRef, e.shortTerm, raw, e.ttlFor(a))
	}
	return e.storeReference(ctx, TagPersistentRef, e.persistent, raw, 0)
}

func (e *Encoder) storeReference(ctx context.Context, tag Tag, backend storage.Backend, raw []byte, ttl time.Duration) ([]byte, error) {
	key, err := keyutil.Derive(raw, e.cfg.KeySize)
	if err != nil {
		return nil, err
	}
	payload := key.Bytes()
	if tagOverhead+len(payload) > e.cfg.TransportLimit {
		return nil, newError(KindRecordTooLarge,
			fmt.Sprintf("reference token of %d bytes exceeds transport limit %d",
				tagOverhead+len(payload), e.cfg.TransportLimit))
	}
	if err := backend.Set(ctx, key, raw, ttl); err != nil {
		return nil, err
	}
	return pack(tag, payload), nil
}

func (e *Encoder) ttlFor(a action.Action) time.Duration {
	if a.TTL != 0 {
		return a.TTL
	}
	return e.cfg.DefaultTTL
}
