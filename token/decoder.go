package token

import (
	"context"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/codec"
	"xdao.co/acttoken/keyutil"
	"xdao.co/acttoken/storage"
)

// Decoder inverts wire tokens back into action records.
//
// Decode is single-step per tag: four terminal paths, no intermediate
// states. Transient storage failures propagate as
// storage.ErrUnavailable so callers can retry; every other failure is a
// *Error and is never retried by this package.
type Decoder struct {
	shortTerm  storage.Backend
	persistent storage.Backend
}

// NewDecoder constructs a Decoder over the same two tiers the encoder
// wrote to.
func NewDecoder(shortTerm, persistent storage.Backend) *Decoder {
	return &Decoder{shortTerm: shortTerm, persistent: persistent}
}

// Decode parses a token and recovers its record.
func (d *Decoder) Decode(ctx context.Context, tok []byte) (action.Action, error) {
	if len(tok) < tagOverhead+1 {
		return action.Action{}, newError(KindMalformed, "token too short")
	}
	tag, payload := Tag(tok[0]), tok[tagOverhead:]

	switch tag {
	case TagInlineRaw:
		return d.decodeInline(payload)

	case TagInlineCompressed:
		raw, err := codec.Decompress(payload)
		if err != nil {
			return action.Action{}, wrapError(KindMalformed, "inline-compressed payload", err)
		}
		return d.decodeInline(raw)

	case TagShortTermRef:
		// A short-term miss means the record aged out: the backend is
		// required to report expired records as not-found, so absent
		// and stale are indistinguishable here and both surface as
		// Expired.
		return d.resolve(ctx, d.shortTerm, payload, KindExpired, "short-term record expired")

	case TagPersistentRef:
		return d.resolve(ctx, d.persistent, payload, KindNotFound, "persistent record not found")

	default:
		return action.Action{}, newError(KindUnsupportedTag, "unknown tag "+tag.String())
	}
}

// Cleanup releases the storage behind a short-term reference token
// after it has been handled. Inline and persistent tokens are left
// alone. It reports whether a stored record was actually removed.
func (d *Decoder) Cleanup(ctx context.Context, tok []byte) (bool, error) {
	if len(tok) < tagOverhead+1 || Tag(tok[0]) != TagShortTermRef {
		return false, nil
	}
	key, err := keyutil.Parse(tok[tagOverhead:])
	if err != nil {
		return false, wrapError(KindMalformed, "reference payload", err)
	}
	return d.shortTerm.Delete(ctx, key)
}

func (d *Decoder) decodeInline(raw []byte) (action.Action, error) {
	a, err := codec.Decode(raw)
	if err != nil {
		return action.Action{}, wrapError(KindMalformed, "inline payload", err)
	}
	return a, nil
}

func (d *Decoder) resolve(ctx context.Context, backend storage.Backend, payload []byte, missKind Kind, missMsg string) (action.Action, error) {
	key, err := keyutil.Parse(payload)
	if err != nil {
		return action.Action{}, wrapError(KindMalformed, "reference payload", err)
	}
	raw, err := backend.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return action.Action{}, wrapError(missKind, missMsg, err)
		}
		// Transient failures keep their storage identity; the caller
		// decides whether to retry.
		return action.Action{}, err
	}
	a, err := codec.Decode(raw)
	if err != nil {
		return action.Action{}, wrapError(KindMalformed, "stored record", err)
	}
	return a, nil
}
