package token

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/storage"
	"xdao.co/acttoken/storage/memory"
)

func newPipeline(t *testing.T, cfg Config) (*Encoder, *Decoder, *memory.Store, *memory.Store) {
	t.Helper()
	shortTerm := memory.New()
	persistent := memory.New()
	enc, err := NewEncoder(shortTerm, persistent, cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return enc, NewDecoder(shortTerm, persistent), shortTerm, persistent
}

// randomParams returns incompressible payload bytes of size n under a
// fixed seed so strategy selection is reproducible.
func randomParams(n int) action.Params {
	b := make([]byte, n)
	rand.New(rand.NewSource(42)).Read(b)
	return action.Params{"blob": action.Bytes(b)}
}

func TestEncodeSelectsInlineRaw(t *testing.T) {
	enc, dec, shortTerm, persistent := newPipeline(t, DefaultConfig())

	a := action.Action{Handler: "next", Params: action.Params{"page": action.Int(2)}}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagInlineRaw {
		t.Fatalf("tag = %s, want %s", Tag(tok[0]), TagInlineRaw)
	}
	if len(tok) > 64 {
		t.Fatalf("token length %d exceeds ceiling", len(tok))
	}
	if shortTerm.Stats().Total != 0 || persistent.Stats().Total != 0 {
		t.Fatal("inline encoding must not touch storage")
	}

	got, err := dec.Decode(context.Background(), tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(a) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestEncodeSelectsInlineCompressed(t *testing.T) {
	enc, dec, shortTerm, persistent := newPipeline(t, DefaultConfig())

	// Highly repetitive: too big raw, tiny deflated.
	a := action.Action{Handler: "page", Params: action.Params{
		"text": action.String(strings.Repeat("abc", 60)),
	}}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagInlineCompressed {
		t.Fatalf("tag = %s, want %s", Tag(tok[0]), TagInlineCompressed)
	}
	if len(tok) > 64 {
		t.Fatalf("token length %d exceeds ceiling", len(tok))
	}
	if shortTerm.Stats().Total != 0 || persistent.Stats().Total != 0 {
		t.Fatal("inline encoding must not touch storage")
	}

	got, err := dec.Decode(context.Background(), tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(a) {
		t.Fatal("round trip mismatch")
	}
}

func TestEncodeSelectsShortTermRef(t *testing.T) {
	enc, dec, shortTerm, persistent := newPipeline(t, DefaultConfig())

	// Incompressible, over the inline budget, under the persistent
	// threshold.
	a := action.Action{Handler: "page", Params: randomParams(200)}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagShortTermRef {
		t.Fatalf("tag = %s, want %s", Tag(tok[0]), TagShortTermRef)
	}
	if len(tok) > 64 {
		t.Fatalf("token length %d exceeds ceiling", len(tok))
	}
	if shortTerm.Stats().Total != 1 {
		t.Fatalf("short-term entries = %d, want 1", shortTerm.Stats().Total)
	}
	if shortTerm.Stats().WithTTL != 1 {
		t.Fatal("short-term record should carry a TTL")
	}
	if persistent.Stats().Total != 0 {
		t.Fatal("persistent tier should be untouched")
	}

	got, err := dec.Decode(context.Background(), tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(a) {
		t.Fatal("round trip mismatch")
	}
}

func TestEncodeSelectsPersistentRef(t *testing.T) {
	enc, dec, shortTerm, persistent := newPipeline(t, DefaultConfig())

	a := action.Action{Handler: "page", Params: randomParams(600)}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagPersistentRef {
		t.Fatalf("tag = %s, want %s", Tag(tok[0]), TagPersistentRef)
	}
	if len(tok) > 64 {
		t.Fatalf("token length %d exceeds ceiling", len(tok))
	}
	if persistent.Stats().Total != 1 {
		t.Fatalf("persistent entries = %d, want 1", persistent.Stats().Total)
	}
	if persistent.Stats().WithTTL != 0 {
		t.Fatal("persistent record must not expire")
	}
	if shortTerm.Stats().Total != 0 {
		t.Fatal("short-term tier should be untouched")
	}

	got, err := dec.Decode(context.Background(), tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(a) {
		t.Fatal("round trip mismatch")
	}
}

// handlerOf builds a valid handler name of exactly n bytes.
func handlerOf(n int) string {
	return strings.Repeat("h", n)
}

func TestInlineBoundaryExact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionEnabled = false
	enc, _, _, _ := newPipeline(t, cfg)

	// A paramless envelope {"h": name} canonicalizes to 3 bytes of
	// framing, a 2-byte string head for names 24..255 long, and the name
	// itself. A 58-byte name lands exactly on the 63-byte inline budget.
	at := action.Action{Handler: handlerOf(58)}
	tok, err := enc.Encode(context.Background(), at)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagInlineRaw {
		t.Fatalf("record at the budget should stay inline, got %s", Tag(tok[0]))
	}
	if len(tok) != 64 {
		t.Fatalf("token length = %d, want exactly 64", len(tok))
	}

	// One byte more and inline is impossible.
	over := action.Action{Handler: handlerOf(59)}
	tok, err = enc.Encode(context.Background(), over)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) != TagShortTermRef {
		t.Fatalf("record past the budget should become a reference, got %s", Tag(tok[0]))
	}
}

func TestCompressionRequiresStrictWin(t *testing.T) {
	enc, _, _, _ := newPipeline(t, DefaultConfig())

	// Random bytes do not deflate; selection must fall through to
	// storage rather than ship a compressed payload that grew.
	a := action.Action{Handler: "x", Params: randomParams(90)}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) == TagInlineCompressed {
		t.Fatal("incompressible record must not use the compressed strategy")
	}
	if Tag(tok[0]) != TagShortTermRef {
		t.Fatalf("tag = %s, want %s", Tag(tok[0]), TagShortTermRef)
	}
}

func TestCompressionDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionEnabled = false
	enc, _, _, _ := newPipeline(t, cfg)

	a := action.Action{Handler: "page", Params: action.Params{
		"text": action.String(strings.Repeat("abc", 60)),
	}}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if Tag(tok[0]) == TagInlineCompressed {
		t.Fatal("compression is disabled; compressed strategy must not be chosen")
	}
}

func TestReferenceDeduplicates(t *testing.T) {
	enc, _, shortTerm, _ := newPipeline(t, DefaultConfig())

	a := action.Action{Handler: "page", Params: randomParams(200)}
	first, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("identical records must produce identical reference tokens")
	}
	if shortTerm.Stats().Total != 1 {
		t.Fatalf("stored entries = %d, want 1 (deduplicated)", shortTerm.Stats().Total)
	}
}

func TestShortTermExpiry(t *testing.T) {
	enc, dec, shortTerm, _ := newPipeline(t, DefaultConfig())

	now := time.Unix(1700000000, 0)
	shortTerm.SetNow(func() time.Time { return now })

	a := action.Action{Handler: "page", Params: randomParams(200), TTL: action.MinTTL}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := dec.Decode(context.Background(), tok); err != nil {
		t.Fatalf("Decode before expiry: %v", err)
	}

	now = now.Add(action.MinTTL + time.Second)
	_, err = dec.Decode(context.Background(), tok)
	if !IsKind(err, KindExpired) {
		t.Fatalf("Decode after expiry = %v, want KindExpired", err)
	}
	// The miss keeps its storage cause attached.
	if !storage.IsNotFound(err) {
		t.Fatalf("expired error should wrap storage.ErrNotFound, got %v", err)
	}
}

func TestPerActionTTLOverride(t *testing.T) {
	enc, dec, shortTerm, _ := newPipeline(t, DefaultConfig())

	now := time.Unix(1700000000, 0)
	shortTerm.SetNow(func() time.Time { return now })

	short := action.Action{Handler: "a", Params: randomParams(150), TTL: action.MinTTL}
	long := action.Action{Handler: "b", Params: randomParams(180), TTL: 2 * time.Hour}

	shortTok, err := enc.Encode(context.Background(), short)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	longTok, err := enc.Encode(context.Background(), long)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	now = now.Add(90 * time.Minute)
	if _, err := dec.Decode(context.Background(), shortTok); !IsKind(err, KindExpired) {
		t.Fatalf("short-ttl token = %v, want KindExpired", err)
	}
	if _, err := dec.Decode(context.Background(), longTok); err != nil {
		t.Fatalf("long-ttl token should still resolve: %v", err)
	}
}

func TestPersistentMissIsNotFound(t *testing.T) {
	enc, dec, _, persistent := newPipeline(t, DefaultConfig())

	a := action.Action{Handler: "page", Params: randomParams(600)}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := persistent.SweepExpired(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Wipe the record out from under the token.
	fresh := NewDecoder(memory.New(), memory.New())
	_, err = fresh.Decode(context.Background(), tok)
	if !IsKind(err, KindNotFound) {
		t.Fatalf("persistent miss = %v, want KindNotFound", err)
	}

	if _, err := dec.Decode(context.Background(), tok); err != nil {
		t.Fatalf("record should still resolve where it was stored: %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, dec, _, _ := newPipeline(t, DefaultConfig())

	cases := map[string][]byte{
		"empty":              {},
		"tag only":           {byte(TagInlineRaw)},
		"garbage inline":     {byte(TagInlineRaw), 0xff, 0xff},
		"garbage compressed": {byte(TagInlineCompressed), 0x00, 0x01},
		"garbage reference":  {byte(TagShortTermRef), 0x01, 0x02, 0x03},
	}
	for name, tok := range cases {
		_, err := dec.Decode(context.Background(), tok)
		if !IsKind(err, KindMalformed) {
			t.Errorf("%s: err = %v, want KindMalformed", name, err)
		}
	}
}

func TestDecodeUnsupportedTag(t *testing.T) {
	_, dec, _, _ := newPipeline(t, DefaultConfig())
	_, err := dec.Decode(context.Background(), []byte{0x7f, 0x00, 0x01})
	if !IsKind(err, KindUnsupportedTag) {
		t.Fatalf("err = %v, want KindUnsupportedTag", err)
	}
}

func TestDecodePropagatesTransientFailure(t *testing.T) {
	enc, dec, _, _ := newPipeline(t, DefaultConfig())

	a := action.Action{Handler: "page", Params: randomParams(200)}
	tok, err := enc.Encode(context.Background(), a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dec.Decode(ctx, tok)
	if !storage.IsUnavailable(err) {
		t.Fatalf("err = %v, want storage.ErrUnavailable", err)
	}
	var tokErr *Error
	if errors.As(err, &tokErr) {
		t.Fatal("transient storage failures must not be reinterpreted")
	}
}

func TestEncodeForced(t *testing.T) {
	enc, dec, _, _ := newPipeline(t, DefaultConfig())
	ctx := context.Background()

	small := action.Action{Handler: "next", Params: action.Params{"n": action.Int(1)}}
	compressible := action.Action{Handler: "page", Params: action.Params{
		"text": action.String(strings.Repeat("abc", 60)),
	}}

	for _, tc := range []struct {
		name string
		a    action.Action
		tag  Tag
	}{
		{"inline-raw", small, TagInlineRaw},
		{"inline-compressed", compressible, TagInlineCompressed},
		{"short-term", small, TagShortTermRef},
		{"persistent", small, TagPersistentRef},
	} {
		tok, err := enc.EncodeForced(ctx, tc.a, tc.tag)
		if err != nil {
			t.Fatalf("EncodeForced(%s): %v", tc.name, err)
		}
		if Tag(tok[0]) != tc.tag {
			t.Fatalf("%s: tag = %s", tc.name, Tag(tok[0]))
		}
		got, err := dec.Decode(ctx, tok)
		if err != nil {
			t.Fatalf("%s: Decode: %v", tc.name, err)
		}
		if !got.Equal(tc.a) {
			t.Fatalf("%s: round trip mismatch", tc.name)
		}
	}
}

func TestEncodeForcedRejections(t *testing.T) {
	enc, _, _, _ := newPipeline(t, DefaultConfig())
	ctx := context.Background()

	big := action.Action{Handler: "page", Params: randomParams(200)}
	if _, err := enc.EncodeForced(ctx, big, TagInlineRaw); !IsKind(err, KindRecordTooLarge) {
		t.Fatalf("forced inline-raw on a large record = %v, want KindRecordTooLarge", err)
	}
	if _, err := enc.EncodeForced(ctx, big, TagInlineCompressed); !IsKind(err, KindRecordTooLarge) {
		t.Fatalf("forced compression on incompressible record = %v, want KindRecordTooLarge", err)
	}
	small := action.Action{Handler: "x"}
	if _, err := enc.EncodeForced(ctx, small, Tag(0x55)); !IsKind(err, KindUnsupportedTag) {
		t.Fatalf("forced unknown tag = %v, want KindUnsupportedTag", err)
	}
}

func TestNewEncoderRejectsMisconfiguration(t *testing.T) {
	st, p := memory.New(), memory.New()

	// Key representation cannot fit the ceiling: 16-byte digest encodes
	// to 20 bytes, plus the tag.
	cfg := DefaultConfig()
	cfg.TransportLimit = 20
	if _, err := NewEncoder(st, p, cfg); err == nil {
		t.Fatal("key size over the transport limit should be rejected")
	}

	cfg = DefaultConfig()
	cfg.DefaultTTL = time.Second
	if _, err := NewEncoder(st, p, cfg); err == nil {
		t.Fatal("out-of-range default TTL should be rejected")
	}

	cfg = DefaultConfig()
	cfg.KeySize = 4
	if _, err := NewEncoder(st, p, cfg); err == nil {
		t.Fatal("digest below the minimum should be rejected")
	}

	if _, err := NewEncoder(nil, p, DefaultConfig()); err == nil {
		t.Fatal("missing tier should be rejected")
	}
}

func TestConfigNormalization(t *testing.T) {
	enc, _, _, _ := newPipeline(t, Config{CompressionEnabled: true})
	got := enc.Config()
	want := DefaultConfig()
	if got != want {
		t.Fatalf("normalized config = %+v, want %+v", got, want)
	}
}

func TestCleanup(t *testing.T) {
	enc, dec, shortTerm, _ := newPipeline(t, DefaultConfig())
	ctx := context.Background()

	a := action.Action{Handler: "page", Params: randomParams(200)}
	tok, err := enc.Encode(ctx, a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	removed, err := dec.Cleanup(ctx, tok)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !removed {
		t.Fatal("Cleanup should report the record as removed")
	}
	if shortTerm.Stats().Total != 0 {
		t.Fatal("short-term record should be gone")
	}
	if _, err := dec.Decode(ctx, tok); !IsKind(err, KindExpired) {
		t.Fatalf("decode after cleanup = %v, want KindExpired", err)
	}

	// Inline and persistent tokens are left alone.
	inline, err := enc.Encode(ctx, action.Action{Handler: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	removed, err = dec.Cleanup(ctx, inline)
	if err != nil || removed {
		t.Fatalf("Cleanup(inline) = %v, %v; want false, nil", removed, err)
	}

	persistentTok, err := enc.Encode(ctx, action.Action{Handler: "p", Params: randomParams(600)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	removed, err = dec.Cleanup(ctx, persistentTok)
	if err != nil || removed {
		t.Fatalf("Cleanup(persistent) = %v, %v; want false, nil", removed, err)
	}
	if _, err := dec.Decode(ctx, persistentTok); err != nil {
		t.Fatalf("persistent token should survive cleanup: %v", err)
	}
}

func TestEstimatePredictsTier(t *testing.T) {
	enc, _, _, _ := newPipeline(t, DefaultConfig())

	big := action.Action{Handler: "page", Params: randomParams(600)}
	if est := enc.EstimateSize(big); est <= DefaultConfig().PersistentThreshold {
		t.Fatalf("estimate %d should exceed the persistent threshold", est)
	}
}

func TestTagStrings(t *testing.T) {
	for tag, want := range map[Tag]string{
		TagInlineRaw:        "inline-raw",
		TagInlineCompressed: "inline-compressed",
		TagShortTermRef:     "short-term-reference",
		TagPersistentRef:    "persistent-reference",
	} {
		if tag.String() != want {
			t.Errorf("Tag(%#x).String() = %q, want %q", byte(tag), tag.String(), want)
		}
	}
}
