// Package token encodes action records into bounded wire tokens and
// decodes them back.
//
// A token is one tag byte followed by a payload, never longer than the
// transport limit (64 bytes by default). The tag selects one of four
// strategies: the record travels inline (raw or compressed) or is
// parked in a storage tier and referenced by its content-addressed key.
package token

import "fmt"

// Tag is the leading discriminator byte of a token.
//
// Tag values are wire constants. Changing them breaks every token
// already handed out to remote parties.
type Tag byte

const (
	// TagInlineRaw carries the canonical record bytes directly.
	TagInlineRaw Tag = 0x01
	// TagInlineCompressed carries the deflated canonical bytes.
	TagInlineCompressed Tag = 0x02
	// TagShortTermRef carries a derived key into the short-term tier.
	TagShortTermRef Tag = 0x03
	// TagPersistentRef carries a derived key into the persistent tier.
	TagPersistentRef Tag = 0x04
)

func (t Tag) String() string {
	switch t {
	case TagInlineRaw:
		return "inline-raw"
	case TagInlineCompressed:
		return "inline-compressed"
	case TagShortTermRef:
		return "short-term-reference"
	case TagPersistentRef:
		return "persistent-reference"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// tagOverhead is the fixed wire cost of the strategy discriminator.
const tagOverhead = 1

func pack(tag Tag, payload []byte) []byte {
	out := make([]byte, 0, tagOverhead+len(payload))
	out = append(out, byte(tag))
	return append(out, payload...)
}
