package token

import (
	"fmt"
	"time"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/keyutil"
)

// Config holds every boundary the strategy selector uses. No hidden
// constants: tests exercise boundary values by constructing encoders
// with exact thresholds.
type Config struct {
	// TransportLimit is the hard ceiling on total token length,
	// including the tag byte. The channel this library was built for
	// rejects anything longer than 64 bytes.
	TransportLimit int

	// PersistentThreshold is the canonical-size boundary between the
	// short-term and persistent tiers. Records at or below it go to
	// the short-term tier with a TTL; larger records go to the
	// persistent tier with no expiry.
	PersistentThreshold int

	// DefaultTTL is the short-term record lifetime when the action
	// does not carry its own.
	DefaultTTL time.Duration

	// CompressionEnabled permits the inline-compressed strategy.
	CompressionEnabled bool

	// KeySize is the derived-key digest length in bytes.
	KeySize int
}

// DefaultConfig returns the documented defaults: 64-byte transport
// limit, 500-byte persistent threshold, one-hour TTL, compression on,
// 16-byte digests.
func DefaultConfig() Config {
	return Config{
		TransportLimit:      64,
		PersistentThreshold: 500,
		DefaultTTL:          action.DefaultTTL,
		CompressionEnabled:  true,
		KeySize:             keyutil.DefaultSize,
	}
}

// normalized fills zero numeric fields with their defaults.
// CompressionEnabled is left exactly as the caller set it.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.TransportLimit == 0 {
		c.TransportLimit = d.TransportLimit
	}
	if c.PersistentThreshold == 0 {
		c.PersistentThreshold = d.PersistentThreshold
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.KeySize == 0 {
		c.KeySize = d.KeySize
	}
	return c
}

func (c Config) validate() error {
	if c.TransportLimit < tagOverhead+1 {
		return fmt.Errorf("token: transport limit %d leaves no payload room", c.TransportLimit)
	}
	if c.PersistentThreshold < 1 {
		return fmt.Errorf("token: persistent threshold %d must be positive", c.PersistentThreshold)
	}
	if c.DefaultTTL < action.MinTTL || c.DefaultTTL > action.MaxTTL {
		return fmt.Errorf("token: default ttl %v outside [%v, %v]", c.DefaultTTL, action.MinTTL, action.MaxTTL)
	}
	if c.KeySize < keyutil.MinSize {
		return fmt.Errorf("token: key size %d below minimum %d", c.KeySize, keyutil.MinSize)
	}
	return nil
}

// inlineBudget is the payload room left after the tag byte.
func (c Config) inlineBudget() int {
	return c.TransportLimit - tagOverhead
}
