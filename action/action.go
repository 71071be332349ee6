// Package action defines the navigation action record and its dynamic
// parameter value model.
//
// An Action names a handler and carries arbitrary structured parameters.
// Actions are immutable once handed to the encoder: the encoding layer
// never mutates them, and two actions with the same logical content
// always canonicalize to identical bytes.
package action

import (
	"fmt"
	"time"
)

// TTL bounds for the short-term storage tier. These mirror the
// transport's practical callback lifetime: anything below a minute is
// useless to a human pressing buttons, anything above a day should go
// to the persistent tier instead.
const (
	MinTTL     = 60 * time.Second
	MaxTTL     = 24 * time.Hour
	DefaultTTL = time.Hour
)

// Action is the unit being encoded into a token.
//
// Handler names the logic to invoke when the token comes back.
// Params may hold any Value shapes; cycles are impossible by
// construction (Value is a pure tree).
type Action struct {
	Handler string
	Params  Params

	// TTL overrides the encoder's default lifetime for the short-term
	// storage tier. Zero means "use the encoder default". Ignored for
	// inline and persistent strategies.
	TTL time.Duration
}

// Params maps parameter names to dynamic values.
type Params map[string]Value

// Validate checks the record against the rules an encoder relies on.
func (a Action) Validate() error {
	if err := CheckHandler(a.Handler); err != nil {
		return err
	}
	if a.TTL != 0 && (a.TTL < MinTTL || a.TTL > MaxTTL) {
		return fmt.Errorf("action: ttl %v outside [%v, %v]", a.TTL, MinTTL, MaxTTL)
	}
	return nil
}

// Equal reports deep equality of two actions. TTL is part of the
// record's encoding policy, not its identity, and is excluded.
func (a Action) Equal(b Action) bool {
	if a.Handler != b.Handler {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for k, v := range a.Params {
		w, ok := b.Params[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// CheckHandler validates a handler name: a non-empty dot-separated path
// of identifiers ([A-Za-z0-9_]), at most 100 bytes. The same rule the
// dispatch layer applies on registration, so an encoded action can
// always be routed.
func CheckHandler(name string) error {
	if name == "" {
		return fmt.Errorf("action: empty handler name")
	}
	if len(name) > 100 {
		return fmt.Errorf("action: handler name exceeds 100 bytes")
	}
	prevDot := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' {
			if prevDot {
				return fmt.Errorf("action: invalid handler name %q", name)
			}
			prevDot = true
			continue
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return fmt.Errorf("action: invalid handler name %q", name)
		}
		prevDot = false
	}
	if prevDot {
		return fmt.Errorf("action: invalid handler name %q", name)
	}
	return nil
}
