package token

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings;
// Error() text is for humans and may evolve.
type Kind string

const (
	// KindRecordTooLarge: no strategy fits the transport ceiling.
	// Terminal; the caller must shrink the record.
	KindRecordTooLarge Kind = "RecordTooLarge"
	// KindMalformed: token bytes do not parse to a valid record.
	KindMalformed Kind = "Malformed"
	// KindNotFound: a persistent reference points at nothing.
	KindNotFound Kind = "NotFound"
	// KindExpired: a short-term reference has aged out.
	KindExpired Kind = "Expired"
	// KindUnsupportedTag: unknown strategy discriminator. Terminal
	// for that token.
	KindUnsupportedTag Kind = "UnsupportedTag"
)

// Error is the package's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return "token: " + e.Message + ": " + e.Cause.Error()
	}
	return "token: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given
// Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
