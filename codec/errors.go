package codec

import "errors"

var (
	// ErrSerialization marks a record that cannot be canonicalized
	// (invalid handler, unsupported value, cycle). Not retryable;
	// the producer must fix the record.
	ErrSerialization = errors.New("codec: cannot serialize record")

	// ErrMalformed marks bytes that do not decode to a valid record.
	ErrMalformed = errors.New("codec: malformed record bytes")
)

func IsSerialization(err error) bool { return errors.Is(err, ErrSerialization) }
func IsMalformed(err error) bool     { return errors.Is(err, ErrMalformed) }
