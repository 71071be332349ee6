package storage

import "errors"

var (
	// ErrNotFound reports an absent or expired record.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnavailable reports a transient backend failure (timeout,
	// connection loss). Safe to retry with backoff; never conflated
	// with ErrNotFound.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrInvalidKey reports a key that is undefined or not a valid
	// content-addressed identifier.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrClosed reports use of a backend after Close.
	ErrClosed = errors.New("storage: closed")
)

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
