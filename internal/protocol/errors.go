package protocol

import "errors"

// Wire corruption. Any of these ends the current connection attempt.
var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrUnknownMessage = errors.New("protocol: unknown message")
	ErrMalformedKey   = errors.New("protocol: malformed key")
	ErrMissingField   = errors.New("protocol: missing field")
	ErrInvalidValue   = errors.New("protocol: invalid field value")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds buffer")
)

// Caller misuse.
var (
	ErrNoConverter = errors.New("protocol: no converter registered")
	ErrUnencodable = errors.New("protocol: value cannot be encoded")
)

// IsCorruption reports whether err means the byte stream can no longer be
// trusted, as opposed to a request the caller should not have made.
func IsCorruption(err error) bool {
	for _, target := range []error{ErrMalformedFrame, ErrUnknownMessage, ErrMalformedKey, ErrMissingField, ErrInvalidValue, ErrFrameTooLarge} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
