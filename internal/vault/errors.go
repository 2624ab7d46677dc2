package vault

import "errors"

// Errors returned by the credential vault. Decrypt failures are
// deliberately generic: callers learn that the blob is unreadable, not
// why the cipher rejected it.
var (
	// ErrInvalidMasterKey is returned by New when the master key is not
	// exactly 32 bytes.
	ErrInvalidMasterKey = errors.New("master key must be exactly 32 bytes")

	// ErrKeyVersionUnknown is returned when a blob names a key version
	// that is not in the key table.
	ErrKeyVersionUnknown = errors.New("unknown key version")

	// ErrMalformedBlob is returned when a blob is shorter than the
	// version and nonce header.
	ErrMalformedBlob = errors.New("malformed ciphertext blob")

	// ErrAuthenticationFailed is returned when AEAD opening fails.
	// Plaintext is never returned on corruption.
	ErrAuthenticationFailed = errors.New("credentials unreadable")
)
