package clienthello

import "github.com/pkg/errors"

// All parse errors are fatal for the connection: the Parser keeps returning
// the same error and the input must not be retried.
var (
	// The first byte is not a TLS handshake record.
	ErrMalformedRecord = errors.New("malformed TLS record: not a handshake record")

	// The handshake message is not a Client Hello, or its body does not match
	// its declared length.
	ErrMalformedHandshake = errors.New("malformed TLS handshake: not a Client Hello")

	// The client version is not one of SSLv3, TLSv1, TLSv1.1 or TLSv1.2.
	ErrUnknownTLSVersion = errors.New("unknown TLS version")

	// The cipher suite list has an odd length.
	ErrMalformedCipherSuites = errors.New("malformed cipher suite list")

	// An extension, or the ALPN protocol list inside one, does not land
	// exactly on its declared boundary.
	ErrMalformedExtensions = errors.New("malformed TLS extensions")
)
