package alpn

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// No shared cipher suite has a protocol the selector accepts. Callers
	// should answer with a no_application_protocol alert.
	ErrNoApplicationProtocol = errors.New("no_application_protocol")

	// The engine negotiated a different TLS version than the client offered.
	ErrTLSVersionMismatch = errors.New("negotiated TLS version differs from the Client Hello")

	// The engine negotiated a cipher suite outside the advertised pairs.
	ErrCipherSuiteMismatch = errors.New("negotiated cipher suite has no candidate protocol")

	// The provisional protocol is not valid for the negotiated cipher suite and
	// the engine could not be rebound to a replacement.
	ErrProvisionalProtocolStale = errors.New("provisional application protocol is stale")

	// The engine cannot change its application protocol after configuration.
	ErrRebindUnsupported = errors.New("engine does not support rebinding the application protocol")

	// A Negotiator method was called out of order.
	ErrPhase = errors.New("negotiation phase violation")
)

// Returned by PostProcess when the provisional protocol advertised during
// PreProcess is not paired with the cipher suite the engine picked. The
// handshake must be abandoned, or replayed on an engine configured with
// Replacement.
type StaleProtocolError struct {
	Provisional string
	Replacement string
	CipherSuite string

	// Why the engine could not be rebound to Replacement.
	Cause error
}

func (e *StaleProtocolError) Error() string {
	return fmt.Sprintf("%s: %q advertised, but cipher suite %s requires %q: %v",
		ErrProvisionalProtocolStale, e.Provisional, e.CipherSuite, e.Replacement, e.Cause)
}

func (e *StaleProtocolError) Is(target error) bool {
	return target == ErrProvisionalProtocolStale
}

func (e *StaleProtocolError) Unwrap() error {
	return e.Cause
}
