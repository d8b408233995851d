// Package tlsengine drives crypto/tls as the TLS engine of an ALPN
// negotiation.
//
// crypto/tls picks the cipher suite on its own from the suites it is
// configured with, and fixes the application protocol while writing the
// ServerHello, so an Engine cannot be rebound once configured.
package tlsengine

import (
	"crypto/tls"

	"github.com/pkg/errors"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/cipher"
	"github.com/mel2oo/go-alpn/clienthello"
)

var (
	ErrNotConfigured      = errors.New("TLS engine has not been configured")
	ErrUnknownCipherSuite = errors.New("cipher suite is not in the catalog")

	// The catalog knows the suite but crypto/tls cannot negotiate it.
	ErrUnsupportedCipherSuite = errors.New("cipher suite is not implemented by crypto/tls")
)

var implemented = cipher.FromCryptoTLS()

// Engine derives a per-connection tls.Config from a base configuration.
// Not safe for concurrent use; create one per connection.
type Engine struct {
	base    *tls.Config
	catalog cipher.Table

	configured bool
	codes      []uint16
	protocol   string
}

var _ alpn.Engine = (*Engine)(nil)

func New(base *tls.Config, catalog cipher.Table) *Engine {
	if base == nil {
		base = &tls.Config{}
	}
	return &Engine{
		base:    base,
		catalog: catalog,
	}
}

// Names of the cipher suites the base configuration enables for TLS 1.2, in
// configured order. When the base configuration lists none, the crypto/tls
// secure defaults. Codes crypto/tls ignores are left out.
func (e *Engine) EnabledCipherSuites() []string {
	codes := e.base.CipherSuites
	if len(codes) == 0 {
		codes = defaultCipherSuites()
	}

	rv := make([]string, 0, len(codes))
	for _, code := range codes {
		if implemented.Lookup(code).IsNone() {
			continue
		}
		if name, ok := e.catalog.Lookup(code).Get(); ok {
			rv = append(rv, name)
		}
	}
	return rv
}

func (e *Engine) Configure(cipherSuites []string, protocol string) error {
	if protocol == "" {
		return errors.New("empty application protocol")
	}

	codes := make([]uint16, 0, len(cipherSuites))
	for _, name := range cipherSuites {
		code, ok := e.catalog.Code(name)
		if !ok {
			return errors.Wrapf(ErrUnknownCipherSuite, "%s", name)
		}
		if implemented.Lookup(code).IsNone() {
			return errors.Wrapf(ErrUnsupportedCipherSuite, "%s", name)
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return errors.New("no cipher suites to advertise")
	}

	e.codes = codes
	e.protocol = protocol
	e.configured = true
	return nil
}

// Returns the configuration for the handshake: the base configuration limited
// to the configured cipher suites and protocol, and to TLS 1.2 at most, since
// crypto/tls does not let TLS 1.3 cipher suites be chosen.
func (e *Engine) Config() (*tls.Config, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}

	cfg := e.base.Clone()
	cfg.GetConfigForClient = nil
	cfg.CipherSuites = append([]uint16(nil), e.codes...)
	cfg.NextProtos = []string{e.protocol}
	if cfg.MaxVersion == 0 || cfg.MaxVersion > tls.VersionTLS12 {
		cfg.MaxVersion = tls.VersionTLS12
	}
	return cfg, nil
}

// Returns the version and cipher suite of a completed handshake.
func (e *Engine) Negotiated(state tls.ConnectionState) (clienthello.TLSVersion, string, error) {
	if !state.HandshakeComplete {
		return 0, "", errors.New("handshake is not complete")
	}

	version, err := clienthello.ParseTLSVersion(state.Version)
	if err != nil {
		return 0, "", errors.Wrap(err, "negotiated version")
	}

	name, ok := e.catalog.Lookup(state.CipherSuite).Get()
	if !ok {
		return 0, "", errors.Wrapf(ErrUnknownCipherSuite, "negotiated 0x%04x", state.CipherSuite)
	}
	return version, name, nil
}

func defaultCipherSuites() []uint16 {
	var rv []uint16
	for _, s := range tls.CipherSuites() {
		for _, v := range s.SupportedVersions {
			if v == tls.VersionTLS12 {
				rv = append(rv, s.ID)
				break
			}
		}
	}
	return rv
}
