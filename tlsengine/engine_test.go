package tlsengine

import (
	"crypto/tls"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel2oo/go-alpn/cipher"
	"github.com/mel2oo/go-alpn/clienthello"
)

func TestEnabledCipherSuites(t *testing.T) {
	base := &tls.Config{
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			0xfefe,
			// Known to the catalog, ignored by crypto/tls.
			0x009e,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
	e := New(base, cipher.Default())

	assert.Equal(t, []string{
		"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	}, e.EnabledCipherSuites())
}

func TestEnabledCipherSuitesDefaults(t *testing.T) {
	e := New(nil, cipher.Default())

	enabled := e.EnabledCipherSuites()
	assert.Contains(t, enabled, "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256")
	assert.NotContains(t, enabled, "TLS_AES_128_GCM_SHA256", "TLS 1.3 suites cannot be configured")
	assert.NotContains(t, enabled, "TLS_RSA_WITH_RC4_128_SHA", "insecure suites are not enabled by default")
}

func TestConfig(t *testing.T) {
	base := &tls.Config{
		MinVersion: tls.VersionTLS10,
		NextProtos: []string{"h2", "http/1.1"},
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return nil, nil
		},
	}
	e := New(base, cipher.Default())

	_, err := e.Config()
	assert.True(t, errors.Is(err, ErrNotConfigured), "got %v", err)

	require.NoError(t, e.Configure([]string{
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
	}, "h2"))

	cfg, err := e.Config()
	require.NoError(t, err)
	assert.Equal(t, []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	}, cfg.CipherSuites)
	assert.Equal(t, []string{"h2"}, cfg.NextProtos)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MaxVersion)
	assert.Equal(t, uint16(tls.VersionTLS10), cfg.MinVersion)
	assert.Nil(t, cfg.GetConfigForClient)

	// The base configuration is untouched.
	assert.Equal(t, []string{"h2", "http/1.1"}, base.NextProtos)
	assert.Empty(t, base.CipherSuites)
	assert.NotNil(t, base.GetConfigForClient)
}

func TestConfigKeepsLowerMaxVersion(t *testing.T) {
	e := New(&tls.Config{MaxVersion: tls.VersionTLS11}, cipher.Default())
	require.NoError(t, e.Configure([]string{"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA"}, "http/1.1"))

	cfg, err := e.Config()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS11), cfg.MaxVersion)
}

func TestConfigureErrors(t *testing.T) {
	e := New(nil, cipher.Default())

	err := e.Configure([]string{"TLS_NOT_A_SUITE"}, "h2")
	assert.True(t, errors.Is(err, ErrUnknownCipherSuite), "got %v", err)

	assert.Error(t, e.Configure(nil, "h2"))
	assert.Error(t, e.Configure([]string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"}, ""))

	_, err = e.Config()
	assert.True(t, errors.Is(err, ErrNotConfigured), "got %v", err)
}

func TestNegotiated(t *testing.T) {
	e := New(nil, cipher.Default())

	version, name, err := e.Negotiated(tls.ConnectionState{
		HandshakeComplete: true,
		Version:           tls.VersionTLS12,
		CipherSuite:       tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	})
	require.NoError(t, err)
	assert.Equal(t, clienthello.TLSv1_2, version)
	assert.Equal(t, "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", name)

	_, _, err = e.Negotiated(tls.ConnectionState{
		HandshakeComplete: true,
		Version:           tls.VersionTLS13,
		CipherSuite:       tls.TLS_AES_128_GCM_SHA256,
	})
	assert.True(t, errors.Is(err, clienthello.ErrUnknownTLSVersion), "got %v", err)

	_, _, err = e.Negotiated(tls.ConnectionState{
		HandshakeComplete: true,
		Version:           tls.VersionTLS12,
		CipherSuite:       0xfefe,
	})
	assert.True(t, errors.Is(err, ErrUnknownCipherSuite), "got %v", err)

	_, _, err = e.Negotiated(tls.ConnectionState{})
	assert.Error(t, err)
}

func TestConfigureRejectsUnsupportedCipherSuite(t *testing.T) {
	e := New(nil, cipher.Default())

	err := e.Configure([]string{
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_DHE_RSA_WITH_AES_128_GCM_SHA256",
	}, "h2")
	assert.True(t, errors.Is(err, ErrUnsupportedCipherSuite), "got %v", err)

	_, err = e.Config()
	assert.True(t, errors.Is(err, ErrNotConfigured), "got %v", err)
}
