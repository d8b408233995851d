package server

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/cipher"
)

const (
	DefaultAddr             = ":8443"
	DefaultHandshakeTimeout = 10 * time.Second
)

type Options struct {
	Addr string

	// Certificates and other settings shared by every connection. Cipher
	// suites listed here are the engine's enabled suites, in preference order.
	TLSConfig *tls.Config

	// PEM files loaded into TLSConfig by New.
	CertFile string
	KeyFile  string

	Catalog cipher.Table

	// Application protocols in server preference order.
	Protocols []string

	// Protocol spoken with clients that send no ALPN extension. Empty rejects
	// them.
	DefaultProtocol string

	// Serves a connection once its protocol is committed.
	Handlers map[string]ProtocolHandler

	HandshakeTimeout time.Duration

	RestrictCiphers bool

	Logger *zap.Logger
}

func NewOptions() Options {
	return Options{
		Addr:             DefaultAddr,
		Catalog:          cipher.Default(),
		Protocols:        []string{alpn.ProtocolHTTP2, alpn.ProtocolHTTP1},
		DefaultProtocol:  alpn.ProtocolHTTP1,
		Handlers:         map[string]ProtocolHandler{},
		HandshakeTimeout: DefaultHandshakeTimeout,
		Logger:           zap.NewNop(),
	}
}

type Option func(*Options)

func WithAddr(addr string) Option {
	return func(o *Options) {
		o.Addr = addr
	}
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = cfg
	}
}

func WithCertificateFiles(certFile, keyFile string) Option {
	return func(o *Options) {
		o.CertFile = certFile
		o.KeyFile = keyFile
	}
}

func WithCatalog(catalog cipher.Table) Option {
	return func(o *Options) {
		o.Catalog = catalog
	}
}

func WithProtocols(protocols ...string) Option {
	return func(o *Options) {
		o.Protocols = protocols
	}
}

func WithDefaultProtocol(protocol string) Option {
	return func(o *Options) {
		o.DefaultProtocol = protocol
	}
}

// Binds handler to protocol, replacing any earlier binding.
func WithHandler(protocol string, handler ProtocolHandler) Option {
	return func(o *Options) {
		o.Handlers[protocol] = handler
	}
}

func WithHandlers(handlers map[string]ProtocolHandler) Option {
	return func(o *Options) {
		for p, h := range handlers {
			o.Handlers[p] = h
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

func WithRestrictCiphers(restrict bool) Option {
	return func(o *Options) {
		o.RestrictCiphers = restrict
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
