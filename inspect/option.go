package inspect

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/cipher"
)

const (
	DefaultStreamCloseTimeout = 90 * time.Second

	DefaultMaxBufferedPagesTotal         int = 100000
	DefaultMaxBufferedPagesPerConnection int = 4000
)

type Options struct {
	// Capture file to read, in pcap or pcapng format.
	ReadName string

	// Read the capture from here instead of ReadName.
	Source io.Reader

	Catalog cipher.Table

	// When set, each Client Hello is pre-processed against these cipher
	// suites, in preference order, as a server enabling them would.
	EnabledCipherSuites []string
	Protocols           []string
	DefaultProtocol     string
	RestrictCiphers     bool

	// Flows idle for longer than this, in capture time, are given up on.
	StreamCloseTimeout time.Duration

	// Limits on gopacket reassembly buffers. A page is 1900 bytes.
	MaxBufferedPagesTotal         int
	MaxBufferedPagesPerConnection int

	Logger *zap.Logger
}

func NewOptions() Options {
	return Options{
		Catalog:                       cipher.Default(),
		Protocols:                     []string{alpn.ProtocolHTTP2, alpn.ProtocolHTTP1},
		StreamCloseTimeout:            DefaultStreamCloseTimeout,
		MaxBufferedPagesTotal:         DefaultMaxBufferedPagesTotal,
		MaxBufferedPagesPerConnection: DefaultMaxBufferedPagesPerConnection,
		Logger:                        zap.NewNop(),
	}
}

type Option func(*Options)

func WithReadName(name string) Option {
	return func(o *Options) {
		o.ReadName = name
	}
}

func WithSource(r io.Reader) Option {
	return func(o *Options) {
		o.Source = r
	}
}

func WithCatalog(catalog cipher.Table) Option {
	return func(o *Options) {
		o.Catalog = catalog
	}
}

func WithEnabledCipherSuites(names ...string) Option {
	return func(o *Options) {
		o.EnabledCipherSuites = names
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

func WithRestrictCiphers(restrict bool) Option {
	return func(o *Options) {
		o.RestrictCiphers = restrict
	}
}

func WithStreamCloseTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.StreamCloseTimeout = d
	}
}

func WithTotalPagesBlock(n int) Option {
	return func(o *Options) {
		o.MaxBufferedPagesTotal = n * DefaultMaxBufferedPagesTotal
	}
}

func WithPerPagesBlock(n int) Option {
	return func(o *Options) {
		o.MaxBufferedPagesPerConnection = n * DefaultMaxBufferedPagesPerConnection
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
