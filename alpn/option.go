package alpn

import (
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/gid"
)

type Options struct {
	Logger *zap.Logger

	// Advertise only the cipher suites paired with the provisional protocol.
	// The negotiated cipher suite then always agrees with the provisional
	// protocol, at the price of fewer cipher suites on offer.
	RestrictCiphers bool

	// Tags log lines. Generated when not set.
	ID gid.NegotiationID
}

func NewOptions() Options {
	return Options{
		Logger: zap.NewNop(),
		ID:     gid.GenerateNegotiationID(),
	}
}

type Option func(*Options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithRestrictCiphers(restrict bool) Option {
	return func(o *Options) {
		o.RestrictCiphers = restrict
	}
}

func WithID(id gid.NegotiationID) Option {
	return func(o *Options) {
		o.ID = id
	}
}
