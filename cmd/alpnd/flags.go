package main

import (
	"github.com/spf13/pflag"

	"github.com/mel2oo/go-alpn/config"
)

// Flags that override the loaded configuration when given.
type configFlags struct {
	values config.Config
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringVar(&f.values.Addr, "addr", d.Addr, "listen address")
	fs.StringVar(&f.values.CertFile, "cert", d.CertFile, "PEM certificate file")
	fs.StringVar(&f.values.KeyFile, "key", d.KeyFile, "PEM private key file")
	f.registerNegotiation(fs)
	fs.DurationVar(&f.values.HandshakeTimeout, "handshake-timeout", d.HandshakeTimeout, "limit on the TLS handshake")
}

// The subset of flags that shape negotiation.
func (f *configFlags) registerNegotiation(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringSliceVar(&f.values.Protocols, "protocols", d.Protocols, "application protocols, most preferred first")
	fs.StringVar(&f.values.DefaultProtocol, "default-protocol", d.DefaultProtocol, "protocol for clients without ALPN, empty to reject them")
	fs.StringSliceVar(&f.values.CipherSuites, "cipher-suites", d.CipherSuites, "enabled cipher suites, most preferred first")
	fs.BoolVar(&f.values.RestrictCiphers, "restrict-ciphers", d.RestrictCiphers, "advertise only cipher suites paired with the provisional protocol")
}

func (f *configFlags) apply(fs *pflag.FlagSet, c *config.Config) {
	fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "addr":
			c.Addr = f.values.Addr
		case "cert":
			c.CertFile = f.values.CertFile
		case "key":
			c.KeyFile = f.values.KeyFile
		case "protocols":
			c.Protocols = f.values.Protocols
		case "default-protocol":
			c.DefaultProtocol = f.values.DefaultProtocol
		case "cipher-suites":
			c.CipherSuites = f.values.CipherSuites
		case "restrict-ciphers":
			c.RestrictCiphers = f.values.RestrictCiphers
		case "handshake-timeout":
			c.HandshakeTimeout = f.values.HandshakeTimeout
		}
	})
}
