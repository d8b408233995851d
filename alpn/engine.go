package alpn

// Engine is the part of a TLS engine the Negotiator drives before the
// handshake picks a cipher suite.
type Engine interface {
	// Restricts the engine to cipherSuites, in preference order, and makes
	// protocol the only application protocol it will advertise.
	Configure(cipherSuites []string, protocol string) error
}

// Rebinder is implemented by engines that can change the advertised
// application protocol after the cipher suite has been negotiated.
type Rebinder interface {
	Rebind(protocol string) error
}

// An Advertisement records what a Negotiator configured. It serves as the
// Engine for dry runs, where no real handshake follows.
type Advertisement struct {
	CipherSuites []string `json:"cipher_suites"`
	Protocol     string   `json:"protocol"`
}

var _ Engine = (*Advertisement)(nil)

func (a *Advertisement) Configure(cipherSuites []string, protocol string) error {
	a.CipherSuites = append([]string(nil), cipherSuites...)
	a.Protocol = protocol
	return nil
}
