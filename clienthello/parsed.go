package clienthello

// The parts of a Client Hello that protocol negotiation depends on.
type ParsedClientHello struct {
	Version TLSVersion `json:"tls_version"`

	// Names of the offered cipher suites, in client wire order. Codes missing
	// from the cipher catalog are dropped; duplicates are kept.
	CipherSuites []string `json:"cipher_suites"`

	// The protocols offered in the ALPN extension, in client preference order.
	// Empty if the client sent no ALPN extension.
	Protocols []string `json:"protocols"`
}
