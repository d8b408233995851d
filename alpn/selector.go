package alpn

import (
	"sort"
	"strings"

	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/optionals"
	"github.com/mel2oo/go-alpn/sets"
)

const (
	ProtocolHTTP2 = "h2"
	ProtocolHTTP1 = "http/1.1"
)

// Selector is the server's application protocol policy.
type Selector interface {
	// Returns the protocol the server would speak over a connection using
	// cipher, given the protocols the client offered, or None if no offered
	// protocol is acceptable with that cipher.
	Select(version clienthello.TLSVersion, cipher string, protocols []string) optionals.Optional[string]

	// Reorders protocols in place, most preferred first.
	Sort(protocols []string)

	// Called once with the protocol committed for the connection.
	Selected(protocol string)
}

// PreferenceSelector picks the first protocol from a server-ordered list that
// the client offered and that is usable with the cipher suite.
type PreferenceSelector struct {
	// Most preferred first.
	Protocols []string

	// Spoken with clients that send no ALPN extension. Empty rejects them.
	Default string

	OnSelected func(protocol string)
}

var _ Selector = (*PreferenceSelector)(nil)

func NewPreferenceSelector(protocols ...string) *PreferenceSelector {
	return &PreferenceSelector{Protocols: protocols}
}

func (s *PreferenceSelector) Select(version clienthello.TLSVersion, cipher string, protocols []string) optionals.Optional[string] {
	if len(protocols) == 0 {
		if s.Default != "" && Usable(s.Default, version, cipher) {
			return optionals.Some(s.Default)
		}
		return optionals.None[string]()
	}

	offered := sets.NewSet(protocols...)
	for _, p := range s.Protocols {
		if offered.Contains(p) && Usable(p, version, cipher) {
			return optionals.Some(p)
		}
	}
	return optionals.None[string]()
}

// Protocols the server does not list sort last, keeping their order.
func (s *PreferenceSelector) Sort(protocols []string) {
	sort.SliceStable(protocols, func(i, j int) bool {
		return s.rank(protocols[i]) < s.rank(protocols[j])
	})
}

func (s *PreferenceSelector) rank(protocol string) int {
	for i, p := range s.Protocols {
		if p == protocol {
			return i
		}
	}
	return len(s.Protocols)
}

func (s *PreferenceSelector) Selected(protocol string) {
	if s.OnSelected != nil {
		s.OnSelected(protocol)
	}
}

// Reports whether protocol may run over a connection with the given version
// and cipher suite. Only h2 constrains the connection.
func Usable(protocol string, version clienthello.TLSVersion, cipher string) bool {
	if protocol != ProtocolHTTP2 {
		return true
	}
	return version >= clienthello.TLSv1_2 && HTTP2CipherSuite(cipher)
}

// Reports whether an HTTP/2 connection may use the cipher suite: it must have
// ephemeral key exchange and an AEAD cipher (RFC 7540, section 9.2.2). The
// TLS 1.3 suites name no key exchange and are all acceptable.
func HTTP2CipherSuite(name string) bool {
	kx, bulk, ok := strings.Cut(strings.TrimPrefix(name, "TLS_"), "_WITH_")
	if !ok {
		return strings.HasPrefix(name, "TLS_AES_") || strings.HasPrefix(name, "TLS_CHACHA20_POLY1305_")
	}
	if !strings.HasPrefix(kx, "ECDHE_") && !strings.HasPrefix(kx, "DHE_") {
		return false
	}
	return strings.Contains(bulk, "_GCM_") ||
		strings.Contains(bulk, "CHACHA20_POLY1305") ||
		strings.HasSuffix(bulk, "_CCM") ||
		strings.HasSuffix(bulk, "_CCM_8")
}
